package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/formistiq/backend/internal/auth"
	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/repository/mock"
)

func setupHandler() (*Handler, *mock.Repository) {
	repo := mock.New()
	tokens := auth.NewTokens("test-secret")
	handler := NewHandler(repo, tokens, nil) // No generator for basic tests
	return handler, repo
}

// seedUser creates a user directly in the repo and returns a valid token.
func seedUser(t *testing.T, handler *Handler, repo *mock.Repository, email string) (*domain.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("sw0rdfish123")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	user := &domain.User{
		ID:           uuid.New(),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateUser(nil, user); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}
	token, err := handler.tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return user, token
}

func seedForm(t *testing.T, repo *mock.Repository, owner uuid.UUID) *domain.Form {
	t.Helper()
	url, err := domain.NewUniqueURL()
	if err != nil {
		t.Fatalf("Failed to generate share url: %v", err)
	}
	form := &domain.Form{
		ID:        uuid.New(),
		Title:     "Lunch Order",
		UserID:    owner,
		UniqueURL: url,
		Questions: []domain.Question{
			{ID: uuid.New(), Kind: domain.QuestionShortAnswer, Text: "What would you like?", Required: true},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateForm(nil, form); err != nil {
		t.Fatalf("Failed to seed form: %v", err)
	}
	return form
}

func TestSignup(t *testing.T) {
	handler, _ := setupHandler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid signup",
			body:       `{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "password": "sw0rdfish123"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing email",
			body:       `{"firstName": "Ada", "lastName": "Lovelace", "password": "sw0rdfish123"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bad email",
			body:       `{"firstName": "Ada", "lastName": "Lovelace", "email": "not-an-email", "password": "sw0rdfish123"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "short password",
			body:       `{"firstName": "Ada", "lastName": "Lovelace", "email": "ada2@example.com", "password": "short"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{invalid}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/auth/signup", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			handler.Signup(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Signup() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusCreated {
				var resp authResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if resp.Token == "" {
					t.Error("Expected a token")
				}
				if resp.User == nil || resp.User.ID == uuid.Nil {
					t.Error("Expected a user with an ID")
				}
			}
		})
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	handler, repo := setupHandler()
	seedUser(t, handler, repo, "taken@example.com")

	body := `{"firstName": "Eve", "lastName": "Green", "email": "taken@example.com", "password": "sw0rdfish123"}`
	req := httptest.NewRequest("POST", "/api/auth/signup", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handler.Signup(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Signup() status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSignupNeverReturnsPasswordHash(t *testing.T) {
	handler, _ := setupHandler()

	body := `{"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "password": "sw0rdfish123"}`
	req := httptest.NewRequest("POST", "/api/auth/signup", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	handler.Signup(w, req)

	if bytes.Contains(w.Body.Bytes(), []byte("passwordHash")) || bytes.Contains(w.Body.Bytes(), []byte("$2a$")) {
		t.Errorf("Response leaks password hash: %s", w.Body.String())
	}
}

func TestLogin(t *testing.T) {
	handler, repo := setupHandler()
	seedUser(t, handler, repo, "ada@example.com")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid credentials",
			body:       `{"email": "ada@example.com", "password": "sw0rdfish123"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			body:       `{"email": "ada@example.com", "password": "wrong-password"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown email",
			body:       `{"email": "nobody@example.com", "password": "sw0rdfish123"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing password",
			body:       `{"email": "ada@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			handler.Login(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Login() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusOK {
				var resp authResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				if resp.Token == "" {
					t.Error("Expected a token")
				}
			}
		})
	}
}

func TestLoginMixedCaseEmail(t *testing.T) {
	handler, _ := setupHandler()

	// Sign up with one casing, log in with another. Stored emails are
	// lowercased, so login must normalize the same way.
	signupBody := `{"firstName": "Ada", "lastName": "Lovelace", "email": "Ada@Example.com", "password": "sw0rdfish123"}`
	req := httptest.NewRequest("POST", "/api/auth/signup", bytes.NewBufferString(signupBody))
	w := httptest.NewRecorder()
	handler.Signup(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Signup() status = %d, body = %s", w.Code, w.Body.String())
	}

	loginBody := `{"email": "ADA@EXAMPLE.COM", "password": "sw0rdfish123"}`
	req = httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString(loginBody))
	w = httptest.NewRecorder()
	handler.Login(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Login() status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp authResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.User.Email != "ada@example.com" {
		t.Errorf("Login() user email = %q, want lowercased", resp.User.Email)
	}
}

func TestRequireAuth(t *testing.T) {
	handler, repo := setupHandler()
	_, token := seedUser(t, handler, repo, "ada@example.com")

	protected := handler.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			t.Error("Expected user ID on context")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/forms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			protected(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateForm(t *testing.T) {
	handler, repo := setupHandler()
	user, token := seedUser(t, handler, repo, "ada@example.com")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name: "valid form",
			body: `{
				"title": "Event RSVP",
				"description": "Tell us if you are coming",
				"questions": [
					{"type": "short_answer", "text": "Any dietary requirements?"},
					{"type": "mcq", "text": "Attending?", "options": ["Yes", "No", "Maybe"], "required": true}
				]
			}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing title",
			body:       `{"questions": [{"type": "short_answer", "text": "Q"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no questions",
			body:       `{"title": "Empty", "questions": []}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown question type",
			body:       `{"title": "T", "questions": [{"type": "slider", "text": "Q"}]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "mcq without options",
			body:       `{"title": "T", "questions": [{"type": "mcq", "text": "Q"}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/forms", bytes.NewBufferString(tt.body))
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			handler.RequireAuth(handler.CreateForm)(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("CreateForm() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusCreated {
				var resp formResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("Failed to decode response: %v", err)
				}
				form := resp.Form
				if form.UniqueURL == "" {
					t.Error("Expected a share URL")
				}
				if form.UserID != user.ID {
					t.Errorf("Form owner = %s, want %s", form.UserID, user.ID)
				}
				// Options survive only on mcq questions.
				for _, q := range form.Questions {
					if q.Kind != domain.QuestionMCQ && len(q.Options) > 0 {
						t.Errorf("Question %q should not carry options", q.Text)
					}
				}
			}
		})
	}
}

func TestGetFormPublic(t *testing.T) {
	handler, repo := setupHandler()
	user, _ := seedUser(t, handler, repo, "ada@example.com")
	form := seedForm(t, repo, user.ID)

	// Seed a response to prove it is stripped from the public view.
	repo.AppendResponse(nil, form.UniqueURL, domain.Response{
		ID:          uuid.New(),
		Answers:     []domain.Answer{{QuestionID: form.Questions[0].ID, Answer: "Pizza"}},
		SubmittedAt: time.Now().UTC(),
	})

	t.Run("existing form", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/forms/"+form.UniqueURL, nil)
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		w := httptest.NewRecorder()

		handler.GetForm(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("GetForm() status = %d, body = %s", w.Code, w.Body.String())
		}
		var got domain.Form
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(got.Responses) != 0 {
			t.Error("Public form view must not include responses")
		}
		if len(got.Questions) != 1 {
			t.Errorf("Expected 1 question, got %d", len(got.Questions))
		}
	})

	t.Run("unknown url", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/forms/doesnotexist", nil)
		req.SetPathValue("uniqueUrl", "doesnotexist")
		w := httptest.NewRecorder()

		handler.GetForm(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("GetForm() status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestListForms(t *testing.T) {
	handler, repo := setupHandler()
	owner, ownerToken := seedUser(t, handler, repo, "owner@example.com")
	other, _ := seedUser(t, handler, repo, "other@example.com")

	seedForm(t, repo, owner.ID)
	seedForm(t, repo, owner.ID)
	seedForm(t, repo, other.ID)

	req := httptest.NewRequest("GET", "/api/forms", nil)
	req.Header.Set("Authorization", "Bearer "+ownerToken)
	w := httptest.NewRecorder()

	handler.RequireAuth(handler.ListForms)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ListForms() status = %d, body = %s", w.Code, w.Body.String())
	}
	var forms []*domain.Form
	if err := json.NewDecoder(w.Body).Decode(&forms); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(forms) != 2 {
		t.Errorf("Expected 2 forms, got %d", len(forms))
	}
	for _, f := range forms {
		if f.UserID != owner.ID {
			t.Errorf("Listed a foreign form owned by %s", f.UserID)
		}
	}
}

func TestSubmitResponse(t *testing.T) {
	handler, repo := setupHandler()
	owner, _ := seedUser(t, handler, repo, "owner@example.com")
	form := seedForm(t, repo, owner.ID)
	questionID := form.Questions[0].ID

	submitBody := `{"answers": [{"questionId": "` + questionID.String() + `", "answer": "Sushi"}]}`

	t.Run("anonymous submission", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/forms/"+form.UniqueURL+"/submit", bytes.NewBufferString(submitBody))
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		w := httptest.NewRecorder()

		handler.OptionalAuth(handler.SubmitResponse)(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("SubmitResponse() status = %d, body = %s", w.Code, w.Body.String())
		}

		stored, err := repo.GetOwnedFormByURL(nil, form.UniqueURL, owner.ID)
		if err != nil {
			t.Fatalf("Failed to re-read form: %v", err)
		}
		if len(stored.Responses) != 1 {
			t.Fatalf("Expected 1 stored response, got %d", len(stored.Responses))
		}
		if stored.Responses[0].UserID != nil {
			t.Error("Anonymous response should have no user ID")
		}
	})

	t.Run("authenticated submission records responder", func(t *testing.T) {
		responder, responderToken := seedUser(t, handler, repo, "responder@example.com")

		req := httptest.NewRequest("POST", "/api/forms/"+form.UniqueURL+"/submit", bytes.NewBufferString(submitBody))
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		req.Header.Set("Authorization", "Bearer "+responderToken)
		w := httptest.NewRecorder()

		handler.OptionalAuth(handler.SubmitResponse)(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("SubmitResponse() status = %d, body = %s", w.Code, w.Body.String())
		}

		stored, _ := repo.GetOwnedFormByURL(nil, form.UniqueURL, owner.ID)
		last := stored.Responses[len(stored.Responses)-1]
		if last.UserID == nil || *last.UserID != responder.ID {
			t.Error("Authenticated response should record the responder's ID")
		}
	})

	t.Run("unknown form", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/forms/doesnotexist/submit", bytes.NewBufferString(submitBody))
		req.SetPathValue("uniqueUrl", "doesnotexist")
		w := httptest.NewRecorder()

		handler.OptionalAuth(handler.SubmitResponse)(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("SubmitResponse() status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("empty answers", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/forms/"+form.UniqueURL+"/submit", bytes.NewBufferString(`{"answers": []}`))
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		w := httptest.NewRecorder()

		handler.OptionalAuth(handler.SubmitResponse)(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("SubmitResponse() status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestListResponsesOwnerOnly(t *testing.T) {
	handler, repo := setupHandler()
	owner, ownerToken := seedUser(t, handler, repo, "owner@example.com")
	_, intruderToken := seedUser(t, handler, repo, "intruder@example.com")
	form := seedForm(t, repo, owner.ID)

	repo.AppendResponse(nil, form.UniqueURL, domain.Response{
		ID:          uuid.New(),
		Answers:     []domain.Answer{{QuestionID: form.Questions[0].ID, Answer: "Tacos"}},
		SubmittedAt: time.Now().UTC(),
	})

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/forms/"+form.UniqueURL+"/responses", nil)
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.RequireAuth(handler.ListResponses)(w, req)
		return w
	}

	t.Run("owner sees responses", func(t *testing.T) {
		w := get(ownerToken)
		if w.Code != http.StatusOK {
			t.Fatalf("ListResponses() status = %d, body = %s", w.Code, w.Body.String())
		}
		var resp listResponsesResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if len(resp.Responses) != 1 {
			t.Errorf("Expected 1 response, got %d", len(resp.Responses))
		}
	})

	t.Run("non-owner gets not found", func(t *testing.T) {
		w := get(intruderToken)
		if w.Code != http.StatusNotFound {
			t.Errorf("ListResponses() status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestExportResponses(t *testing.T) {
	handler, repo := setupHandler()
	owner, ownerToken := seedUser(t, handler, repo, "owner@example.com")
	_, intruderToken := seedUser(t, handler, repo, "intruder@example.com")
	form := seedForm(t, repo, owner.ID)

	repo.AppendResponse(nil, form.UniqueURL, domain.Response{
		ID:          uuid.New(),
		Answers:     []domain.Answer{{QuestionID: form.Questions[0].ID, Answer: "Ramen"}},
		SubmittedAt: time.Now().UTC(),
	})

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/forms/"+form.UniqueURL+"/export", nil)
		req.SetPathValue("uniqueUrl", form.UniqueURL)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.RequireAuth(handler.ExportResponses)(w, req)
		return w
	}

	t.Run("owner downloads zip", func(t *testing.T) {
		w := get(ownerToken)
		if w.Code != http.StatusOK {
			t.Fatalf("ExportResponses() status = %d, body = %s", w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
			t.Errorf("Content-Type = %q, want application/zip", ct)
		}
		if w.Body.Len() == 0 {
			t.Error("Expected zip payload")
		}
	})

	t.Run("non-owner gets not found", func(t *testing.T) {
		w := get(intruderToken)
		if w.Code != http.StatusNotFound {
			t.Errorf("ExportResponses() status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestGenerateFormUnconfigured(t *testing.T) {
	handler, repo := setupHandler()
	_, token := seedUser(t, handler, repo, "ada@example.com")

	req := httptest.NewRequest("POST", "/api/forms/ai", bytes.NewBufferString(`{"topic": "x", "numQuestions": 3, "questionType": "mcq"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.RequireAuth(handler.GenerateForm)(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("GenerateForm() status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
