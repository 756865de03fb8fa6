package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	playvalidator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/formistiq/backend/internal/auth"
	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/export"
	"github.com/formistiq/backend/internal/generator"
	"github.com/formistiq/backend/internal/llm"
	"github.com/formistiq/backend/internal/repository"
)

var validate = playvalidator.New()

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	repo      repository.Repository
	tokens    *auth.Tokens
	generator *generator.Service
}

// NewHandler creates a new Handler. The generator may be nil when no
// model provider is configured; AI routes then return 503.
func NewHandler(repo repository.Repository, tokens *auth.Tokens, gen *generator.Service) *Handler {
	return &Handler{repo: repo, tokens: tokens, generator: gen}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	// Auth
	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/login", h.Login)

	// Forms
	mux.HandleFunc("POST /api/forms", h.RequireAuth(h.CreateForm))
	mux.HandleFunc("GET /api/forms", h.RequireAuth(h.ListForms))
	mux.HandleFunc("GET /api/forms/{uniqueUrl}", h.GetForm)
	mux.HandleFunc("POST /api/forms/{uniqueUrl}/submit", h.OptionalAuth(h.SubmitResponse))
	mux.HandleFunc("GET /api/forms/{uniqueUrl}/responses", h.RequireAuth(h.ListResponses))
	mux.HandleFunc("GET /api/forms/{uniqueUrl}/export", h.RequireAuth(h.ExportResponses))

	// AI generation
	mux.HandleFunc("POST /api/forms/ai", h.RequireAuth(h.GenerateForm))
	mux.HandleFunc("POST /api/forms/ai/chat", h.RequireAuth(h.ChatGenerate))
}

// Error response helpers

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err, message string) {
	writeJSON(w, status, errorResponse{Error: err, Message: message})
}

// Health

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Auth

type signupRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone"`
	Password  string `json:"password" validate:"required,min=8"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}

	user := &domain.User{
		ID:           uuid.New(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        req.Phone,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, "email_taken", "An account with this email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	// Emails are stored lowercased on signup; match that here so the
	// lookup behaves the same on every backend.
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.repo.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Same error as a wrong password: do not reveal which.
			writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to log in")
		return
	}
	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusBadRequest, "invalid_credentials", "Invalid email or password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

func validationMessage(err error) string {
	var verrs playvalidator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return first.Field() + " failed validation (" + first.Tag() + ")"
	}
	return "Invalid request"
}

// Forms

type createFormRequest struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description"`
	Questions   []createFormQuestion `json:"questions" validate:"required,min=1,dive"`
}

type createFormQuestion struct {
	Type     string   `json:"type" validate:"required"`
	Text     string   `json:"text" validate:"required"`
	Options  []string `json:"options"`
	Required bool     `json:"required"`
}

type formResponse struct {
	Form *domain.Form `json:"form"`
}

func (h *Handler) CreateForm(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserID(r.Context())

	var req createFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", validationMessage(err))
		return
	}

	questions := make([]domain.Question, 0, len(req.Questions))
	for _, rq := range req.Questions {
		kind := domain.QuestionKind(rq.Type)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "validation_error", "Unknown question type: "+rq.Type)
			return
		}
		if kind == domain.QuestionMCQ && len(rq.Options) == 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "mcq questions need options")
			return
		}
		q := domain.Question{
			ID:       uuid.New(),
			Kind:     kind,
			Text:     rq.Text,
			Options:  rq.Options,
			Required: rq.Required,
		}
		q.Normalize()
		questions = append(questions, q)
	}

	form := &domain.Form{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		UserID:      owner,
		Questions:   questions,
		CreatedAt:   time.Now().UTC(),
	}

	// Regenerate on the unlikely URL collision.
	for attempt := 0; ; attempt++ {
		url, err := domain.NewUniqueURL()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create form")
			return
		}
		form.UniqueURL = url
		err = h.repo.CreateForm(r.Context(), form)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDuplicateURL) && attempt < 2 {
			continue
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create form")
		return
	}

	writeJSON(w, http.StatusCreated, formResponse{Form: form})
}

func (h *Handler) ListForms(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserID(r.Context())

	forms, err := h.repo.ListFormsByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list forms")
		return
	}
	if forms == nil {
		forms = []*domain.Form{}
	}
	writeJSON(w, http.StatusOK, forms)
}

func (h *Handler) GetForm(w http.ResponseWriter, r *http.Request) {
	url := r.PathValue("uniqueUrl")

	form, err := h.repo.GetFormByURL(r.Context(), url)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Form not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get form")
		return
	}

	writeJSON(w, http.StatusOK, form)
}

// Responses

type submitResponseRequest struct {
	Answers []submitAnswer `json:"answers"`
}

type submitAnswer struct {
	QuestionID uuid.UUID `json:"questionId"`
	Answer     string    `json:"answer"`
}

type submitResponseResponse struct {
	ResponseID uuid.UUID `json:"responseId"`
}

func (h *Handler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	url := r.PathValue("uniqueUrl")

	var req submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "answers is required")
		return
	}

	answers := make([]domain.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		if a.QuestionID == uuid.Nil {
			writeError(w, http.StatusBadRequest, "validation_error", "questionId is required")
			return
		}
		answers = append(answers, domain.Answer{QuestionID: a.QuestionID, Answer: a.Answer})
	}

	response := domain.Response{
		ID:          uuid.New(),
		Answers:     answers,
		SubmittedAt: time.Now().UTC(),
	}
	if userID, ok := UserID(r.Context()); ok {
		response.UserID = &userID
	}

	if err := h.repo.AppendResponse(r.Context(), url, response); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Form not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to submit response")
		return
	}

	writeJSON(w, http.StatusCreated, submitResponseResponse{ResponseID: response.ID})
}

type listResponsesResponse struct {
	Responses []domain.Response `json:"responses"`
	Form      responsesForm     `json:"form"`
}

// responsesForm carries just enough of the form to render the answers.
type responsesForm struct {
	Title     string            `json:"title"`
	Questions []domain.Question `json:"questions"`
}

func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserID(r.Context())
	url := r.PathValue("uniqueUrl")

	form, err := h.repo.GetOwnedFormByURL(r.Context(), url, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// A foreign form looks exactly like a missing one.
			writeError(w, http.StatusNotFound, "not_found", "Form not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get responses")
		return
	}

	responses := form.Responses
	if responses == nil {
		responses = []domain.Response{}
	}
	writeJSON(w, http.StatusOK, listResponsesResponse{
		Responses: responses,
		Form:      responsesForm{Title: form.Title, Questions: form.Questions},
	})
}

// ExportResponses streams a zip of the form's results (form.json,
// responses.csv, SUMMARY.md) to the owner.
func (h *Handler) ExportResponses(w http.ResponseWriter, r *http.Request) {
	owner, _ := UserID(r.Context())
	url := r.PathValue("uniqueUrl")

	form, err := h.repo.GetOwnedFormByURL(r.Context(), url, owner)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Form not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get form")
		return
	}

	contents, err := export.GeneratePack(form)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_error", "Failed to generate export")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteZip(contents, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, "zip_error", "Failed to create zip")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(form)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// AI generation

func (h *Handler) GenerateForm(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "AI generation is not configured")
		return
	}

	owner, _ := UserID(r.Context())

	var params generator.Params
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}

	form, err := h.generator.Generate(r.Context(), owner, params)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, formResponse{Form: form})
}

func writeGenerationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, llm.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "ai_unavailable", "The AI service is temporarily unavailable, please try again")
	case errors.Is(err, llm.ErrRateLimit):
		writeError(w, http.StatusTooManyRequests, "ai_rate_limited", "Too many AI requests, please slow down")
	case errors.Is(err, generator.ErrMalformedResponse):
		log.Printf("GenerateForm: malformed model output: %v", err)
		writeError(w, http.StatusInternalServerError, "ai_response_invalid", "The AI returned an unusable form, please try again")
	default:
		log.Printf("GenerateForm: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to generate form")
	}
}

// Chat-driven generation. The conversation state lives with the
// client; each request carries the state and parameters collected so
// far and gets back the next state and reply.

type chatRequest struct {
	State   generator.State  `json:"state"`
	Params  generator.Params `json:"params"`
	Message string           `json:"message"`
}

type chatResponse struct {
	State  generator.State  `json:"state"`
	Params generator.Params `json:"params"`
	Reply  string           `json:"reply"`
	Form   *domain.Form     `json:"form,omitempty"`
}

func (h *Handler) ChatGenerate(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "AI generation is not configured")
		return
	}

	owner, _ := UserID(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}

	// An empty state opens the conversation.
	if req.State == "" {
		step := generator.StartFlow()
		writeJSON(w, http.StatusOK, chatResponse{State: step.State, Params: step.Params, Reply: step.Reply})
		return
	}

	step := generator.AdvanceFlow(req.State, req.Params, req.Message)
	if !step.Ready {
		writeJSON(w, http.StatusOK, chatResponse{State: step.State, Params: step.Params, Reply: step.Reply})
		return
	}

	form, err := h.generator.Generate(r.Context(), owner, step.Params)
	if err != nil {
		log.Printf("ChatGenerate: generation failed: %v", err)
		reset := generator.FailFlow()
		writeJSON(w, http.StatusOK, chatResponse{State: reset.State, Params: reset.Params, Reply: reset.Reply})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		State:  "generated",
		Params: step.Params,
		Reply:  "Here is your form! You can share it with the link below.",
		Form:   form,
	})
}
