package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/llm"
	"github.com/formistiq/backend/internal/repository/mock"
	"github.com/formistiq/backend/internal/validator"
)

const validModelOutput = `{
	"title": "Coffee Habits Survey",
	"description": "A quick survey about how you drink coffee.",
	"questions": [
		{"text": "How many cups do you drink per day?"},
		{"text": "When do you usually have your first cup?"}
	]
}`

const validMCQOutput = `{
	"title": "Go Basics Quiz",
	"description": "Test your knowledge of Go fundamentals.",
	"questions": [
		{
			"text": "Which keyword declares a variable?",
			"options": ["var", "let", "def", "dim"],
			"correctAnswer": "var"
		}
	]
}`

func newTestService(t *testing.T, client llm.Client) (*Service, *mock.Repository) {
	t.Helper()
	v, err := validator.New()
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	repo := mock.New()
	svc, err := NewService(client, v, repo)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	svc.sleep = func(time.Duration) {}
	return svc, repo
}

func shortAnswerParams() Params {
	return Params{
		Topic:        "coffee habits",
		NumQuestions: 2,
		QuestionType: KindShortAnswer,
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"valid short answer", Params{Topic: "pets", NumQuestions: 5, QuestionType: KindShortAnswer}, false},
		{"valid mcq", Params{Topic: "pets", NumQuestions: 1, QuestionType: KindMCQ}, false},
		{"empty topic", Params{Topic: "   ", NumQuestions: 5, QuestionType: KindMCQ}, true},
		{"zero questions", Params{Topic: "pets", NumQuestions: 0, QuestionType: KindMCQ}, true},
		{"too many questions", Params{Topic: "pets", NumQuestions: 21, QuestionType: KindMCQ}, true},
		{"unknown question type", Params{Topic: "pets", NumQuestions: 5, QuestionType: "essay"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("Expected ErrInvalidInput, got %v", err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	owner := uuid.New()

	t.Run("persists generated form", func(t *testing.T) {
		client := llm.NewMockClient(validModelOutput)
		svc, repo := newTestService(t, client)

		form, err := svc.Generate(context.Background(), owner, shortAnswerParams())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}

		if form.Title != "Coffee Habits Survey" {
			t.Errorf("Expected generated title, got %q", form.Title)
		}
		if form.UserID != owner {
			t.Errorf("Expected owner %s, got %s", owner, form.UserID)
		}
		if form.UniqueURL == "" {
			t.Error("Expected a share URL to be assigned")
		}
		if len(form.Questions) != 2 {
			t.Fatalf("Expected 2 questions, got %d", len(form.Questions))
		}
		for _, q := range form.Questions {
			if q.Kind != domain.QuestionShortAnswer {
				t.Errorf("Expected short_answer kind, got %q", q.Kind)
			}
			if q.Required {
				t.Errorf("Generated question %q should not be required", q.Text)
			}
		}

		stored, err := repo.GetFormByURL(context.Background(), form.UniqueURL)
		if err != nil {
			t.Fatalf("Form not stored: %v", err)
		}
		if stored.Title != form.Title {
			t.Errorf("Stored title %q != returned %q", stored.Title, form.Title)
		}
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		client := llm.NewMockClient("```json\n" + validModelOutput + "\n```")
		svc, _ := newTestService(t, client)

		form, err := svc.Generate(context.Background(), owner, shortAnswerParams())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(form.Questions) != 2 {
			t.Errorf("Expected 2 questions, got %d", len(form.Questions))
		}
	})

	t.Run("mcq questions keep options", func(t *testing.T) {
		client := llm.NewMockClient(validMCQOutput)
		svc, _ := newTestService(t, client)

		params := Params{Topic: "go basics", NumQuestions: 1, QuestionType: KindMCQ}
		form, err := svc.Generate(context.Background(), owner, params)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		q := form.Questions[0]
		if q.Kind != domain.QuestionMCQ {
			t.Errorf("Expected mcq kind, got %q", q.Kind)
		}
		if len(q.Options) != 4 {
			t.Errorf("Expected 4 options, got %d", len(q.Options))
		}
	})

	t.Run("identity questions prepended in order", func(t *testing.T) {
		client := llm.NewMockClient(validModelOutput)
		svc, _ := newTestService(t, client)

		params := shortAnswerParams()
		params.IncludeName = true
		params.IncludeEmail = true
		params.IncludeContact = true

		form, err := svc.Generate(context.Background(), owner, params)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(form.Questions) != 5 {
			t.Fatalf("Expected 5 questions, got %d", len(form.Questions))
		}

		wantPrefix := []string{"Your name", "Your email address", "Your contact number"}
		for i, want := range wantPrefix {
			q := form.Questions[i]
			if q.Text != want {
				t.Errorf("Question %d: expected %q, got %q", i, want, q.Text)
			}
			if !q.Required {
				t.Errorf("Identity question %q should be required", q.Text)
			}
			if q.Kind != domain.QuestionShortAnswer {
				t.Errorf("Identity question %q should be short_answer, got %q", q.Text, q.Kind)
			}
		}
	})

	t.Run("subset of identity questions", func(t *testing.T) {
		client := llm.NewMockClient(validModelOutput)
		svc, _ := newTestService(t, client)

		params := shortAnswerParams()
		params.IncludeEmail = true

		form, err := svc.Generate(context.Background(), owner, params)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(form.Questions) != 3 {
			t.Fatalf("Expected 3 questions, got %d", len(form.Questions))
		}
		if form.Questions[0].Text != "Your email address" {
			t.Errorf("Expected email question first, got %q", form.Questions[0].Text)
		}
	})

	t.Run("invalid params do not call model", func(t *testing.T) {
		client := llm.NewMockClient(validModelOutput)
		svc, _ := newTestService(t, client)

		_, err := svc.Generate(context.Background(), owner, Params{Topic: "", NumQuestions: 3, QuestionType: KindMCQ})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Expected ErrInvalidInput, got %v", err)
		}
		if client.CallCount != 0 {
			t.Errorf("Model should not have been called, got %d calls", client.CallCount)
		}
	})
}

func TestGenerateRetry(t *testing.T) {
	owner := uuid.New()

	t.Run("retries on unavailable then succeeds", func(t *testing.T) {
		client := llm.NewMockClientSeq(
			[]string{"", "", validModelOutput},
			[]error{llm.ErrUnavailable, llm.ErrUnavailable, nil},
		)
		svc, _ := newTestService(t, client)

		var slept []time.Duration
		svc.sleep = func(d time.Duration) { slept = append(slept, d) }

		_, err := svc.Generate(context.Background(), owner, shortAnswerParams())
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if client.CallCount != 3 {
			t.Errorf("Expected 3 model calls, got %d", client.CallCount)
		}
		want := []time.Duration{time.Second, 2 * time.Second}
		if len(slept) != len(want) {
			t.Fatalf("Expected %d backoff sleeps, got %v", len(want), slept)
		}
		for i := range want {
			if slept[i] != want[i] {
				t.Errorf("Backoff %d: expected %s, got %s", i, want[i], slept[i])
			}
		}
	})

	t.Run("gives up after three unavailable attempts", func(t *testing.T) {
		client := llm.NewMockClientSeq(nil, []error{llm.ErrUnavailable})
		svc, repo := newTestService(t, client)

		_, err := svc.Generate(context.Background(), owner, shortAnswerParams())
		if !errors.Is(err, llm.ErrUnavailable) {
			t.Fatalf("Expected ErrUnavailable, got %v", err)
		}
		if client.CallCount != 3 {
			t.Errorf("Expected exactly 3 attempts, got %d", client.CallCount)
		}
		forms, _ := repo.ListFormsByOwner(context.Background(), owner)
		if len(forms) != 0 {
			t.Errorf("No form should be persisted after failure, got %d", len(forms))
		}
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		client := llm.NewMockClientSeq(nil, []error{llm.ErrRateLimit})
		svc, _ := newTestService(t, client)

		_, err := svc.Generate(context.Background(), owner, shortAnswerParams())
		if !errors.Is(err, llm.ErrRateLimit) {
			t.Fatalf("Expected ErrRateLimit, got %v", err)
		}
		if client.CallCount != 1 {
			t.Errorf("Expected a single attempt, got %d", client.CallCount)
		}
	})
}

func TestGenerateMalformedResponse(t *testing.T) {
	owner := uuid.New()

	tests := []struct {
		name   string
		output string
	}{
		{"not json", "Sure! Here is your form: title..."},
		{"missing questions", `{"title": "T", "description": "D"}`},
		{"empty questions", `{"title": "T", "description": "D", "questions": []}`},
		{"question without text", `{"title": "T", "description": "D", "questions": [{"options": ["a"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewMockClient(tt.output)
			svc, repo := newTestService(t, client)

			_, err := svc.Generate(context.Background(), owner, shortAnswerParams())
			if !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("Expected ErrMalformedResponse, got %v", err)
			}
			if client.CallCount != 1 {
				t.Errorf("Malformed output should not be retried, got %d calls", client.CallCount)
			}
			forms, _ := repo.ListFormsByOwner(context.Background(), owner)
			if len(forms) != 0 {
				t.Errorf("No form should be persisted, got %d", len(forms))
			}
		})
	}
}
