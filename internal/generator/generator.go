package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/llm"
	"github.com/formistiq/backend/internal/repository"
	"github.com/formistiq/backend/internal/validator"
)

// Question kinds a caller may request. shortAnswer is the wire name;
// it maps to domain.QuestionShortAnswer.
const (
	KindMCQ         = "mcq"
	KindShortAnswer = "shortAnswer"
)

const (
	maxAttempts     = 3
	initialBackoff  = time.Second
	maxNumQuestions = 20
	maxURLAttempts  = 3
)

// ErrMalformedResponse indicates the model returned output that could
// not be parsed or validated as a form. Not retryable.
var ErrMalformedResponse = errors.New("malformed model response")

// Params describes the form a caller wants generated.
type Params struct {
	Topic          string `json:"topic"`
	NumQuestions   int    `json:"numQuestions"`
	QuestionType   string `json:"questionType"`
	IncludeName    bool   `json:"includeName"`
	IncludeEmail   bool   `json:"includeEmail"`
	IncludeContact bool   `json:"includeContact"`
}

// Validate checks the generation parameters.
func (p Params) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	if p.NumQuestions < 1 || p.NumQuestions > maxNumQuestions {
		return fmt.Errorf("%w: numQuestions must be between 1 and %d", domain.ErrInvalidInput, maxNumQuestions)
	}
	switch p.QuestionType {
	case KindMCQ, KindShortAnswer:
	default:
		return fmt.Errorf("%w: questionType must be %q or %q", domain.ErrInvalidInput, KindMCQ, KindShortAnswer)
	}
	return nil
}

// generatedForm is the shape the model is asked to produce.
type generatedForm struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Questions   []generatedQuestion `json:"questions"`
}

type generatedQuestion struct {
	Text          string   `json:"text"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

// Service generates forms from a topic using a hosted model and
// persists the result for the requesting owner.
type Service struct {
	client    llm.Client
	validator *validator.Validator
	repo      repository.Repository
	prompt    *PromptTemplate

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewService creates a form generation service.
func NewService(client llm.Client, v *validator.Validator, repo repository.Repository) (*Service, error) {
	prompt, err := LoadPrompt("form", PromptVersionV1)
	if err != nil {
		return nil, err
	}
	return &Service{
		client:    client,
		validator: v,
		repo:      repo,
		prompt:    prompt,
		sleep:     time.Sleep,
	}, nil
}

// Generate builds a form for the given owner from the generation
// parameters, persists it, and returns the stored form.
//
// Model calls are retried on transient unavailability with doubling
// backoff; any other model failure surfaces immediately. A response
// that parses but fails schema validation is ErrMalformedResponse.
func (s *Service) Generate(ctx context.Context, owner uuid.UUID, params Params) (*domain.Form, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	raw, err := s.complete(ctx, s.buildPrompt(params))
	if err != nil {
		return nil, err
	}

	gen, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	form := s.assemble(owner, params, gen)
	if err := s.persist(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *Service) buildPrompt(params Params) string {
	rules := shortAnswerRules
	if params.QuestionType == KindMCQ {
		rules = mcqRules
	}
	return s.prompt.Render(map[string]string{
		"TOPIC":      params.Topic,
		"COUNT":      strconv.Itoa(params.NumQuestions),
		"KIND_RULES": rules,
	})
}

// complete calls the model, retrying only on llm.ErrUnavailable.
func (s *Service) complete(ctx context.Context, prompt string) (string, error) {
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	}

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := s.client.Complete(ctx, req)
		if err == nil {
			return resp.Content, nil
		}
		if !errors.Is(err, llm.ErrUnavailable) {
			return "", err
		}
		lastErr = err
		log.Printf("generator: model unavailable (attempt %d/%d), backing off %s", attempt, maxAttempts, backoff)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.sleep(backoff)
		backoff *= 2
	}
	return "", lastErr
}

// parse strips markdown fences, decodes and schema-validates the
// model's output.
func (s *Service) parse(raw string) (*generatedForm, error) {
	cleaned := []byte(llm.StripMarkdownFence(raw))

	result := s.validator.ValidateGeneratedForm(cleaned)
	if !result.Valid {
		return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, formatValidationErrors(result.Errors))
	}

	var gen generatedForm
	if err := json.Unmarshal(cleaned, &gen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &gen, nil
}

func formatValidationErrors(errs []validator.ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return strings.Join(parts, "; ")
}

// assemble converts the model's output into a domain form, prepending
// the requested identity questions in fixed order: name, email,
// contact. Identity questions are required; generated ones are not.
func (s *Service) assemble(owner uuid.UUID, params Params, gen *generatedForm) *domain.Form {
	questions := make([]domain.Question, 0, len(gen.Questions)+3)

	if params.IncludeName {
		questions = append(questions, identityQuestion("Your name"))
	}
	if params.IncludeEmail {
		questions = append(questions, identityQuestion("Your email address"))
	}
	if params.IncludeContact {
		questions = append(questions, identityQuestion("Your contact number"))
	}

	kind := domain.QuestionShortAnswer
	if params.QuestionType == KindMCQ {
		kind = domain.QuestionMCQ
	}
	for _, gq := range gen.Questions {
		q := domain.Question{
			ID:      uuid.New(),
			Kind:    kind,
			Text:    gq.Text,
			Options: gq.Options,
		}
		q.Normalize()
		questions = append(questions, q)
	}

	return &domain.Form{
		ID:          uuid.New(),
		Title:       gen.Title,
		Description: gen.Description,
		UserID:      owner,
		Questions:   questions,
		CreatedAt:   time.Now().UTC(),
	}
}

func identityQuestion(text string) domain.Question {
	return domain.Question{
		ID:       uuid.New(),
		Kind:     domain.QuestionShortAnswer,
		Text:     text,
		Required: true,
	}
}

// persist stores the form, regenerating the share URL on the unlikely
// collision.
func (s *Service) persist(ctx context.Context, form *domain.Form) error {
	for attempt := 1; ; attempt++ {
		url, err := domain.NewUniqueURL()
		if err != nil {
			return fmt.Errorf("generate share url: %w", err)
		}
		form.UniqueURL = url
		err = s.repo.CreateForm(ctx, form)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateURL) || attempt == maxURLAttempts {
			return err
		}
	}
}
