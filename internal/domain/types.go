package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuestionKind represents the kind of question on a form.
type QuestionKind string

const (
	QuestionShortAnswer QuestionKind = "short_answer"
	QuestionLongAnswer  QuestionKind = "long_answer"
	QuestionMCQ         QuestionKind = "mcq"
)

// Valid reports whether k is a known question kind.
func (k QuestionKind) Valid() bool {
	switch k {
	case QuestionShortAnswer, QuestionLongAnswer, QuestionMCQ:
		return true
	}
	return false
}

// User represents a registered account. The password hash is never
// serialized to API responses.
type User struct {
	ID           uuid.UUID `json:"id" bson:"_id"`
	FirstName    string    `json:"firstName" bson:"firstName"`
	LastName     string    `json:"lastName" bson:"lastName"`
	Email        string    `json:"email" bson:"email"`
	Phone        string    `json:"phone" bson:"phone"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt"`
}

// Question is one prompt within a form. Options is non-empty only for
// mcq questions.
type Question struct {
	ID       uuid.UUID    `json:"id" bson:"_id"`
	Kind     QuestionKind `json:"type" bson:"type"`
	Text     string       `json:"text" bson:"text"`
	Options  []string     `json:"options,omitempty" bson:"options,omitempty"`
	Required bool         `json:"required" bson:"required"`
}

// Normalize enforces the question invariant: non-mcq questions carry
// no options.
func (q *Question) Normalize() {
	if q.Kind != QuestionMCQ {
		q.Options = nil
	}
}

// Answer is a single (question, answer-text) pair within a response.
type Answer struct {
	QuestionID uuid.UUID `json:"questionId" bson:"questionId"`
	Answer     string    `json:"answer" bson:"answer"`
}

// Response is one respondent's full set of answers to a form.
// UserID is nil for anonymous submissions.
type Response struct {
	ID          uuid.UUID  `json:"id" bson:"_id"`
	UserID      *uuid.UUID `json:"userId,omitempty" bson:"userId,omitempty"`
	Answers     []Answer   `json:"answers" bson:"answers"`
	SubmittedAt time.Time  `json:"submittedAt" bson:"submittedAt"`
}

// Form is a titled, ordered collection of questions with a public
// sharing URL. Questions and responses are embedded: they have no
// lifecycle outside their form document.
type Form struct {
	ID          uuid.UUID  `json:"id" bson:"_id"`
	Title       string     `json:"title" bson:"title"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	UserID      uuid.UUID  `json:"userId" bson:"userId"`
	UniqueURL   string     `json:"uniqueUrl" bson:"uniqueUrl"`
	Questions   []Question `json:"questions" bson:"questions"`
	Responses   []Response `json:"responses,omitempty" bson:"responses,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt"`
}

// WithoutResponses returns a shallow copy of the form with the
// responses stripped, for public and list views.
func (f *Form) WithoutResponses() *Form {
	c := *f
	c.Responses = nil
	return &c
}
