package repository

import (
	"context"

	"github.com/formistiq/backend/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the interface for persistent storage.
//
// Form reads come in two flavors: public lookups (GetFormByURL,
// ListFormsByOwner) strip responses, while GetOwnedFormByURL returns
// the full document and only matches when the caller owns the form, so
// a foreign form is indistinguishable from a missing one.
type Repository interface {
	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// Forms
	CreateForm(ctx context.Context, form *domain.Form) error
	ListFormsByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Form, error)
	GetFormByURL(ctx context.Context, url string) (*domain.Form, error)
	GetOwnedFormByURL(ctx context.Context, url string, owner uuid.UUID) (*domain.Form, error)

	// AppendResponse atomically appends a response to the form with the
	// given url. Returns domain.ErrNotFound if no such form exists.
	AppendResponse(ctx context.Context, url string, response domain.Response) error

	// Lifecycle
	Close() error
}
