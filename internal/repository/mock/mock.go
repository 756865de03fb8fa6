package mock

import (
	"context"
	"sync"

	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/repository"
	"github.com/google/uuid"
)

// Repository is an in-memory mock repository for testing.
type Repository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*domain.User
	forms map[uuid.UUID]*domain.Form
}

// New creates a new mock repository.
func New() *Repository {
	return &Repository{
		users: make(map[uuid.UUID]*domain.User),
		forms: make(map[uuid.UUID]*domain.Form),
	}
}

// Users

func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Exact match, like the unique index on the real store. Callers
	// normalize emails before they get here.
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEmail
		}
	}
	c := *user
	r.users[user.ID] = &c
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

// Forms

func (r *Repository) CreateForm(ctx context.Context, form *domain.Form) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.forms {
		if f.UniqueURL == form.UniqueURL {
			return domain.ErrDuplicateURL
		}
	}
	c := copyForm(form)
	r.forms[form.ID] = c
	return nil
}

func (r *Repository) ListFormsByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []*domain.Form
	for _, f := range r.forms {
		if f.UserID == owner {
			result = append(result, copyForm(f).WithoutResponses())
		}
	}
	return result, nil
}

func (r *Repository) GetFormByURL(ctx context.Context, url string) (*domain.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := r.findByURL(url)
	if f == nil {
		return nil, domain.ErrNotFound
	}
	return copyForm(f).WithoutResponses(), nil
}

func (r *Repository) GetOwnedFormByURL(ctx context.Context, url string, owner uuid.UUID) (*domain.Form, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f := r.findByURL(url)
	if f == nil || f.UserID != owner {
		return nil, domain.ErrNotFound
	}
	return copyForm(f), nil
}

func (r *Repository) AppendResponse(ctx context.Context, url string, response domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.findByURL(url)
	if f == nil {
		return domain.ErrNotFound
	}
	f.Responses = append(f.Responses, response)
	return nil
}

// Close is a no-op for the in-memory repository.
func (r *Repository) Close() error {
	return nil
}

// findByURL must be called with the lock held.
func (r *Repository) findByURL(url string) *domain.Form {
	for _, f := range r.forms {
		if f.UniqueURL == url {
			return f
		}
	}
	return nil
}

func copyForm(f *domain.Form) *domain.Form {
	c := *f
	c.Questions = append([]domain.Question(nil), f.Questions...)
	c.Responses = append([]domain.Response(nil), f.Responses...)
	return &c
}

// Ensure Repository implements repository.Repository
var _ repository.Repository = (*Repository)(nil)
