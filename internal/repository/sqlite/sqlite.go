package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/repository"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository implements Repository using SQLite, for local
// development without a MongoDB deployment. Each form is one row with
// its questions and responses as embedded JSON, mirroring the document
// layout of the primary store.
type SQLiteRepository struct {
	db *sql.DB
}

// New creates a new SQLite repository.
func New(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		phone TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS forms (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL REFERENCES users(id),
		unique_url TEXT NOT NULL UNIQUE,
		questions TEXT NOT NULL DEFAULT '[]', -- JSON array
		responses TEXT NOT NULL DEFAULT '[]', -- JSON array
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_forms_owner ON forms(user_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Users

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, email, phone, password_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.FirstName, u.LastName, u.Email, u.Phone, u.PasswordHash,
		u.CreatedAt.Format(time.RFC3339))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
		return domain.ErrDuplicateEmail
	}
	return err
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone, password_hash, created_at
		 FROM users WHERE email = ? COLLATE NOCASE`, email)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, phone, password_hash, created_at
		 FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var idStr, createdStr string
	err := row.Scan(&idStr, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.PasswordHash, &createdStr)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &u, nil
}

// Forms

func (r *SQLiteRepository) CreateForm(ctx context.Context, f *domain.Form) error {
	questions := f.Questions
	if questions == nil {
		questions = []domain.Question{}
	}
	responses := f.Responses
	if responses == nil {
		responses = []domain.Response{}
	}
	questionsJSON, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	responsesJSON, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO forms (id, title, description, user_id, unique_url, questions, responses, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID.String(), f.Title, f.Description, f.UserID.String(), f.UniqueURL,
		string(questionsJSON), string(responsesJSON), f.CreatedAt.Format(time.RFC3339))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed: forms.unique_url") {
		return domain.ErrDuplicateURL
	}
	return err
}

func (r *SQLiteRepository) ListFormsByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Form, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, user_id, unique_url, questions, '[]', created_at
		 FROM forms WHERE user_id = ?`, owner.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []*domain.Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, rows.Err()
}

func (r *SQLiteRepository) GetFormByURL(ctx context.Context, url string) (*domain.Form, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, user_id, unique_url, questions, '[]', created_at
		 FROM forms WHERE unique_url = ?`, url)
	return scanForm(row)
}

func (r *SQLiteRepository) GetOwnedFormByURL(ctx context.Context, url string, owner uuid.UUID) (*domain.Form, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, user_id, unique_url, questions, responses, created_at
		 FROM forms WHERE unique_url = ? AND user_id = ?`, url, owner.String())
	return scanForm(row)
}

func (r *SQLiteRepository) AppendResponse(ctx context.Context, url string, response domain.Response) error {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	// json_insert appends in a single UPDATE, so concurrent submissions
	// cannot lose each other's writes.
	res, err := r.db.ExecContext(ctx,
		`UPDATE forms SET responses = json_insert(responses, '$[#]', json(?)) WHERE unique_url = ?`,
		string(responseJSON), url)
	if err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanForm(row scanner) (*domain.Form, error) {
	var f domain.Form
	var idStr, ownerStr, questionsJSON, responsesJSON, createdStr string
	err := row.Scan(&idStr, &f.Title, &f.Description, &ownerStr, &f.UniqueURL,
		&questionsJSON, &responsesJSON, &createdStr)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	f.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse form id: %w", err)
	}
	f.UserID, err = uuid.Parse(ownerStr)
	if err != nil {
		return nil, fmt.Errorf("parse form owner: %w", err)
	}
	if err := json.Unmarshal([]byte(questionsJSON), &f.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal([]byte(responsesJSON), &f.Responses); err != nil {
		return nil, fmt.Errorf("unmarshal responses: %w", err)
	}
	if len(f.Responses) == 0 {
		f.Responses = nil
	}
	f.CreatedAt, err = time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &f, nil
}

// Ensure SQLiteRepository implements repository.Repository
var _ repository.Repository = (*SQLiteRepository)(nil)
