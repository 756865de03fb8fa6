package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/formistiq/backend/internal/domain"
	"github.com/formistiq/backend/internal/repository"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository implements repository.Repository on MongoDB. Forms embed
// their questions and responses in a single document; responses are
// appended with $push so concurrent submissions never clobber each other.
type Repository struct {
	client *mongo.Client
	users  *mongo.Collection
	forms  *mongo.Collection
}

// New connects to MongoDB and ensures the unique indexes.
func New(ctx context.Context, uri, dbName string) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	r := &Repository{
		client: client,
		users:  db.Collection("users"),
		forms:  db.Collection("forms"),
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return r, nil
}

func (r *Repository) ensureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = r.forms.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "uniqueUrl", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Document shapes. IDs are stored as canonical uuid strings.

type userDoc struct {
	ID           string    `bson:"_id"`
	FirstName    string    `bson:"firstName"`
	LastName     string    `bson:"lastName"`
	Email        string    `bson:"email"`
	Phone        string    `bson:"phone"`
	PasswordHash string    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type questionDoc struct {
	ID       string   `bson:"_id"`
	Kind     string   `bson:"type"`
	Text     string   `bson:"text"`
	Options  []string `bson:"options,omitempty"`
	Required bool     `bson:"required"`
}

type answerDoc struct {
	QuestionID string `bson:"questionId"`
	Answer     string `bson:"answer"`
}

type responseDoc struct {
	ID          string      `bson:"_id"`
	UserID      *string     `bson:"userId,omitempty"`
	Answers     []answerDoc `bson:"answers"`
	SubmittedAt time.Time   `bson:"submittedAt"`
}

type formDoc struct {
	ID          string        `bson:"_id"`
	Title       string        `bson:"title"`
	Description string        `bson:"description,omitempty"`
	UserID      string        `bson:"userId"`
	UniqueURL   string        `bson:"uniqueUrl"`
	Questions   []questionDoc `bson:"questions"`
	Responses   []responseDoc `bson:"responses"`
	CreatedAt   time.Time     `bson:"createdAt"`
}

// Users

func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.users.InsertOne(ctx, toUserDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDoc
	err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromUserDoc(&doc)
}

func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var doc userDoc
	err := r.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromUserDoc(&doc)
}

// Forms

var noResponses = options.FindOne().SetProjection(bson.M{"responses": 0})

func (r *Repository) CreateForm(ctx context.Context, form *domain.Form) error {
	_, err := r.forms.InsertOne(ctx, toFormDoc(form))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

func (r *Repository) ListFormsByOwner(ctx context.Context, owner uuid.UUID) ([]*domain.Form, error) {
	cursor, err := r.forms.Find(ctx, bson.M{"userId": owner.String()},
		options.Find().SetProjection(bson.M{"responses": 0}))
	if err != nil {
		return nil, fmt.Errorf("find forms: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*domain.Form
	for cursor.Next(ctx) {
		var doc formDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode form: %w", err)
		}
		form, err := fromFormDoc(&doc)
		if err != nil {
			return nil, err
		}
		result = append(result, form)
	}
	return result, cursor.Err()
}

func (r *Repository) GetFormByURL(ctx context.Context, url string) (*domain.Form, error) {
	var doc formDoc
	err := r.forms.FindOne(ctx, bson.M{"uniqueUrl": url}, noResponses).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find form: %w", err)
	}
	return fromFormDoc(&doc)
}

func (r *Repository) GetOwnedFormByURL(ctx context.Context, url string, owner uuid.UUID) (*domain.Form, error) {
	var doc formDoc
	err := r.forms.FindOne(ctx, bson.M{"uniqueUrl": url, "userId": owner.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find form: %w", err)
	}
	return fromFormDoc(&doc)
}

func (r *Repository) AppendResponse(ctx context.Context, url string, response domain.Response) error {
	res, err := r.forms.UpdateOne(ctx,
		bson.M{"uniqueUrl": url},
		bson.M{"$push": bson.M{"responses": toResponseDoc(&response)}})
	if err != nil {
		return fmt.Errorf("append response: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close disconnects from MongoDB.
func (r *Repository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// Conversions

func toUserDoc(u *domain.User) *userDoc {
	return &userDoc{
		ID:           u.ID.String(),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Phone:        u.Phone,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func fromUserDoc(d *userDoc) (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &domain.User{
		ID:           id,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		Phone:        d.Phone,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}, nil
}

func toFormDoc(f *domain.Form) *formDoc {
	doc := &formDoc{
		ID:          f.ID.String(),
		Title:       f.Title,
		Description: f.Description,
		UserID:      f.UserID.String(),
		UniqueURL:   f.UniqueURL,
		Questions:   make([]questionDoc, len(f.Questions)),
		Responses:   make([]responseDoc, len(f.Responses)),
		CreatedAt:   f.CreatedAt,
	}
	for i, q := range f.Questions {
		doc.Questions[i] = questionDoc{
			ID:       q.ID.String(),
			Kind:     string(q.Kind),
			Text:     q.Text,
			Options:  q.Options,
			Required: q.Required,
		}
	}
	for i, resp := range f.Responses {
		doc.Responses[i] = *toResponseDoc(&resp)
	}
	return doc
}

func toResponseDoc(resp *domain.Response) *responseDoc {
	doc := &responseDoc{
		ID:          resp.ID.String(),
		Answers:     make([]answerDoc, len(resp.Answers)),
		SubmittedAt: resp.SubmittedAt,
	}
	if resp.UserID != nil {
		s := resp.UserID.String()
		doc.UserID = &s
	}
	for i, a := range resp.Answers {
		doc.Answers[i] = answerDoc{QuestionID: a.QuestionID.String(), Answer: a.Answer}
	}
	return doc
}

func fromFormDoc(d *formDoc) (*domain.Form, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse form id: %w", err)
	}
	owner, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse form owner: %w", err)
	}

	form := &domain.Form{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		UserID:      owner,
		UniqueURL:   d.UniqueURL,
		Questions:   make([]domain.Question, len(d.Questions)),
		CreatedAt:   d.CreatedAt,
	}
	for i, q := range d.Questions {
		qid, err := uuid.Parse(q.ID)
		if err != nil {
			return nil, fmt.Errorf("parse question id: %w", err)
		}
		form.Questions[i] = domain.Question{
			ID:       qid,
			Kind:     domain.QuestionKind(q.Kind),
			Text:     q.Text,
			Options:  q.Options,
			Required: q.Required,
		}
	}
	for _, resp := range d.Responses {
		dr, err := fromResponseDoc(&resp)
		if err != nil {
			return nil, err
		}
		form.Responses = append(form.Responses, *dr)
	}
	return form, nil
}

func fromResponseDoc(d *responseDoc) (*domain.Response, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("parse response id: %w", err)
	}
	resp := &domain.Response{
		ID:          id,
		Answers:     make([]domain.Answer, len(d.Answers)),
		SubmittedAt: d.SubmittedAt,
	}
	if d.UserID != nil {
		uid, err := uuid.Parse(*d.UserID)
		if err != nil {
			return nil, fmt.Errorf("parse responder id: %w", err)
		}
		resp.UserID = &uid
	}
	for i, a := range d.Answers {
		qid, err := uuid.Parse(a.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("parse answer question id: %w", err)
		}
		resp.Answers[i] = domain.Answer{QuestionID: qid, Answer: a.Answer}
	}
	return resp, nil
}

// Ensure Repository implements repository.Repository
var _ repository.Repository = (*Repository)(nil)
