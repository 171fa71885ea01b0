// Package mongostore implements identity.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/logging"
)

// DefaultCollection holds identity documents.
const DefaultCollection = "identities"

type document struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email,omitempty"`
	PhoneNumber  string    `bson:"phone_number,omitempty"`
	AccessToken  string    `bson:"access_token,omitempty"`
	RefreshToken string    `bson:"refresh_token,omitempty"`
	TokenExpiry  time.Time `bson:"token_expiry,omitempty"`
	CalendarID   string    `bson:"calendar_id"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *document) record() *identity.Record {
	rec := &identity.Record{
		ID:           d.ID,
		Email:        d.Email,
		PhoneNumber:  d.PhoneNumber,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		CalendarID:   d.CalendarID,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if !d.TokenExpiry.IsZero() {
		rec.TokenExpiry = d.TokenExpiry.UTC()
	}
	return rec
}

// Store is an identity.Store backed by a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
	logger *slog.Logger
}

var _ identity.Store = (*Store)(nil)

// Open connects to uri, selects database/collection and ensures indexes.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}

	s := &Store{
		client: client,
		coll:   client.Database(database).Collection(DefaultCollection),
		now:    time.Now,
		logger: logger.With(slog.String("component", "identity_store"), slog.String("driver", "mongo")),
	}

	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the partial unique indexes on email and phone_number.
// Documents without the field are excluded, so provisional records never
// collide.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("identities_email_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "email", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
		{
			Keys: bson.D{{Key: "phone_number", Value: 1}},
			Options: options.Index().
				SetName("identities_phone_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "phone_number", Value: bson.D{{Key: "$type", Value: "string"}}}}),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating identity indexes: %w", err)
	}
	return nil
}

// Save upserts rec. created_at is only written on insert. ID, CalendarID
// and the timestamps are written back to rec only after the update succeeds.
func (s *Store) Save(ctx context.Context, rec *identity.Record) error {
	if rec == nil {
		return fmt.Errorf("cannot save nil record")
	}
	id := rec.ID
	if id == "" {
		id = identity.NewID()
	}
	calendarID := rec.CalendarID
	if calendarID == "" {
		calendarID = identity.DefaultCalendarID
	}

	// BSON dates carry millisecond precision.
	now := s.now().UTC().Truncate(time.Millisecond)
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	set := bson.D{
		{Key: "calendar_id", Value: calendarID},
		{Key: "updated_at", Value: now},
	}
	unset := bson.D{}
	optional := []struct {
		key   string
		value any
		empty bool
	}{
		{"email", rec.Email, rec.Email == ""},
		{"phone_number", rec.PhoneNumber, rec.PhoneNumber == ""},
		{"access_token", rec.AccessToken, rec.AccessToken == ""},
		{"refresh_token", rec.RefreshToken, rec.RefreshToken == ""},
		{"token_expiry", rec.TokenExpiry.UTC(), rec.TokenExpiry.IsZero()},
	}
	for _, f := range optional {
		if f.empty {
			unset = append(unset, bson.E{Key: f.key, Value: ""})
			continue
		}
		set = append(set, bson.E{Key: f.key, Value: f.value})
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: createdAt}}},
	}
	if len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}

	_, err := s.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("saving identity: %w", identity.ErrUniqueViolation)
		}
		return fmt.Errorf("saving identity: %w", err)
	}

	rec.ID = id
	rec.CalendarID = calendarID
	rec.CreatedAt = createdAt
	rec.UpdatedAt = now

	s.logger.Debug("saved identity record",
		slog.String("record_id", rec.ID),
		slog.String("phase", string(rec.Phase())),
		logging.UserHash(rec.Email))
	return nil
}

// FindByID returns identity.ErrNotFound when no document has the ID.
func (s *Store) FindByID(ctx context.Context, id string) (*identity.Record, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("finding identity: %w", err)
	}
	return doc.record(), nil
}

// FindAllByEmail returns every record holding email.
func (s *Store) FindAllByEmail(ctx context.Context, email string) ([]*identity.Record, error) {
	if email == "" {
		return nil, nil
	}
	return s.findAll(ctx, bson.D{{Key: "email", Value: email}})
}

// FindAllByPhone returns every record holding phone.
func (s *Store) FindAllByPhone(ctx context.Context, phone string) ([]*identity.Record, error) {
	if phone == "" {
		return nil, nil
	}
	return s.findAll(ctx, bson.D{{Key: "phone_number", Value: phone}})
}

func (s *Store) findAll(ctx context.Context, filter bson.D) ([]*identity.Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding identities: %w", err)
	}

	out := make([]*identity.Record, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].record())
	}
	return out, nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
