package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/parley/domain/session"
)

// sessionDocument is the MongoDB document representation of a session.
type sessionDocument struct {
	ID         string    `bson:"_id"`
	AgentID    string    `bson:"agent_id"`
	CustomerID string    `bson:"customer_id"`
	Tags       []string  `bson:"tags,omitempty"`
	JourneyID  string    `bson:"journey_id,omitempty"`
	StateID    string    `bson:"state_id,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// SessionStore is a MongoDB-backed implementation of session.Store.
type SessionStore struct {
	collection   *mongo.Collection
	queryTimeout time.Duration
}

// NewSessionStore creates a new MongoDB session store.
func NewSessionStore(client *Client, collectionName string) *SessionStore {
	if collectionName == "" {
		collectionName = "sessions"
	}
	return &SessionStore{
		collection:   client.Collection(collectionName),
		queryTimeout: client.config.QueryTimeout,
	}
}

// Save persists a new session.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	if sess.ID == "" {
		return session.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	_, err := s.collection.InsertOne(ctx, s.toDocument(sess))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return session.ErrExists
		}
		return s.wrapError(err)
	}
	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, session.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var doc sessionDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, session.ErrNotFound
		}
		return nil, s.wrapError(err)
	}
	return s.fromDocument(&doc), nil
}

// Update persists changes to an existing session.
func (s *SessionStore) Update(ctx context.Context, sess *session.Session) error {
	if sess.ID == "" {
		return session.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	sess.UpdatedAt = time.Now()

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sess.ID}, s.toDocument(sess))
	if err != nil {
		return s.wrapError(err)
	}
	if result.MatchedCount == 0 {
		return session.ErrNotFound
	}
	return nil
}

// ListByCustomer returns all sessions for a customer, oldest first.
func (s *SessionStore) ListByCustomer(ctx context.Context, customerID string) ([]*session.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"customer_id": customerID}, opts)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var sessions []*session.Session
	for cursor.Next(ctx) {
		var doc sessionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, s.wrapError(err)
		}
		sessions = append(sessions, s.fromDocument(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, s.wrapError(err)
	}
	return sessions, nil
}

// Delete removes a session by ID.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return session.ErrEmptyID
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return s.wrapError(err)
	}
	if result.DeletedCount == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *SessionStore) toDocument(sess *session.Session) *sessionDocument {
	return &sessionDocument{
		ID:         sess.ID,
		AgentID:    sess.AgentID,
		CustomerID: sess.CustomerID,
		Tags:       sess.Tags,
		JourneyID:  sess.JourneyID,
		StateID:    sess.StateID,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
	}
}

func (s *SessionStore) fromDocument(doc *sessionDocument) *session.Session {
	return &session.Session{
		ID:         doc.ID,
		AgentID:    doc.AgentID,
		CustomerID: doc.CustomerID,
		Tags:       doc.Tags,
		JourneyID:  doc.JourneyID,
		StateID:    doc.StateID,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}

// wrapError wraps MongoDB errors with storage errors.
func (s *SessionStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrConnectionFailed, err)
}

var _ session.Store = (*SessionStore)(nil)
