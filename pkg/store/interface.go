// Package store defines the persistence boundaries of topicnote.
//
// Three stores cooperate:
//
//   - [LocalStore] is the embedded, durable table of topics on the client
//     device. It knows nothing about users, sync or the network. See
//     [github.com/topicnote/topicnote/pkg/store/local.Store].
//   - [RemoteStore] is the client's view of the authoritative backend: the
//     signed-in user's topics in wire encoding. See
//     [github.com/topicnote/topicnote/pkg/client.Client].
//   - [TopicRepository], [ShareRepository] and [UserRepository] are the
//     server-side tables behind the HTTP API, scoped by an explicit user id.
//     See [github.com/topicnote/topicnote/pkg/store/postgres.Store].
//
// # Missing records
//
// Lookups of a single record return (nil, nil) when nothing matches. Deletes
// of unknown ids succeed without doing anything.
//
// # Authentication
//
// Remote and server-side operations that need a user fail fast with
// [ErrNotAuthenticated] when none is available, before touching the network or
// the database.
package store

import (
	"context"
	"errors"

	"github.com/topicnote/topicnote/pkg/models"
)

// ErrNotAuthenticated is returned by operations that require a signed-in user
// when there is none.
var ErrNotAuthenticated = errors.New("not authenticated")

// LocalStore is the client's persistent cache of topics.
//
// Put and PutMany are idempotent upserts keyed by id: writing the same topic
// twice leaves one row holding the second write's values. Every write has been
// committed when the call returns.
type LocalStore interface {
	// GetAll returns every stored topic.
	GetAll(ctx context.Context) ([]models.Topic, error)

	// Get returns the topic with the given id, or nil if there is none.
	Get(ctx context.Context, id string) (*models.Topic, error)

	// Count returns the number of stored topics.
	Count(ctx context.Context) (int64, error)

	// Put inserts or replaces one topic.
	Put(ctx context.Context, topic models.Topic) error

	// PutMany inserts or replaces topics in a single transaction.
	PutMany(ctx context.Context, topics []models.Topic) error

	// Delete removes one topic. Unknown ids are ignored.
	Delete(ctx context.Context, id string) error

	// DeleteMany removes several topics in a single transaction.
	DeleteMany(ctx context.Context, ids []string) error

	// Clear removes every topic.
	Clear(ctx context.Context) error
}

// RemoteStore is the authoritative backend as seen by a signed-in client.
// Every method returns ErrNotAuthenticated when the client has no session.
type RemoteStore interface {
	// ListTopics returns the user's topics ordered by updated_at, newest first.
	ListTopics(ctx context.Context) ([]models.RemoteTopic, error)

	// UpsertTopics writes a batch keyed by id. A row only replaces a stored row
	// whose updated_at is not newer (last write wins).
	UpsertTopics(ctx context.Context, topics []models.RemoteTopic) error

	// DeleteTopics removes the user's topics with the given ids.
	DeleteTopics(ctx context.Context, ids []string) error
}

// TopicRepository is the server-side topic table.
type TopicRepository interface {
	// ListTopics returns userID's topics ordered by updated_at descending.
	ListTopics(ctx context.Context, userID string) ([]models.RemoteTopic, error)

	// UpsertTopics stores rows for userID with last-write-wins on updated_at.
	// Rows owned by another user are never overwritten.
	UpsertTopics(ctx context.Context, userID string, topics []models.RemoteTopic) error

	// DeleteTopics removes userID's topics with the given ids.
	DeleteTopics(ctx context.Context, userID string, ids []string) error

	// GetTopic returns a topic regardless of owner, or nil.
	GetTopic(ctx context.Context, id string) (*models.RemoteTopic, error)

	// ListChildren returns userID's topics whose parent_id equals parentID.
	// Rows of other users pointing at parentID are not children.
	ListChildren(ctx context.Context, userID, parentID string) ([]models.RemoteTopic, error)
}

// ShareRepository is the server-side share table.
type ShareRepository interface {
	CreateShare(ctx context.Context, share *models.SharedTopic) error
	GetShare(ctx context.Context, id string) (*models.SharedTopic, error)

	// GetPublicShareByToken returns the share with token only if it is public.
	GetPublicShareByToken(ctx context.Context, token string) (*models.SharedTopic, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	UpdateShareVisibility(ctx context.Context, id string, isPublic bool) error
	DeleteShare(ctx context.Context, id string) error
	ListTopicShares(ctx context.Context, topicID string) ([]models.SharedTopic, error)
}

// UserRepository stores accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}
