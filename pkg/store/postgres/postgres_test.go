package postgres_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
	"github.com/topicnote/topicnote/pkg/store/postgres"
)

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	s, err := postgres.NewWithDialector(sqlite.Open(filepath.Join(t.TempDir(), "remote.db")), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func wire(id, title string, created, updated int64) models.RemoteTopic {
	return models.RemoteTopic{
		ID:        id,
		Title:     title,
		Tags:      []string{"t"},
		CreatedAt: models.FormatTimestamp(created),
		UpdatedAt: models.FormatTimestamp(updated),
	}
}

func TestUpsertAndListOrderedByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{
		wire("a", "A", 100, 100),
		wire("b", "B", 100, 300),
		wire("c", "C", 100, 200),
	}))

	got, err := s.ListTopics(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, models.FormatTimestamp(300), got[0].UpdatedAt)

	other, err := s.ListTopics(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpsertIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{wire("a", "newer", 100, 500)}))
	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{wire("a", "older", 100, 400)}))

	got, err := s.GetTopic(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "newer", got.Title)

	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{wire("a", "newest", 999, 600)}))
	got, err = s.GetTopic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "newest", got.Title)
	assert.Equal(t, models.FormatTimestamp(100), got.CreatedAt)
}

func TestUpsertNeverTakesOverAnotherUsersTopic(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.UpsertTopics(ctx, "owner", []models.RemoteTopic{wire("a", "mine", 100, 100)}))
	require.NoError(t, s.UpsertTopics(ctx, "intruder", []models.RemoteTopic{wire("a", "stolen", 100, 900)}))

	got, err := s.GetTopic(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title)
	assert.Equal(t, "owner", got.UserID)
}

func TestDeleteTopicsScopedToUserAndRemovesShares(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{wire("a", "A", 1, 1)}))
	require.NoError(t, s.CreateShare(ctx, &models.SharedTopic{TopicID: "a", ShareToken: "tok", IsPublic: true, UserID: "u1"}))

	require.NoError(t, s.DeleteTopics(ctx, "u2", []string{"a"}))
	got, err := s.GetTopic(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.NoError(t, s.DeleteTopics(ctx, "u1", []string{"a", "missing"}))
	got, err = s.GetTopic(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	share, err := s.GetPublicShareByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, share)
}

func TestListChildren(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	parent := "root"
	child := wire("c1", "Child", 1, 1)
	child.ParentID = &parent
	grandParent := "c1"
	grandChild := wire("g1", "Grand", 1, 1)
	grandChild.ParentID = &grandParent
	require.NoError(t, s.UpsertTopics(ctx, "u1", []models.RemoteTopic{wire("root", "Root", 1, 1), child, grandChild}))
	foreign := wire("x1", "Foreign", 1, 1)
	foreign.ParentID = &parent
	require.NoError(t, s.UpsertTopics(ctx, "u2", []models.RemoteTopic{foreign}))

	children, err := s.ListChildren(ctx, "u1", "root")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "c1", children[0].ID)

	children, err = s.ListChildren(ctx, "u2", "root")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "x1", children[0].ID)
}

func TestEmptyUserFailsFast(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.ListTopics(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotAuthenticated)
	assert.ErrorIs(t, s.UpsertTopics(ctx, "", nil), store.ErrNotAuthenticated)
	assert.ErrorIs(t, s.DeleteTopics(ctx, "", []string{"a"}), store.ErrNotAuthenticated)
}

func TestShareLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	share := &models.SharedTopic{TopicID: "a", ShareToken: "tok", IsPublic: false, UserID: "u1"}
	require.NoError(t, s.CreateShare(ctx, share))
	require.NotEmpty(t, share.ID)

	exists, err := s.TokenExists(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.GetPublicShareByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got, "private shares do not resolve")

	require.NoError(t, s.UpdateShareVisibility(ctx, share.ID, true))
	got, err = s.GetPublicShareByToken(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tok", got.ShareToken)

	shares, err := s.ListTopicShares(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, shares, 1)

	require.NoError(t, s.DeleteShare(ctx, share.ID))
	got, err = s.GetShare(ctx, share.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u := &models.User{Email: " Ana@Example.com ", PasswordHash: "hash"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := s.GetUserByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	byID, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", byID.Email)

	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, s.CreateUser(ctx, &models.User{Email: "ana@example.com", PasswordHash: "x"}))
}
