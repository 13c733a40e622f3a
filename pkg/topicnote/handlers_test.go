package topicnote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/topicnote/topicnote/pkg/client"
	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/notify"
	"github.com/topicnote/topicnote/pkg/store"
	"github.com/topicnote/topicnote/pkg/store/postgres"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		JWTSecret:    "test-secret",
		TokenTTL:     time.Hour,
		CORSOrigins:  []string{"*"},
		LocalDBPath:  filepath.Join(t.TempDir(), "local.db"),
		SyncInterval: time.Minute,
	}
}

// newTestServer runs the server side of an App on SQLite.
func newTestServer(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	st, err := postgres.NewWithDialector(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), zerolog.Nop())
	require.NoError(t, err)

	app, err := New(testConfig(t), WithRemoteStore(st), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, app.Migrate(context.Background(), &MigrateCommand{}))

	srv := httptest.NewServer(app.Router())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})
	return app, srv
}

func row(id, title string, parent *string, updated int64) models.RemoteTopic {
	return models.RemoteTopic{
		ID: id, Title: title, Tags: []string{"t"}, ParentID: parent,
		CreatedAt: models.FormatTimestamp(100), UpdatedAt: models.FormatTimestamp(updated),
	}
}

func signedUp(t *testing.T, srv *httptest.Server, email string) *client.Client {
	t.Helper()
	c := client.NewClient(srv.URL)
	_, err := c.SignUp(context.Background(), email, "hunter22")
	require.NoError(t, err)
	return c
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	for _, path := range []string{"/health", "/api/health"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAuthEndpoints(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t)

	c := client.NewClient(srv.URL)
	resp, err := c.SignUp(ctx, "Ana@Example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ana@example.com", resp.User.Email)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, me.ID)

	other := client.NewClient(srv.URL)
	_, err = other.SignUp(ctx, "ana@example.com", "hunter22")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	_, err = other.SignUp(ctx, "bob@example.com", "123")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = other.SignIn(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, store.ErrNotAuthenticated)

	_, err = other.SignIn(ctx, "ANA@example.com", "hunter22")
	require.NoError(t, err)

	other.SetAuthToken("forged")
	_, err = other.Me(ctx)
	assert.ErrorIs(t, err, store.ErrNotAuthenticated)
}

func TestTopicEndpoints(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t)
	ana := signedUp(t, srv, "ana@example.com")
	bob := signedUp(t, srv, "bob@example.com")

	root := "a"
	require.NoError(t, ana.UpsertTopics(ctx, []models.RemoteTopic{
		row("a", "A", nil, 200),
		row("b", "B", &root, 300),
	}))

	rows, err := ana.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0].ID, "newest first")

	// Older write loses, newer one wins.
	require.NoError(t, ana.UpsertTopics(ctx, []models.RemoteTopic{row("a", "stale", nil, 150)}))
	require.NoError(t, ana.UpsertTopics(ctx, []models.RemoteTopic{row("b", "B2", &root, 400)}))
	rows, err = ana.ListTopics(ctx)
	require.NoError(t, err)
	titles := map[string]string{}
	for _, r := range rows {
		titles[r.ID] = r.Title
	}
	assert.Equal(t, map[string]string{"a": "A", "b": "B2"}, titles)

	// Other users neither see nor overwrite ana's rows.
	bobRows, err := bob.ListTopics(ctx)
	require.NoError(t, err)
	assert.Empty(t, bobRows)
	require.NoError(t, bob.UpsertTopics(ctx, []models.RemoteTopic{row("a", "hijack", nil, 999)}))
	require.NoError(t, bob.DeleteTopics(ctx, []string{"a", "b"}))
	rows, err = ana.ListTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, ana.DeleteTopics(ctx, []string{"b", "missing"}))
	rows, err = ana.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
}

func TestTopicEndpointsRejectBadInput(t *testing.T) {
	_, srv := newTestServer(t)
	ana := signedUp(t, srv, "ana@example.com")

	post := func(path string, body []byte, token string) int {
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(body))
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	bad, err := json.Marshal([]models.RemoteTopic{{ID: "x", CreatedAt: "yesterday", UpdatedAt: "today"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, post("/api/topics/batch", bad, ana.AuthToken()))
	assert.Equal(t, http.StatusBadRequest, post("/api/topics/batch", []byte("{"), ana.AuthToken()))
	assert.Equal(t, http.StatusUnauthorized, post("/api/topics/batch", []byte("[]"), ""))
	assert.Equal(t, http.StatusNoContent, post("/api/topics/batch", []byte("[]"), ana.AuthToken()))
}

func TestShareEndpoints(t *testing.T) {
	ctx := context.Background()
	_, srv := newTestServer(t)
	ana := signedUp(t, srv, "ana@example.com")
	bob := signedUp(t, srv, "bob@example.com")

	root := "root"
	require.NoError(t, ana.UpsertTopics(ctx, []models.RemoteTopic{
		row("root", "Root", nil, 200),
		row("child", "Child", &root, 200),
	}))

	_, err := bob.CreateShare(ctx, models.ShareRequest{TopicID: "root", IsPublic: true})
	assert.True(t, client.IsNotFound(err))

	share, err := ana.CreateShare(ctx, models.ShareRequest{TopicID: "root", IsPublic: true, IncludeSubtopics: true})
	require.NoError(t, err)
	assert.Len(t, share.ShareToken, 21)

	anonymous := client.NewClient(srv.URL)
	resolved, err := anonymous.ResolveShare(ctx, share.ShareToken)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.Equal(t, "Root", resolved.Topic.Title)
	assert.Equal(t, int64(200), resolved.Topic.UpdatedAt)
	require.Len(t, resolved.Subtopics, 1)
	assert.Equal(t, "Child", resolved.Subtopics[0].Title)

	shares, err := ana.ListTopicShares(ctx, "root")
	require.NoError(t, err)
	require.Len(t, shares, 1)
	bobView, err := bob.ListTopicShares(ctx, "root")
	require.NoError(t, err)
	assert.Empty(t, bobView)

	// Bob cannot touch ana's share.
	require.NoError(t, bob.UpdateShareVisibility(ctx, share.ID, false))
	resolved, err = anonymous.ResolveShare(ctx, share.ShareToken)
	require.NoError(t, err)
	assert.NotNil(t, resolved)

	require.NoError(t, ana.UpdateShareVisibility(ctx, share.ID, false))
	resolved, err = anonymous.ResolveShare(ctx, share.ShareToken)
	require.NoError(t, err)
	assert.Nil(t, resolved)

	require.NoError(t, ana.UpdateShareVisibility(ctx, share.ID, true))
	require.NoError(t, ana.DeleteShare(ctx, share.ID))
	resolved, err = anonymous.ResolveShare(ctx, share.ShareToken)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestTopicWritesNotifyWatchers(t *testing.T) {
	ctx := context.Background()
	app, srv := newTestServer(t)
	ana := signedUp(t, srv, "ana@example.com")

	var (
		mu  sync.Mutex
		got []notify.Event
	)
	w, err := notify.NewWatcher(srv.URL, ana.AuthToken,
		notify.WithOnChange(func(e notify.Event) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, e)
		}))
	require.NoError(t, err)
	defer w.Close()
	w.Start(ctx)
	me, err := ana.Me(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return app.hub.Connections(me.ID) == 1 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, ana.UpsertTopics(ctx, []models.RemoteTopic{row("a", "A", nil, 200)}))
	require.NoError(t, ana.DeleteTopics(ctx, []string{"a"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 3*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a"}, got[0].IDs)
	assert.False(t, got[0].Deleted)
	assert.True(t, got[1].Deleted)
}

func TestCheckOrigin(t *testing.T) {
	app := &App{config: &Config{CORSOrigins: []string{"https://app.example"}}}
	req := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	assert.True(t, app.checkOrigin(req), "no origin header")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, app.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, app.checkOrigin(req))
}
