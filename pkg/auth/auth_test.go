package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
	"github.com/topicnote/topicnote/pkg/store/postgres"
)

func TestTokenRoundTrip(t *testing.T) {
	tokens, err := NewTokens("s3cret", time.Hour)
	require.NoError(t, err)

	signed, err := tokens.Issue("user-1")
	require.NoError(t, err)
	got, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got)
}

func TestTokenRejections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tokens, err := NewTokens("s3cret", time.Hour)
	require.NoError(t, err)
	tokens.now = func() time.Time { return now }
	signed, err := tokens.Issue("user-1")
	require.NoError(t, err)

	other, err := NewTokens("another", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tokens.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "user-1", Issuer: issuer})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tokens.Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("", time.Hour)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "battery staple"))
}

func newService(t *testing.T) *Service {
	t.Helper()
	repo, err := postgres.NewWithDialector(sqlite.Open(filepath.Join(t.TempDir(), "users.db")), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(context.Background()))
	t.Cleanup(func() { _ = repo.Close() })
	tokens, err := NewTokens("s3cret", time.Hour)
	require.NoError(t, err)
	return NewService(repo, tokens, zerolog.Nop())
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	up, err := svc.SignUp(ctx, models.Credentials{Email: " Ana@Example.com ", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", up.User.Email)
	userID, err := svc.Tokens().Verify(up.Token)
	require.NoError(t, err)
	assert.Equal(t, up.User.ID, userID)

	_, err = svc.SignUp(ctx, models.Credentials{Email: "ana@example.com", Password: "another1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = svc.SignUp(ctx, models.Credentials{Email: "bob@example.com", Password: "123"})
	assert.ErrorIs(t, err, ErrWeakPassword)
	_, err = svc.SignUp(ctx, models.Credentials{Email: "nope", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	in, err := svc.SignIn(ctx, models.Credentials{Email: "ANA@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, up.User.ID, in.User.ID)

	_, err = svc.SignIn(ctx, models.Credentials{Email: "ana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.SignIn(ctx, models.Credentials{Email: "ghost@example.com", Password: "hunter22"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, IsClientError(err))

	me, err := svc.CurrentUser(ctx, up.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)
	_, err = svc.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotAuthenticated)
}

func TestMiddleware(t *testing.T) {
	tokens, err := NewTokens("s3cret", time.Hour)
	require.NoError(t, err)
	signed, err := tokens.Issue("user-7")
	require.NoError(t, err)

	var seen string
	h := tokens.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		query  string
		status int
		user   string
	}{
		{name: "no token", status: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer junk", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + signed, status: http.StatusUnauthorized},
		{name: "header", header: "Bearer " + signed, status: http.StatusNoContent, user: "user-7"},
		{name: "lowercase scheme", header: "bearer " + signed, status: http.StatusNoContent, user: "user-7"},
		{name: "query", query: "?access_token=" + signed, status: http.StatusNoContent, user: "user-7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/topics"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.user, seen)
		})
	}
}
