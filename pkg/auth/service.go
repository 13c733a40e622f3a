package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Service signs users up and in.
type Service struct {
	users  store.UserRepository
	tokens *Tokens
	log    zerolog.Logger
}

// NewService returns a Service.
func NewService(users store.UserRepository, tokens *Tokens, log zerolog.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: log.With().Str("component", "auth").Logger()}
}

// Tokens returns the token signer used by the service.
func (s *Service) Tokens() *Tokens { return s.tokens }

// SignUp creates an account and returns a session for it.
func (s *Service) SignUp(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidCredentials
	}
	if len(creds.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}
	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Email: email, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", user.ID).Msg("user signed up")
	return s.session(user)
}

// SignIn checks the credentials and returns a new session.
func (s *Service) SignIn(ctx context.Context, creds models.Credentials) (*models.AuthResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(creds.Email)))
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPassword(user.PasswordHash, creds.Password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

// CurrentUser returns the account behind a verified user id.
func (s *Service) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, store.ErrNotAuthenticated
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, store.ErrNotAuthenticated
	}
	return user, nil
}

func (s *Service) session(user *models.User) (*models.AuthResponse, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{Token: token, User: user}, nil
}

// IsClientError reports whether err is caused by bad input rather than a
// server failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.Is(err, ErrWeakPassword) ||
		errors.Is(err, ErrInvalidToken)
}
