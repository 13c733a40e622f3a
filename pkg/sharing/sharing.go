// Package sharing grants token-addressed read access to topics.
//
// A share belongs to the owner of its topic. Its token is a 21 character nanoid
// that never changes for the life of the share. Only public shares resolve;
// flipping a share to private hides it without invalidating the token, and
// deleting it makes the token unresolvable for good.
//
// A share that includes subtopics exposes the topic's direct children only, not
// the whole subtree.
package sharing

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

const maxTokenAttempts = 5

var (
	// ErrTopicNotFound is returned when sharing a topic the user does not own.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrTokenExhausted is returned when every generated token collided.
	ErrTokenExhausted = errors.New("could not generate a unique share token")
)

// Option configures a Service.
type Option func(*Service)

// WithTokenGenerator replaces the nanoid generator.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.newToken = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Service manages shares on top of the server repositories.
type Service struct {
	topics   store.TopicRepository
	shares   store.ShareRepository
	newToken func() (string, error)
	log      zerolog.Logger
}

// New returns a Service.
func New(topics store.TopicRepository, shares store.ShareRepository, opts ...Option) *Service {
	s := &Service{
		topics: topics,
		shares: shares,
		newToken: func() (string, error) {
			return gonanoid.New()
		},
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "sharing").Logger()
	return s
}

// CreateShare creates a share of one of userID's topics.
func (s *Service) CreateShare(ctx context.Context, userID string, req models.ShareRequest) (*models.SharedTopic, error) {
	if userID == "" {
		return nil, store.ErrNotAuthenticated
	}
	if _, err := s.ownedTopic(ctx, userID, req.TopicID); err != nil {
		return nil, err
	}
	token, err := s.uniqueToken(ctx)
	if err != nil {
		return nil, err
	}

	share := &models.SharedTopic{
		ID:               models.NewID(),
		TopicID:          req.TopicID,
		ShareToken:       token,
		IsPublic:         req.IsPublic,
		IncludeSubtopics: req.IncludeSubtopics,
		UserID:           userID,
	}
	if err := s.shares.CreateShare(ctx, share); err != nil {
		return nil, err
	}
	s.log.Info().Str("share", share.ID).Str("topic", share.TopicID).Bool("public", share.IsPublic).Msg("share created")
	return share, nil
}

// UpdateVisibility makes a share public or private. The token is unchanged.
// Unknown shares and shares of other users are ignored.
func (s *Service) UpdateVisibility(ctx context.Context, userID, shareID string, isPublic bool) error {
	if userID == "" {
		return store.ErrNotAuthenticated
	}
	share, err := s.ownedShare(ctx, userID, shareID)
	if err != nil || share == nil {
		return err
	}
	return s.shares.UpdateShareVisibility(ctx, shareID, isPublic)
}

// DeleteShare removes a share. Unknown shares and shares of other users are
// ignored.
func (s *Service) DeleteShare(ctx context.Context, userID, shareID string) error {
	if userID == "" {
		return store.ErrNotAuthenticated
	}
	share, err := s.ownedShare(ctx, userID, shareID)
	if err != nil || share == nil {
		return err
	}
	return s.shares.DeleteShare(ctx, shareID)
}

// ListTopicShares returns the shares of one of userID's topics.
func (s *Service) ListTopicShares(ctx context.Context, userID, topicID string) ([]models.SharedTopic, error) {
	if userID == "" {
		return nil, store.ErrNotAuthenticated
	}
	if _, err := s.ownedTopic(ctx, userID, topicID); err != nil {
		if errors.Is(err, ErrTopicNotFound) {
			return []models.SharedTopic{}, nil
		}
		return nil, err
	}
	shares, err := s.shares.ListTopicShares(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		shares = []models.SharedTopic{}
	}
	return shares, nil
}

// ResolveByToken returns what a public token grants access to, or nil when
// the token is unknown, private or its topic is gone. It needs no user.
func (s *Service) ResolveByToken(ctx context.Context, token string) (*models.ResolvedShare, error) {
	if token == "" {
		return nil, nil
	}
	share, err := s.shares.GetPublicShareByToken(ctx, token)
	if err != nil || share == nil {
		return nil, err
	}
	row, err := s.topics.GetTopic(ctx, share.TopicID)
	if err != nil || row == nil {
		return nil, err
	}
	topic, err := row.ToLocal()
	if err != nil {
		return nil, err
	}

	resolved := &models.ResolvedShare{Topic: topic, Subtopics: []models.Topic{}, Share: *share}
	if share.IncludeSubtopics {
		children, err := s.topics.ListChildren(ctx, row.UserID, share.TopicID)
		if err != nil {
			return nil, err
		}
		if resolved.Subtopics, err = models.TopicsToLocal(children); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func (s *Service) ownedTopic(ctx context.Context, userID, topicID string) (*models.RemoteTopic, error) {
	if topicID == "" {
		return nil, ErrTopicNotFound
	}
	topic, err := s.topics.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if topic == nil || topic.UserID != userID {
		return nil, ErrTopicNotFound
	}
	return topic, nil
}

func (s *Service) ownedShare(ctx context.Context, userID, shareID string) (*models.SharedTopic, error) {
	share, err := s.shares.GetShare(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if share == nil || share.UserID != userID {
		return nil, nil
	}
	return share, nil
}

func (s *Service) uniqueToken(ctx context.Context) (string, error) {
	for i := 0; i < maxTokenAttempts; i++ {
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("failed to generate share token: %w", err)
		}
		taken, err := s.shares.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
		s.log.Warn().Msg("share token collision, retrying")
	}
	return "", ErrTokenExhausted
}
