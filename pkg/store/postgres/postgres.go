// Package postgres implements the server-side repositories on GORM.
//
// The production dialect is PostgreSQL. The queries stay within what SQLite
// also understands (ON CONFLICT ... DO UPDATE ... WHERE, excluded.*), so the
// same store runs on an in-process SQLite database in tests.
//
// Topic upserts are last-write-wins: an incoming row replaces the stored one
// only when its updated_at is not older and it belongs to the same user.
// created_at is never rewritten once stored.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/topicnote/topicnote/pkg/logger"
	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

const batchSize = 200

// topicRecord is the stored form of a topic. Timestamps are real timestamps
// here and only become strings on the wire.
type topicRecord struct {
	ID        string                      `gorm:"primaryKey;type:text"`
	Title     string                      `gorm:"not null"`
	Content   string                      `gorm:"type:text;not null"`
	Tags      datatypes.JSONSlice[string] `gorm:"not null"`
	ParentID  *string                     `gorm:"index;type:text"`
	UserID    string                      `gorm:"index;type:text;not null"`
	CreatedAt time.Time                   `gorm:"not null;autoCreateTime:false"`
	UpdatedAt time.Time                   `gorm:"index;not null;autoUpdateTime:false"`
}

func (topicRecord) TableName() string { return "topics" }

func recordFromWire(userID string, t models.RemoteTopic) (topicRecord, error) {
	created, err := time.Parse(time.RFC3339Nano, t.CreatedAt)
	if err != nil {
		return topicRecord{}, fmt.Errorf("topic %s: invalid created_at: %w", t.ID, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, t.UpdatedAt)
	if err != nil {
		return topicRecord{}, fmt.Errorf("topic %s: invalid updated_at: %w", t.ID, err)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	r := topicRecord{
		ID:        t.ID,
		Title:     t.Title,
		Content:   t.Content,
		Tags:      tags,
		UserID:    userID,
		CreatedAt: created.UTC(),
		UpdatedAt: updated.UTC(),
	}
	if t.ParentID != nil && *t.ParentID != "" {
		p := *t.ParentID
		r.ParentID = &p
	}
	return r, nil
}

func (r topicRecord) wire() models.RemoteTopic {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return models.RemoteTopic{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Tags:      tags,
		ParentID:  r.ParentID,
		UserID:    r.UserID,
		CreatedAt: models.FormatTimestamp(r.CreatedAt.Unix()),
		UpdatedAt: models.FormatTimestamp(r.UpdatedAt.Unix()),
	}
}

// Store holds the topic, share and user tables.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

var (
	_ store.TopicRepository = (*Store)(nil)
	_ store.ShareRepository = (*Store)(nil)
	_ store.UserRepository  = (*Store)(nil)
)

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(dsn string, log zerolog.Logger) (*Store, error) {
	return NewWithDialector(postgres.Open(dsn), log)
}

// NewWithDialector opens the store on any GORM dialector.
func NewWithDialector(dialector gorm.Dialector, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Gorm(log, 500*time.Millisecond),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "postgres_store").Logger()}, nil
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&topicRecord{}, &models.SharedTopic{}, &models.User{}); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) ListTopics(ctx context.Context, userID string) ([]models.RemoteTopic, error) {
	if userID == "" {
		return nil, store.ErrNotAuthenticated
	}
	var records []topicRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return wireAll(records), nil
}

func (s *Store) UpsertTopics(ctx context.Context, userID string, topics []models.RemoteTopic) error {
	if userID == "" {
		return store.ErrNotAuthenticated
	}
	if len(topics) == 0 {
		return nil
	}

	records := make([]topicRecord, 0, len(topics))
	index := make(map[string]int, len(topics))
	for _, t := range topics {
		r, err := recordFromWire(userID, t)
		if err != nil {
			return err
		}
		if i, ok := index[r.ID]; ok {
			if !r.UpdatedAt.Before(records[i].UpdatedAt) {
				records[i] = r
			}
			continue
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "tags", "parent_id", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "topics.user_id = excluded.user_id AND topics.updated_at <= excluded.updated_at"},
		}},
	}).CreateInBatches(&records, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d topics: %w", len(records), err)
	}
	s.log.Debug().Str("user_id", userID).Int("count", len(records)).Msg("upserted topics")
	return nil
}

func (s *Store) DeleteTopics(ctx context.Context, userID string, ids []string) error {
	if userID == "" {
		return store.ErrNotAuthenticated
	}
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned []string
		if err := tx.Model(&topicRecord{}).
			Where("user_id = ? AND id IN ?", userID, ids).
			Pluck("id", &owned).Error; err != nil {
			return fmt.Errorf("failed to resolve topics: %w", err)
		}
		if len(owned) == 0 {
			return nil
		}
		if err := tx.Where("topic_id IN ?", owned).Delete(&models.SharedTopic{}).Error; err != nil {
			return fmt.Errorf("failed to delete shares: %w", err)
		}
		if err := tx.Where("id IN ?", owned).Delete(&topicRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete topics: %w", err)
		}
		return nil
	})
}

func (s *Store) GetTopic(ctx context.Context, id string) (*models.RemoteTopic, error) {
	var r topicRecord
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	w := r.wire()
	return &w, nil
}

func (s *Store) ListChildren(ctx context.Context, userID, parentID string) ([]models.RemoteTopic, error) {
	var records []topicRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ?", userID, parentID).
		Order("title, id").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return wireAll(records), nil
}

// Share operations

func (s *Store) CreateShare(ctx context.Context, share *models.SharedTopic) error {
	if share.ID == "" {
		share.ID = models.NewID()
	}
	if err := s.db.WithContext(ctx).Create(share).Error; err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	return nil
}

func (s *Store) GetShare(ctx context.Context, id string) (*models.SharedTopic, error) {
	var share models.SharedTopic
	err := s.db.WithContext(ctx).First(&share, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	return &share, nil
}

func (s *Store) GetPublicShareByToken(ctx context.Context, token string) (*models.SharedTopic, error) {
	var share models.SharedTopic
	err := s.db.WithContext(ctx).
		Where("share_token = ? AND is_public = ?", token, true).
		First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve share token: %w", err)
	}
	return &share, nil
}

func (s *Store) TokenExists(ctx context.Context, token string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.SharedTopic{}).Where("share_token = ?", token).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check share token: %w", err)
	}
	return n > 0, nil
}

func (s *Store) UpdateShareVisibility(ctx context.Context, id string, isPublic bool) error {
	err := s.db.WithContext(ctx).Model(&models.SharedTopic{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_public": isPublic, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("failed to update share: %w", err)
	}
	return nil
}

func (s *Store) DeleteShare(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SharedTopic{}).Error; err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	return nil
}

func (s *Store) ListTopicShares(ctx context.Context, topicID string) ([]models.SharedTopic, error) {
	var shares []models.SharedTopic
	err := s.db.WithContext(ctx).
		Where("topic_id = ?", topicID).
		Order("created_at, id").
		Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func wireAll(records []topicRecord) []models.RemoteTopic {
	out := make([]models.RemoteTopic, 0, len(records))
	for _, r := range records {
		out = append(out, r.wire())
	}
	return out
}
