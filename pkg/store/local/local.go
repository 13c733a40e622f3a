// Package local implements the client's embedded topic store on SQLite.
//
// The database runs in WAL mode with synchronous=FULL, and the pool is limited
// to one connection, so every write is committed to disk before the call
// returns and no two writers contend for the file.
//
// Besides the topics table the store keeps a topic_tags table, one row per
// (topic, tag) pair and indexed by tag, rewritten in the same transaction as
// the topic it belongs to.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/topicnote/topicnote/pkg/logger"
	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

const (
	batchSize      = 200
	expandedKey    = "expanded_nodes"
	slowQueryAfter = 200 * time.Millisecond
)

var upsertColumns = []string{
	"title", "content", "tags", "parent_id", "user_id", "created_at", "updated_at", "collapsed",
}

type topicTag struct {
	TopicID string `gorm:"primaryKey;type:text"`
	Tag     string `gorm:"primaryKey;type:text;index"`
}

func (topicTag) TableName() string { return "topic_tags" }

type preference struct {
	Name  string `gorm:"primaryKey;type:text"`
	Value string `gorm:"type:text;not null"`
}

func (preference) TableName() string { return "preferences" }

// Store is a SQLite-backed store.LocalStore.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

var _ store.LocalStore = (*Store)(nil)

// New opens (creating if needed) the database at path and migrates its schema.
// Use ":memory:" for a throwaway database.
func New(path string, log zerolog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Gorm(log, slowQueryAfter),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: log.With().Str("component", "local_store").Logger()}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&models.Topic{}, &topicTag{}, &preference{}); err != nil {
		return fmt.Errorf("failed to migrate local database: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetAll(ctx context.Context) ([]models.Topic, error) {
	var topics []models.Topic
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}
	for i := range topics {
		normalize(&topics[i])
	}
	return topics, nil
}

func (s *Store) Get(ctx context.Context, id string) (*models.Topic, error) {
	var topic models.Topic
	err := s.db.WithContext(ctx).First(&topic, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic %s: %w", id, err)
	}
	normalize(&topic)
	return &topic, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Topic{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	return n, nil
}

func (s *Store) Put(ctx context.Context, topic models.Topic) error {
	return s.PutMany(ctx, []models.Topic{topic})
}

func (s *Store) PutMany(ctx context.Context, topics []models.Topic) error {
	if len(topics) == 0 {
		return nil
	}

	// Later entries win when the same id appears twice in one batch.
	rows := make([]models.Topic, 0, len(topics))
	index := make(map[string]int, len(topics))
	for _, t := range topics {
		t = t.Clone()
		normalize(&t)
		if i, ok := index[t.ID]; ok {
			rows[i] = t
			continue
		}
		index[t.ID] = len(rows)
		rows = append(rows, t)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).CreateInBatches(&rows, batchSize).Error
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(rows))
		var tags []topicTag
		for _, t := range rows {
			ids = append(ids, t.ID)
			seen := make(map[string]bool, len(t.Tags))
			for _, tag := range t.Tags {
				if seen[tag] {
					continue
				}
				seen[tag] = true
				tags = append(tags, topicTag{TopicID: t.ID, Tag: tag})
			}
		}
		if err := deleteTags(tx, ids); err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&tags, batchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store %d topics: %w", len(rows), err)
	}
	s.log.Debug().Int("count", len(rows)).Msg("stored topics")
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.DeleteMany(ctx, []string{id})
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range chunks(ids, batchSize) {
			if err := deleteTags(tx, chunk); err != nil {
				return err
			}
			if err := tx.Where("id IN ?", chunk).Delete(&models.Topic{}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %d topics: %w", len(ids), err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM topic_tags").Error; err != nil {
			return err
		}
		return tx.Exec("DELETE FROM topics").Error
	})
	if err != nil {
		return fmt.Errorf("failed to clear topics: %w", err)
	}
	return nil
}

// TagCount is a tag and the number of topics carrying it.
type TagCount struct {
	Tag   string
	Count int64
}

// TagCounts reads the tag index, ordered by tag.
func (s *Store) TagCounts(ctx context.Context) ([]TagCount, error) {
	var out []TagCount
	err := s.db.WithContext(ctx).Model(&topicTag{}).
		Select("tag, COUNT(*) AS count").
		Group("tag").
		Order("tag").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	return out, nil
}

// ListByTag returns the topics carrying tag by title, using the tag index.
func (s *Store) ListByTag(ctx context.Context, tag string) ([]models.Topic, error) {
	var topics []models.Topic
	err := s.db.WithContext(ctx).
		Where("id IN (?)", s.db.Model(&topicTag{}).Select("topic_id").Where("tag = ?", tag)).
		Order("title, id").
		Find(&topics).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list topics tagged %q: %w", tag, err)
	}
	for i := range topics {
		normalize(&topics[i])
	}
	return topics, nil
}

// LoadExpanded returns the persisted set of expanded tree nodes.
func (s *Store) LoadExpanded(ctx context.Context) ([]string, error) {
	var p preference
	err := s.db.WithContext(ctx).First(&p, "name = ?", expandedKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load expanded nodes: %w", err)
	}
	var ids []string
	if err := json.Unmarshal([]byte(p.Value), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode expanded nodes: %w", err)
	}
	return ids, nil
}

// SaveExpanded replaces the persisted set of expanded tree nodes.
func (s *Store) SaveExpanded(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&preference{Name: expandedKey, Value: string(data)}).Error
	if err != nil {
		return fmt.Errorf("failed to save expanded nodes: %w", err)
	}
	return nil
}

func deleteTags(tx *gorm.DB, ids []string) error {
	for _, chunk := range chunks(ids, batchSize) {
		if err := tx.Where("topic_id IN ?", chunk).Delete(&topicTag{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalize(t *models.Topic) {
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.ParentID != nil && strings.TrimSpace(*t.ParentID) == "" {
		t.ParentID = nil
	}
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
