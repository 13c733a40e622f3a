// Package legacy reads the flat storage format used before the local database.
//
// The legacy format is a single JSON document:
//
//	{"version": "1.0.0", "topics": [...], "lastSaved": 1700000000000}
//
// Topics in it use camelCase timestamp fields (createdAt, updatedAt), which may
// be in milliseconds.
package legacy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/topicnote/topicnote/pkg/models"
)

// Version is the document version written by Save.
const Version = "1.0.0"

// Document is the legacy storage document.
type Document struct {
	Version   string  `json:"version"`
	Topics    []Topic `json:"topics"`
	LastSaved int64   `json:"lastSaved"`
}

// Topic is a topic in legacy encoding.
type Topic struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	ParentID  *string  `json:"parentId"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Collapsed bool     `json:"collapsed"`
}

// Local converts to the local encoding with timestamps in seconds.
func (t Topic) Local() models.Topic {
	out := models.Topic{
		ID:        t.ID,
		Title:     t.Title,
		Content:   t.Content,
		Tags:      t.Tags,
		CreatedAt: models.NormalizeUnix(t.CreatedAt),
		UpdatedAt: models.NormalizeUnix(t.UpdatedAt),
		Collapsed: t.Collapsed,
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if out.UpdatedAt < out.CreatedAt {
		out.UpdatedAt = out.CreatedAt
	}
	if t.ParentID != nil && *t.ParentID != "" {
		p := *t.ParentID
		out.ParentID = &p
	}
	return out
}

// FileStore is a legacy document kept in a file. A missing file is an empty
// store.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns the legacy topics in local encoding.
func (f *FileStore) Load(ctx context.Context) ([]models.Topic, error) {
	if f.path == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy storage: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode legacy storage: %w", err)
	}
	out := make([]models.Topic, 0, len(doc.Topics))
	for _, t := range doc.Topics {
		if t.ID == "" {
			continue
		}
		out = append(out, t.Local())
	}
	return out, nil
}

// Save writes topics as a legacy document.
func (f *FileStore) Save(ctx context.Context, topics []Topic, savedAt int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Document{Version: Version, Topics: topics, LastSaved: savedAt})
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write legacy storage: %w", err)
	}
	return nil
}
