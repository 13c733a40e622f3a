package models

import (
	"fmt"
	"slices"
	"time"
)

// legacyMillisThreshold separates second and millisecond timestamps. Anything
// larger is a millisecond value (seconds would put it past the year 2286).
const legacyMillisThreshold = 10_000_000_000

// RemoteTopic is the wire encoding of a topic.
type RemoteTopic struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	ParentID  *string  `json:"parent_id"`
	UserID    string   `json:"user_id,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// FormatTimestamp renders Unix seconds as an RFC 3339 UTC string.
func FormatTimestamp(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// ParseTimestamp parses an RFC 3339 string into Unix seconds, truncating any
// fractional part.
func ParseTimestamp(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.Unix(), nil
}

// NormalizeUnix converts millisecond timestamps to seconds and leaves second
// timestamps alone.
func NormalizeUnix(ts int64) int64 {
	if ts > legacyMillisThreshold {
		return ts / 1000
	}
	return ts
}

// ToRemote converts a local topic to its wire encoding. Collapsed is dropped.
func (t Topic) ToRemote() RemoteTopic {
	r := RemoteTopic{
		ID:        t.ID,
		Title:     t.Title,
		Content:   t.Content,
		Tags:      slices.Clone([]string(t.Tags)),
		UserID:    t.UserID,
		CreatedAt: FormatTimestamp(t.CreatedAt),
		UpdatedAt: FormatTimestamp(t.UpdatedAt),
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if !t.IsRoot() {
		p := *t.ParentID
		r.ParentID = &p
	}
	return r
}

// ToLocal converts a wire topic to the local encoding. Collapsed is always
// false.
func (r RemoteTopic) ToLocal() (Topic, error) {
	created, err := ParseTimestamp(r.CreatedAt)
	if err != nil {
		return Topic{}, fmt.Errorf("topic %s created_at: %w", r.ID, err)
	}
	updated, err := ParseTimestamp(r.UpdatedAt)
	if err != nil {
		return Topic{}, fmt.Errorf("topic %s updated_at: %w", r.ID, err)
	}
	t := Topic{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Tags:      slices.Clone(r.Tags),
		UserID:    r.UserID,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if r.ParentID != nil && *r.ParentID != "" {
		p := *r.ParentID
		t.ParentID = &p
	}
	return t, nil
}

// TopicsToRemote converts a batch of local topics.
func TopicsToRemote(topics []Topic) []RemoteTopic {
	out := make([]RemoteTopic, 0, len(topics))
	for _, t := range topics {
		out = append(out, t.ToRemote())
	}
	return out
}

// TopicsToLocal converts a batch of wire topics, failing on the first
// malformed row.
func TopicsToLocal(rows []RemoteTopic) ([]Topic, error) {
	out := make([]Topic, 0, len(rows))
	for _, r := range rows {
		t, err := r.ToLocal()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
