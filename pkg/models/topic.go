package models

import (
	"slices"

	"gorm.io/datatypes"
)

// SortBy selects the ordering of filtered topic lists.
type SortBy string

const (
	// SortRecent orders by descending creation time.
	SortRecent SortBy = "recent"
	// SortAlphabetical orders by ascending title.
	SortAlphabetical SortBy = "alphabetical"
	// SortMostEdited orders by descending update time.
	SortMostEdited SortBy = "mostEdited"
)

// Valid reports whether s names a known ordering.
func (s SortBy) Valid() bool {
	switch s {
	case SortRecent, SortAlphabetical, SortMostEdited:
		return true
	}
	return false
}

// Topic is a node in the user's note tree, in its local encoding.
//
// CreatedAt and UpdatedAt are Unix seconds. They are managed by the topic store,
// never by GORM, so that values pulled from the server survive an upsert.
type Topic struct {
	ID        string                      `gorm:"primaryKey;type:text" json:"id"`
	Title     string                      `gorm:"index;not null" json:"title"`
	Content   string                      `gorm:"type:text;not null" json:"content"`
	Tags      datatypes.JSONSlice[string] `gorm:"type:text" json:"tags"`
	ParentID  *string                     `gorm:"index;type:text" json:"parentId"`
	UserID    string                      `gorm:"index;type:text" json:"user_id"`
	CreatedAt int64                       `gorm:"index;not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt int64                       `gorm:"index;not null;autoUpdateTime:false" json:"updated_at"`
	Collapsed bool                        `gorm:"not null" json:"collapsed"`
}

// TableName pins the table name for GORM.
func (Topic) TableName() string { return "topics" }

// IsRoot reports whether the topic has no parent reference.
func (t Topic) IsRoot() bool { return t.ParentID == nil || *t.ParentID == "" }

// ParentKey returns the parent id, or "" for roots.
func (t Topic) ParentKey() string {
	if t.ParentID == nil {
		return ""
	}
	return *t.ParentID
}

// HasTag reports whether tag is one of the topic's tags.
func (t Topic) HasTag(tag string) bool { return slices.Contains(t.Tags, tag) }

// Clone returns a deep copy so callers cannot mutate shared slices or pointers.
func (t Topic) Clone() Topic {
	c := t
	if t.Tags != nil {
		c.Tags = slices.Clone(t.Tags)
	}
	if t.ParentID != nil {
		p := *t.ParentID
		c.ParentID = &p
	}
	return c
}

// TopicInput carries the caller-chosen fields of a new topic.
type TopicInput struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	ParentID  *string  `json:"parentId"`
	Collapsed bool     `json:"collapsed"`
}

// TopicUpdate is a partial update. Nil fields are left untouched.
//
// There are no fields for the id, the creation time or the owner. The collapsed
// flag is local UI state and only changes through ToggleCollapse.
type TopicUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	ParentID **string  `json:"-"`
}

// Apply merges u onto t.
func (u TopicUpdate) Apply(t *Topic) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Content != nil {
		t.Content = *u.Content
	}
	if u.Tags != nil {
		t.Tags = slices.Clone(*u.Tags)
	}
	if u.ParentID != nil {
		t.ParentID = *u.ParentID
	}
}

// TopicTree is a topic with its children resolved.
type TopicTree struct {
	Topic
	Children []*TopicTree `json:"children"`
}

// Walk visits the node and its descendants depth first.
func (n *TopicTree) Walk(fn func(depth int, node *TopicTree)) {
	n.walk(0, fn)
}

func (n *TopicTree) walk(depth int, fn func(int, *TopicTree)) {
	fn(depth, n)
	for _, c := range n.Children {
		c.walk(depth+1, fn)
	}
}
