package models

import "time"

// SharedTopic grants token-addressed read access to a topic.
type SharedTopic struct {
	ID               string    `gorm:"primaryKey;type:text" json:"id"`
	TopicID          string    `gorm:"index;type:text;not null" json:"topic_id"`
	ShareToken       string    `gorm:"uniqueIndex;type:text;not null" json:"share_token"`
	IsPublic         bool      `gorm:"not null" json:"is_public"`
	IncludeSubtopics bool      `gorm:"not null" json:"include_subtopics"`
	UserID           string    `gorm:"index;type:text;not null" json:"user_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName pins the table name for GORM.
func (SharedTopic) TableName() string { return "shared_topics" }

// ShareRequest is the body of a create-share call.
type ShareRequest struct {
	TopicID          string `json:"topic_id"`
	IsPublic         bool   `json:"is_public"`
	IncludeSubtopics bool   `json:"include_subtopics"`
}

// ResolvedShare is the public view behind a share token.
type ResolvedShare struct {
	Topic     Topic       `json:"topic"`
	Subtopics []Topic     `json:"subtopics"`
	Share     SharedTopic `json:"share"`
}
