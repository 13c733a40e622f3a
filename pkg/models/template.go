package models

import "slices"

// Template describes the defaults of a topic created from it.
type Template struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Icon           string   `json:"icon"`
	Description    string   `json:"description"`
	DefaultTitle   string   `json:"defaultTitle"`
	DefaultContent string   `json:"defaultContent"`
	DefaultTags    []string `json:"defaultTags"`
	IsCustom       bool     `json:"isCustom"`
}

// Input builds the topic input for a new topic under parentID.
func (t Template) Input(parentID *string) TopicInput {
	in := TopicInput{
		Title:   t.DefaultTitle,
		Content: t.DefaultContent,
		Tags:    slices.Clone(t.DefaultTags),
	}
	if parentID != nil && *parentID != "" {
		p := *parentID
		in.ParentID = &p
	}
	return in
}
