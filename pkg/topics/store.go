package topics

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

var (
	// ErrCycle is returned when a move would make a topic its own ancestor.
	ErrCycle = errors.New("topic cannot be moved under itself or a descendant")
	// ErrParentNotFound is returned when a move targets an unknown parent.
	ErrParentNotFound = errors.New("parent topic not found")
)

// State is the lifecycle of a Store.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Syncer is the part of the sync engine the store writes through to.
type Syncer interface {
	Online() bool
	ScheduleUpsert(topics ...models.Topic)
	ScheduleDelete(ids ...string)
	ScheduleFullSync()
}

// Preferences persists UI state that is not part of any topic.
type Preferences interface {
	LoadExpanded(ctx context.Context) ([]string, error)
	SaveExpanded(ctx context.Context, ids []string) error
}

// Option configures a Store.
type Option func(*Store)

// WithSyncer enables write-through to the remote store.
func WithSyncer(s Syncer) Option { return func(st *Store) { st.sync = s } }

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option { return func(st *Store) { st.newID = fn } }

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option { return func(st *Store) { st.now = fn } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(st *Store) { st.log = l } }

// WithPreferences enables the persisted expanded-nodes set.
func WithPreferences(p Preferences) Option { return func(st *Store) { st.prefs = p } }

// WithLocale sets the collation used to order titles.
func WithLocale(tag language.Tag) Option { return func(st *Store) { st.locale = tag } }

// Store holds the topic list and the UI state around it.
type Store struct {
	local  store.LocalStore
	sync   Syncer
	prefs  Preferences
	newID  func() string
	now    func() time.Time
	log    zerolog.Logger
	locale language.Tag

	// wmu serializes mutations so read-modify-write sequences see a stable list.
	wmu sync.Mutex

	mu           sync.RWMutex
	state        State
	topics       []models.Topic
	searchQuery  string
	selectedTags []string
	sortBy       models.SortBy
	selected     string
	custom       []models.Template
}

// New returns an uninitialized Store backed by local.
func New(local store.LocalStore, opts ...Option) *Store {
	s := &Store{
		local:  local,
		newID:  models.NewID,
		now:    time.Now,
		log:    zerolog.Nop(),
		locale: language.Und,
		sortBy: models.SortRecent,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "topics").Logger()
	return s
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Initialize loads the local store into memory and, when online, schedules a
// full sync without waiting for it. Only the first call does anything. A load
// failure is logged and leaves the store empty and ready.
func (s *Store) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		return
	}
	s.state = Loading
	s.mu.Unlock()

	s.wmu.Lock()
	topics, err := s.local.GetAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load topics")
		topics = nil
	}
	s.mu.Lock()
	s.topics = topics
	s.state = Ready
	s.mu.Unlock()
	s.wmu.Unlock()

	s.log.Info().Int("count", len(topics)).Msg("topics loaded")
	if s.sync != nil && s.sync.Online() {
		s.sync.ScheduleFullSync()
	}
}

// Reload rereads the local store, typically after a pull wrote to it.
func (s *Store) Reload(ctx context.Context) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	topics, err := s.local.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload topics: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = topics
	s.state = Ready
	if s.selected != "" && indexOf(s.topics, s.selected) < 0 {
		s.selected = ""
	}
	return nil
}

// CreateTopic stores a new topic built from in and selects it.
func (s *Store) CreateTopic(ctx context.Context, in models.TopicInput) (*models.Topic, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	now := s.now().Unix()
	topic := models.Topic{
		ID:        s.newID(),
		Title:     in.Title,
		Content:   in.Content,
		Tags:      slices.Clone(in.Tags),
		CreatedAt: now,
		UpdatedAt: now,
		Collapsed: in.Collapsed,
	}
	if topic.Tags == nil {
		topic.Tags = []string{}
	}
	if in.ParentID != nil && *in.ParentID != "" {
		p := *in.ParentID
		topic.ParentID = &p
	}

	if err := s.local.Put(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to save topic: %w", err)
	}
	s.mu.Lock()
	s.topics = append(s.topics, topic)
	s.selected = topic.ID
	s.mu.Unlock()

	s.log.Debug().Str("id", topic.ID).Msg("topic created")
	s.upsertRemote(topic)
	out := topic.Clone()
	return &out, nil
}

// UpdateTopic merges u into the topic and bumps its update time. A parent
// change is validated like MoveTopic.
func (s *Store) UpdateTopic(ctx context.Context, id string, u models.TopicUpdate) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	current, ok := s.lookup(id)
	if !ok {
		return nil
	}
	if u.ParentID != nil {
		if err := s.checkParent(id, *u.ParentID); err != nil {
			return err
		}
	}
	updated := current.Clone()
	u.Apply(&updated)
	if updated.ParentID != nil && *updated.ParentID == "" {
		updated.ParentID = nil
	}
	updated.UpdatedAt = s.now().Unix()
	return s.replace(ctx, updated, true)
}

// MoveTopic reparents a topic. A nil or empty newParentID makes it a root.
func (s *Store) MoveTopic(ctx context.Context, id string, newParentID *string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	current, ok := s.lookup(id)
	if !ok {
		return nil
	}
	if err := s.checkParent(id, newParentID); err != nil {
		return err
	}
	moved := current.Clone()
	moved.ParentID = nil
	if newParentID != nil && *newParentID != "" {
		p := *newParentID
		moved.ParentID = &p
	}
	moved.UpdatedAt = s.now().Unix()
	return s.replace(ctx, moved, true)
}

// ToggleCollapse flips the collapsed flag. It is local UI state: the update
// time is kept and nothing is sent to the remote store.
func (s *Store) ToggleCollapse(ctx context.Context, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	current, ok := s.lookup(id)
	if !ok {
		return nil
	}
	toggled := current.Clone()
	toggled.Collapsed = !toggled.Collapsed
	return s.replace(ctx, toggled, false)
}

// DeleteTopic removes a topic and all of its descendants.
func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.RLock()
	if indexOf(s.topics, id) < 0 {
		s.mu.RUnlock()
		return nil
	}
	ids := append([]string{id}, descendants(s.topics, id)...)
	s.mu.RUnlock()

	if err := s.local.DeleteMany(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete topics: %w", err)
	}

	doomed := make(map[string]struct{}, len(ids))
	for _, d := range ids {
		doomed[d] = struct{}{}
	}
	s.mu.Lock()
	s.topics = slices.DeleteFunc(s.topics, func(t models.Topic) bool {
		_, ok := doomed[t.ID]
		return ok
	})
	if _, ok := doomed[s.selected]; ok {
		s.selected = ""
	}
	s.mu.Unlock()

	s.log.Debug().Str("id", id).Int("count", len(ids)).Msg("topics deleted")
	if s.sync != nil && s.sync.Online() {
		s.sync.ScheduleDelete(ids...)
	}
	return nil
}

// SetSearchQuery sets the text filter of GetFilteredTopics.
func (s *Store) SetSearchQuery(q string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchQuery = q
}

// SetSelectedTags sets the tag filter of GetFilteredTopics.
func (s *Store) SetSelectedTags(tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedTags = slices.Clone(tags)
}

// SetSortBy sets the ordering of GetFilteredTopics. Unknown values fall back to
// SortRecent.
func (s *Store) SetSortBy(by models.SortBy) {
	if !by.Valid() {
		by = models.SortRecent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sortBy = by
}

// SetSelectedTopic selects a topic; "" clears the selection.
func (s *Store) SetSelectedTopic(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// SelectedTopic returns the selected topic, or nil.
func (s *Store) SelectedTopic() *models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return nil
	}
	if i := indexOf(s.topics, s.selected); i >= 0 {
		t := s.topics[i].Clone()
		return &t
	}
	return nil
}

// ExpandedNodes returns the ids of the expanded tree nodes.
func (s *Store) ExpandedNodes(ctx context.Context) ([]string, error) {
	if s.prefs == nil {
		return []string{}, nil
	}
	return s.prefs.LoadExpanded(ctx)
}

// SetExpanded adds or removes id from the expanded set.
func (s *Store) SetExpanded(ctx context.Context, id string, expanded bool) error {
	if s.prefs == nil {
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	ids, err := s.prefs.LoadExpanded(ctx)
	if err != nil {
		return err
	}
	has := slices.Contains(ids, id)
	switch {
	case expanded && !has:
		ids = append(ids, id)
	case !expanded && has:
		ids = slices.DeleteFunc(ids, func(v string) bool { return v == id })
	default:
		return nil
	}
	return s.prefs.SaveExpanded(ctx, ids)
}

// replace commits t to the local store, swaps it into memory and optionally
// schedules the remote write. The caller holds wmu.
func (s *Store) replace(ctx context.Context, t models.Topic, remote bool) error {
	if err := s.local.Put(ctx, t); err != nil {
		return fmt.Errorf("failed to save topic: %w", err)
	}
	s.mu.Lock()
	if i := indexOf(s.topics, t.ID); i >= 0 {
		s.topics[i] = t
	}
	s.mu.Unlock()
	if remote {
		s.upsertRemote(t)
	}
	return nil
}

func (s *Store) upsertRemote(t models.Topic) {
	if s.sync == nil {
		return
	}
	s.sync.ScheduleUpsert(t)
}

func (s *Store) lookup(id string) (models.Topic, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.topics, id); i >= 0 {
		return s.topics[i].Clone(), true
	}
	return models.Topic{}, false
}

// checkParent validates parent as the new parent of id.
func (s *Store) checkParent(id string, parent *string) error {
	if parent == nil || *parent == "" {
		return nil
	}
	if *parent == id {
		return ErrCycle
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if indexOf(s.topics, *parent) < 0 {
		return ErrParentNotFound
	}
	if slices.Contains(descendants(s.topics, id), *parent) {
		return ErrCycle
	}
	return nil
}

func indexOf(topics []models.Topic, id string) int {
	return slices.IndexFunc(topics, func(t models.Topic) bool { return t.ID == id })
}

// descendants returns every topic below id, depth first, excluding id.
func descendants(topics []models.Topic, id string) []string {
	children := childIndex(topics)
	visited := map[string]bool{id: true}
	var out []string
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range children[cur] {
			if visited[c.ID] {
				continue
			}
			visited[c.ID] = true
			out = append(out, c.ID)
			stack = append(stack, c.ID)
		}
	}
	return out
}

// childIndex groups topics by parent id. Roots are under "".
func childIndex(topics []models.Topic) map[string][]models.Topic {
	idx := make(map[string][]models.Topic, len(topics))
	for _, t := range topics {
		k := t.ParentKey()
		idx[k] = append(idx[k], t)
	}
	return idx
}
