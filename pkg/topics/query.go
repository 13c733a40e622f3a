package topics

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"

	"github.com/topicnote/topicnote/pkg/models"
)

// GetTopicTree returns the topics as a forest. A topic whose parent is missing
// is a root. Siblings are ordered by title. Topics caught in a parent cycle,
// and therefore unreachable from any root, are promoted to roots so that every
// topic appears exactly once.
func (s *Store) GetTopicTree() []*models.TopicTree {
	s.mu.RLock()
	topics := cloneAll(s.topics)
	s.mu.RUnlock()

	cmp := s.titleCompare()
	children := childIndex(topics)
	byID := make(map[string]models.Topic, len(topics))
	for _, t := range topics {
		byID[t.ID] = t
	}

	visited := make(map[string]bool, len(topics))
	var build func(t models.Topic) *models.TopicTree
	build = func(t models.Topic) *models.TopicTree {
		visited[t.ID] = true
		node := &models.TopicTree{Topic: t, Children: []*models.TopicTree{}}
		kids := slices.Clone(children[t.ID])
		slices.SortStableFunc(kids, cmp)
		for _, c := range kids {
			if visited[c.ID] {
				continue
			}
			node.Children = append(node.Children, build(c))
		}
		return node
	}

	var roots []models.Topic
	for _, t := range topics {
		if _, ok := byID[t.ParentKey()]; t.IsRoot() || !ok {
			roots = append(roots, t)
		}
	}
	slices.SortStableFunc(roots, cmp)

	forest := make([]*models.TopicTree, 0, len(roots))
	for _, r := range roots {
		forest = append(forest, build(r))
	}

	var orphans []models.Topic
	for _, t := range topics {
		if !visited[t.ID] {
			orphans = append(orphans, t)
		}
	}
	slices.SortStableFunc(orphans, cmp)
	for _, o := range orphans {
		if visited[o.ID] {
			continue
		}
		// Climb until a topic repeats: that one sits on the cycle.
		start, climbed := o, map[string]bool{}
		for !climbed[start.ID] {
			climbed[start.ID] = true
			p, ok := byID[start.ParentKey()]
			if !ok {
				break
			}
			start = p
		}
		s.log.Warn().Str("id", start.ID).Msg("topic is part of a parent cycle, shown as root")
		forest = append(forest, build(start))
	}
	return forest
}

// GetFilteredTopics applies the search query and tag filter, then sorts.
func (s *Store) GetFilteredTopics() []models.Topic {
	s.mu.RLock()
	query := strings.ToLower(strings.TrimSpace(s.searchQuery))
	tags := slices.Clone(s.selectedTags)
	by := s.sortBy
	topics := cloneAll(s.topics)
	s.mu.RUnlock()

	out := topics[:0]
	for _, t := range topics {
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Content), query) {
			continue
		}
		if !hasAllTags(t, tags) {
			continue
		}
		out = append(out, t)
	}

	switch by {
	case models.SortAlphabetical:
		slices.SortStableFunc(out, s.titleCompare())
	case models.SortMostEdited:
		slices.SortStableFunc(out, func(a, b models.Topic) int { return compareDesc(a.UpdatedAt, b.UpdatedAt) })
	default:
		slices.SortStableFunc(out, func(a, b models.Topic) int { return compareDesc(a.CreatedAt, b.CreatedAt) })
	}
	return out
}

// GetAllTags returns every tag in use, deduplicated and sorted.
func (s *Store) GetAllTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	tags := []string{}
	for _, t := range s.topics {
		for _, tag := range t.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

// GetTopicByID returns a copy of the topic.
func (s *Store) GetTopicByID(id string) (models.Topic, bool) {
	return s.lookup(id)
}

// Topics returns a copy of every topic in load order.
func (s *Store) Topics() []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.topics)
}

// RootTopics returns the topics without a resolvable parent.
func (s *Store) RootTopics() []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := make(map[string]bool, len(s.topics))
	for _, t := range s.topics {
		known[t.ID] = true
	}
	var out []models.Topic
	for _, t := range s.topics {
		if t.IsRoot() || !known[t.ParentKey()] {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Children returns the direct children of id.
func (s *Store) Children(id string) []models.Topic {
	if id == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Topic
	for _, t := range s.topics {
		if t.ParentKey() == id {
			out = append(out, t.Clone())
		}
	}
	return out
}

// HasChildren reports whether id has at least one child.
func (s *Store) HasChildren(id string) bool { return s.ChildrenCount(id) > 0 }

// ChildrenCount returns the number of direct children of id.
func (s *Store) ChildrenCount(id string) int {
	if id == "" {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.topics {
		if t.ParentKey() == id {
			n++
		}
	}
	return n
}

// Parent returns the parent of id, or nil for roots and unknown ids.
func (s *Store) Parent(id string) *models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return parentOf(s.topics, id)
}

// Path returns the ancestors of id, root first, not including id itself.
func (s *Store) Path(id string) []models.Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var path []models.Topic
	visited := map[string]bool{id: true}
	for p := parentOf(s.topics, id); p != nil && !visited[p.ID]; p = parentOf(s.topics, p.ID) {
		visited[p.ID] = true
		path = append(path, *p)
	}
	slices.Reverse(path)
	return path
}

func parentOf(topics []models.Topic, id string) *models.Topic {
	i := indexOf(topics, id)
	if i < 0 || topics[i].IsRoot() {
		return nil
	}
	j := indexOf(topics, topics[i].ParentKey())
	if j < 0 {
		return nil
	}
	p := topics[j].Clone()
	return &p
}

// titleCompare orders topics by title using the store's collation.
// Collators are not safe for concurrent use, so each call builds its own.
func (s *Store) titleCompare() func(a, b models.Topic) int {
	c := collate.New(s.locale, collate.IgnoreCase)
	return func(a, b models.Topic) int {
		return c.CompareString(a.Title, b.Title)
	}
}

func hasAllTags(t models.Topic, tags []string) bool {
	for _, tag := range tags {
		if !t.HasTag(tag) {
			return false
		}
	}
	return true
}

func compareDesc(a, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func cloneAll(topics []models.Topic) []models.Topic {
	out := make([]models.Topic, len(topics))
	for i, t := range topics {
		out[i] = t.Clone()
	}
	return out
}
