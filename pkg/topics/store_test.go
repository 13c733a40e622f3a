package topics_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
	"github.com/topicnote/topicnote/pkg/store/local"
	"github.com/topicnote/topicnote/pkg/topics"
)

type fakeSyncer struct {
	mu        sync.Mutex
	online    bool
	upserts   []models.Topic
	deletes   []string
	fullSyncs int
}

func (f *fakeSyncer) Online() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeSyncer) ScheduleUpsert(ts ...models.Topic) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, ts...)
}

func (f *fakeSyncer) ScheduleDelete(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ids...)
}

func (f *fakeSyncer) ScheduleFullSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullSyncs++
}

// failingStore wraps a LocalStore and fails writes on demand.
type failingStore struct {
	store.LocalStore
	fail bool
}

var errDisk = errors.New("disk full")

func (f *failingStore) Put(ctx context.Context, t models.Topic) error {
	if f.fail {
		return errDisk
	}
	return f.LocalStore.Put(ctx, t)
}

func (f *failingStore) DeleteMany(ctx context.Context, ids []string) error {
	if f.fail {
		return errDisk
	}
	return f.LocalStore.DeleteMany(ctx, ids)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("topic-%02d", n)
	}
}

type fixture struct {
	store *topics.Store
	local *local.Store
	sync  *fakeSyncer
	clock *clock
}

func newFixture(t *testing.T, online bool, extra ...topics.Option) *fixture {
	t.Helper()
	ls, err := local.New(filepath.Join(t.TempDir(), "topics.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ls.Close() })

	f := &fixture{
		local: ls,
		sync:  &fakeSyncer{online: online},
		clock: &clock{now: time.Unix(1_700_000_000, 0)},
	}
	opts := append([]topics.Option{
		topics.WithSyncer(f.sync),
		topics.WithClock(f.clock.Now),
		topics.WithIDGenerator(sequentialIDs()),
		topics.WithPreferences(ls),
	}, extra...)
	f.store = topics.New(ls, opts...)
	f.store.Initialize(context.Background())
	return f
}

func ptr(s string) *string { return &s }

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ls, err := local.New(filepath.Join(t.TempDir(), "topics.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ls.Close() })
	require.NoError(t, ls.Put(ctx, models.Topic{ID: "a", Title: "Existing"}))

	sy := &fakeSyncer{online: true}
	s := topics.New(ls, topics.WithSyncer(sy))
	assert.Equal(t, topics.Uninitialized, s.State())

	s.Initialize(ctx)
	assert.Equal(t, topics.Ready, s.State())
	require.Len(t, s.Topics(), 1)
	assert.Equal(t, 1, sy.fullSyncs)

	require.NoError(t, ls.Put(ctx, models.Topic{ID: "b", Title: "Added behind the store's back"}))
	s.Initialize(ctx)
	assert.Len(t, s.Topics(), 1, "second call does not reload")
	assert.Equal(t, 1, sy.fullSyncs)
}

func TestInitializeOfflineDoesNotSync(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, topics.Ready, f.store.State())
	assert.Zero(t, f.sync.fullSyncs)
}

func TestCreateChildThenDeleteRootCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	a, err := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})
	require.NoError(t, err)
	b, err := f.store.CreateTopic(ctx, models.TopicInput{Title: "B", ParentID: &a.ID})
	require.NoError(t, err)

	tree := f.store.GetTopicTree()
	require.Len(t, tree, 1)
	assert.Equal(t, "A", tree[0].Title)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "B", tree[0].Children[0].Title)

	require.NoError(t, f.store.DeleteTopic(ctx, a.ID))
	assert.Empty(t, f.store.GetTopicTree())

	for _, id := range []string{a.ID, b.ID} {
		got, err := f.local.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, f.sync.deletes)
}

func TestCreateTopicSetsTimestampsAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	created, err := f.store.CreateTopic(ctx, models.TopicInput{Title: "Notes", Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "topic-01", created.ID)
	assert.Equal(t, int64(1_700_000_000), created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Nil(t, created.ParentID)

	stored, err := f.local.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Notes", stored.Title)

	require.Len(t, f.sync.upserts, 1)
	assert.Equal(t, created.ID, f.sync.upserts[0].ID)

	selected := f.store.SelectedTopic()
	require.NotNil(t, selected)
	assert.Equal(t, created.ID, selected.ID)
}

func TestUpdateTopicBumpsUpdatedAtOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	created, err := f.store.CreateTopic(ctx, models.TopicInput{Title: "Draft", Content: "body"})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.UpdateTopic(ctx, created.ID, models.TopicUpdate{Title: ptr("Final")}))

	got, ok := f.store.GetTopicByID(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, "body", got.Content)
	assert.Equal(t, created.CreatedAt, got.CreatedAt)
	assert.Equal(t, created.CreatedAt+60, got.UpdatedAt)
	assert.Len(t, f.sync.upserts, 2)
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	require.NoError(t, f.store.UpdateTopic(ctx, "missing", models.TopicUpdate{Title: ptr("x")}))
	require.NoError(t, f.store.MoveTopic(ctx, "missing", nil))
	require.NoError(t, f.store.DeleteTopic(ctx, "missing"))
	require.NoError(t, f.store.ToggleCollapse(ctx, "missing"))

	_, ok := f.store.GetTopicByID("missing")
	assert.False(t, ok)
	assert.Empty(t, f.sync.upserts)
	assert.Empty(t, f.sync.deletes)
}

func TestMoveTopicRejectsCycles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	a, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})
	b, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "B", ParentID: &a.ID})
	c, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "C", ParentID: &b.ID})

	assert.ErrorIs(t, f.store.MoveTopic(ctx, a.ID, &a.ID), topics.ErrCycle)
	assert.ErrorIs(t, f.store.MoveTopic(ctx, a.ID, &c.ID), topics.ErrCycle)
	assert.ErrorIs(t, f.store.MoveTopic(ctx, a.ID, ptr("nowhere")), topics.ErrParentNotFound)
	assert.ErrorIs(t, f.store.UpdateTopic(ctx, a.ID, models.TopicUpdate{ParentID: &c.ParentID}), topics.ErrCycle)

	f.clock.Advance(time.Second)
	require.NoError(t, f.store.MoveTopic(ctx, c.ID, nil))
	moved, _ := f.store.GetTopicByID(c.ID)
	assert.True(t, moved.IsRoot())
	assert.Greater(t, moved.UpdatedAt, moved.CreatedAt)

	require.NoError(t, f.store.MoveTopic(ctx, a.ID, &c.ID))
	path := f.store.Path(b.ID)
	require.Len(t, path, 2)
	assert.Equal(t, []string{c.ID, a.ID}, []string{path[0].ID, path[1].ID})
}

func TestLocalFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	ls, err := local.New(filepath.Join(t.TempDir(), "topics.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ls.Close() })
	fs := &failingStore{LocalStore: ls}
	sy := &fakeSyncer{online: true}
	s := topics.New(fs, topics.WithSyncer(sy))
	s.Initialize(ctx)

	created, err := s.CreateTopic(ctx, models.TopicInput{Title: "Kept"})
	require.NoError(t, err)

	fs.fail = true
	_, err = s.CreateTopic(ctx, models.TopicInput{Title: "Lost"})
	assert.ErrorIs(t, err, errDisk)
	assert.ErrorIs(t, s.UpdateTopic(ctx, created.ID, models.TopicUpdate{Title: ptr("Changed")}), errDisk)
	assert.ErrorIs(t, s.DeleteTopic(ctx, created.ID), errDisk)

	all := s.Topics()
	require.Len(t, all, 1)
	assert.Equal(t, "Kept", all[0].Title)
	assert.Len(t, sy.upserts, 1)
	assert.Empty(t, sy.deletes)
}

func TestDeleteOfflineSkipsRemote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	a, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})

	require.NoError(t, f.store.DeleteTopic(ctx, a.ID))
	assert.Empty(t, f.sync.deletes)
	assert.Nil(t, f.store.SelectedTopic())
}

func TestToggleCollapseIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	a, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})
	f.clock.Advance(time.Hour)

	require.NoError(t, f.store.ToggleCollapse(ctx, a.ID))
	got, _ := f.store.GetTopicByID(a.ID)
	assert.True(t, got.Collapsed)
	assert.Equal(t, a.UpdatedAt, got.UpdatedAt)
	assert.Len(t, f.sync.upserts, 1, "only the create was sent")

	stored, err := f.local.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Collapsed)
}

func TestUpdateKeepsCollapsedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	a, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})
	require.NoError(t, f.store.ToggleCollapse(ctx, a.ID))

	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.UpdateTopic(ctx, a.ID, models.TopicUpdate{Title: ptr("B")}))
	got, _ := f.store.GetTopicByID(a.ID)
	assert.True(t, got.Collapsed)
	require.Len(t, f.sync.upserts, 2)
	assert.Equal(t, "B", f.sync.upserts[1].Title)
}

func TestReloadPicksUpPulledRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	a, _ := f.store.CreateTopic(ctx, models.TopicInput{Title: "A"})

	require.NoError(t, f.local.PutMany(ctx, []models.Topic{
		{ID: "pulled", Title: "From the server", CreatedAt: 1, UpdatedAt: 2},
	}))
	require.NoError(t, f.local.Delete(ctx, a.ID))
	require.NoError(t, f.store.Reload(ctx))

	_, ok := f.store.GetTopicByID("pulled")
	assert.True(t, ok)
	assert.Nil(t, f.store.SelectedTopic(), "selection of a vanished topic is cleared")
}

func TestExpandedNodes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	ids, err := f.store.ExpandedNodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, f.store.SetExpanded(ctx, "a", true))
	require.NoError(t, f.store.SetExpanded(ctx, "b", true))
	require.NoError(t, f.store.SetExpanded(ctx, "a", true))
	require.NoError(t, f.store.SetExpanded(ctx, "b", false))

	ids, err = f.store.ExpandedNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.CreateTopic(ctx, models.TopicInput{Title: fmt.Sprintf("T%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.store.Topics(), 20)
	n, err := f.local.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), n)
}
