package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/reachability"
	"github.com/topicnote/topicnote/pkg/store"
)

// Status is the observable state of the engine.
type Status struct {
	IsOnline  bool       `json:"isOnline"`
	IsSyncing bool       `json:"isSyncing"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// LegacySource yields topics from the pre-database storage format.
type LegacySource interface {
	Load(ctx context.Context) ([]models.Topic, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLegacy sets the source used by MigrateLegacyStorage.
func WithLegacy(src LegacySource) Option {
	return func(e *Engine) { e.legacy = src }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine runs push and pull passes between a local and a remote store.
type Engine struct {
	local  store.LocalStore
	remote store.RemoteStore
	net    reachability.Notifier
	legacy LegacySource
	now    func() time.Time
	log    zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	// notifyMu orders status changes with their delivery to subscribers.
	notifyMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	status    Status
	nextSub   int
	subs      map[int]func(Status)
	afterPull []func(context.Context)

	unsubscribeNet func()
}

// New creates an engine and starts following net.
func New(local store.LocalStore, remote store.RemoteStore, net reachability.Notifier, opts ...Option) *Engine {
	e := &Engine{
		local:  local,
		remote: remote,
		net:    net,
		now:    time.Now,
		log:    zerolog.Nop(),
		subs:   make(map[int]func(Status)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "syncer").Logger()
	e.status.IsOnline = net.Online()
	e.unsubscribeNet = net.Subscribe(e.handleReachability)
	return e
}

// Close stops following reachability and waits for scheduled work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.unsubscribeNet()
	e.wg.Wait()
}

// Online reports the notifier's current value.
func (e *Engine) Online() bool { return e.net.Online() }

// Status returns a copy of the current status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyStatus(e.status)
}

// Subscribe registers fn for every status transition. Transitions are
// delivered one at a time in the order they happened; fn must not call back
// into methods that change the status.
func (e *Engine) Subscribe(fn func(Status)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// AfterPull registers fn to run after every pull that wrote to the local store.
func (e *Engine) AfterPull(fn func(context.Context)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.afterPull = append(e.afterPull, fn)
}

// PushToRemote runs a push pass.
func (e *Engine) PushToRemote(ctx context.Context) {
	e.pass(ctx, "push", func(ctx context.Context) error {
		_, err := e.push(ctx)
		return err
	})
}

// PullFromRemote runs a pull pass.
func (e *Engine) PullFromRemote(ctx context.Context) {
	e.pass(ctx, "pull", e.pull)
}

// FullSync runs push then pull as one pass.
func (e *Engine) FullSync(ctx context.Context) {
	e.pass(ctx, "full", func(ctx context.Context) error {
		pulled, err := e.push(ctx)
		if err != nil || pulled {
			return err
		}
		return e.pull(ctx)
	})
}

// MigrateLegacyStorage imports legacy topics into an empty local store and
// returns how many were imported. It is a no-op when the local store already
// has rows, when there is no legacy source, or when it is empty.
func (e *Engine) MigrateLegacyStorage(ctx context.Context) int {
	if e.legacy == nil {
		return 0
	}
	n, err := e.local.Count(ctx)
	if err != nil {
		e.fail("migrate", err)
		return 0
	}
	if n > 0 {
		return 0
	}
	topics, err := e.legacy.Load(ctx)
	if err != nil {
		e.fail("migrate", err)
		return 0
	}
	if len(topics) == 0 {
		return 0
	}
	if err := e.local.PutMany(ctx, topics); err != nil {
		e.fail("migrate", err)
		return 0
	}
	e.log.Info().Int("count", len(topics)).Msg("migrated legacy storage")
	return len(topics)
}

// ScheduleUpsert sends topics to the remote store in the background.
func (e *Engine) ScheduleUpsert(topics ...models.Topic) {
	if len(topics) == 0 {
		return
	}
	rows := models.TopicsToRemote(topics)
	e.background("upsert", func(ctx context.Context) error {
		return e.remote.UpsertTopics(ctx, rows)
	})
}

// ScheduleDelete removes topics from the remote store in the background.
func (e *Engine) ScheduleDelete(ids ...string) {
	if len(ids) == 0 {
		return
	}
	ids = append([]string(nil), ids...)
	e.background("delete", func(ctx context.Context) error {
		return e.remote.DeleteTopics(ctx, ids)
	})
}

// ScheduleFullSync starts a full pass in the background.
func (e *Engine) ScheduleFullSync() {
	e.spawn(func(ctx context.Context) { e.FullSync(ctx) })
}

// SchedulePull starts a pull pass in the background.
func (e *Engine) SchedulePull() {
	e.spawn(func(ctx context.Context) { e.PullFromRemote(ctx) })
}

// Wait blocks until every scheduled operation has finished.
func (e *Engine) Wait() { e.wg.Wait() }

// Run performs a full pass every interval until ctx is done.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.FullSync(context.WithoutCancel(ctx))
		}
	}
}

func (e *Engine) handleReachability(online bool) {
	e.update(func(s *Status) { s.IsOnline = online })
	e.log.Info().Bool("online", online).Msg("reachability changed")
	if online {
		e.spawn(func(ctx context.Context) { e.PushToRemote(ctx) })
	}
}

// pass runs fn under the in-progress flag. It returns without doing anything
// when offline or when another pass holds the flag.
func (e *Engine) pass(ctx context.Context, name string, fn func(context.Context) error) {
	if !e.net.Online() {
		e.log.Debug().Str("pass", name).Msg("offline, skipping")
		return
	}
	if !e.running.CompareAndSwap(false, true) {
		e.log.Debug().Str("pass", name).Msg("pass already in flight, dropping")
		return
	}
	defer e.running.Store(false)

	e.update(func(s *Status) { s.IsSyncing = true })
	started := e.now()
	err := fn(ctx)
	finished := e.now()
	e.update(func(s *Status) {
		s.IsSyncing = false
		if err != nil {
			s.Error = err.Error()
			return
		}
		s.Error = ""
		s.LastSync = &finished
	})

	if err != nil {
		e.log.Warn().Err(err).Str("pass", name).Msg("sync pass failed")
		return
	}
	e.log.Info().Str("pass", name).Dur("elapsed", finished.Sub(started)).Msg("sync pass finished")
}

// push returns pulled=true when it fell back to a pull.
func (e *Engine) push(ctx context.Context) (bool, error) {
	topics, err := e.local.GetAll(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read local topics: %w", err)
	}
	if len(topics) == 0 {
		return true, e.pull(ctx)
	}
	if err := e.remote.UpsertTopics(ctx, models.TopicsToRemote(topics)); err != nil {
		return false, fmt.Errorf("failed to push %d topics: %w", len(topics), err)
	}
	e.log.Debug().Int("count", len(topics)).Msg("pushed topics")
	return false, nil
}

func (e *Engine) pull(ctx context.Context) error {
	rows, err := e.remote.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch remote topics: %w", err)
	}
	incoming, err := models.TopicsToLocal(rows)
	if err != nil {
		return err
	}

	current, err := e.local.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local topics: %w", err)
	}
	localUpdated := make(map[string]int64, len(current))
	for _, t := range current {
		localUpdated[t.ID] = t.UpdatedAt
	}

	keep := incoming[:0]
	for _, t := range incoming {
		if u, ok := localUpdated[t.ID]; ok && u > t.UpdatedAt {
			continue
		}
		keep = append(keep, t)
	}
	if err := e.local.PutMany(ctx, keep); err != nil {
		return fmt.Errorf("failed to store pulled topics: %w", err)
	}
	e.log.Debug().Int("fetched", len(rows)).Int("stored", len(keep)).Msg("pulled topics")

	if len(keep) > 0 {
		e.mu.Lock()
		hooks := append([]func(context.Context){}, e.afterPull...)
		e.mu.Unlock()
		for _, fn := range hooks {
			fn(ctx)
		}
	}
	return nil
}

func (e *Engine) background(name string, fn func(context.Context) error) {
	if !e.net.Online() {
		return
	}
	e.spawn(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			e.fail(name, err)
		}
	})
}

func (e *Engine) spawn(fn func(context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn(context.Background())
	}()
}

func (e *Engine) fail(op string, err error) {
	if errors.Is(err, store.ErrNotAuthenticated) {
		e.log.Warn().Str("op", op).Msg("not authenticated")
	} else {
		e.log.Warn().Err(err).Str("op", op).Msg("sync operation failed")
	}
	e.update(func(s *Status) { s.Error = err.Error() })
}

func (e *Engine) update(fn func(*Status)) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	fn(&e.status)
	snapshot := copyStatus(e.status)
	subs := make([]func(Status), 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.Unlock()

	for _, s := range subs {
		s(snapshot)
	}
}

func copyStatus(s Status) Status {
	if s.LastSync != nil {
		t := *s.LastSync
		s.LastSync = &t
	}
	return s
}
