// Package reachability abstracts "is the backend reachable right now".
//
// The sync engine consumes a [Notifier] instead of binding to any particular
// connectivity signal. [Static] is set by hand (tests, forced offline mode);
// [github.com/topicnote/topicnote/pkg/notify.Watcher] reports the state of its
// websocket connection to the server.
package reachability

import "sync"

// Notifier reports the current reachability and publishes changes.
type Notifier interface {
	// Online returns the current value.
	Online() bool

	// Subscribe registers fn for every change of the value. fn runs on its own
	// goroutine and must not block for long. The returned function removes the
	// subscription.
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Broadcaster holds a reachability value and its subscribers. It is meant to
// be embedded by Notifier implementations.
type Broadcaster struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(bool)
}

// Online returns the current value.
func (b *Broadcaster) Online() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

// Subscribe registers fn.
func (b *Broadcaster) Subscribe(fn func(online bool)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]func(bool))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Set updates the value and notifies subscribers when it changed. It reports
// whether it did.
func (b *Broadcaster) Set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	subs := make([]func(bool), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		go fn(online)
	}
	return true
}

// Static is a Notifier whose value is set explicitly.
type Static struct {
	Broadcaster
}

var _ Notifier = (*Static)(nil)

// NewStatic returns a Static notifier starting at online.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online = online
	return s
}
