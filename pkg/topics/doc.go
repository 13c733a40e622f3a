// Package topics is the client's in-memory view of the topic tree.
//
// A [Store] loads every topic from the local store once ([Store.Initialize]),
// serves reads from memory and writes through: each mutation is committed to the
// local store first, then applied in memory, then handed to the sync engine for
// an asynchronous remote write. A failed local write returns an error and leaves
// the in-memory state untouched.
//
// Reads never fail. Unknown ids read as absent and mutations of unknown ids are
// no-ops.
//
// The parent graph is kept acyclic: [Store.MoveTopic] rejects a move under the
// topic itself or one of its descendants with [ErrCycle]. Data arriving from
// elsewhere may still contain cycles, so every traversal carries a visited set.
package topics
