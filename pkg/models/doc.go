// Package models defines the entities shared by the topicnote client and server.
//
// The central entity is [Topic], a node in a user's hierarchical note tree.
// Topics form a forest through their nullable ParentID: a topic without a
// parent, or whose parent cannot be resolved, is a root.
//
// # Local and wire encodings
//
// Topics exist in two encodings:
//
//   - [Topic] is the local encoding used by the client and its embedded store.
//     Timestamps are Unix seconds and the Collapsed flag carries UI state that
//     never leaves the device.
//   - [RemoteTopic] is the wire encoding exchanged with the server. Timestamps
//     are RFC 3339 strings in UTC, the parent reference is named parent_id, and
//     there is no collapsed field.
//
// [Topic.ToRemote] and [RemoteTopic.ToLocal] convert between the two. For every
// Unix-seconds value T, [ParseTimestamp]([FormatTimestamp](T)) returns T.
//
// # Sharing
//
// [SharedTopic] records grant token-addressed read access to a topic.
// [ResolvedShare] is what a public token resolves to: the topic and, when the
// share includes subtopics, its direct children.
//
// # Templates
//
// [Template] describes the defaults copied into a topic created from it.
package models
