// Package syncer reconciles the client's local topic store with the remote
// store across an intermittent connection.
//
// # Passes
//
// An [Engine] runs three kinds of pass:
//
//   - push: every local topic is converted to wire encoding and sent in one
//     batched upsert. An empty local store pulls instead, which is how a fresh
//     device recovers its data.
//   - pull: every remote topic of the user is fetched, newest first, converted
//     to local encoding with Collapsed reset, and upserted locally. A remote row
//     older than the local copy of the same topic is skipped (last write wins).
//   - full: push then pull.
//
// # Mutual exclusion
//
// At most one pass is in flight. The in-progress flag is taken with a
// compare-and-swap before any network call and released when the pass ends,
// whatever its outcome. A pass requested while another runs returns at once:
// it is not queued and it is not an error.
//
// # Errors and status
//
// Pass failures never reach the caller. They are recorded in [Status].Error and
// published to subscribers, and LastSync only moves on a pass that succeeded.
// Nothing touches the network while the reachability notifier says offline.
// Regaining connectivity schedules a push.
//
// # Write-through
//
// The topic store calls [Engine.ScheduleUpsert] and [Engine.ScheduleDelete]
// after each durable local write. These run in the background, skip silently
// when offline, and record failures in the status like a pass would. Scheduled
// work is never cancelled; [Engine.Wait] blocks until it has finished.
package syncer
