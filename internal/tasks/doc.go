// Package tasks tracks long-running transcription jobs and reconciles their results.
//
// # Trackers
//
// Two kinds of trackers poll the gateway independently:
//
//  1. [TaskTracker] : one ticking loop (default 5s) for every single-file task
//     - Each tick launches one poll goroutine per non-terminal task
//     - At most one request per task is in flight, so responses apply in order
//     - SUCCESS and FAILURE invoke the completion callback exactly once
//     - Transport errors are recorded on the task and retried next tick
//
//  2. [BatchPoller] : one loop (default 3s) per batch, owned by a [BatchTracker]
//     - Fetches immediately on start and on resume
//     - Pause, resume and manual refresh never run two fetches at once
//     - COMPLETED triggers a single summary fetch; FAILED stops without one
//
// # Coordinator
//
// [Coordinator] owns the canonical state: active tasks, completed results, active batches and
// completed batch summaries (newest first). Trackers report through callbacks carrying value
// snapshots; removal from active is idempotent and a completed id is never re-added.
// Observers receive [Update] events through [Coordinator.Subscribe]; slow subscribers drop events
// instead of blocking.
//
// # Notifications
//
// User-visible messages go through [NotificationCenter] and expire after a TTL (default 5s).
//
// # Blocking Helpers
//
// [WaitForTask] and [WaitForBatch] poll with a fixed interval up to a maximum wait and are used by
// the CLI's --wait flags. [DownloadArtifacts] fetches subtitle files with a rate-limited worker pool
// and writes a manifest through the formatter package.
//
// # Progress Reporting
//
// Blocking helpers report [ProgressUpdate] values on an optional channel. Sends use select with
// default so reporting never blocks execution.
package tasks
