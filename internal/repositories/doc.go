// Package repositories implements SQLite persistence for the transcription result history.
//
// Each repository handles CRUD operations with atomic sequence generation for human-readable ordering.
// All repositories support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [TranscriptionRepository] : Completed single-file transcriptions with task and file lookups
//   - [BatchSummaryRepository] : Batch result summaries keyed by batch id
//   - [History] : Result store handed to the coordinator; saves are idempotent per task or batch id
//
// Sequence numbers provide stable, human-readable ordering (e.g., transcription #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
