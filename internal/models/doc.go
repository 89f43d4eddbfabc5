// Package models defines the domain records shared by the a2s transcription client.
//
// The package contains three categories of types:
//
// 1. Wire records: responses of the transcription gateway
//   - [HealthStatus], [ModelsResponse] : service readiness and model catalogue
//   - [UploadResponse], [BatchUploadResponse] : submission receipts
//   - [TaskStatus] : raw task status as returned by the status endpoint
//   - [Batch], [BatchResultSummary] : aggregated batch snapshots and final summaries
//
// 2. Tracked entities: client-side state owned by the coordinator
//   - [Task] : one submitted transcription job
//   - [TaskResult] : artifacts and full text of a successful job
//   - [Notification] : a short-lived user-visible message
//
// 3. Closed enums with exhaustive parsing
//   - [TaskState] : PENDING, PROGRESS, SUCCESS, FAILURE
//   - [BatchState] : PENDING, PROCESSING, COMPLETED, FAILED
//
// Persistent history records implement the [Model] interface so that repositories can share
// ID generation, timestamps and validation.
package models
