// Package services defines the [Gateway] interface for the remote transcription service and implements it over HTTP.
//
// # Gateway
//
// The trackers and the coordinator depend only on [Gateway], so tests substitute hand-written fakes.
// [Client] is the production implementation. It is constructed once and injected; there is no
// package-level instance.
//
// # HTTP Contract
//
// All paths are relative to the base URL, which includes the "/api" base path:
//   - GET  /health                       : [models.HealthStatus]
//   - GET  /models/                      : [models.ModelsResponse]
//   - POST /upload/                      : multipart "file" + options, [models.UploadResponse]
//   - POST /batch-upload/                : multipart "files" (<= 50) + options, [models.BatchUploadResponse]
//   - GET  /status/{task_id}             : [models.TaskStatus]
//   - GET  /batch-status/{batch_id}      : [models.Batch]
//   - GET  /batch-result/{batch_id}      : [models.BatchResultSummary]
//   - GET  /results/{file_id}/{filename} : artifact bytes
//
// When the gateway sits behind an authenticating proxy, pass a client built by [shared.NewHTTPClient]
// with a token; requests then carry an OAuth2 bearer header.
//
// # Error Handling
//
// Every failure is an [*APIError] whose Kind is the operation's sentinel:
//   - [shared.ErrConnection] : health and models
//   - [shared.ErrUpload] : submissions, including client-side validation
//   - [shared.ErrStatusCheck] : task and batch status
//   - [shared.ErrResultFetch] : batch result summary
//   - [shared.ErrDownload] : artifact download
//
// Schema violations (unknown states, missing ids, SUCCESS without a result, counts that exceed
// the file total) additionally match [shared.ErrMalformedResponse]. Client-side rejections match
// [shared.ErrValidation] and never touch the network. The client never retries.
package services
