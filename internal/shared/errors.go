package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Gateway errors
	ErrConnection         = fmt.Errorf("connection error")
	ErrUpload             = fmt.Errorf("upload rejected")
	ErrStatusCheck        = fmt.Errorf("status check failed")
	ErrResultFetch        = fmt.Errorf("result fetch failed")
	ErrDownload           = fmt.Errorf("artifact download failed")
	ErrMalformedResponse  = fmt.Errorf("malformed response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Terminal job outcomes
	ErrTaskFailure  = fmt.Errorf("task failed")
	ErrBatchFailure = fmt.Errorf("batch failed")
	ErrTimeout      = fmt.Errorf("operation timed out")

	// Input validation errors
	ErrValidation      = fmt.Errorf("validation failed")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrNotFound        = fmt.Errorf("not found")
)
