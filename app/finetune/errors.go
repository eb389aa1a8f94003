package finetune

import "fmt"

// ValidationError reported for missing or invalid input, made locally without any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RemoteError reported when the backend request failed. StatusCode is 0 for transport errors.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// AdapterError terminates a progress channel
type AdapterError struct {
	Mode   string
	TaskID string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s channel for task %s: %v", e.Mode, e.TaskID, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
