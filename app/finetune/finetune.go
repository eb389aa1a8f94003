// Package finetune defines fine-tuning job types shared by the backend client, progress channels and tracker
package finetune

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status of a fine-tuning job
type Status string

// job statuses as reported by the backend
const (
	StatusPending   Status = "PENDING"
	StatusStarted   Status = "STARTED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// StatusError is the status of a synthetic snapshot made for a failed status request.
// It is logged but never changes the job status.
const StatusError = "Error"

// ParseStatus converts backend status string to Status, case-insensitive
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusStarted, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTerminal returns true for COMPLETED and FAILED
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) String() string { return string(s) }

// Job is a fine-tuning job known to the client
type Job struct {
	TaskID    string    `json:"task_id"`
	Model     string    `json:"model,omitempty"`
	Dataset   string    `json:"dataset,omitempty"`
	AppName   string    `json:"app_name,omitempty"`
	Status    Status    `json:"status"`
	Progress  float64   `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Snapshot is one progress update for a job. Never modified after it was received.
type Snapshot struct {
	Type       string    `json:"type,omitempty"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	Epoch      string    `json:"epoch,omitempty"`
	Loss       string    `json:"loss,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ErrorSnapshot makes a synthetic snapshot for a failed status request
func ErrorSnapshot(err error) Snapshot {
	s := Snapshot{Status: StatusError, ReceivedAt: time.Now()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// JobStatus returns parsed status of the snapshot, false for synthetic, empty or unknown status
func (s Snapshot) JobStatus() (Status, bool) {
	if s.Status == "" || s.Status == StatusError {
		return "", false
	}
	st, err := ParseStatus(s.Status)
	if err != nil {
		return "", false
	}
	return st, true
}

// IsTerminal returns true if snapshot reports COMPLETED or FAILED
func (s Snapshot) IsTerminal() bool {
	st, ok := s.JobStatus()
	return ok && st.IsTerminal()
}

// Submission is the backend response for a started job
type Submission struct {
	TaskID string `json:"task_id"`
	Status Status `json:"status"`
}

// Hyper keeps hyper-parameters for adaptive fine-tuning
type Hyper struct {
	BatchSize    int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" toml:"learning_rate"`
	Epochs       int     `json:"epochs" yaml:"epochs" toml:"epochs"`
}

// Fill sets zero fields from defaults
func (h *Hyper) Fill(defaults Hyper) {
	if h.BatchSize == 0 {
		h.BatchSize = defaults.BatchSize
	}
	if h.LearningRate == 0 {
		h.LearningRate = defaults.LearningRate
	}
	if h.Epochs == 0 {
		h.Epochs = defaults.Epochs
	}
}

// IsComplete returns true if all fields are set
func (h *Hyper) IsComplete() bool { return h.BatchSize != 0 && h.LearningRate != 0 && h.Epochs != 0 }

// Request describes a fine-tuning submission. Hyper is optional and switches to adaptive fine-tuning.
type Request struct {
	Model   string
	Dataset string
	AppName string
	Hyper   *Hyper
}

// Validate checks required fields, doesn't touch the network
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Message: "model is required"}
	}
	if strings.TrimSpace(r.Dataset) == "" {
		return &ValidationError{Field: "dataset", Message: "dataset is required"}
	}
	if r.Hyper != nil {
		switch {
		case r.Hyper.BatchSize <= 0:
			return &ValidationError{Field: "batch_size", Message: "batch size must be positive"}
		case r.Hyper.LearningRate <= 0:
			return &ValidationError{Field: "learning_rate", Message: "learning rate must be positive"}
		case r.Hyper.Epochs <= 0:
			return &ValidationError{Field: "epochs", Message: "epochs must be positive"}
		}
	}
	return nil
}

// Metric is a string form of a value the backend sends either as a number or as a string.
// JSON null decodes to empty string.
type Metric string

// UnmarshalJSON accepts strings, numbers and null
func (m *Metric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = Metric(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("metric is neither string nor number: %w", err)
	}
	if f, err := n.Float64(); err == nil {
		*m = Metric(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	*m = Metric(n.String())
	return nil
}
