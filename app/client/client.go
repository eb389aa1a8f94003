// Package client implements HTTP client for the fine-tuning backend.
// Submission calls are never retried, read-only catalog calls go through optional Repeater.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jacvision/tunetrack/app/finetune"
)

const (
	// DefaultTimeout for non-streaming requests
	DefaultTimeout = 30 * time.Second
	maxBodySize    = 1024 * 1024
)

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Client talks to the fine-tuning backend
type Client struct {
	baseURL      string
	appName      string
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
	repeater     Repeater
}

// Params for New
type Params struct {
	BaseURL  string        // backend base url including router prefix, e.g. http://localhost:8000/api/finetune
	AppName  string        // default app name for submissions
	Timeout  time.Duration // timeout for non-streaming requests
	RPS      float64       // client side rate limit, 0 - unlimited
	Burst    int
	Repeater Repeater // repeater for catalog calls, nil - single attempt
}

// New makes backend client
func New(p Params) *Client {
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	res := &Client{
		baseURL:      strings.TrimSuffix(p.BaseURL, "/"),
		appName:      p.AppName,
		httpClient:   &http.Client{Timeout: p.Timeout},
		streamClient: &http.Client{}, // no timeout, event stream stays open until the job is done
		repeater:     p.Repeater,
	}
	if p.RPS > 0 {
		burst := p.Burst
		if burst <= 0 {
			burst = 1
		}
		res.limiter = rate.NewLimiter(rate.Limit(p.RPS), burst)
	}
	return res
}

// submitRequest is the body of start-finetuning and start-adapt-finetune
type submitRequest struct {
	ModelName    string  `json:"model_name"`
	DatasetPath  string  `json:"dataset_path"`
	AppName      string  `json:"app_name"`
	BatchSize    int     `json:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Epochs       int     `json:"epochs,omitempty"`
}

// Submit starts fine-tuning. Adaptive endpoint used if req.Hyper set.
// Invalid request returns *finetune.ValidationError without any network call.
func (c *Client) Submit(ctx context.Context, req finetune.Request) (finetune.Submission, error) {
	if err := req.Validate(); err != nil {
		return finetune.Submission{}, err
	}
	body := submitRequest{ModelName: strings.TrimSpace(req.Model), DatasetPath: strings.TrimSpace(req.Dataset),
		AppName: req.AppName}
	if body.AppName == "" {
		body.AppName = c.appName
	}
	op, path := "submit", "/start-finetuning"
	if req.Hyper != nil {
		op, path = "adaptive submit", "/start-adapt-finetune"
		body.BatchSize, body.LearningRate, body.Epochs = req.Hyper.BatchSize, req.Hyper.LearningRate, req.Hyper.Epochs
	}

	var res finetune.Submission
	if err := c.doJSON(ctx, op, http.MethodPost, path, body, &res); err != nil {
		return finetune.Submission{}, err
	}
	if res.TaskID == "" {
		return finetune.Submission{}, &finetune.RemoteError{Op: op, Message: "empty task id in response"}
	}
	if res.Status == "" {
		res.Status = finetune.StatusStarted
	}
	log.Printf("[INFO] submitted %s on %s, task %s, status %s", body.ModelName, body.DatasetPath, res.TaskID, res.Status)
	return res, nil
}

// statusResponse is the body of /status/{task_id}
type statusResponse struct {
	Status       string          `json:"status"`
	Progress     float64         `json:"progress"`
	CurrentEpoch finetune.Metric `json:"current_epoch"`
	EpochMetrics *struct {
		Epoch finetune.Metric `json:"epoch"`
		Loss  finetune.Metric `json:"loss"`
	} `json:"epoch_metrics"`
	Loss  finetune.Metric `json:"loss"`
	Error string          `json:"error"`
}

// Status gets a single snapshot for the task
func (c *Client) Status(ctx context.Context, taskID string) (finetune.Snapshot, error) {
	if strings.TrimSpace(taskID) == "" {
		return finetune.Snapshot{}, &finetune.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	var resp statusResponse
	if err := c.doJSON(ctx, "status", http.MethodGet, "/status/"+url.PathEscape(taskID), nil, &resp); err != nil {
		return finetune.Snapshot{}, err
	}
	res := finetune.Snapshot{
		Type:       "status_update",
		Status:     resp.Status,
		Progress:   resp.Progress,
		Epoch:      string(resp.CurrentEpoch),
		Loss:       string(resp.Loss),
		Error:      resp.Error,
		ReceivedAt: time.Now(),
	}
	if resp.EpochMetrics != nil {
		if resp.EpochMetrics.Epoch != "" {
			res.Epoch = string(resp.EpochMetrics.Epoch)
		}
		if resp.EpochMetrics.Loss != "" {
			res.Loss = string(resp.EpochMetrics.Loss)
		}
	}
	return res, nil
}

// Stream opens event stream for the task. Caller must close returned body.
func (c *Client) Stream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream-status/"+url.PathEscape(taskID), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, &finetune.RemoteError{Op: "stream", Message: err.Error(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() // nolint
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return nil, &finetune.RemoteError{Op: "stream", StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp.Body, nil
}

// Models lists fine-tunable models
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	if err := c.catalog(ctx, "models", "/models", &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// Datasets lists captioned datasets available for fine-tuning
func (c *Client) Datasets(ctx context.Context) ([]string, error) {
	var resp struct {
		Datasets []string `json:"datasets"`
	}
	if err := c.catalog(ctx, "datasets", "/datasets", &resp); err != nil {
		return nil, err
	}
	return resp.Datasets, nil
}

// TrainingMetrics is the trainer state of the task, log history entries are trainer log records
// keyed by metric name, e.g. step, loss, learning_rate, grad_norm
type TrainingMetrics struct {
	Status     string           `json:"status"`
	Metrics    map[string]any   `json:"metrics"`
	LogHistory []map[string]any `json:"log_history"`
}

// Metrics returns trainer metrics and log history of the task
func (c *Client) Metrics(ctx context.Context, taskID string) (TrainingMetrics, error) {
	if strings.TrimSpace(taskID) == "" {
		return TrainingMetrics{}, &finetune.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	var resp struct {
		TrainingMetrics
		Error string `json:"error"`
	}
	if err := c.catalog(ctx, "metrics", "/get-metrics/"+url.PathEscape(taskID), &resp); err != nil {
		return TrainingMetrics{}, err
	}
	// unknown task reported with 200 and error field
	if resp.Error != "" {
		return TrainingMetrics{}, &finetune.RemoteError{Op: "metrics", StatusCode: http.StatusNotFound, Message: resp.Error}
	}
	return resp.TrainingMetrics, nil
}

// AdaptiveConfig returns backend defaults of adaptive fine-tuning for the model.
// Not retried, unknown model is a regular 404.
func (c *Client) AdaptiveConfig(ctx context.Context, model string) (finetune.Hyper, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return finetune.Hyper{}, &finetune.ValidationError{Field: "model", Message: "model is required"}
	}
	var res finetune.Hyper
	if err := c.doJSON(ctx, "adaptive config", http.MethodGet, "/adaptive-config/"+url.PathEscape(model), nil, &res); err != nil {
		return finetune.Hyper{}, err
	}
	return res, nil
}

// SaveModelRequest pushes a completed model to hugging face hub
type SaveModelRequest struct {
	TaskID     string `json:"task_id"`
	AppName    string `json:"app_name"`
	HFUsername string `json:"hf_username"`
	HFToken    string `json:"hf_token"`
}

// SaveGGUFRequest exports a completed model in gguf format
type SaveGGUFRequest struct {
	TaskID      string `json:"task_id"`
	AppName     string `json:"app_name"`
	QuantMethod string `json:"quant_method,omitempty"`
	OutputDir   string `json:"output_dir,omitempty"`
}

// SaveModel asks backend to upload the fine-tuned model
func (c *Client) SaveModel(ctx context.Context, req SaveModelRequest) (map[string]any, error) {
	if req.TaskID == "" || req.HFUsername == "" || req.HFToken == "" {
		return nil, &finetune.ValidationError{Field: "save", Message: "task id, hf username and hf token are required"}
	}
	if req.AppName == "" {
		req.AppName = c.appName
	}
	res := map[string]any{}
	if err := c.doJSON(ctx, "save model", http.MethodPost, "/save-model", req, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// SaveGGUF asks backend to export the fine-tuned model as gguf
func (c *Client) SaveGGUF(ctx context.Context, req SaveGGUFRequest) (map[string]any, error) {
	if req.TaskID == "" {
		return nil, &finetune.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	if req.AppName == "" {
		req.AppName = c.appName
	}
	res := map[string]any{}
	if err := c.doJSON(ctx, "save gguf", http.MethodPost, "/save-gguf", req, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// catalog makes read-only request through repeater
func (c *Client) catalog(ctx context.Context, op, path string, res any) error {
	if c.repeater == nil {
		return c.doJSON(ctx, op, http.MethodGet, path, nil, res)
	}
	return c.repeater.Do(ctx, func() error {
		return c.doJSON(ctx, op, http.MethodGet, path, nil, res)
	})
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, body, res any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	reqBody := io.Reader(http.NoBody)
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	log.Printf("[DEBUG] %s %s, request id %s", method, req.URL.String(), reqID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &finetune.RemoteError{Op: op, Message: err.Error(), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("[WARN] failed to close response body: %v", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &finetune.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &finetune.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(data, res); err != nil {
		return &finetune.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: "can't decode response", Err: err}
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// errorMessage extracts human-readable message from error body, {"detail": ...} is what the backend sends
func errorMessage(body []byte) string {
	var resp struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil {
		var detail string
		if len(resp.Detail) > 0 && json.Unmarshal(resp.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if len(resp.Detail) > 0 && !bytes.Equal(resp.Detail, []byte("null")) {
			return string(resp.Detail)
		}
		if resp.Error != "" {
			return resp.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	if len(msg) > 256 {
		msg = msg[:256] + "..."
	}
	return msg
}

// IsNotFound checks if err is a remote 404
func IsNotFound(err error) bool {
	var rerr *finetune.RemoteError
	return errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound
}
