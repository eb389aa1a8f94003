package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacvision/tunetrack/app/finetune"
)

func TestClient_Submit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/finetune/start-finetuning", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llava-7b", req["model_name"])
		assert.Equal(t, "coco-captions", req["dataset_path"])
		assert.Equal(t, "vision", req["app_name"])
		_, hasBatch := req["batch_size"]
		assert.False(t, hasBatch)

		_, _ = w.Write([]byte(`{"task_id":"abc123","status":"STARTED"}`))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL + "/api/finetune/", AppName: "vision"})
	res, err := c.Submit(context.Background(), finetune.Request{Model: "llava-7b", Dataset: "coco-captions"})
	require.NoError(t, err)
	assert.Equal(t, finetune.Submission{TaskID: "abc123", Status: finetune.StatusStarted}, res)
}

func TestClient_SubmitAdaptive(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/start-adapt-finetune", r.URL.Path)
		var req submitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, submitRequest{ModelName: "qwen", DatasetPath: "cars", AppName: "custom",
			BatchSize: 8, LearningRate: 3e-4, Epochs: 8}, req)
		_, _ = w.Write([]byte(`{"task_id":"t2"}`))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL, AppName: "vision"})
	res, err := c.Submit(context.Background(), finetune.Request{Model: "qwen", Dataset: "cars", AppName: "custom",
		Hyper: &finetune.Hyper{BatchSize: 8, LearningRate: 3e-4, Epochs: 8}})
	require.NoError(t, err)
	assert.Equal(t, "t2", res.TaskID)
	assert.Equal(t, finetune.StatusStarted, res.Status, "missing status defaults to STARTED")
}

func TestClient_SubmitValidationNoNetwork(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	for _, req := range []finetune.Request{{Model: "", Dataset: "coco"}, {Model: "llava", Dataset: ""}, {}} {
		_, err := c.Submit(context.Background(), req)
		var verr *finetune.ValidationError
		require.ErrorAs(t, err, &verr)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_SubmitRemoteError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Invalid model name"}`))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	_, err := c.Submit(context.Background(), finetune.Request{Model: "bad", Dataset: "coco"})
	var rerr *finetune.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusBadRequest, rerr.StatusCode)
	assert.Equal(t, "Invalid model name", rerr.Message)
	assert.Equal(t, "submit", rerr.Op)
}

func TestClient_SubmitTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := New(Params{BaseURL: url, Timeout: time.Second})
	_, err := c.Submit(context.Background(), finetune.Request{Model: "llava", Dataset: "coco"})
	var rerr *finetune.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, rerr.StatusCode)
	assert.NotEmpty(t, rerr.Message)
}

func TestClient_SubmitEmptyTaskID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"STARTED"}`))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	_, err := c.Submit(context.Background(), finetune.Request{Model: "llava", Dataset: "coco"})
	var rerr *finetune.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "empty task id")
}

func TestClient_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/abc123":
			_, _ = w.Write([]byte(`{"status":"RUNNING","progress":45,"current_epoch":2,
				"epoch_metrics":{"epoch":3,"loss":0.4213},"metrics":{}}`))
		case "/status/plain":
			_, _ = w.Write([]byte(`{"status":"RUNNING","progress":12.5,"current_epoch":1,"epoch_metrics":null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Task not found"}`))
		}
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	snap, err := c.Status(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", snap.Status)
	assert.InDelta(t, 45, snap.Progress, 0.001)
	assert.Equal(t, "3", snap.Epoch)
	assert.Equal(t, "0.4213", snap.Loss)
	assert.False(t, snap.ReceivedAt.IsZero())

	snap, err = c.Status(context.Background(), "plain")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, snap.Progress, 0.001)
	assert.Equal(t, "1", snap.Epoch)
	assert.Empty(t, snap.Loss)

	_, err = c.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Task not found")

	_, err = c.Status(context.Background(), "")
	var verr *finetune.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClient_Stream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream-status/abc123" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"status_update\",\"data\":{\"status\":\"COMPLETED\",\"progress\":100}}\n\n"))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	body, err := c.Stream(context.Background(), "abc123")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Contains(t, string(data), `"status":"COMPLETED"`)

	_, err = c.Stream(context.Background(), "other")
	assert.True(t, IsNotFound(err))
}

func TestClient_Catalog(t *testing.T) {
	var modelCalls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			if atomic.AddInt32(&modelCalls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"models":["unsloth/Qwen2-VL-2B-Instruct-bnb-4bit","unsloth/Pixtral-12B-2409"]}`))
		case "/datasets":
			_, _ = w.Write([]byte(`{"datasets":["cars","coco-captions"]}`))
		}
	}))
	defer ts.Close()

	rptr := repeater.New(&strategy.FixedDelay{Repeats: 3, Delay: time.Millisecond})
	c := New(Params{BaseURL: ts.URL, Repeater: rptr})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"unsloth/Qwen2-VL-2B-Instruct-bnb-4bit", "unsloth/Pixtral-12B-2409"}, models)
	assert.Equal(t, int32(2), atomic.LoadInt32(&modelCalls), "first failed call repeated")

	datasets, err := c.Datasets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cars", "coco-captions"}, datasets)
}

func TestClient_Metrics(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodGet, r.Method)
		switch r.URL.Path {
		case "/get-metrics/abc123":
			_, _ = w.Write([]byte(`{"status":"COMPLETED","metrics":{"train_loss":0.31},
				"log_history":[{"step":10,"loss":0.9},{"step":20,"loss":0.5,"grad_norm":1.2}]}`))
		case "/get-metrics/nope":
			_, _ = w.Write([]byte(`{"error":"Invalid task ID"}`))
		}
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL})
	res, err := c.Metrics(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Status)
	assert.InDelta(t, 0.31, res.Metrics["train_loss"], 0.001)
	require.Len(t, res.LogHistory, 2)
	assert.InDelta(t, 20.0, res.LogHistory[1]["step"], 0.001)
	assert.InDelta(t, 1.2, res.LogHistory[1]["grad_norm"], 0.001)

	_, err = c.Metrics(context.Background(), "nope")
	var rerr *finetune.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, rerr.Error(), "Invalid task ID")

	_, err = c.Metrics(context.Background(), " ")
	var verr *finetune.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "no request for empty task id")
}

func TestClient_AdaptiveConfig(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.EscapedPath() == "/adaptive-config/unsloth%2FQwen2-VL-7B-Instruct-bnb-4bit" {
			_, _ = w.Write([]byte(`{"model":"unsloth/Qwen2-VL-7B-Instruct-bnb-4bit","batch_size":8,"learning_rate":0.0003,"epochs":8}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Model not found in adaptive configurations"}`))
	}))
	defer ts.Close()

	rptr := repeater.New(&strategy.FixedDelay{Repeats: 3, Delay: time.Millisecond})
	c := New(Params{BaseURL: ts.URL, Repeater: rptr})
	res, err := c.AdaptiveConfig(context.Background(), "unsloth/Qwen2-VL-7B-Instruct-bnb-4bit")
	require.NoError(t, err)
	assert.Equal(t, finetune.Hyper{BatchSize: 8, LearningRate: 3e-4, Epochs: 8}, res)

	_, err = c.AdaptiveConfig(context.Background(), "llava-7b")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "unknown model not repeated")

	_, err = c.AdaptiveConfig(context.Background(), "")
	var verr *finetune.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClient_Save(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "vision", req["app_name"])
		switch r.URL.Path {
		case "/save-model":
			assert.Equal(t, "user", req["hf_username"])
			_, _ = w.Write([]byte(`{"message":"saved","repo":"user/vision"}`))
		case "/save-gguf":
			assert.Equal(t, "q4_k_m", req["quant_method"])
			_, _ = w.Write([]byte(`{"path":"gguf_models/abc123"}`))
		}
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL, AppName: "vision"})
	res, err := c.SaveModel(context.Background(), SaveModelRequest{TaskID: "abc123", HFUsername: "user", HFToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "saved", res["message"])

	res, err = c.SaveGGUF(context.Background(), SaveGGUFRequest{TaskID: "abc123", QuantMethod: "q4_k_m"})
	require.NoError(t, err)
	assert.Equal(t, "gguf_models/abc123", res["path"])

	_, err = c.SaveModel(context.Background(), SaveModelRequest{TaskID: "abc123"})
	var verr *finetune.ValidationError
	assert.ErrorAs(t, err, &verr)
	_, err = c.SaveGGUF(context.Background(), SaveGGUFRequest{})
	assert.ErrorAs(t, err, &verr)
}

func TestClient_RateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datasets":[]}`))
	}))
	defer ts.Close()

	c := New(Params{BaseURL: ts.URL, RPS: 10, Burst: 1})
	st := time.Now()
	for range 3 {
		_, err := c.Datasets(context.Background())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(st), 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Datasets(ctx)
	assert.Error(t, err)
}

func Test_errorMessage(t *testing.T) {
	tests := []struct{ name, body, want string }{
		{"detail string", `{"detail":"Task not found"}`, "Task not found"},
		{"detail list", `{"detail":[{"loc":["body","model_name"],"msg":"field required"}]}`,
			`[{"loc":["body","model_name"],"msg":"field required"}]`},
		{"error field", `{"error":"boom"}`, "boom"},
		{"plain text", "Internal Server Error", "Internal Server Error"},
		{"empty", "", "empty response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
		})
	}
}
