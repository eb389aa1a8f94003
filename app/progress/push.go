package progress

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/jacvision/tunetrack/app/finetune"
)

const maxEventSize = 1024 * 1024

// pusher reads event stream and converts each data message to snapshot
type pusher struct {
	streamer Streamer
	taskID   string
	policy   FailurePolicy
	interval time.Duration
}

// errTerminal signals terminal snapshot was delivered and the stream is done
var errTerminal = errors.New("terminal status")

func (p *pusher) run(ctx context.Context, emit emitFn) error {
	for {
		err := p.session(ctx, emit)
		if err == nil || errors.Is(err, errTerminal) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var aerr *finetune.AdapterError
		if p.policy == PolicyStop || errors.As(err, &aerr) {
			emit(finetune.ErrorSnapshot(err)) // failure stays in the log
			return err
		}

		log.Printf("[WARN] stream for task %s failed, reconnect in %v: %v", p.taskID, p.interval, err)
		if !emit(finetune.ErrorSnapshot(err)) {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.interval):
		}
	}
}

// session handles one stream connection, returns errTerminal after terminal snapshot
func (p *pusher) session(ctx context.Context, emit emitFn) error {
	body, err := p.streamer.Stream(ctx, p.taskID)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	defer body.Close() // nolint

	// close body on cancellation to unblock scanner
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var data []string
	dispatch := func() error {
		if len(data) == 0 {
			return nil
		}
		msg := strings.Join(data, "\n")
		data = data[:0]
		snap, err := parseEvent(msg)
		if err != nil {
			var aerr *finetune.AdapterError
			if errors.As(err, &aerr) {
				aerr.Mode, aerr.TaskID = string(ModePush), p.taskID
				return aerr
			}
			log.Printf("[WARN] skip unparsable event for task %s: %v", p.taskID, err)
			return nil
		}
		if !emit(snap) {
			return ctx.Err()
		}
		if snap.IsTerminal() {
			return errTerminal
		}
		return nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"): // comment, keep-alive
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	// last event may come without trailing blank line
	if err := dispatch(); err != nil {
		return err
	}
	return errors.New("stream closed before terminal status")
}

// eventPayload covers both status_update and epoch_update data
type eventPayload struct {
	Status       string          `json:"status"`
	Progress     finetune.Metric `json:"progress"`
	Epoch        finetune.Metric `json:"epoch"`
	CurrentEpoch finetune.Metric `json:"current_epoch"`
	Loss         finetune.Metric `json:"loss"`
	Error        string          `json:"error"`
	EpochMetrics *struct {
		Epoch finetune.Metric `json:"epoch"`
		Loss  finetune.Metric `json:"loss"`
	} `json:"epoch_metrics"`
}

// parseEvent converts one data message to snapshot. Accepts {type, data} envelope and bare object,
// {"error": "..."} without status returns *finetune.AdapterError.
func parseEvent(msg string) (finetune.Snapshot, error) {
	var env struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(msg), &env); err != nil {
		return finetune.Snapshot{}, fmt.Errorf("failed to decode event %q: %w", msg, err)
	}

	raw := []byte(msg)
	if len(env.Data) > 0 && string(env.Data) != "null" {
		raw = env.Data
	}
	var p eventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return finetune.Snapshot{}, fmt.Errorf("failed to decode event data %q: %w", string(raw), err)
	}
	if p.Status == "" && env.Error != "" {
		return finetune.Snapshot{}, &finetune.AdapterError{Err: errors.New(env.Error)}
	}

	res := finetune.Snapshot{
		Type:       env.Type,
		Status:     p.Status,
		Epoch:      string(p.Epoch),
		Loss:       string(p.Loss),
		Error:      p.Error,
		ReceivedAt: time.Now(),
	}
	if res.Epoch == "" {
		res.Epoch = string(p.CurrentEpoch)
	}
	if p.EpochMetrics != nil {
		if p.EpochMetrics.Epoch != "" {
			res.Epoch = string(p.EpochMetrics.Epoch)
		}
		if p.EpochMetrics.Loss != "" {
			res.Loss = string(p.EpochMetrics.Loss)
		}
	}
	if p.Progress != "" {
		v, err := strconv.ParseFloat(string(p.Progress), 64)
		if err != nil {
			return finetune.Snapshot{}, fmt.Errorf("invalid progress %q: %w", p.Progress, err)
		}
		res.Progress = v
	}
	return res, nil
}
