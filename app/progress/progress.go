// Package progress delivers fine-tuning progress snapshots from the backend.
// Push (event stream) and pull (fixed interval polling) transports share the same Channel contract,
// failures follow explicit FailurePolicy instead of being transport specific.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jacvision/tunetrack/app/finetune"
)

// Mode of progress transport
type Mode string

// supported transports
const (
	ModePush Mode = "push"
	ModePull Mode = "pull"
)

// FailurePolicy defines channel reaction on transport failure
type FailurePolicy string

// supported policies
const (
	// PolicyStop terminates the channel with *finetune.AdapterError
	PolicyStop FailurePolicy = "stop"
	// PolicyContinue emits one synthetic "Error" snapshot and keeps going.
	// pull mode polls again on the next tick, push mode reconnects after Interval.
	PolicyContinue FailurePolicy = "continue"
)

// DefaultInterval between status requests in pull mode and between reconnects in push mode
const DefaultInterval = 3 * time.Second

// ParseMode converts string to Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePush, ModePull:
		return m, nil
	}
	return "", fmt.Errorf("unknown progress mode %q", s)
}

// ParsePolicy converts string to FailurePolicy, empty string returns empty policy (mode default)
func ParsePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyStop, PolicyContinue:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// DefaultPolicy returns observed behavior for the mode: push stops on error, pull keeps polling
func DefaultPolicy(m Mode) FailurePolicy {
	if m == ModePull {
		return PolicyContinue
	}
	return PolicyStop
}

// Channel is a cancellable sequence of snapshots for a single task.
// Snapshots channel is closed after terminal snapshot, failure or Close.
type Channel interface {
	Snapshots() <-chan finetune.Snapshot
	Err() error   // terminal error, valid after Snapshots channel closed. Nil after Close or terminal status.
	Close() error // idempotent, no snapshots delivered after it returns
}

// Streamer opens event stream for the task
type Streamer interface {
	Stream(ctx context.Context, taskID string) (io.ReadCloser, error)
}

// StatusGetter requests current task status
type StatusGetter interface {
	Status(ctx context.Context, taskID string) (finetune.Snapshot, error)
}

// Params of progress channels
type Params struct {
	Mode     Mode
	Policy   FailurePolicy // empty - DefaultPolicy(Mode)
	Interval time.Duration // empty - DefaultInterval
	Timeout  time.Duration // overall channel timeout, 0 - no timeout
}

// Opener makes channels with the configured transport
type Opener struct {
	Streamer     Streamer
	StatusGetter StatusGetter
	Params
}

// Open starts channel for the task. Returned channel runs until terminal status, failure,
// timeout, parent context cancellation or Close.
func (o *Opener) Open(ctx context.Context, taskID string) (Channel, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, &finetune.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	mode := o.Mode
	if mode == "" {
		mode = ModePush
	}
	policy := o.Policy
	if policy == "" {
		policy = DefaultPolicy(mode)
	}
	interval := o.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	switch mode {
	case ModePush:
		if o.Streamer == nil {
			return nil, errors.New("push mode requires streamer")
		}
		p := &pusher{streamer: o.Streamer, taskID: taskID, policy: policy, interval: interval}
		return start(ctx, o.Timeout, mode, taskID, p.run), nil
	case ModePull:
		if o.StatusGetter == nil {
			return nil, errors.New("pull mode requires status getter")
		}
		p := &puller{getter: o.StatusGetter, taskID: taskID, policy: policy, interval: interval}
		return start(ctx, o.Timeout, mode, taskID, p.run), nil
	}
	return nil, fmt.Errorf("unknown progress mode %q", mode)
}

// emitFn delivers snapshot to consumer, returns false if channel is closing
type emitFn func(s finetune.Snapshot) bool

// channel runs a single producer goroutine. Out channel is unbuffered, so every delivered snapshot
// was received before the producer exits and before Close returns.
type channel struct {
	mode   Mode
	taskID string
	out    chan finetune.Snapshot
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func start(ctx context.Context, timeout time.Duration, mode Mode, taskID string,
	producer func(ctx context.Context, emit emitFn) error) *channel {
	c := &channel{mode: mode, taskID: taskID, out: make(chan finetune.Snapshot), done: make(chan struct{})}
	if timeout > 0 {
		c.ctx, c.cancel = context.WithTimeout(ctx, timeout)
	} else {
		c.ctx, c.cancel = context.WithCancel(ctx)
	}

	emit := func(s finetune.Snapshot) bool {
		select {
		case <-c.ctx.Done():
			return false
		default:
		}
		select {
		case c.out <- s:
			return true
		case <-c.ctx.Done():
			return false
		}
	}

	go func() {
		defer close(c.done)
		defer close(c.out)
		err := producer(c.ctx, emit)
		c.finish(err)
	}()
	return c
}

func (c *channel) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || err == nil {
		return
	}
	var aerr *finetune.AdapterError
	if errors.As(err, &aerr) {
		c.err = err
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timeout waiting for terminal status: %w", err)
	}
	c.err = &finetune.AdapterError{Mode: string(c.mode), TaskID: c.taskID, Err: err}
}

// Snapshots returns receive-only channel of snapshots
func (c *channel) Snapshots() <-chan finetune.Snapshot { return c.out }

// Err returns terminal error of the channel
func (c *channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close stops producer and waits for it. Safe to call multiple times and from the consumer.
func (c *channel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	<-c.done
	return nil
}
