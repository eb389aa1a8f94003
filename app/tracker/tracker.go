// Package tracker submits fine-tuning jobs and follows their progress.
// Tracker owns the Store and the progress channel of the active job, handles terminal states with
// one-time notification, keeps the persisted session and optional history in sync.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/jacvision/tunetrack/app/finetune"
	"github.com/jacvision/tunetrack/app/progress"
)

//go:generate moq -out mocks/submitter.go -pkg mocks -skip-ensure -fmt goimports . Submitter
//go:generate moq -out mocks/opener.go -pkg mocks -skip-ensure -fmt goimports . ChannelOpener
//go:generate moq -out mocks/session.go -pkg mocks -skip-ensure -fmt goimports . Session
//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier
//go:generate moq -out mocks/recorder.go -pkg mocks -skip-ensure -fmt goimports . Recorder

// ErrNoSession returned by Resume if there is no persisted task
var ErrNoSession = errors.New("no active task in session")

// ErrClosed returned by operations on closed tracker
var ErrClosed = errors.New("tracker closed")

// Submitter sends fine-tuning request to the backend
type Submitter interface {
	Submit(ctx context.Context, req finetune.Request) (finetune.Submission, error)
}

// ChannelOpener makes progress channel for the task
type ChannelOpener interface {
	Open(ctx context.Context, taskID string) (progress.Channel, error)
}

// Session persists id of the active task between runs
type Session interface {
	Save(taskID string) error
	Load() (string, error)
	Clear() error
}

// Notifier interface defines notification delivery on terminal job states
type Notifier interface {
	Send(ctx context.Context, subj, text string) error
	IsOnError() bool
	IsOnCompletion() bool
	MakeErrorHTML(job finetune.Job, errMsg string) (string, error)
	MakeCompletionHTML(job finetune.Job) (string, error)
}

// Recorder keeps history of jobs and snapshots
type Recorder interface {
	SaveJob(job finetune.Job) error
	RecordSnapshot(taskID string, seq int, snap finetune.Snapshot) error
}

// Metrics counts tracker events
type Metrics interface {
	Submitted(kind string)
	Snapshot(status string)
	Finished(status string)
	ChannelError(mode string)
}

// Params for New. Submitter and Opener are required, the rest is optional.
type Params struct {
	Submitter     Submitter
	Opener        ChannelOpener
	Session       Session
	Notifier      Notifier
	Recorder      Recorder
	Metrics       Metrics
	MaxLog        int           // max snapshots kept in the log, 0 - unlimited
	NotifyTimeout time.Duration // timeout for notification delivery
	HostName      string        // used in notification subjects
}

// Tracker follows a single active job
type Tracker struct {
	Params
	store *Store

	ctx    context.Context
	cancel context.CancelFunc

	switchMu sync.Mutex // serializes detach and attach of the active job

	mu      sync.Mutex
	ch      progress.Channel
	done    chan struct{} // closed when consumer of the current channel exits
	lastErr error
	once    sync.Once
}

// New makes tracker with its own background context, call Close to stop it
func New(p Params) *Tracker {
	if p.NotifyTimeout <= 0 {
		p.NotifyTimeout = 30 * time.Second
	}
	res := &Tracker{Params: p, store: NewStore(p.MaxLog)}
	res.ctx, res.cancel = context.WithCancel(context.Background())
	return res
}

// Submit validates request, sends it to the backend and starts following the new job.
// Previous job subscription, if any, is dropped.
func (t *Tracker) Submit(ctx context.Context, req finetune.Request) (finetune.Job, error) {
	job := finetune.Job{Model: req.Model, Dataset: req.Dataset, AppName: req.AppName}
	if err := req.Validate(); err != nil {
		log.Printf("[WARN] rejected submission: %v", err)
		t.notifyError(ctx, job, err.Error())
		return job, err
	}

	if t.ctx.Err() != nil {
		return job, ErrClosed
	}
	sub, err := t.Submitter.Submit(ctx, req)
	if err != nil {
		log.Printf("[WARN] submission of %s on %s failed: %v", req.Model, req.Dataset, err)
		t.notifyError(ctx, job, err.Error())
		return job, fmt.Errorf("failed to submit: %w", err)
	}

	t.switchMu.Lock()
	defer t.switchMu.Unlock()
	t.detach()
	job.TaskID = sub.TaskID
	job.Status = sub.Status
	if job.Status == "" || job.Status == finetune.StatusPending {
		job.Status = finetune.StatusStarted
	}
	job.CreatedAt = time.Now()
	t.store.Reset(job)
	if t.Metrics != nil {
		kind := "finetune"
		if req.Hyper != nil {
			kind = "adaptive"
		}
		t.Metrics.Submitted(kind)
	}
	if t.Session != nil {
		if err := t.Session.Save(job.TaskID); err != nil {
			log.Printf("[WARN] can't save session for task %s: %v", job.TaskID, err)
		}
	}
	t.saveJob(job)
	log.Printf("[INFO] job %s submitted, model %s, dataset %s", job.TaskID, job.Model, job.Dataset)

	if err := t.attach(job.TaskID); err != nil {
		t.notifyError(ctx, job, err.Error())
		return job, err
	}
	return job, nil
}

// Resume follows the task stored in session, returns task id
func (t *Tracker) Resume() (string, error) {
	if t.ctx.Err() != nil {
		return "", ErrClosed
	}
	if t.Session == nil {
		return "", ErrNoSession
	}
	taskID, err := t.Session.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load session: %w", err)
	}
	if taskID == "" {
		return "", ErrNoSession
	}
	log.Printf("[INFO] resume task %s", taskID)
	t.switchMu.Lock()
	defer t.switchMu.Unlock()
	t.detach()
	t.store.Resume(taskID)
	t.saveJob(t.store.State().Job)
	return taskID, t.attach(taskID)
}

// Watch follows already submitted task and makes it the active one
func (t *Tracker) Watch(taskID string) error {
	if taskID == "" {
		return &finetune.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	if t.ctx.Err() != nil {
		return ErrClosed
	}
	t.switchMu.Lock()
	defer t.switchMu.Unlock()
	t.detach()
	t.store.Resume(taskID)
	if t.Session != nil {
		if err := t.Session.Save(taskID); err != nil {
			log.Printf("[WARN] can't save session for task %s: %v", taskID, err)
		}
	}
	t.saveJob(t.store.State().Job)
	return t.attach(taskID)
}

// State returns current state of the active job
func (t *Tracker) State() State { return t.store.State() }

// Subscribe to state changes, see Store.Subscribe
func (t *Tracker) Subscribe() (<-chan State, func()) { return t.store.Subscribe() }

// Wait blocks till the active job channel is done, returns final state and channel error, if any
func (t *Tracker) Wait(ctx context.Context) (State, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return t.store.State(), nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return t.store.State(), ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.State(), t.lastErr
}

// Close stops following the active job, safe to call multiple times
func (t *Tracker) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.switchMu.Lock()
		defer t.switchMu.Unlock()
		t.detach()
	})
	return nil
}

func (t *Tracker) attach(taskID string) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}
	ch, err := t.Opener.Open(t.ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to open progress channel for %s: %w", taskID, err)
	}
	done := make(chan struct{})
	t.mu.Lock()
	t.ch, t.done, t.lastErr = ch, done, nil
	t.mu.Unlock()
	go t.consume(ch, taskID, done)
	return nil
}

// detach closes current channel and waits for its consumer
func (t *Tracker) detach() {
	t.mu.Lock()
	ch, done := t.ch, t.done
	t.ch = nil
	t.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		log.Printf("[WARN] can't close progress channel: %v", err)
	}
	<-done
}

// consume applies snapshots to the store till terminal status or channel failure
func (t *Tracker) consume(ch progress.Channel, taskID string, done chan struct{}) {
	defer close(done)
	for snap := range ch.Snapshots() {
		if !t.store.OnSnapshot(snap) {
			log.Printf("[DEBUG] snapshot %+v rejected for task %s", snap, taskID)
			continue
		}
		st := t.store.State()
		log.Printf("[DEBUG] task %s, status %s, progress %.1f%%, epoch %q, loss %q",
			taskID, snap.Status, snap.Progress, snap.Epoch, snap.Loss)
		if t.Metrics != nil {
			t.Metrics.Snapshot(snap.Status)
		}
		if t.Recorder != nil {
			if err := t.Recorder.RecordSnapshot(taskID, st.Delivered, snap); err != nil {
				log.Printf("[WARN] can't record snapshot for task %s: %v", taskID, err)
			}
		}
		if st.Status.IsTerminal() {
			if err := ch.Close(); err != nil {
				log.Printf("[WARN] can't close progress channel: %v", err)
			}
			t.finish(st.Job)
			return
		}
	}

	err := ch.Err()
	if err == nil || t.ctx.Err() != nil {
		return
	}
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
	log.Printf("[WARN] progress of task %s lost: %v", taskID, err)
	if t.Metrics != nil {
		var aerr *finetune.AdapterError
		mode := "unknown"
		if errors.As(err, &aerr) {
			mode = aerr.Mode
		}
		t.Metrics.ChannelError(mode)
	}
	job := t.store.State().Job
	t.saveJob(job)
	t.notifyError(t.ctx, job, err.Error())
}

// finish handles terminal status, called once per job
func (t *Tracker) finish(job finetune.Job) {
	if job.Status == finetune.StatusCompleted {
		log.Printf("[INFO] job %s completed, model %s, dataset %s", job.TaskID, job.Model, job.Dataset)
	} else {
		log.Printf("[WARN] job %s failed, model %s, dataset %s: %s", job.TaskID, job.Model, job.Dataset, job.Error)
	}
	if t.Metrics != nil {
		t.Metrics.Finished(string(job.Status))
	}
	if t.Session != nil {
		if err := t.Session.Clear(); err != nil {
			log.Printf("[WARN] can't clear session: %v", err)
		}
	}
	t.saveJob(job)

	if job.Status == finetune.StatusCompleted {
		t.notifyCompletion(t.ctx, job)
		return
	}
	errMsg := job.Error
	if errMsg == "" {
		errMsg = "fine-tuning failed"
	}
	t.notifyError(t.ctx, job, errMsg)
}

func (t *Tracker) saveJob(job finetune.Job) {
	if t.Recorder == nil {
		return
	}
	if err := t.Recorder.SaveJob(job); err != nil {
		log.Printf("[WARN] can't save job %s: %v", job.TaskID, err)
	}
}

func (t *Tracker) hasNotifier() bool {
	return t.Notifier != nil && !reflect.ValueOf(t.Notifier).IsNil()
}

func (t *Tracker) notifyError(ctx context.Context, job finetune.Job, errMsg string) {
	if !t.hasNotifier() || !t.Notifier.IsOnError() {
		return
	}
	msg, err := t.Notifier.MakeErrorHTML(job, errMsg)
	if err != nil {
		log.Printf("[WARN] can't make error notification: %v", err)
		return
	}
	subj := fmt.Sprintf("fine-tuning failed %s on %s", t.jobName(job), t.HostName)
	t.send(ctx, subj, msg)
}

func (t *Tracker) notifyCompletion(ctx context.Context, job finetune.Job) {
	if !t.hasNotifier() || !t.Notifier.IsOnCompletion() {
		return
	}
	msg, err := t.Notifier.MakeCompletionHTML(job)
	if err != nil {
		log.Printf("[WARN] can't make completion notification: %v", err)
		return
	}
	subj := fmt.Sprintf("fine-tuning completed %s on %s", t.jobName(job), t.HostName)
	t.send(ctx, subj, msg)
}

func (t *Tracker) send(ctx context.Context, subj, msg string) {
	ctxTimeout, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.NotifyTimeout)
	defer cancel()
	if err := t.Notifier.Send(ctxTimeout, subj, msg); err != nil {
		log.Printf("[WARN] failed to send notification %q: %v", subj, err)
	}
}

func (t *Tracker) jobName(job finetune.Job) string {
	if job.TaskID == "" {
		return fmt.Sprintf("%q", job.Model)
	}
	return fmt.Sprintf("%q (%s)", job.Model, job.TaskID)
}
