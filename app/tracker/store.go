package tracker

import (
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/jacvision/tunetrack/app/finetune"
)

// State is a copy of the store content
type State struct {
	finetune.Job
	Log       []finetune.Snapshot `json:"log"`
	Delivered int                 `json:"delivered"` // accepted snapshots since last reset, including evicted ones
	Active    bool                `json:"active"`
}

// Store keeps the current job and the log of its snapshots.
// Only one job is active at a time, Reset replaces it.
type Store struct {
	maxLog int

	mu        sync.RWMutex
	job       finetune.Job
	active    bool
	snapshots []finetune.Snapshot
	head      int // index of the oldest entry when the log is full
	delivered int
	subs      map[int]chan State
	lastSubID int
}

// NewStore makes store, maxLog limits number of kept snapshots, 0 - unlimited
func NewStore(maxLog int) *Store {
	if maxLog < 0 {
		maxLog = 0
	}
	return &Store{maxLog: maxLog, subs: map[int]chan State{}}
}

// Reset makes job the active one and clears the log
func (s *Store) Reset(job finetune.Job) {
	s.mu.Lock()
	if job.Status == "" {
		job.Status = finetune.StatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Progress = clamp(job.Progress)
	s.job = job
	s.active = true
	s.snapshots = nil
	s.head = 0
	s.delivered = 0
	st := s.stateLocked()
	s.mu.Unlock()
	s.publish(st)
}

// Resume attaches store to an existing task with STARTED status and empty log
func (s *Store) Resume(taskID string) {
	s.Reset(finetune.Job{TaskID: taskID, Status: finetune.StatusStarted})
}

// OnSnapshot appends snapshot to the log and updates job status and progress.
// Returns false if there is no active job or the job is already in terminal state, such snapshot is dropped.
func (s *Store) OnSnapshot(snap finetune.Snapshot) bool {
	s.mu.Lock()
	if !s.active || s.job.Status.IsTerminal() {
		s.mu.Unlock()
		return false
	}

	s.append(snap)
	s.delivered++
	s.job.UpdatedAt = snap.ReceivedAt
	if s.job.UpdatedAt.IsZero() {
		s.job.UpdatedAt = time.Now()
	}

	if st, ok := snap.JobStatus(); ok {
		s.job.Progress = clamp(snap.Progress)
		switch {
		case st.IsTerminal():
			s.job.Status = st
			if st == finetune.StatusFailed {
				s.job.Error = snap.Error
			}
		default:
			// any non-terminal snapshot means the job is running, reported PENDING or STARTED never go back
			s.job.Status = finetune.StatusRunning
		}
	} else if snap.Status != "" && snap.Status != finetune.StatusError {
		log.Printf("[WARN] unknown status %q in snapshot for task %s", snap.Status, s.job.TaskID)
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.publish(st)
	return true
}

// State returns copy of the current state
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Subscribe returns channel receiving the state after every change. Slow subscribers get the latest
// state only. Call returned func to unsubscribe.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSubID++
	id := s.lastSubID
	ch := make(chan State, 1)
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish sends state to subscribers. Lock is held to avoid send on channel closed by unsubscribe.
func (s *Store) publish(st State) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		// drop stale state and put the latest one
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Store) append(snap finetune.Snapshot) {
	if s.maxLog == 0 || len(s.snapshots) < s.maxLog {
		s.snapshots = append(s.snapshots, snap)
		return
	}
	s.snapshots[s.head] = snap
	s.head = (s.head + 1) % s.maxLog
}

func (s *Store) stateLocked() State {
	res := State{Job: s.job, Delivered: s.delivered, Active: s.active}
	res.Log = make([]finetune.Snapshot, 0, len(s.snapshots))
	res.Log = append(res.Log, s.snapshots[s.head:]...)
	res.Log = append(res.Log, s.snapshots[:s.head]...)
	return res
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
