package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/go-pkgz/lgr"

	"github.com/jacvision/tunetrack/app/finetune"
	"github.com/jacvision/tunetrack/app/history"
	"github.com/jacvision/tunetrack/app/render"
	"github.com/jacvision/tunetrack/app/tracker"
)

const defaultLimit = 50

// SubmitRequest is the JSON body for POST /api/v1/jobs.
// Any of hyper-parameters set switches to adaptive fine-tuning.
type SubmitRequest struct {
	ModelName    string  `json:"model_name"`
	DatasetPath  string  `json:"dataset_path"`
	AppName      string  `json:"app_name,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Epochs       int     `json:"epochs,omitempty"`
}

// APIJobsResponse is the JSON response for /api/v1/jobs
type APIJobsResponse struct {
	Jobs []finetune.Job `json:"jobs"`
}

// APISnapshotsResponse is the JSON response for recorded snapshots of a job
type APISnapshotsResponse struct {
	Job       finetune.Job        `json:"job"`
	Snapshots []finetune.Snapshot `json:"snapshots"`
}

func (r SubmitRequest) request() finetune.Request {
	res := finetune.Request{Model: r.ModelName, Dataset: r.DatasetPath, AppName: r.AppName}
	if r.BatchSize != 0 || r.LearningRate != 0 || r.Epochs != 0 {
		res.Hyper = &finetune.Hyper{BatchSize: r.BatchSize, LearningRate: r.LearningRate, Epochs: r.Epochs}
	}
	return res
}

// handleCurrentJob returns the tracker state with the snapshot log
func (s *Server) handleCurrentJob(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.State())
}

// handleSubmit starts a new fine-tuning job, the previous one is not followed anymore
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.tracker.Submit(r.Context(), req.request())
	if err != nil {
		var verr *finetune.ValidationError
		var rerr *finetune.RemoteError
		switch {
		case errors.As(err, &verr):
			s.writeJSONError(w, http.StatusBadRequest, verr.Error())
		case errors.As(err, &rerr):
			s.writeJSONError(w, http.StatusBadGateway, rerr.Error())
		case errors.Is(err, tracker.ErrClosed):
			s.writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			log.Printf("[ERROR] failed to submit job: %v", err)
			s.writeJSONError(w, http.StatusInternalServerError, "failed to submit job")
		}
		return
	}
	s.writeJSON(w, http.StatusCreated, job)
}

// handleJobs returns recorded jobs, newest first
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := s.history.LoadJobs(limit)
	if err != nil {
		log.Printf("[ERROR] failed to load jobs: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load jobs")
		return
	}
	if jobs == nil {
		jobs = []finetune.Job{}
	}
	s.writeJSON(w, http.StatusOK, APIJobsResponse{Jobs: jobs})
}

// handleSnapshots returns recorded snapshots of a job in arrival order
func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")
	limit, err := limitParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.history.GetJob(taskID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("[ERROR] failed to get job %s: %v", taskID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	snaps, err := s.history.GetSnapshots(taskID, limit)
	if err != nil {
		log.Printf("[ERROR] failed to get snapshots for job %s: %v", taskID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load snapshots")
		return
	}
	if snaps == nil {
		snaps = []finetune.Snapshot{}
	}
	s.writeJSON(w, http.StatusOK, APISnapshotsResponse{Job: job, Snapshots: snaps})
}

// handleTable renders the snapshot log as a text table. The active job uses the in-memory log,
// other jobs are rendered from history.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	var snaps []finetune.Snapshot
	switch st := s.tracker.State(); {
	case st.Active && st.TaskID == taskID:
		snaps = st.Log
	case s.history != nil:
		if _, err := s.history.GetJob(taskID); err != nil {
			if errors.Is(err, history.ErrNotFound) {
				http.Error(w, "job not found", http.StatusNotFound)
				return
			}
			log.Printf("[ERROR] failed to get job %s: %v", taskID, err)
			http.Error(w, "failed to load job", http.StatusInternalServerError)
			return
		}
		var err error
		if snaps, err = s.history.GetSnapshots(taskID, 0); err != nil {
			log.Printf("[ERROR] failed to get snapshots for job %s: %v", taskID, err)
			http.Error(w, "failed to load snapshots", http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(render.Table(snaps))); err != nil {
		log.Printf("[WARN] failed to write table: %v", err)
	}
}

// limitParam returns limit query parameter, defaultLimit if not set
func limitParam(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	return limit, nil
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[WARN] failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("[WARN] failed to encode JSON error response: %v", err)
	}
}
