// Package metrics exposes prometheus counters of the tracker
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacvision/tunetrack/app/finetune"
)

var (
	jobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunetrack_jobs_submitted_total",
			Help: "Total number of submitted fine-tuning jobs",
		},
		[]string{"kind"}, // "finetune" or "adaptive"
	)

	snapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunetrack_snapshots_total",
			Help: "Total number of accepted progress snapshots by reported status",
		},
		[]string{"status"},
	)

	jobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunetrack_jobs_finished_total",
			Help: "Total number of jobs reached terminal status",
		},
		[]string{"status"},
	)

	channelErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunetrack_channel_errors_total",
			Help: "Total number of failed progress channels by mode",
		},
		[]string{"mode"},
	)
)

// Collector records tracker events
type Collector struct{}

// NewCollector makes collector
func NewCollector() *Collector { return &Collector{} }

// Submitted counts submitted job
func (c *Collector) Submitted(kind string) { jobsSubmitted.WithLabelValues(kind).Inc() }

// Snapshot counts accepted snapshot by normalized status
func (c *Collector) Snapshot(status string) { snapshotsReceived.WithLabelValues(statusLabel(status)).Inc() }

// Finished counts terminal status
func (c *Collector) Finished(status string) { jobsFinished.WithLabelValues(statusLabel(status)).Inc() }

// ChannelError counts failed progress channel
func (c *Collector) ChannelError(mode string) { channelErrors.WithLabelValues(mode).Inc() }

// statusLabel keeps label set bounded: known statuses in upper case, "epoch" for epoch-only snapshots,
// "Error" for synthetic ones and "unknown" for the rest
func statusLabel(status string) string {
	switch status {
	case "":
		return "epoch"
	case finetune.StatusError:
		return finetune.StatusError
	}
	st, err := finetune.ParseStatus(status)
	if err != nil {
		return "unknown"
	}
	return string(st)
}

// Handler returns http handler for metrics endpoint
func Handler() http.Handler { return promhttp.Handler() }
