// Package render makes human-readable views of the snapshot log
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"

	"github.com/jacvision/tunetrack/app/finetune"
)

const na = "N/A"

// Table renders log as a table with header and one row per snapshot
func Table(log []finetune.Snapshot) string {
	buf := strings.Builder{}
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTATUS\tPROGRESS\tEPOCH\tLOSS")
	for i, s := range log {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, orNA(s.Status), progress(s), orNA(s.Epoch), orNA(s.Loss))
	}
	_ = w.Flush()
	return buf.String()
}

func progress(s finetune.Snapshot) string {
	if s.Status == finetune.StatusError || s.Status == "" {
		return na
	}
	return strconv.FormatFloat(s.Progress, 'f', -1, 64) + "%"
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return na
	}
	return s
}

// Bar shows live progress of a task in the terminal
type Bar struct {
	taskID string
	bar    *progressbar.ProgressBar
}

// NewBar makes progress bar writing to w
func NewBar(w io.Writer, taskID string) *Bar {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("task "+taskID),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &Bar{taskID: taskID, bar: bar}
}

// Update sets status and percent, percent is clamped to 0..100
func (b *Bar) Update(status finetune.Status, percent float64) error {
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	b.bar.Describe(fmt.Sprintf("task %s %s", b.taskID, status))
	return b.bar.Set(int(percent))
}

// Finish completes the bar
func (b *Bar) Finish() error {
	return b.bar.Finish()
}
