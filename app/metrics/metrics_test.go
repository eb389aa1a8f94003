package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	before := testutil.ToFloat64(jobsSubmitted.WithLabelValues("adaptive"))
	c.Submitted("adaptive")
	c.Submitted("adaptive")
	assert.InDelta(t, before+2, testutil.ToFloat64(jobsSubmitted.WithLabelValues("adaptive")), 0.001)

	before = testutil.ToFloat64(snapshotsReceived.WithLabelValues("epoch"))
	c.Snapshot("")
	assert.InDelta(t, before+1, testutil.ToFloat64(snapshotsReceived.WithLabelValues("epoch")), 0.001)

	before = testutil.ToFloat64(snapshotsReceived.WithLabelValues("RUNNING"))
	c.Snapshot("running")
	c.Snapshot(" RUNNING")
	assert.InDelta(t, before+2, testutil.ToFloat64(snapshotsReceived.WithLabelValues("RUNNING")), 0.001,
		"case variants share one series")

	before = testutil.ToFloat64(snapshotsReceived.WithLabelValues("unknown"))
	c.Snapshot("warming-up")
	c.Snapshot("cooling-down")
	assert.InDelta(t, before+2, testutil.ToFloat64(snapshotsReceived.WithLabelValues("unknown")), 0.001)

	before = testutil.ToFloat64(snapshotsReceived.WithLabelValues("Error"))
	c.Snapshot("Error")
	assert.InDelta(t, before+1, testutil.ToFloat64(snapshotsReceived.WithLabelValues("Error")), 0.001)

	before = testutil.ToFloat64(jobsFinished.WithLabelValues("FAILED"))
	c.Finished("FAILED")
	assert.InDelta(t, before+1, testutil.ToFloat64(jobsFinished.WithLabelValues("FAILED")), 0.001)

	before = testutil.ToFloat64(channelErrors.WithLabelValues("pull"))
	c.ChannelError("pull")
	assert.InDelta(t, before+1, testutil.ToFloat64(channelErrors.WithLabelValues("pull")), 0.001)
}

func Test_statusLabel(t *testing.T) {
	tbl := []struct{ in, out string }{
		{"", "epoch"}, {"Error", "Error"}, {"completed", "COMPLETED"}, {"Pending", "PENDING"}, {"blah", "unknown"},
	}
	for _, tt := range tbl {
		assert.Equal(t, tt.out, statusLabel(tt.in), tt.in)
	}
}

func TestHandler(t *testing.T) {
	NewCollector().Finished("COMPLETED")

	ts := httptest.NewServer(Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tunetrack_jobs_finished_total{status="COMPLETED"}`)
}
