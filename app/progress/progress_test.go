package progress

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacvision/tunetrack/app/finetune"
)

type streamerFunc func(ctx context.Context, taskID string) (io.ReadCloser, error)

func (f streamerFunc) Stream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	return f(ctx, taskID)
}

type getterFunc func(ctx context.Context, taskID string) (finetune.Snapshot, error)

func (f getterFunc) Status(ctx context.Context, taskID string) (finetune.Snapshot, error) {
	return f(ctx, taskID)
}

func body(events ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(events, "")))
}

func event(data string) string { return "data: " + data + "\n\n" }

// collect reads all snapshots with a safety timeout
func collect(t *testing.T, ch Channel) []finetune.Snapshot {
	t.Helper()
	var res []finetune.Snapshot
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-ch.Snapshots():
			if !ok {
				return res
			}
			res = append(res, s)
		case <-timeout:
			t.Fatal("channel not closed in time")
		}
	}
}

func statuses(snaps []finetune.Snapshot) []string {
	res := make([]string, 0, len(snaps))
	for _, s := range snaps {
		res = append(res, s.Status)
	}
	return res
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("PUSH")
	require.NoError(t, err)
	assert.Equal(t, ModePush, m)
	m, err = ParseMode(" pull ")
	require.NoError(t, err)
	assert.Equal(t, ModePull, m)
	_, err = ParseMode("websocket")
	assert.Error(t, err)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailurePolicy(""), p)
	p, err = ParsePolicy("Continue")
	require.NoError(t, err)
	assert.Equal(t, PolicyContinue, p)
	_, err = ParsePolicy("retry")
	assert.Error(t, err)

	assert.Equal(t, PolicyStop, DefaultPolicy(ModePush))
	assert.Equal(t, PolicyContinue, DefaultPolicy(ModePull))
}

func TestOpener_OpenErrors(t *testing.T) {
	o := Opener{}
	_, err := o.Open(context.Background(), " ")
	var verr *finetune.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = o.Open(context.Background(), "abc123")
	assert.EqualError(t, err, "push mode requires streamer")

	o.Mode = ModePull
	_, err = o.Open(context.Background(), "abc123")
	assert.EqualError(t, err, "pull mode requires status getter")

	o.Mode = "carrier-pigeon"
	_, err = o.Open(context.Background(), "abc123")
	assert.Error(t, err)
}

func TestPush_UntilTerminal(t *testing.T) {
	var gotTask string
	s := streamerFunc(func(_ context.Context, taskID string) (io.ReadCloser, error) {
		gotTask = taskID
		return body(
			": keep-alive\n\n",
			event(`{"type":"status_update","data":{"status":"RUNNING","progress":0}}`),
			event(`{"type":"epoch_update","data":{"epoch":1,"loss":0.52}}`),
			event(`{"type":"status_update","data":{"status":"RUNNING","progress":50,"current_epoch":1}}`),
			event(`{"type":"status_update","data":{"status":"COMPLETED","progress":100}}`),
			event(`{"type":"status_update","data":{"status":"RUNNING","progress":10}}`),
		), nil
	})
	o := Opener{Streamer: s}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)

	snaps := collect(t, ch)
	assert.Equal(t, "abc123", gotTask)
	assert.Equal(t, []string{"RUNNING", "", "RUNNING", "COMPLETED"}, statuses(snaps))
	assert.Equal(t, "epoch_update", snaps[1].Type)
	assert.Equal(t, "1", snaps[1].Epoch)
	assert.Equal(t, "0.52", snaps[1].Loss)
	assert.Equal(t, "1", snaps[2].Epoch)
	assert.InDelta(t, 100.0, snaps[3].Progress, 0.001)
	assert.NoError(t, ch.Err())
	assert.NoError(t, ch.Close())
}

func TestPush_BareObjectsAndTrailingEvent(t *testing.T) {
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		// last event has no trailing blank line, CRLF line endings
		return body("data: {\"status\":\"RUNNING\",\"progress\":\"10\"}\r\n\r\n", "data: {\"status\":\"FAILED\",\"progress\":40}"), nil
	})
	ch, err := (&Opener{Streamer: s}).Open(context.Background(), "abc123")
	require.NoError(t, err)
	snaps := collect(t, ch)
	assert.Equal(t, []string{"RUNNING", "FAILED"}, statuses(snaps))
	assert.InDelta(t, 10.0, snaps[0].Progress, 0.001)
	assert.NoError(t, ch.Err())
}

func TestPush_SkipsUnparsable(t *testing.T) {
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		return body(event(`not json`), event(`{"status":"COMPLETED","progress":100}`)), nil
	})
	ch, err := (&Opener{Streamer: s}).Open(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{"COMPLETED"}, statuses(collect(t, ch)))
	assert.NoError(t, ch.Err())
}

func TestPush_ErrorMessage(t *testing.T) {
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		return body(event(`{"error": "Task not found"}`), event(`{"status":"RUNNING"}`)), nil
	})
	ch, err := (&Opener{Streamer: s}).Open(context.Background(), "abc123")
	require.NoError(t, err)
	snaps := collect(t, ch)
	assert.Equal(t, []string{finetune.StatusError}, statuses(snaps))
	assert.Contains(t, snaps[0].Error, "Task not found")

	var aerr *finetune.AdapterError
	require.ErrorAs(t, ch.Err(), &aerr)
	assert.Equal(t, "push", aerr.Mode)
	assert.Equal(t, "abc123", aerr.TaskID)
	assert.Contains(t, aerr.Error(), "Task not found")
}

func TestPush_ConnectionErrorStops(t *testing.T) {
	var calls int32
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})
	ch, err := (&Opener{Streamer: s, Params: Params{Interval: 10 * time.Millisecond}}).Open(context.Background(), "abc123")
	require.NoError(t, err)
	snaps := collect(t, ch)
	assert.Equal(t, []string{finetune.StatusError}, statuses(snaps), "error row logged before the channel stops")
	assert.Contains(t, snaps[0].Error, "connection refused")

	var aerr *finetune.AdapterError
	require.ErrorAs(t, ch.Err(), &aerr)
	assert.Contains(t, aerr.Error(), "connection refused")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no reconnect under stop policy")
}

func TestPush_ClosedBeforeTerminal(t *testing.T) {
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		return body(event(`{"status":"RUNNING","progress":20}`)), nil
	})
	ch, err := (&Opener{Streamer: s}).Open(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{"RUNNING", finetune.StatusError}, statuses(collect(t, ch)))
	require.Error(t, ch.Err())
	assert.Contains(t, ch.Err().Error(), "stream closed before terminal status")
}

func TestPush_ContinueReconnects(t *testing.T) {
	var calls int32
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("connection reset")
		}
		return body(event(`{"status":"COMPLETED","progress":100}`)), nil
	})
	o := &Opener{Streamer: s, Params: Params{Mode: ModePush, Policy: PolicyContinue, Interval: 10 * time.Millisecond}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)

	snaps := collect(t, ch)
	assert.Equal(t, []string{finetune.StatusError, "COMPLETED"}, statuses(snaps))
	assert.Contains(t, snaps[0].Error, "connection reset")
	assert.NoError(t, ch.Err())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPush_CloseUnblocksStream(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := streamerFunc(func(context.Context, string) (io.ReadCloser, error) { return pr, nil })
	ch, err := (&Opener{Streamer: s}).Open(context.Background(), "abc123")
	require.NoError(t, err)

	go func() { _, _ = pw.Write([]byte(event(`{"status":"RUNNING","progress":5}`))) }()
	s1 := <-ch.Snapshots()
	assert.Equal(t, "RUNNING", s1.Status)

	done := make(chan struct{})
	go func() {
		_ = ch.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close blocked")
	}
	_, ok := <-ch.Snapshots()
	assert.False(t, ok)
	assert.NoError(t, ch.Err(), "no error after explicit close")
}

func TestPull_FailedRequestContinues(t *testing.T) {
	var calls int32
	g := getterFunc(func(_ context.Context, taskID string) (finetune.Snapshot, error) {
		assert.Equal(t, "abc123", taskID)
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			return finetune.Snapshot{Status: "RUNNING", Progress: 10}, nil
		case 2:
			return finetune.Snapshot{}, errors.New("bad gateway")
		default:
			return finetune.Snapshot{Status: "COMPLETED", Progress: 100}, nil
		}
	})
	o := &Opener{StatusGetter: g, Params: Params{Mode: ModePull, Interval: 10 * time.Millisecond}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)

	snaps := collect(t, ch)
	assert.Equal(t, []string{"RUNNING", finetune.StatusError, "COMPLETED"}, statuses(snaps))
	assert.Contains(t, snaps[1].Error, "bad gateway")
	assert.NoError(t, ch.Err())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "polling stops at terminal status")
}

func TestPull_FirstRequestImmediate(t *testing.T) {
	g := getterFunc(func(context.Context, string) (finetune.Snapshot, error) {
		return finetune.Snapshot{Status: "COMPLETED", Progress: 100}, nil
	})
	o := &Opener{StatusGetter: g, Params: Params{Mode: ModePull, Interval: time.Hour}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Len(t, collect(t, ch), 1)
}

func TestPull_StopPolicy(t *testing.T) {
	g := getterFunc(func(context.Context, string) (finetune.Snapshot, error) {
		return finetune.Snapshot{}, errors.New("bad gateway")
	})
	o := &Opener{StatusGetter: g, Params: Params{Mode: ModePull, Policy: PolicyStop, Interval: 10 * time.Millisecond}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, []string{finetune.StatusError}, statuses(collect(t, ch)))

	var aerr *finetune.AdapterError
	require.ErrorAs(t, ch.Err(), &aerr)
	assert.Equal(t, "pull", aerr.Mode)
	assert.Contains(t, aerr.Error(), "bad gateway")
}

func TestChannel_CloseFromConsumer(t *testing.T) {
	g := getterFunc(func(context.Context, string) (finetune.Snapshot, error) {
		return finetune.Snapshot{Status: "RUNNING", Progress: 1}, nil
	})
	o := &Opener{StatusGetter: g, Params: Params{Mode: ModePull, Interval: time.Millisecond}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)

	count := 0
	for range ch.Snapshots() {
		count++
		if count == 3 {
			require.NoError(t, ch.Close())
		}
	}
	assert.Equal(t, 3, count, "nothing delivered after close")
	assert.NoError(t, ch.Close(), "second close is safe")
	assert.NoError(t, ch.Err())
}

func TestChannel_Timeout(t *testing.T) {
	g := getterFunc(func(context.Context, string) (finetune.Snapshot, error) {
		return finetune.Snapshot{Status: "RUNNING", Progress: 1}, nil
	})
	o := &Opener{StatusGetter: g, Params: Params{Mode: ModePull, Interval: 10 * time.Millisecond, Timeout: 50 * time.Millisecond}}
	ch, err := o.Open(context.Background(), "abc123")
	require.NoError(t, err)
	assert.NotEmpty(t, collect(t, ch))

	var aerr *finetune.AdapterError
	require.ErrorAs(t, ch.Err(), &aerr)
	assert.Contains(t, aerr.Error(), "timeout")
	assert.ErrorIs(t, ch.Err(), context.DeadlineExceeded)
}

func TestParseEvent(t *testing.T) {
	tbl := []struct {
		name    string
		msg     string
		want    finetune.Snapshot
		wantErr bool
		adapter bool
	}{
		{name: "envelope", msg: `{"type":"status_update","data":{"status":"RUNNING","progress":12.5,"epoch":"2","loss":"0.3"}}`,
			want: finetune.Snapshot{Type: "status_update", Status: "RUNNING", Progress: 12.5, Epoch: "2", Loss: "0.3"}},
		{name: "epoch metrics", msg: `{"type":"status_update","data":{"status":"RUNNING","progress":60,"epoch_metrics":{"epoch":3,"loss":0.1}}}`,
			want: finetune.Snapshot{Type: "status_update", Status: "RUNNING", Progress: 60, Epoch: "3", Loss: "0.1"}},
		{name: "bare", msg: `{"status":"FAILED","progress":40,"error":"oom"}`,
			want: finetune.Snapshot{Status: "FAILED", Progress: 40, Error: "oom"}},
		{name: "null metrics", msg: `{"status":"RUNNING","progress":0,"epoch":null,"loss":null}`,
			want: finetune.Snapshot{Status: "RUNNING"}},
		{name: "error message", msg: `{"error":"Task not found"}`, wantErr: true, adapter: true},
		{name: "not json", msg: `hello`, wantErr: true},
		{name: "bad progress", msg: `{"status":"RUNNING","progress":"lots"}`, wantErr: true},
	}

	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseEvent(tt.msg)
			if tt.wantErr {
				require.Error(t, err)
				var aerr *finetune.AdapterError
				assert.Equal(t, tt.adapter, errors.As(err, &aerr))
				return
			}
			require.NoError(t, err)
			assert.False(t, res.ReceivedAt.IsZero())
			res.ReceivedAt = time.Time{}
			assert.Equal(t, tt.want, res)
		})
	}
}
