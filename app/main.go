package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	log "github.com/go-pkgz/lgr"
	gonotify "github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/go-pkgz/syncs"
	"github.com/joho/godotenv"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jacvision/tunetrack/app/client"
	"github.com/jacvision/tunetrack/app/config"
	"github.com/jacvision/tunetrack/app/finetune"
	"github.com/jacvision/tunetrack/app/history"
	"github.com/jacvision/tunetrack/app/metrics"
	"github.com/jacvision/tunetrack/app/notify"
	"github.com/jacvision/tunetrack/app/progress"
	"github.com/jacvision/tunetrack/app/render"
	"github.com/jacvision/tunetrack/app/session"
	"github.com/jacvision/tunetrack/app/tracker"
	"github.com/jacvision/tunetrack/app/web"
)

type options struct {
	Config  string `short:"c" long:"config" env:"TUNETRACK_CONFIG" description:"presets file, yml or toml"`
	AppName string `long:"app" env:"TUNETRACK_APP" default:"tunetrack" description:"default app name for submissions"`
	MaxLog  int    `long:"max-log" env:"TUNETRACK_MAX_LOG" default:"0" description:"max snapshots kept in memory, 0 - unlimited"`
	Quiet   bool   `short:"q" long:"quiet" env:"TUNETRACK_QUIET" description:"disable logging"`
	Dbg     bool   `long:"dbg" env:"TUNETRACK_DEBUG" description:"debug mode"`

	Backend struct {
		URL     string        `long:"url" env:"URL" default:"http://localhost:8000/api/finetune" description:"backend base url"`
		Timeout time.Duration `long:"timeout" env:"TIMEOUT" default:"30s" description:"request timeout"`
		RPS     float64       `long:"rps" env:"RPS" default:"0" description:"max requests per second, 0 - unlimited"`
	} `group:"backend" namespace:"backend" env-namespace:"TUNETRACK_BACKEND"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"3" description:"how many times to repeat failed catalog request"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"2" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"TUNETRACK_REPEATER"`

	Progress struct {
		Mode     string        `long:"mode" env:"MODE" default:"push" choice:"push" choice:"pull" description:"progress channel mode"`
		Policy   string        `long:"policy" env:"POLICY" description:"failure policy, stop or continue, default depends on mode"`
		Interval time.Duration `long:"interval" env:"INTERVAL" default:"3s" description:"poll interval and reconnect delay"`
		Timeout  time.Duration `long:"timeout" env:"TIMEOUT" default:"0s" description:"max time to wait for terminal status, 0 - no limit"`
	} `group:"progress" namespace:"progress" env-namespace:"TUNETRACK_PROGRESS"`

	Session struct {
		Location string        `long:"location" env:"LOCATION" description:"session directory, default ~/.tunetrack"`
		TTL      time.Duration `long:"ttl" env:"TTL" default:"24h" description:"max age of persisted session"`
	} `group:"session" namespace:"session" env-namespace:"TUNETRACK_SESSION"`

	History struct {
		DB   string `long:"db" env:"DB" description:"history sqlite file, disabled if empty"`
		Keep int    `long:"keep" env:"KEEP" default:"100" description:"max jobs kept in history, 0 - unlimited"`
	} `group:"history" namespace:"history" env-namespace:"TUNETRACK_HISTORY"`

	Log struct {
		Filename        string `long:"file" env:"FILE" description:"log file, stderr if empty"`
		MaxSize         int    `long:"max-size" env:"MAX_SIZE" default:"100" description:"max log file size in megabytes"`
		MaxBackups      int    `long:"max-backups" env:"MAX_BACKUPS" default:"7" description:"max number of rotated files"`
		MaxAge          int    `long:"max-age" env:"MAX_AGE" default:"0" description:"max days to keep rotated files"`
		EnabledCompress bool   `long:"compress" env:"COMPRESS" description:"compress rotated files"`
	} `group:"log" namespace:"log" env-namespace:"TUNETRACK_LOG"`

	Notify struct {
		EnabledError       bool          `long:"enabled-error" env:"ENABLED_ERROR" description:"enable notifications on errors"`
		EnabledCompletion  bool          `long:"enabled-complete" env:"ENABLED_COMPLETE" description:"enable completion notifications"`
		SMTPHost           string        `long:"smtp-host" env:"SMTP_HOST" description:"SMTP host"`
		SMTPPort           int           `long:"smtp-port" env:"SMTP_PORT" description:"SMTP port"`
		SMTPUsername       string        `long:"smtp-username" env:"SMTP_USERNAME" description:"SMTP user name"`
		SMTPPassword       string        `long:"smtp-password" env:"SMTP_PASSWORD" description:"SMTP password"`
		SMTPTLS            bool          `long:"smtp-tls" env:"SMTP_TLS" description:"enable SMTP TLS"`
		FromEmail          string        `long:"from" env:"FROM" description:"SMTP from email"`
		ToEmails           []string      `long:"to" env:"TO" description:"SMTP to email(s)" env-delim:","`
		SlackToken         string        `long:"slack-token" env:"SLACK_TOKEN" description:"slack token"`
		SlackChannels      []string      `long:"slack-chan" env:"SLACK_CHAN" description:"slack channel(s)" env-delim:","`
		Webhooks           []string      `long:"webhook" env:"WEBHOOK" description:"webhook url(s)" env-delim:","`
		WebhookHeaders     []string      `long:"webhook-header" env:"WEBHOOK_HEADER" description:"webhook header(s), Name:Value" env-delim:","`
		Timeout            time.Duration `long:"timeout" env:"TIMEOUT" default:"10s" description:"delivery timeout"`
		Retries            int           `long:"retries" env:"RETRIES" default:"3" description:"delivery attempts per destination"`
		ErrorTemplate      string        `long:"err-template" env:"ERR_TEMPLATE" description:"custom error message template file"`
		CompletionTemplate string        `long:"completion-template" env:"COMPLETION_TEMPLATE" description:"custom completion message template file"`
		HostName           string        `long:"host" env:"HOSTNAME" description:"host name running tunetrack"`
	} `group:"notify" namespace:"notify" env-namespace:"TUNETRACK_NOTIFY"`

	Submit struct {
		Model        string  `short:"m" long:"model" description:"model name"`
		Dataset      string  `short:"d" long:"dataset" description:"dataset path"`
		AppName      string  `short:"a" long:"app-name" description:"app name for the trained model"`
		Preset       string  `short:"p" long:"preset" description:"preset name from config file"`
		BatchSize    int     `long:"batch-size" description:"batch size, switches to adaptive fine-tuning"`
		LearningRate float64 `long:"learning-rate" description:"learning rate, switches to adaptive fine-tuning"`
		Epochs       int     `long:"epochs" description:"epochs, switches to adaptive fine-tuning"`
	} `command:"submit" description:"submit fine-tuning job and watch its progress"`

	Watch struct {
		Args struct {
			TaskID string `positional-arg-name:"task-id" required:"yes"`
		} `positional-args:"yes"`
	} `command:"watch" description:"watch progress of submitted job"`

	Resume struct{} `command:"resume" description:"resume watching job from the persisted session"`

	Status struct {
		Concurrency int `long:"concurrency" default:"4" description:"max parallel requests"`
		Args        struct {
			TaskIDs []string `positional-arg-name:"task-id" required:"1"`
		} `positional-args:"yes"`
	} `command:"status" description:"get current status of one or more jobs"`

	Metrics struct {
		Args struct {
			TaskID string `positional-arg-name:"task-id" required:"yes"`
		} `positional-args:"yes"`
	} `command:"metrics" description:"show trainer metrics and log history of the job"`

	Models struct{} `command:"models" description:"list fine-tunable models"`

	Datasets struct{} `command:"datasets" description:"list datasets"`

	HistoryCmd struct {
		Limit  int    `short:"n" long:"limit" default:"20" description:"max jobs to show"`
		TaskID string `short:"t" long:"task" description:"show snapshots of the task"`
	} `command:"history" description:"show recorded jobs"`

	Save struct {
		TaskID      string `short:"t" long:"task" required:"true" description:"task id of completed job"`
		AppName     string `short:"a" long:"app-name" description:"app name of the trained model"`
		HFUsername  string `long:"hf-user" env:"TUNETRACK_HF_USER" description:"hugging face user name"`
		HFToken     string `long:"hf-token" env:"TUNETRACK_HF_TOKEN" description:"hugging face token"`
		GGUF        bool   `long:"gguf" description:"export as gguf instead of pushing to hub"`
		QuantMethod string `long:"quant" default:"q8_0" description:"gguf quantization method"`
		OutputDir   string `long:"output" description:"gguf output directory"`
	} `command:"save" description:"save fine-tuned model"`

	Serve struct {
		Listen       string  `short:"l" long:"listen" env:"TUNETRACK_LISTEN" default:"127.0.0.1:8080" description:"listen address"`
		PasswordHash string  `long:"password-hash" env:"TUNETRACK_PASSWORD_HASH" description:"bcrypt hash for basic auth on submit"`
		SubmitLimit  float64 `long:"submit-limit" env:"TUNETRACK_SUBMIT_LIMIT" default:"1" description:"max submit requests per second"`
	} `command:"serve" description:"run status api, follows the persisted job if any"`
}

var opts options

var revision = "unknown"

func main() {
	fmt.Printf("tunetrack %s\n", revision)

	// values from .env are used as env vars, existing env vars win
	_ = godotenv.Load()

	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	setupLogs()

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT, SIGTERM and SIGINT

	if err := run(ctx, p.Active.Name, os.Stdout); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()
}

// run executes command by name, output goes to out
func run(ctx context.Context, cmd string, out io.Writer) error {
	cl := makeClient()
	switch cmd {
	case "submit":
		req, err := makeRequest(ctx, cl)
		if err != nil {
			return err
		}
		return withTracker(cl, func(tr *tracker.Tracker, _ *history.Store) error {
			if _, err := tr.Submit(ctx, req); err != nil {
				return err
			}
			return follow(ctx, tr, out)
		})
	case "watch":
		return withTracker(cl, func(tr *tracker.Tracker, _ *history.Store) error {
			if err := tr.Watch(opts.Watch.Args.TaskID); err != nil {
				return err
			}
			return follow(ctx, tr, out)
		})
	case "resume":
		return withTracker(cl, func(tr *tracker.Tracker, _ *history.Store) error {
			if _, err := tr.Resume(); err != nil {
				return err
			}
			return follow(ctx, tr, out)
		})
	case "status":
		return showStatus(ctx, cl, opts.Status.Args.TaskIDs, out)
	case "metrics":
		return showMetrics(ctx, cl, opts.Metrics.Args.TaskID, out)
	case "models":
		models, err := cl.Models(ctx)
		if err != nil {
			return err
		}
		return printList(out, models)
	case "datasets":
		datasets, err := cl.Datasets(ctx)
		if err != nil {
			return err
		}
		return printList(out, datasets)
	case "history":
		return showHistory(out)
	case "save":
		return saveModel(ctx, cl, out)
	case "serve":
		return serve(ctx, cl)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func makeClient() *client.Client {
	rptr := repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
		Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter})
	return client.New(client.Params{
		BaseURL:  opts.Backend.URL,
		AppName:  opts.AppName,
		Timeout:  opts.Backend.Timeout,
		RPS:      opts.Backend.RPS,
		Repeater: rptr,
	})
}

// adaptiveConfigGetter provides backend defaults of adaptive fine-tuning
type adaptiveConfigGetter interface {
	AdaptiveConfig(ctx context.Context, model string) (finetune.Hyper, error)
}

// makeRequest builds request from preset, if any, and command line. Command line values win.
// Hyper-parameters left unset are taken from backend adaptive config of the model, then from fallback values.
func makeRequest(ctx context.Context, src adaptiveConfigGetter) (finetune.Request, error) {
	var req finetune.Request
	if opts.Submit.Preset != "" {
		if opts.Config == "" {
			return req, errors.New("preset requires config file")
		}
		cfg, err := config.Load(opts.Config)
		if err != nil {
			return req, err
		}
		preset, err := cfg.Preset(opts.Submit.Preset)
		if err != nil {
			return req, err
		}
		req = preset.Request(opts.Submit.AppName)
	}

	if opts.Submit.Model != "" {
		req.Model = opts.Submit.Model
	}
	if opts.Submit.Dataset != "" {
		req.Dataset = opts.Submit.Dataset
	}
	if opts.Submit.AppName != "" {
		req.AppName = opts.Submit.AppName
	}
	if opts.Submit.BatchSize != 0 || opts.Submit.LearningRate != 0 || opts.Submit.Epochs != 0 {
		if req.Hyper == nil {
			req.Hyper = &finetune.Hyper{}
		}
		if opts.Submit.BatchSize != 0 {
			req.Hyper.BatchSize = opts.Submit.BatchSize
		}
		if opts.Submit.LearningRate != 0 {
			req.Hyper.LearningRate = opts.Submit.LearningRate
		}
		if opts.Submit.Epochs != 0 {
			req.Hyper.Epochs = opts.Submit.Epochs
		}
	}
	if req.Hyper != nil && !req.Hyper.IsComplete() {
		req.Hyper.Fill(adaptiveDefaults(ctx, src, req.Model))
	}
	return req, nil
}

// adaptiveDefaults returns backend adaptive config of the model with missing values from fallback
func adaptiveDefaults(ctx context.Context, src adaptiveConfigGetter, model string) finetune.Hyper {
	res := config.Fallback()
	if src == nil {
		return res
	}
	h, err := src.AdaptiveConfig(ctx, model)
	if err != nil {
		log.Printf("[DEBUG] no adaptive config for %q, use fallback: %v", model, err)
		return res
	}
	h.Fill(res)
	log.Printf("[DEBUG] adaptive config for %q: %+v", model, h)
	return h
}

func makeOpener(cl *client.Client) (*progress.Opener, error) {
	mode, err := progress.ParseMode(opts.Progress.Mode)
	if err != nil {
		return nil, err
	}
	policy, err := progress.ParsePolicy(opts.Progress.Policy)
	if err != nil {
		return nil, err
	}
	return &progress.Opener{Streamer: cl, StatusGetter: cl, Params: progress.Params{Mode: mode, Policy: policy,
		Interval: opts.Progress.Interval, Timeout: opts.Progress.Timeout}}, nil
}

func makeSession() (*session.FileStore, error) {
	location := opts.Session.Location
	if location == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("can't detect session location: %w", err)
		}
		location = filepath.Join(home, ".tunetrack")
	}
	return session.NewFileStore(location, opts.Session.TTL), nil
}

// makeHistory opens history store and drops old jobs, returns nil if history disabled
func makeHistory() (*history.Store, error) {
	if opts.History.DB == "" {
		return nil, nil
	}
	store, err := history.New(opts.History.DB)
	if err != nil {
		return nil, err
	}
	if opts.History.Keep > 0 {
		removed, err := store.CleanupOldJobs(opts.History.Keep)
		if err != nil {
			log.Printf("[WARN] failed to cleanup history: %v", err)
		}
		if removed > 0 {
			log.Printf("[DEBUG] removed %d old jobs from history", removed)
		}
	}
	return store, nil
}

func makeNotifier() *notify.Service {
	if !opts.Notify.EnabledError && !opts.Notify.EnabledCompletion {
		return nil
	}

	if opts.Notify.FromEmail == "" {
		opts.Notify.FromEmail = "tunetrack@" + makeHostName()
	}

	return notify.NewService(
		notify.Params{
			EnabledError:       opts.Notify.EnabledError,
			EnabledCompletion:  opts.Notify.EnabledCompletion,
			ErrorTemplate:      opts.Notify.ErrorTemplate,
			CompletionTemplate: opts.Notify.CompletionTemplate,
			HostName:           makeHostName(),
		},
		notify.SendersParams{
			SMTP: gonotify.SMTPParams{
				Host:     opts.Notify.SMTPHost,
				Port:     opts.Notify.SMTPPort,
				TLS:      opts.Notify.SMTPTLS,
				Username: opts.Notify.SMTPUsername,
				Password: opts.Notify.SMTPPassword,
			},
			FromEmail:      opts.Notify.FromEmail,
			ToEmails:       opts.Notify.ToEmails,
			SlackToken:     opts.Notify.SlackToken,
			SlackChannels:  opts.Notify.SlackChannels,
			WebhookURLs:    opts.Notify.Webhooks,
			WebhookHeaders: opts.Notify.WebhookHeaders,
			Timeout:        opts.Notify.Timeout,
			Retries:        opts.Notify.Retries,
		},
	)
}

func makeHostName() string {
	if opts.Notify.HostName != "" {
		return opts.Notify.HostName
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// withTracker makes tracker with all configured parts, runs fn and closes everything.
// History store passed to fn is nil if history disabled.
func withTracker(cl *client.Client, fn func(tr *tracker.Tracker, hist *history.Store) error) error {
	opener, err := makeOpener(cl)
	if err != nil {
		return err
	}
	sess, err := makeSession()
	if err != nil {
		return err
	}
	hist, err := makeHistory()
	if err != nil {
		return err
	}

	params := tracker.Params{
		Submitter: cl,
		Opener:    opener,
		Session:   sess,
		Metrics:   metrics.NewCollector(),
		MaxLog:    opts.MaxLog,
		HostName:  makeHostName(),
	}
	if n := makeNotifier(); n != nil {
		params.Notifier = n
	}
	if hist != nil {
		params.Recorder = hist
		defer func() {
			if err := hist.Close(); err != nil {
				log.Printf("[WARN] failed to close history: %v", err)
			}
		}()
	}

	tr := tracker.New(params)
	defer tr.Close() // nolint
	return fn(tr, hist)
}

// follow shows live progress of the active job till it is done, prints the log table at the end
func follow(ctx context.Context, tr *tracker.Tracker, out io.Writer) error {
	st := tr.State()
	bar := render.NewBar(out, st.TaskID)
	states, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	updated := make(chan struct{})
	go func() {
		defer close(updated)
		for s := range states {
			if err := bar.Update(s.Status, s.Progress); err != nil {
				log.Printf("[DEBUG] can't update progress bar: %v", err)
			}
		}
	}()

	st, err := tr.Wait(ctx)
	unsubscribe()
	<-updated
	if st.Status == finetune.StatusCompleted {
		_ = bar.Finish()
	}
	_, _ = fmt.Fprintf(out, "\n%s", render.Table(st.Log))

	switch {
	case errors.Is(err, context.Canceled):
		log.Printf("[INFO] stopped watching job %s, continue with resume command", st.TaskID)
		return nil
	case err != nil:
		return err
	case st.Status == finetune.StatusFailed:
		return fmt.Errorf("job %s failed: %s", st.TaskID, st.Error)
	}
	log.Printf("[INFO] job %s finished with status %s", st.TaskID, st.Status)
	return nil
}

// showStatus requests status of all tasks in parallel and prints them in the order of taskIDs
func showStatus(ctx context.Context, cl *client.Client, taskIDs []string, out io.Writer) error {
	type result struct {
		snap finetune.Snapshot
		err  error
	}
	results := make([]result, len(taskIDs))
	concurrency := opts.Status.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	gr := syncs.NewErrSizedGroup(concurrency, syncs.Context(ctx), syncs.Preemptive)
	for i, id := range taskIDs {
		gr.Go(func() error {
			snap, err := cl.Status(ctx, id)
			results[i] = result{snap: snap, err: err}
			return err
		})
	}
	groupErr := gr.Wait()

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tSTATUS\tPROGRESS\tEPOCH\tLOSS")
	for i, id := range taskIDs {
		r := results[i]
		if r.err != nil {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", id, finetune.StatusError, "N/A", "N/A", "N/A")
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s%%\t%s\t%s\n", id, r.snap.Status,
			strconv.FormatFloat(r.snap.Progress, 'f', -1, 64), orNA(r.snap.Epoch), orNA(r.snap.Loss))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if groupErr != nil {
		return fmt.Errorf("failed to get status: %w", groupErr)
	}
	return nil
}

// showMetrics prints trainer metrics and log history of the task
func showMetrics(ctx context.Context, cl *client.Client, taskID string, out io.Writer) error {
	res, err := cl.Metrics(ctx, taskID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "status:\t%s\n", orNA(res.Status))
	keys := make([]string, 0, len(res.Metrics))
	for k := range res.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s:\t%v\n", k, res.Metrics[k])
	}

	if len(res.LogHistory) > 0 {
		cols := logColumns(res.LogHistory)
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, strings.ToUpper(strings.Join(cols, "\t")))
		for _, rec := range res.LogHistory {
			vals := make([]string, len(cols))
			for i, c := range cols {
				vals[i] = "N/A"
				if v, ok := rec[c]; ok && v != nil {
					vals[i] = fmt.Sprint(v)
				}
			}
			_, _ = fmt.Fprintln(w, strings.Join(vals, "\t"))
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// logColumns returns all keys of log records, step goes first
func logColumns(records []map[string]any) []string {
	seen := map[string]bool{}
	var res []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] && k != "step" {
				seen[k] = true
				res = append(res, k)
			}
		}
	}
	sort.Strings(res)
	return append([]string{"step"}, res...)
}

func showHistory(out io.Writer) error {
	hist, err := makeHistory()
	if err != nil {
		return err
	}
	if hist == nil {
		return errors.New("history is disabled, set --history.db")
	}
	defer hist.Close() // nolint

	if opts.HistoryCmd.TaskID != "" {
		job, err := hist.GetJob(opts.HistoryCmd.TaskID)
		if err != nil {
			return err
		}
		snaps, err := hist.GetSnapshots(job.TaskID, 0)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "task %s, model %s, dataset %s, status %s, progress %s%%\n", job.TaskID, job.Model,
			job.Dataset, job.Status, strconv.FormatFloat(job.Progress, 'f', -1, 64))
		_, err = fmt.Fprint(out, render.Table(snaps))
		return err
	}

	jobs, err := hist.LoadJobs(opts.HistoryCmd.Limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK\tMODEL\tDATASET\tSTATUS\tPROGRESS\tCREATED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\t%s\n", j.TaskID, orNA(j.Model), orNA(j.Dataset), j.Status,
			strconv.FormatFloat(j.Progress, 'f', -1, 64), j.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}

func saveModel(ctx context.Context, cl *client.Client, out io.Writer) error {
	var res map[string]any
	var err error
	if opts.Save.GGUF {
		res, err = cl.SaveGGUF(ctx, client.SaveGGUFRequest{TaskID: opts.Save.TaskID, AppName: opts.Save.AppName,
			QuantMethod: opts.Save.QuantMethod, OutputDir: opts.Save.OutputDir})
	} else {
		res, err = cl.SaveModel(ctx, client.SaveModelRequest{TaskID: opts.Save.TaskID, AppName: opts.Save.AppName,
			HFUsername: opts.Save.HFUsername, HFToken: opts.Save.HFToken})
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// serve runs status api till ctx canceled, the job from the persisted session is followed if any
func serve(ctx context.Context, cl *client.Client) error {
	return withTracker(cl, func(tr *tracker.Tracker, hist *history.Store) error {
		if taskID, err := tr.Resume(); err != nil {
			if !errors.Is(err, tracker.ErrNoSession) {
				log.Printf("[WARN] can't resume job: %v", err)
			}
		} else {
			log.Printf("[INFO] following job %s", taskID)
		}

		cfg := web.Config{
			Tracker:      tr,
			Metrics:      metrics.Handler(),
			Version:      revision,
			PasswordHash: opts.Serve.PasswordHash,
			SubmitLimit:  opts.Serve.SubmitLimit,
		}
		if hist != nil {
			cfg.History = hist
		}
		srv, err := web.New(cfg)
		if err != nil {
			return err
		}
		return srv.Run(ctx, opts.Serve.Listen)
	})
}

func printList(out io.Writer, items []string) error {
	for _, s := range items {
		if _, err := fmt.Fprintln(out, s); err != nil {
			return err
		}
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// setupLogs configures lgr, returns writer used for logs
func setupLogs() io.Writer {
	if opts.Quiet {
		log.Setup(log.Out(io.Discard), log.Err(io.Discard))
		return io.Discard
	}

	var out io.Writer = os.Stderr
	if opts.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   opts.Log.Filename,
			MaxSize:    opts.Log.MaxSize,
			MaxBackups: opts.Log.MaxBackups,
			MaxAge:     opts.Log.MaxAge,
			Compress:   opts.Log.EnabledCompress,
		}
	}

	logOpts := []log.Option{log.Msec, log.Out(out), log.Err(out)}
	if opts.Dbg {
		logOpts = append(logOpts, log.Debug, log.CallerFunc, log.CallerPkg, log.CallerFile)
	}
	log.Setup(logOpts...)
	return out
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			log.Printf("[INFO] got %s, stopping", sig)
			cancel() // terminate on SIGTERM and SIGINT
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
}
