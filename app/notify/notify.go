// Package notify delivers fine-tuning terminal notifications to email, slack and webhook destinations
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"

	"github.com/jacvision/tunetrack/app/finetune"
)

//go:embed templates/*.html
var templates embed.FS

// Service delivers messages to all configured destinations
type Service struct {
	destinations  []notify.Notifier
	repeater      *repeater.Repeater
	fromEmail     string
	toEmail       []string
	slackChannels []string
	webhookURLs   []string

	errorTmpl      *template.Template
	completionTmpl *template.Template
	enabledError   bool
	enabledDone    bool
	hostName       string
}

// Params defines what to notify about and custom templates
type Params struct {
	EnabledError       bool
	EnabledCompletion  bool
	ErrorTemplate      string // path to custom error template, empty for default
	CompletionTemplate string // path to custom completion template, empty for default
	HostName           string
}

// SendersParams defines destinations
type SendersParams struct {
	SMTP           notify.SMTPParams
	FromEmail      string
	ToEmails       []string
	SlackToken     string
	SlackChannels  []string
	WebhookURLs    []string
	WebhookHeaders []string
	Timeout        time.Duration
	Retries        int // delivery attempts per destination, 0 - single attempt
}

// NewService makes notification service, returns nil if no destinations defined
func NewService(p Params, sp SendersParams) *Service {
	res := &Service{
		fromEmail:    sp.FromEmail,
		toEmail:      sp.ToEmails,
		enabledError: p.EnabledError,
		enabledDone:  p.EnabledCompletion,
		hostName:     p.HostName,
	}
	if res.hostName == "" {
		res.hostName, _ = os.Hostname()
	}
	if sp.Timeout <= 0 {
		sp.Timeout = 10 * time.Second
	}

	if len(sp.ToEmails) > 0 {
		smtpParams := sp.SMTP
		if smtpParams.ContentType == "" {
			smtpParams.ContentType = "text/html"
		}
		if smtpParams.TimeOut == 0 {
			smtpParams.TimeOut = sp.Timeout
		}
		res.destinations = append(res.destinations, notify.NewEmail(smtpParams))
	}
	if sp.SlackToken != "" && len(sp.SlackChannels) > 0 {
		res.destinations = append(res.destinations, notify.NewSlack(sp.SlackToken))
		res.slackChannels = sp.SlackChannels
	}
	if len(sp.WebhookURLs) > 0 {
		res.destinations = append(res.destinations,
			notify.NewWebhook(notify.WebhookParams{Timeout: sp.Timeout, Headers: sp.WebhookHeaders}))
		res.webhookURLs = sp.WebhookURLs
	}
	if len(res.destinations) == 0 {
		return nil
	}

	if sp.Retries > 1 {
		res.repeater = repeater.New(&strategy.FixedDelay{Repeats: sp.Retries, Delay: time.Second})
	}
	res.errorTmpl = loadTemplate(p.ErrorTemplate, "templates/error.html")
	res.completionTmpl = loadTemplate(p.CompletionTemplate, "templates/completion.html")
	log.Printf("[INFO] notifications enabled, destinations: %s", res)
	return res
}

// Send message to all destinations. Each destination is tried independently, errors are joined.
func (s *Service) Send(ctx context.Context, subj, text string) error {
	var errs []error
	for _, n := range s.destinations {
		for _, dest := range s.targets(n.Schema(), subj) {
			if err := s.sendOne(ctx, n, dest, text); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) sendOne(ctx context.Context, n notify.Notifier, dest, text string) error {
	if s.repeater == nil {
		return n.Send(ctx, dest, text)
	}
	return s.repeater.Do(ctx, func() error { return n.Send(ctx, dest, text) })
}

// targets returns destination strings for the notifier schema
func (s *Service) targets(schema, subj string) []string {
	switch schema {
	case "mailto":
		if len(s.toEmail) == 0 {
			return nil
		}
		return []string{fmt.Sprintf("mailto:%s?from=%s&subject=%s",
			strings.Join(s.toEmail, ","), s.fromEmail, url.QueryEscape(subj))}
	case "slack":
		res := make([]string, 0, len(s.slackChannels))
		for _, ch := range s.slackChannels {
			res = append(res, fmt.Sprintf("slack:%s?title=%s", ch, url.QueryEscape(subj)))
		}
		return res
	default:
		return s.webhookURLs
	}
}

// IsOnError status enabling on-error notification
func (s *Service) IsOnError() bool { return s.enabledError }

// IsOnCompletion status enabling on-completion notification
func (s *Service) IsOnCompletion() bool { return s.enabledDone }

// MakeErrorHTML creates html error message for the job
func (s *Service) MakeErrorHTML(job finetune.Job, errMsg string) (string, error) {
	return s.execute(s.errorTmpl, job, errMsg)
}

// MakeCompletionHTML creates html completion message for the job
func (s *Service) MakeCompletionHTML(job finetune.Job) (string, error) {
	return s.execute(s.completionTmpl, job, "")
}

func (s *Service) execute(tmpl *template.Template, job finetune.Job, errMsg string) (string, error) {
	data := struct {
		Job   finetune.Job
		Error string
		Host  string
		TS    time.Time
	}{Job: job, Error: errMsg, Host: s.hostName, TS: time.Now()}

	buf := bytes.Buffer{}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to apply template: %w", err)
	}
	return buf.String(), nil
}

func (s *Service) String() string {
	names := make([]string, 0, len(s.destinations))
	for _, d := range s.destinations {
		names = append(names, d.String())
	}
	return strings.Join(names, ", ")
}

// loadTemplate parses custom template file, falls back to embedded default
func loadTemplate(fname, defaultName string) *template.Template {
	if fname != "" {
		tmpl, err := template.ParseFiles(fname)
		if err == nil {
			return tmpl
		}
		log.Printf("[WARN] can't parse template %s, using default: %v", fname, err)
	}
	return template.Must(template.ParseFS(templates, defaultName))
}
