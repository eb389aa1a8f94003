package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-pkgz/notify"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacvision/tunetrack/app/finetune"
	"github.com/jacvision/tunetrack/app/notify/mocks"
)

var testJob = finetune.Job{TaskID: "abc123", Model: "llava-7b", Dataset: "coco-captions", AppName: "app1",
	Status: finetune.StatusFailed, Progress: 40}

func TestService_EmptyDestinations(t *testing.T) {
	svc := NewService(Params{}, SendersParams{})
	require.Nil(t, svc)

	svc = NewService(Params{}, SendersParams{SlackToken: "token"})
	require.Nil(t, svc, "slack without channels")
}

func TestService_Destinations(t *testing.T) {
	svc := NewService(Params{}, SendersParams{ToEmails: []string{"test@example.com"}, SlackToken: "token",
		SlackChannels: []string{"general"}, WebhookURLs: []string{"https://example.com/hook"}})
	require.NotNil(t, svc)
	assert.Len(t, svc.destinations, 3)
	assert.Nil(t, svc.repeater)

	svc = NewService(Params{}, SendersParams{WebhookURLs: []string{"https://example.com/hook"}, Retries: 3})
	require.NotNil(t, svc)
	assert.Len(t, svc.destinations, 1)
	assert.NotNil(t, svc.repeater)
}

func TestMakeErrorHTMLDefault(t *testing.T) {
	svc := NewService(Params{HostName: "host1"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeErrorHTML(testJob, "CUDA out of memory")
	require.NoError(t, err)
	assert.Contains(t, res, "Fine-tuning failed on <span class=\"bold\">host1</span>")
	assert.Contains(t, res, "<li>Task: <span class=\"bold\">abc123</span></li>")
	assert.Contains(t, res, "<li>Model: <span class=\"bold\">llava-7b</span></li>")
	assert.Contains(t, res, "<li>Dataset: <span class=\"bold\">coco-captions</span></li>")
	assert.Contains(t, res, "progress 40%")
	assert.Contains(t, res, "CUDA out of memory")

	res, err = svc.MakeErrorHTML(finetune.Job{Model: "llava-7b"}, "invalid dataset: dataset is required")
	require.NoError(t, err)
	assert.Contains(t, res, "not submitted")
	assert.NotContains(t, res, "Status:")
}

func TestMakeErrorHTMLCustom(t *testing.T) {
	svc := NewService(Params{ErrorTemplate: "testfiles/err.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeErrorHTML(testJob, "some log")
	require.NoError(t, err)
	assert.Contains(t, res, "Fine-tuning failed: llava-7b on coco-captions")
	assert.Contains(t, res, "Task: abc123")
	assert.Contains(t, res, "some log")

	svc = NewService(Params{ErrorTemplate: "testfiles/err-bad.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err = svc.MakeErrorHTML(testJob, "some log")
	require.NoError(t, err)
	assert.Contains(t, res, "<li>Model: <span class=\"bold\">llava-7b</span></li>", "default template used")

	svc = NewService(Params{ErrorTemplate: "testfiles/missing.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err = svc.MakeErrorHTML(testJob, "some log")
	require.NoError(t, err)
	assert.Contains(t, res, "Fine-tuning failed on")
}

func TestMakeCompletionHTMLDefault(t *testing.T) {
	svc := NewService(Params{}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	job := testJob
	job.Status, job.Progress = finetune.StatusCompleted, 100
	res, err := svc.MakeCompletionHTML(job)
	require.NoError(t, err)
	assert.Contains(t, res, "Fine-tuning completed on")
	assert.Contains(t, res, "<li>Task: <span class=\"bold\">abc123</span></li>")
	assert.Contains(t, res, "<li>App: <span class=\"bold\">app1</span></li>")
}

func TestMakeCompletionHTMLCustom(t *testing.T) {
	svc := NewService(Params{CompletionTemplate: "testfiles/completed.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err := svc.MakeCompletionHTML(testJob)
	require.NoError(t, err)
	assert.Contains(t, res, "Fine-tuning done: llava-7b on coco-captions")
	assert.Contains(t, res, "Task: abc123")

	svc = NewService(Params{CompletionTemplate: "testfiles/completed-bad.tmpl"}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	res, err = svc.MakeCompletionHTML(testJob)
	require.NoError(t, err)
	assert.Contains(t, res, "<li>Model: <span class=\"bold\">llava-7b</span></li>")
}

func TestService_IsOnCompletion(t *testing.T) {
	svc := NewService(Params{EnabledCompletion: true}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.True(t, svc.IsOnCompletion())

	svc = NewService(Params{EnabledCompletion: false}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.False(t, svc.IsOnCompletion())
}

func TestService_IsOnError(t *testing.T) {
	svc := NewService(Params{EnabledError: true}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.True(t, svc.IsOnError())

	svc = NewService(Params{EnabledError: false}, SendersParams{ToEmails: []string{"test@example.com"}})
	require.NotNil(t, svc)
	assert.False(t, svc.IsOnError())
}

func TestService_Send(t *testing.T) {
	tests := []struct {
		name           string
		subj           string
		text           string
		destination    string
		mockSendErr    error
		expectedErrMsg string
	}{
		{
			name:        "Successful Send",
			subj:        "Test Subject",
			text:        "Test Text",
			destination: "mailto:to@example.com,to2@example.com?from=from@example.com&subject=Test+Subject",
			mockSendErr: nil,
		},
		{
			name:           "Send Error",
			subj:           "Problem Subject",
			text:           "Problem Text",
			destination:    "mailto:to@example.com,to2@example.com?from=from@example.com&subject=Problem+Subject",
			mockSendErr:    errors.New("mock error"),
			expectedErrMsg: "mock error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailtoNotifier := &mocks.NotifierMock{
				SendFunc: func(_ context.Context, dest string, text string) error {
					assert.Equal(t, tt.text, text)
					assert.Equal(t, tt.destination, dest)
					return tt.mockSendErr
				},
				SchemaFunc: func() string {
					return "mailto"
				},
			}

			s := Service{
				destinations: []notify.Notifier{mailtoNotifier},
				fromEmail:    "from@example.com",
				toEmail:      []string{"to@example.com", "to2@example.com"},
			}

			err := s.Send(context.Background(), tt.subj, tt.text)
			assert.Len(t, mailtoNotifier.SendCalls(), 1)
			if tt.expectedErrMsg == "" {
				require.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.expectedErrMsg)
			}
		})
	}
}

func TestService_SendAllDestinations(t *testing.T) {
	var dests []string
	mk := func(schema string, err error) *mocks.NotifierMock {
		return &mocks.NotifierMock{
			SendFunc: func(_ context.Context, dest string, _ string) error {
				dests = append(dests, dest)
				return err
			},
			SchemaFunc: func() string { return schema },
		}
	}
	slack := mk("slack", nil)
	webhook := mk("http", errors.New("hook is down"))
	s := Service{
		destinations:  []notify.Notifier{slack, webhook},
		slackChannels: []string{"general", "ml"},
		webhookURLs:   []string{"https://example.com/hook1", "https://example.com/hook2"},
	}

	err := s.Send(context.Background(), "job done", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook is down")
	assert.Equal(t, []string{"slack:general?title=job+done", "slack:ml?title=job+done",
		"https://example.com/hook1", "https://example.com/hook2"}, dests, "failed destination doesn't stop others")
}

func TestService_SendRetries(t *testing.T) {
	calls := 0
	hook := &mocks.NotifierMock{
		SendFunc: func(context.Context, string, string) error {
			calls++
			if calls < 3 {
				return errors.New("temporary")
			}
			return nil
		},
		SchemaFunc: func() string { return "http" },
	}
	s := Service{
		destinations: []notify.Notifier{hook},
		webhookURLs:  []string{"https://example.com/hook"},
		repeater:     repeater.New(&strategy.FixedDelay{Repeats: 3, Delay: time.Millisecond}),
	}
	require.NoError(t, s.Send(context.Background(), "subj", "text"))
	assert.Equal(t, 3, calls)
}

func TestService_String(t *testing.T) {
	s := Service{destinations: []notify.Notifier{
		&mocks.NotifierMock{StringFunc: func() string { return "email: smtp.example.com:25" }},
		&mocks.NotifierMock{StringFunc: func() string { return "webhook notifier" }},
	}}
	assert.Equal(t, "email: smtp.example.com:25, webhook notifier", s.String())
}
