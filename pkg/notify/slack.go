package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSlackUsername  = "snowclient"
	defaultSlackQueueSize = 64

	colorError = "#dc3545"
)

// SlackConfig holds configuration for a Slack notifier
type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
	// PostEphemeral delivers ephemeral progress messages too
	PostEphemeral bool
	// QueueSize bounds the number of undelivered messages
	QueueSize int
}

// Slack posts messages to a Slack incoming webhook from a background
// goroutine. Messages that do not fit in the queue are dropped.
type Slack struct {
	webhookURL    string
	channel       string
	username      string
	postEphemeral bool
	httpClient    *http.Client
	logger        *zap.Logger

	queue     chan slackMessage
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// slackMessage represents a Slack webhook message
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Fallback  string `json:"fallback"`
	Color     string `json:"color"`
	Title     string `json:"title"`
	Text      string `json:"text,omitempty"`
	Footer    string `json:"footer,omitempty"`
	Timestamp int64  `json:"ts,omitempty"`
}

// NewSlack creates a Slack notifier and starts its delivery goroutine
func NewSlack(cfg SlackConfig, logger *zap.Logger) (*Slack, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("slack notifier requires a webhook URL")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	username := cfg.Username
	if username == "" {
		username = defaultSlackUsername
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultSlackQueueSize
	}

	s := &Slack{
		webhookURL:    cfg.WebhookURL,
		channel:       cfg.Channel,
		username:      username,
		postEphemeral: cfg.PostEphemeral,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(zap.String("component", "slack-notifier")),
		queue:  make(chan slackMessage, size),
		done:   make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// SetHTTPClient replaces the HTTP client. Must be called before the first
// message is posted.
func (s *Slack) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// PostMessage queues a progress message
func (s *Slack) PostMessage(_ context.Context, text string, ephemeral bool) {
	if ephemeral && !s.postEphemeral {
		return
	}
	s.enqueue(slackMessage{
		Channel:  s.channel,
		Username: s.username,
		Text:     text,
	})
}

// PostError queues an error message
func (s *Slack) PostError(_ context.Context, text string) {
	s.enqueue(slackMessage{
		Channel:  s.channel,
		Username: s.username,
		Attachments: []slackAttachment{
			{
				Fallback:  text,
				Color:     colorError,
				Title:     "Error",
				Text:      text,
				Footer:    s.username,
				Timestamp: time.Now().Unix(),
			},
		},
	})
}

func (s *Slack) enqueue(msg slackMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.logger.Warn("slack notifier is closed, dropping message")
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.logger.Warn("slack queue is full, dropping message")
	}
}

func (s *Slack) run() {
	defer close(s.done)
	for msg := range s.queue {
		if err := s.send(context.Background(), msg); err != nil {
			s.logger.Warn("failed to deliver slack message", zap.Error(err))
		}
	}
}

func (s *Slack) send(ctx context.Context, msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-OK status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close stops accepting messages and waits until the queued ones are
// delivered or ctx is done.
func (s *Slack) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Notifier = (*Slack)(nil)
