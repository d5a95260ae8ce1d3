package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rowjay/pkgcache/internal/config"
)

const (
	EventPush      = "package.push"
	EventBootstrap = "storage.bootstrap"
	EventTest      = "storage.test"
	EventSweep     = "staging.sweep"

	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusFailure = "failure"
)

// Event describes a completed package or storage operation.
type Event struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Slug      string    `json:"slug,omitempty"`
	Bucket    string    `json:"bucket,omitempty"`
	Key       string    `json:"key,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

// NewEvent stamps timing fields from start to now.
func NewEvent(kind, status, message string, start time.Time) Event {
	end := time.Now().UTC()
	return Event{
		Type:      kind,
		Status:    status,
		Message:   message,
		StartedAt: start.UTC(),
		EndedAt:   end,
		Duration:  end.Sub(start).Round(time.Millisecond).String(),
	}
}

// Notifier delivers events. Failures are reported to the caller and never
// change the outcome of the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Multi struct {
	Targets []Notifier
}

// Notify delivers to every target and joins their failures.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	return post(ctx, "webhook "+w.Name, w.URL, w.Headers, event)
}

// Mattermost posts a one-line summary to an incoming webhook.
type Mattermost struct {
	Name string
	URL  string
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	return post(ctx, "mattermost "+m.Name, m.URL, nil, map[string]string{"text": summary(event)})
}

// Matrix sends an m.text message to a room through the client-server API.
type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/pkgcache-%d",
		strings.TrimSuffix(m.ServerURL, "/"), url.PathEscape(m.RoomID), time.Now().UnixNano())
	headers := map[string]string{"Authorization": "Bearer " + m.AccessToken}
	return postMethod(ctx, http.MethodPut, "matrix "+m.Name, endpoint, headers, map[string]string{
		"msgtype": "m.text",
		"body":    summary(event),
	})
}

func post(ctx context.Context, target, endpoint string, headers map[string]string, payload any) error {
	return postMethod(ctx, http.MethodPost, target, endpoint, headers, payload)
}

func postMethod(ctx context.Context, method, target, endpoint string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", target, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return nil
}

// FromConfig builds one target per configured hook.
func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	return Multi{Targets: targets}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func summary(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", event.Status)
	if event.Slug != "" {
		b.WriteString(event.Slug + ": ")
	}
	b.WriteString(event.Message)
	if event.Error != "" {
		b.WriteString(" (" + event.Error + ")")
	}
	return b.String()
}
