package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Abir7109/neon-trace-backend/internal/errors"
	"github.com/Abir7109/neon-trace-backend/internal/metrics"
)

const (
	defaultV1BaseURL = "https://fcm.googleapis.com"
	defaultLegacyURL = "https://fcm.googleapis.com/fcm/send"

	// Modern protocol: per-token sends issued in concurrent windows.
	defaultWindowSize = 10
	// Legacy protocol: maximum registration ids per batch.
	legacyBatchLimit = 900

	sendTimeout = 20 * time.Second
)

// Notification is one message fanned out to many recipients.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Result is the partial-failure accounting for one broadcast.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// TokenSource yields a valid bearer token for the modern protocol.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Dispatcher delivers one notification to N recipient tokens. It prefers the
// modern per-token protocol when a service identity is configured, falls back
// to the legacy batch protocol when only a static server key is present, and
// fails with a configuration error when neither is.
type Dispatcher struct {
	creds      TokenSource // nil when the modern protocol is unconfigured
	projectID  string
	serverKey  string
	httpClient *http.Client
	windowSize int
	v1BaseURL  string // configurable for testing
	legacyURL  string // configurable for testing
}

func NewDispatcher(creds TokenSource, projectID, serverKey string) *Dispatcher {
	return &Dispatcher{
		creds:      creds,
		projectID:  projectID,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: sendTimeout},
		windowSize: defaultWindowSize,
		v1BaseURL:  defaultV1BaseURL,
		legacyURL:  defaultLegacyURL,
	}
}

// Broadcast sends the notification to every recipient token and reports
// aggregate counts. Per-recipient and per-batch failures are swallowed into
// the failure counter and never abort the broadcast.
func (d *Dispatcher) Broadcast(ctx context.Context, recipients []string, note Notification) (Result, error) {
	start := time.Now()
	defer func() { metrics.PushBroadcastDuration.Observe(time.Since(start).Seconds()) }()

	switch {
	case d.creds != nil && d.projectID != "":
		return d.broadcastV1(ctx, recipients, note)
	case d.serverKey != "":
		return d.broadcastLegacy(ctx, recipients, note)
	default:
		return Result{}, apperrors.ConfigurationError("missing delivery credentials")
	}
}

// broadcastV1 issues one send per recipient, at most windowSize in flight.
// Window k+1 does not start until every request in window k has settled.
func (d *Dispatcher) broadcastV1(ctx context.Context, recipients []string, note Notification) (Result, error) {
	bearer, err := d.creds.Token(ctx)
	if err != nil {
		return Result{}, err
	}

	var sent, failed atomic.Int64
	for lo := 0; lo < len(recipients); lo += d.windowSize {
		hi := lo + d.windowSize
		if hi > len(recipients) {
			hi = len(recipients)
		}

		var wg sync.WaitGroup
		for _, token := range recipients[lo:hi] {
			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				if err := d.sendV1(ctx, bearer, token, note); err != nil {
					failed.Add(1)
					slog.Debug("Push send failed", "protocol", "v1", "error", err)
					return
				}
				sent.Add(1)
			}(token)
		}
		wg.Wait()
	}

	metrics.PushSentTotal.WithLabelValues("v1").Add(float64(sent.Load()))
	metrics.PushFailedTotal.WithLabelValues("v1").Add(float64(failed.Load()))

	return Result{
		Sent:   int(sent.Load()),
		Failed: int(failed.Load()),
		Total:  len(recipients),
	}, nil
}

func (d *Dispatcher) sendV1(ctx context.Context, bearer, recipient string, note Notification) error {
	payload := map[string]any{
		"message": map[string]any{
			"token": recipient,
			"notification": map[string]string{
				"title": note.Title,
				"body":  note.Body,
			},
		},
	}
	if len(note.Data) > 0 {
		payload["message"].(map[string]any)["data"] = note.Data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", d.v1BaseURL, d.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send rejected with status %d: %s", resp.StatusCode, string(raw))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// broadcastLegacy posts sequential batches of at most legacyBatchLimit
// registration ids. A batch-level transport failure counts the whole batch
// as failed; otherwise the provider's success/failure counts are summed.
func (d *Dispatcher) broadcastLegacy(ctx context.Context, recipients []string, note Notification) (Result, error) {
	result := Result{Total: len(recipients)}

	for lo := 0; lo < len(recipients); lo += legacyBatchLimit {
		hi := lo + legacyBatchLimit
		if hi > len(recipients) {
			hi = len(recipients)
		}
		batch := recipients[lo:hi]

		success, failure, err := d.sendLegacyBatch(ctx, batch, note)
		if err != nil {
			slog.Debug("Legacy batch failed", "size", len(batch), "error", err)
			result.Failed += len(batch)
			continue
		}
		result.Sent += success
		result.Failed += failure
	}

	metrics.PushSentTotal.WithLabelValues("legacy").Add(float64(result.Sent))
	metrics.PushFailedTotal.WithLabelValues("legacy").Add(float64(result.Failed))

	return result, nil
}

func (d *Dispatcher) sendLegacyBatch(ctx context.Context, batch []string, note Notification) (success, failure int, err error) {
	payload := map[string]any{
		"notification": map[string]string{
			"title": note.Title,
			"body":  note.Body,
		},
		"registration_ids": batch,
	}
	if len(note.Data) > 0 {
		payload["data"] = note.Data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to marshal batch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.legacyURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+d.serverKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read batch response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("batch rejected with status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Success int `json:"success"`
		Failure int `json:"failure"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, 0, fmt.Errorf("batch response is malformed: %w", err)
	}
	return parsed.Success, parsed.Failure, nil
}
