package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/AaronLay10/curaflow/internal/engine"
	"github.com/AaronLay10/curaflow/internal/version"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertRunFailed           = "run_failed"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Service   string         `json:"service"`
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type dependency struct {
	alert     string
	severity  string
	message   string
	delay     time.Duration
	up        bool
	downSince time.Time
	alerted   bool
}

// Alerter posts alerts to a webhook: runs that end with failed nodes, and
// backends that stay disconnected longer than their delay. Without a
// webhook URL alerts are only logged.
type Alerter struct {
	webhookURL string
	service    string
	client     *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu   sync.Mutex
	deps map[string]*dependency
	wg   sync.WaitGroup
}

func NewAlerter(webhookURL, service string, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		service:    service,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
		deps:       make(map[string]*dependency),
	}
}

// Watch registers a backend for Check. It starts out connected.
func (a *Alerter) Watch(name, alert, severity, message string, delay time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deps[name] = &dependency{alert: alert, severity: severity, message: message, delay: delay, up: true}
}

// Check records the state of a watched backend. It alerts once when the
// backend has been down for its delay, and once more when it recovers.
func (a *Alerter) Check(name string, connected bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, ok := a.deps[name]
	if !ok {
		return
	}
	now := a.now()

	if connected {
		if !d.up && d.alerted {
			a.send(d.alert, SeverityInfo, d.message+" restored", map[string]any{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		d.up, d.alerted, d.downSince = true, false, time.Time{}
		return
	}

	if d.up {
		d.downSince = now
	}
	d.up = false

	down := now.Sub(d.downSince)
	if !d.alerted && down >= d.delay {
		d.alerted = true
		a.send(d.alert, d.severity, d.message+" unavailable", map[string]any{
			"disconnected_since":   d.downSince.UTC().Format(time.RFC3339),
			"disconnected_seconds": int(down.Seconds()),
		})
	}
}

// Emit alerts on run summaries that report failed nodes.
func (a *Alerter) Emit(runID string, e engine.Event) {
	if !e.IsSummary() || e.Failed == 0 {
		return
	}
	a.send(AlertRunFailed, SeverityWarning, "run finished with failed nodes", map[string]any{
		"run_id":    runID,
		"total":     e.Total,
		"completed": e.Completed,
		"failed":    e.Failed,
		"skipped":   e.Skipped,
	})
}

// Monitor checks the readiness backends every interval until ctx is done.
func (a *Alerter) Monitor(ctx context.Context, interval time.Duration, r *Readiness) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.MQTTEnabled {
				a.Check("mqtt", r.MQTTConnected())
			}
			if r.PostgresEnabled {
				a.Check("postgres", r.PostgresConnected())
			}
		}
	}
}

// Wait blocks until in-flight webhook requests are done.
func (a *Alerter) Wait() { a.wg.Wait() }

func (a *Alerter) send(event, severity, message string, details map[string]any) {
	if a.webhookURL == "" {
		a.logger.Warn("alert", "event", event, "severity", severity, "msg", message, "details", details)
		return
	}
	payload := AlertPayload{
		Service:   a.service,
		Event:     event,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.post(payload)
	}()
}

func (a *Alerter) post(payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("alert: failed to marshal payload", "err", err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		a.logger.Error("alert: bad webhook request", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Warn("alert: webhook POST failed", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		a.logger.Warn("alert: webhook returned error status", "status", resp.StatusCode)
	}
}
