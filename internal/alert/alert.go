package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazz-dev/checkhttp/internal/checker"
	"github.com/hazz-dev/checkhttp/internal/checking"
)

// Alerter sends webhook notifications when the state of a check changes.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	lastAlert  map[string]time.Time
	mu         sync.Mutex
	inflight   sync.WaitGroup
	logger     *slog.Logger
}

// New creates a new Alerter. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		lastAlert:  make(map[string]time.Time),
		logger:     logger,
	}
}

type webhookPayload struct {
	Check          string `json:"check"`
	State          string `json:"state"`
	PreviousState  string `json:"previous_state"`
	Summary        string `json:"summary"`
	Details        string `json:"details"`
	Perfdata       string `json:"perfdata"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	CheckedAt      string `json:"checked_at"`
	Source         string `json:"source"`
}

// Notify sends a webhook if the check state has changed and the cooldown has elapsed.
func (a *Alerter) Notify(result checker.Result, previous *checking.Severity) {
	// No previous state means first run.
	if previous == nil {
		return
	}
	if result.State == *previous {
		return
	}

	a.mu.Lock()
	last, exists := a.lastAlert[result.CheckName]
	if exists && time.Since(last) < a.cooldown {
		a.mu.Unlock()
		a.logger.Info("alert suppressed by cooldown", "check", result.CheckName)
		return
	}
	a.lastAlert[result.CheckName] = time.Now()
	a.mu.Unlock()

	// Send asynchronously so Notify doesn't block the scheduler.
	a.inflight.Add(1)
	go func(prev checking.Severity) {
		defer a.inflight.Done()
		a.send(result, prev)
	}(*previous)
}

// Wait blocks until every webhook already queued by Notify has been sent.
func (a *Alerter) Wait() {
	a.inflight.Wait()
}

func (a *Alerter) send(result checker.Result, previous checking.Severity) {
	payload := webhookPayload{
		Check:          result.CheckName,
		State:          result.State.String(),
		PreviousState:  previous.String(),
		Summary:        result.Report.Headline(),
		Details:        result.Report.DetailsString(),
		Perfdata:       result.Report.PerfdataString(),
		ResponseTimeMs: result.ResponseTime.Milliseconds(),
		CheckedAt:      result.CheckedAt.UTC().Format(time.RFC3339),
		Source:         "checkhttp",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling webhook payload", "check", result.CheckName, "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending webhook", "check", result.CheckName, "url", a.webhookURL, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("webhook returned non-2xx status",
			"check", result.CheckName,
			"status", resp.StatusCode,
		)
	}
}
