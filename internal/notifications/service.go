package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"milltrack/internal/config"
)

const userAgent = "Milltrack/0.1.0"

// Service defines the notification surface exposed to the core components.
// Calls are best-effort: the triggering write has already committed when a
// notification is dispatched, and failures are never propagated back.
type Service interface {
	NotifyBatchCreated(ctx context.Context, reference, methodName, inputLot string) error
	NotifyBatchCompleted(ctx context.Context, reference, methodName string) error
	NotifyBatchCancelled(ctx context.Context, reference, reason string) error
	NotifyDisposalRecorded(ctx context.Context, wasteID int64, quantity, remaining float64) error
	NotifyDisposalAssigned(ctx context.Context, disposalID int64, handlerName string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by an ntfy-compatible
// topic when configured. When no topic is configured, a noop
// implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.Topic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		batchEvents:    cfg.Notifications.BatchEvents,
		disposalEvents: cfg.Notifications.DisposalEvents,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	batchEvents    bool
	disposalEvents bool
}

func (n *ntfyService) NotifyBatchCreated(ctx context.Context, reference, methodName, inputLot string) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:   "Milltrack - Batch Created",
		message: fmt.Sprintf("Batch %s started: %s (%s)", shortRef(reference), strings.TrimSpace(inputLot), strings.TrimSpace(methodName)),
		tags:    []string{"milltrack", "batch", "created"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, reference, methodName string) error {
	if !n.batchEvents {
		return nil
	}
	data := payload{
		title:    "Milltrack - Batch Complete",
		message:  fmt.Sprintf("Batch %s finished all %s stages", shortRef(reference), strings.TrimSpace(methodName)),
		tags:     []string{"milltrack", "batch", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCancelled(ctx context.Context, reference, reason string) error {
	if !n.batchEvents {
		return nil
	}
	message := fmt.Sprintf("Batch %s cancelled", shortRef(reference))
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s: %s", message, reason)
	}
	data := payload{
		title:   "Milltrack - Batch Cancelled",
		message: message,
		tags:    []string{"milltrack", "batch", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDisposalRecorded(ctx context.Context, wasteID int64, quantity, remaining float64) error {
	if !n.disposalEvents {
		return nil
	}
	data := payload{
		title:   "Milltrack - Waste Disposed",
		message: fmt.Sprintf("Disposed %.2f kg of waste item %d (%.2f kg remaining)", quantity, wasteID, remaining),
		tags:    []string{"milltrack", "disposal", "recorded"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDisposalAssigned(ctx context.Context, disposalID int64, handlerName string) error {
	if !n.disposalEvents {
		return nil
	}
	data := payload{
		title:   "Milltrack - Disposal Assigned",
		message: fmt.Sprintf("Disposal %d assigned to %s", disposalID, strings.TrimSpace(handlerName)),
		tags:    []string{"milltrack", "disposal", "assigned"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Milltrack - Test",
		message:  "Notification system test",
		tags:     []string{"milltrack", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("notification endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortRef(reference string) string {
	reference = strings.TrimSpace(reference)
	if len(reference) > 8 {
		return reference[:8]
	}
	return reference
}

type noopService struct{}

func (noopService) NotifyBatchCreated(context.Context, string, string, string) error { return nil }

func (noopService) NotifyBatchCompleted(context.Context, string, string) error { return nil }

func (noopService) NotifyBatchCancelled(context.Context, string, string) error { return nil }

func (noopService) NotifyDisposalRecorded(context.Context, int64, float64, float64) error {
	return nil
}

func (noopService) NotifyDisposalAssigned(context.Context, int64, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
