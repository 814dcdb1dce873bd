// Package notify delivers driver terminal-state notifications as
// CloudEvents over HTTP webhooks.
//
// Notifications are queued in a bounded channel and delivered by a
// worker pool with retry and per-host circuit breaking. When the buffer
// is full, notifications are dropped (logged + counted) rather than
// blocking driver supervision.
package notify

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"driverd/internal/driver"
	"driverd/pkg/backoff"
	"driverd/pkg/circuitbreaker"
	"driverd/pkg/cloudevent"
)

// CloudEvent attributes for driver state notifications.
const (
	EventTypeState = "driverd.driver.state"
	eventSource    = "driverd/worker"
)

// MetricsRecorder is an optional interface for recording delivery metrics.
type MetricsRecorder interface {
	RecordNotifyDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifyFailed(ctx context.Context)
	RecordNotifyDropped(ctx context.Context)
	RecordNotifyRequeued(ctx context.Context)
	RecordNotifyQueueSize(ctx context.Context, size int64)
}

// Stats holds notifier delivery statistics.
type Stats struct {
	QueueDepth    int
	Queued        int64
	Delivered     int64
	Failed        int64
	Dropped       int64
	Requeued      int64
	RetriesTotal  int64
	BreakersTotal int
	BreakersOpen  int
}

// pending wraps a notification with its requeue count.
type pending struct {
	n        driver.Notification
	requeues int
}

// Webhook is the production driver.Notifier.
type Webhook struct {
	queue    chan *pending
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   Config
	policy   backoff.Policy
	logger   *slog.Logger
	metrics  MetricsRecorder

	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// NewWebhook creates a webhook notifier and starts its worker pool.
func NewWebhook(cfg Config, metrics MetricsRecorder) *Webhook {
	cfg = cfg.withDefaults()

	w := &Webhook{
		queue:    make(chan *pending, cfg.BufferSize),
		sender:   cloudevent.NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(defaultBreakerThreshold, defaultBreakerCooldown),
		config:   cfg,
		policy:   backoff.Default,
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.worker()
	}

	if metrics != nil {
		go w.reportQueueSize()
	}

	w.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return w
}

// reportQueueSize periodically reports the queue size metric.
func (w *Webhook) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.metrics.RecordNotifyQueueSize(context.Background(), int64(len(w.queue)))
		}
	}
}

// Notify queues a notification for async delivery. A notification with
// no callback URL falls back to the configured default destination; if
// neither is set it is silently skipped. Notify never blocks.
func (w *Webhook) Notify(n driver.Notification) {
	if n.Callback.URL == "" {
		n.Callback.URL = w.config.DefaultURL
		n.Callback.Key = w.config.DefaultKey
	}
	if n.Callback.URL == "" {
		w.logger.Debug("No notification destination, skipping", "driverId", n.DriverID)
		return
	}

	if w.closed.Load() {
		w.drop(n, "notifier closed")
		return
	}

	select {
	case w.queue <- &pending{n: n}:
		w.queued.Add(1)
	default:
		w.drop(n, "buffer full")
	}
}

func (w *Webhook) drop(n driver.Notification, reason string) {
	w.dropped.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifyDropped(context.Background())
	}
	w.logger.Warn("Notification dropped",
		"reason", reason,
		"driverId", n.DriverID,
		"destination", extractHost(n.Callback.URL),
	)
}

// Stats returns current notifier statistics.
func (w *Webhook) Stats() Stats {
	breakerStats := w.breakers.Stats()
	return Stats{
		QueueDepth:    len(w.queue),
		Queued:        w.queued.Load(),
		Delivered:     w.delivered.Load(),
		Failed:        w.failed.Load(),
		Dropped:       w.dropped.Load(),
		Requeued:      w.requeued.Load(),
		RetriesTotal:  w.retriesTotal.Load(),
		BreakersTotal: breakerStats.Total,
		BreakersOpen:  breakerStats.Open,
	}
}

// Close stops accepting notifications and waits for workers to drain the
// queue, up to the context deadline.
func (w *Webhook) Close(ctx context.Context) error {
	if w.closed.Swap(true) {
		return nil
	}

	w.logger.Info("Notifier shutting down", "queued", len(w.queue))
	close(w.shutdown)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Notifier shutdown complete",
			"delivered", w.delivered.Load(),
			"failed", w.failed.Load(),
			"dropped", w.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		w.logger.Warn("Notifier shutdown timed out", "remaining", len(w.queue))
		return ctx.Err()
	}
}

// worker processes notifications from the queue.
func (w *Webhook) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.shutdown:
			// Drain remaining notifications before exiting
			w.drainQueue()
			return
		case p := <-w.queue:
			w.deliver(p)
		}
	}
}

// drainQueue delivers remaining notifications after the shutdown signal.
func (w *Webhook) drainQueue() {
	for {
		select {
		case p := <-w.queue:
			w.deliver(p)
		default:
			return
		}
	}
}

// deliver attempts to deliver a notification with retry and circuit
// breaking.
func (w *Webhook) deliver(p *pending) {
	host := extractHost(p.n.Callback.URL)
	breaker := w.breakers.Get(host)

	if !breaker.Allow() {
		w.requeue(p, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	err := w.sendWithRetry(ctx, p.n)
	breaker.Observe(err == nil)
	if err != nil {
		w.failed.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifyFailed(ctx)
		}
		w.logger.Warn("Delivery failed", "destination", host, "driverId", p.n.DriverID, "error", err)
		return
	}

	w.delivered.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue puts a notification back in the queue after a delay when the
// destination's circuit is open.
func (w *Webhook) requeue(p *pending, host string) {
	if p.requeues >= defaultMaxRequeues {
		w.dropped.Add(1)
		if w.metrics != nil {
			w.metrics.RecordNotifyDropped(context.Background())
		}
		w.logger.Warn("Notification dropped, max requeues reached",
			"destination", host,
			"driverId", p.n.DriverID,
			"requeues", p.requeues,
		)
		return
	}

	p.requeues++
	requeues := p.requeues // capture for goroutine
	w.requeued.Add(1)
	if w.metrics != nil {
		w.metrics.RecordNotifyRequeued(context.Background())
	}

	// Requeue after the cooldown so the circuit has time to recover
	go func() {
		select {
		case <-w.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case w.queue <- p:
			w.logger.Debug("Notification requeued", "destination", host, "driverId", p.n.DriverID, "requeues", requeues)
		case <-w.shutdown:
		default:
			w.dropped.Add(1)
			if w.metrics != nil {
				w.metrics.RecordNotifyDropped(context.Background())
			}
			w.logger.Warn("Notification dropped on requeue, buffer full", "destination", host, "driverId", p.n.DriverID)
		}
	}()
}

func (w *Webhook) sendWithRetry(ctx context.Context, n driver.Notification) error {
	event := buildEvent(n)

	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			w.retriesTotal.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.policy.Delay(attempt)):
			}
		}

		lastErr = w.sender.Send(ctx, n.Callback.URL, event, n.Callback.Key)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// buildEvent renders a notification as a CloudEvent.
func buildEvent(n driver.Notification) *cloudevent.CloudEvent {
	data := map[string]any{
		"driverId": n.DriverID,
		"state":    string(n.State),
		"exitCode": n.ExitCode,
	}
	if n.Err != nil {
		data["error"] = n.Err.Error()
	}
	if len(n.Meta) > 0 {
		data["meta"] = n.Meta
	}
	return cloudevent.New(EventTypeState, eventSource, n.DriverID, uuid.NewString(), data)
}

// extractHost extracts the host from a URL for circuit breaker keying.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Verify Webhook implements driver.Notifier
var _ driver.Notifier = (*Webhook)(nil)
