package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"loadharness/pkg/webhook"
)

// ErrBufferFull is returned when the notifier's buffer is full and the event
// is dropped.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

const (
	defaultBufferSize  = 256
	defaultWorkers     = 2
	defaultHTTPTimeout = 10 * time.Second
	maxRetries         = 3
	baseRetryDelay     = 500 * time.Millisecond
	maxRetryDelay      = 10 * time.Second
)

// Config configures a Notifier.
type Config struct {
	URL         string // destination; empty disables publishing
	SigningKey  string // HMAC key, empty = unsigned
	BufferSize  int
	Workers     int
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

// MetricsRecorder is an optional sink for delivery metrics.
type MetricsRecorder interface {
	RecordWebhookDelivered(ctx context.Context, durationSeconds float64)
	RecordWebhookFailed(ctx context.Context)
	RecordWebhookDropped(ctx context.Context)
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth int   // current queue size
	Queued     int64 // total events queued
	Delivered  int64 // successful deliveries
	Failed     int64 // failed after retries
	Dropped    int64 // dropped due to full buffer
}

// Notifier delivers events to the webhook URL from a bounded queue with a
// worker pool. A full buffer drops the event (logged + metric incremented)
// rather than blocking the job path.
type Notifier struct {
	queue   chan Event
	sender  *webhook.Sender
	config  Config
	logger  *slog.Logger
	metrics MetricsRecorder

	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// New creates a notifier and starts its workers. With an empty URL the
// notifier accepts and discards events, so callers never need a nil check.
func New(cfg Config, metrics MetricsRecorder) *Notifier {
	cfg = cfg.withDefaults()

	n := &Notifier{
		queue:    make(chan Event, cfg.BufferSize),
		sender:   webhook.NewSender(cfg.HTTPTimeout),
		config:   cfg,
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	if cfg.URL == "" {
		n.logger.Info("Webhook notifications disabled")
		return n
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return n
}

// Publish queues an event for async delivery. Non-blocking.
func (n *Notifier) Publish(event Event) error {
	if n.config.URL == "" || n.closed.Load() {
		return nil
	}

	select {
	case n.queue <- event:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordWebhookDropped(context.Background())
		}
		n.logger.Warn("Event dropped, buffer full", "type", event.Type, "jobId", event.JobID)
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *Notifier) Stats() Stats {
	return Stats{
		QueueDepth: len(n.queue),
		Queued:     n.queued.Load(),
		Delivered:  n.delivered.Load(),
		Failed:     n.failed.Load(),
		Dropped:    n.dropped.Load(),
	}
}

// Close shuts the notifier down, draining queued events until the context
// deadline.
func (n *Notifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil
	}
	if n.config.URL == "" {
		return nil
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			n.drainQueue()
			return
		case event := <-n.queue:
			n.deliver(event)
		}
	}
}

func (n *Notifier) drainQueue() {
	for {
		select {
		case event := <-n.queue:
			n.deliver(event)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, event); err != nil {
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordWebhookFailed(ctx)
		}
		n.logger.Warn("Delivery failed", "type", event.Type, "jobId", event.JobID, "error", err)
		return
	}

	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordWebhookDelivered(ctx, time.Since(start).Seconds())
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, event Event) error {
	opts := webhook.SendOptions{
		SigningKey: n.config.SigningKey,
		EventType:  event.Type,
		EventID:    event.ID,
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay(attempt)):
			}
		}

		lastErr = n.sender.Send(ctx, n.config.URL, event, opts)
		if lastErr == nil {
			return nil
		}
		if webhook.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// retryDelay doubles per attempt, capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	d := baseRetryDelay << (attempt - 1)
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
