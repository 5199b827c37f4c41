package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// BookingHandler processes one confirmed booking.
type BookingHandler func(ctx context.Context, b model.Booking) error

type Config struct {
	Channel    string
	EventType  string
	MaxRetries int
	RetryDelay time.Duration
}

// BookingEventWorker consumes booking events from the broker and hands each
// confirmed booking to a handler, retrying with linear backoff.
type BookingEventWorker struct {
	broker   messaging.Broker
	handle   BookingHandler
	cfg      Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	workerID string
}

type envelope struct {
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewBookingEventWorker(cfg Config, broker messaging.Broker, handle BookingHandler, log *logger.Logger, m *metrics.Metrics) *BookingEventWorker {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	workerID := fmt.Sprintf("worker-%s", generateWorkerID())
	return &BookingEventWorker{
		broker:   broker,
		handle:   handle,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"worker_id": workerID}),
		metrics:  m,
		workerID: workerID,
	}
}

// Start blocks until ctx is cancelled or the subscription closes.
func (w *BookingEventWorker) Start(ctx context.Context) error {
	msgs, err := w.broker.Subscribe(ctx, w.cfg.Channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.logger.Info("Worker started", "channel", w.cfg.Channel)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker shutting down")
			return nil
		case raw, ok := <-msgs:
			if !ok {
				w.logger.Info("Subscription closed")
				return nil
			}
			w.process(ctx, raw)
		}
	}
}

func (w *BookingEventWorker) process(ctx context.Context, raw []byte) {
	var evt envelope
	if err := json.Unmarshal(raw, &evt); err != nil {
		w.observe("unknown", err)
		w.logger.Error(err, "Failed to decode event")
		return
	}
	if evt.Type != w.cfg.EventType {
		return
	}

	var b model.Booking
	if err := json.Unmarshal(evt.Payload, &b); err != nil {
		w.observe(evt.Type, err)
		w.logger.Error(err, "Failed to decode booking", "type", evt.Type)
		return
	}

	var err error
	for attempt := 0; attempt < w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				w.observe(evt.Type, ctx.Err())
				return
			case <-time.After(time.Duration(attempt) * w.cfg.RetryDelay):
			}
		}
		if err = w.handle(ctx, b); err == nil {
			break
		}
		w.logger.Warn("Retry handling event", "booking_id", b.ID, "attempt", attempt+1, "error", err.Error())
	}

	w.observe(evt.Type, err)
	if err != nil {
		w.logger.Error(err, "Failed to handle event after retries", "booking_id", b.ID)
	}
}

func (w *BookingEventWorker) observe(eventType string, err error) {
	if w.metrics != nil {
		w.metrics.EventsConsumed.WithLabelValues(eventType, metrics.Status(err)).Inc()
	}
}

func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
}
