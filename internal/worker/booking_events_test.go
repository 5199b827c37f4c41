package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type chanBroker struct {
	messaging.NopBroker
	ch      chan []byte
	channel string
}

func (b *chanBroker) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.channel = channel
	return b.ch, nil
}

type recorder struct {
	mu       sync.Mutex
	bookings []model.Booking
	failures int
}

func (r *recorder) handle(_ context.Context, b model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("smtp down")
	}
	r.bookings = append(r.bookings, b)
	return nil
}

func (r *recorder) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, b.Token)
	}
	return out
}

func encode(t *testing.T, eventType, token string) []byte {
	t.Helper()
	raw, err := json.Marshal(messaging.NewMessage(eventType, model.Booking{ID: "b-" + token, Token: token}))
	require.NoError(t, err)
	return raw
}

func run(t *testing.T, rec *recorder, msgs ...[]byte) (*metrics.Metrics, *chanBroker) {
	t.Helper()
	broker := &chanBroker{ch: make(chan []byte, len(msgs))}
	for _, m := range msgs {
		broker.ch <- m
	}
	close(broker.ch)

	m := metrics.NewMetrics("clinic", "worker", prometheus.NewRegistry())
	w := NewBookingEventWorker(Config{
		Channel:    "booking.confirmed",
		EventType:  "booking.confirmed",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, broker, rec.handle, nil, m)

	require.NoError(t, w.Start(context.Background()))
	return m, broker
}

func TestWorkerHandlesConfirmedBookings(t *testing.T) {
	rec := &recorder{}
	m, broker := run(t, rec,
		encode(t, "booking.confirmed", "1"),
		encode(t, "booking.cancelled", "2"),
		[]byte("not json"),
		encode(t, "booking.confirmed", "3"),
	)

	assert.Equal(t, "booking.confirmed", broker.channel)
	assert.Equal(t, []string{"1", "3"}, rec.tokens())
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsConsumed.WithLabelValues("booking.confirmed", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsConsumed.WithLabelValues("unknown", "error")))
}

func TestWorkerRetriesHandler(t *testing.T) {
	rec := &recorder{failures: 2}
	m, _ := run(t, rec, encode(t, "booking.confirmed", "7"))

	assert.Equal(t, []string{"7"}, rec.tokens())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsConsumed.WithLabelValues("booking.confirmed", "success")))
}

func TestWorkerGivesUpAfterMaxRetries(t *testing.T) {
	rec := &recorder{failures: 5}
	m, _ := run(t, rec, encode(t, "booking.confirmed", "7"))

	assert.Empty(t, rec.tokens())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsConsumed.WithLabelValues("booking.confirmed", "error")))
}

func TestWorkerStopsOnCancel(t *testing.T) {
	broker := &chanBroker{ch: make(chan []byte)}
	w := NewBookingEventWorker(Config{Channel: "c", EventType: "booking.confirmed"}, broker, (&recorder{}).handle, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
