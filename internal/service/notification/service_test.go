package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type recordingBroker struct {
	messaging.NopBroker
	mu       sync.Mutex
	channels []string
	err      error
}

func (b *recordingBroker) Publish(_ context.Context, channel string, _ interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels = append(b.channels, channel)
	return b.err
}

type recordingEmail struct {
	mu       sync.Mutex
	to       []string
	subjects []string
}

func (e *recordingEmail) SendCustom(_ context.Context, to, subject, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.to = append(e.to, to)
	e.subjects = append(e.subjects, subject)
	return nil
}

var booking = model.Booking{
	ID:              "b-1",
	PatientName:     "Asha",
	PatientAge:      34,
	PatientGender:   model.GenderFemale,
	DoctorName:      "Dr. Sarah Smith",
	Department:      "Cardiology",
	AppointmentDate: "2024-05-01",
	AppointmentTime: "10:00",
	Token:           "S1",
	Problem:         "checkup",
}

func TestBookingConfirmedPublishesAndEmails(t *testing.T) {
	broker := &recordingBroker{}
	mail := &recordingEmail{}
	m := metrics.NewMetrics("test", "notify", prometheus.NewRegistry())
	svc := NewService(Config{FrontDesk: "desk@example.com"}, broker, mail, nil, m)

	ctx, cancel := context.WithCancel(context.Background())
	svc.BookingConfirmed(ctx, booking)
	cancel()
	svc.Wait()

	assert.Equal(t, []string{EventBookingConfirmed}, broker.channels)
	require.Len(t, mail.to, 1)
	assert.Equal(t, "desk@example.com", mail.to[0])
	assert.Equal(t, "Appointment S1 with Dr. Sarah Smith on 2024-05-01 at 10:00", mail.subjects[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues(EventBookingConfirmed, "success")))
}

func TestBrokerFailureStillEmails(t *testing.T) {
	broker := &recordingBroker{err: errors.New("redis down")}
	mail := &recordingEmail{}
	m := metrics.NewMetrics("test", "notify", prometheus.NewRegistry())
	svc := NewService(Config{FrontDesk: "desk@example.com"}, broker, mail, nil, m)

	svc.BookingConfirmed(context.Background(), booking)
	svc.Wait()

	assert.Len(t, mail.to, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues(EventBookingConfirmed, "error")))
}

func TestNoFrontDeskSkipsEmail(t *testing.T) {
	mail := &recordingEmail{}
	svc := NewService(Config{}, nil, mail, nil, nil)

	svc.BookingConfirmed(context.Background(), booking)
	svc.Wait()

	assert.Empty(t, mail.to)
}

func TestSummary(t *testing.T) {
	s := Summary(booking)
	assert.Contains(t, s, "Token:      S1")
	assert.Contains(t, s, "Patient:    Asha (34, female)")
	assert.NotContains(t, s, "Phone:")
}

func TestFrontDeskEmailer(t *testing.T) {
	mail := &recordingEmail{}
	send := FrontDeskEmailer(mail, "desk@clinic.example")

	require.NoError(t, send(context.Background(), booking))
	assert.Equal(t, []string{"desk@clinic.example"}, mail.to)
	assert.Equal(t, []string{"Appointment S1 with Dr. Sarah Smith on 2024-05-01 at 10:00"}, mail.subjects)
}
