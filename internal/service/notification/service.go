package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/email"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

const (
	EventBookingConfirmed = "booking.confirmed"

	sendTimeout = 10 * time.Second
)

type Config struct {
	// Channel is the broker channel for booking events.
	Channel string
	// FrontDesk receives a plain-text email per confirmed booking.
	FrontDesk string
}

// Service fans a confirmed booking out to the broker and the front desk.
// Delivery is best-effort and never affects the booking itself.
type Service struct {
	cfg      Config
	broker   messaging.Broker
	emailSvc email.Service
	logger   *logger.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

func NewService(cfg Config, broker messaging.Broker, emailSvc email.Service, log *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.Channel == "" {
		cfg.Channel = EventBookingConfirmed
	}
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{cfg: cfg, broker: broker, emailSvc: emailSvc, logger: log, metrics: m}
}

// BookingConfirmed delivers asynchronously, detached from the caller's
// cancellation.
func (s *Service) BookingConfirmed(ctx context.Context, b model.Booking) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, sendTimeout)
		defer cancel()
		s.process(ctx, b)
	}()
}

// Wait blocks until every pending delivery has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) process(ctx context.Context, b model.Booking) {
	err := s.broker.Publish(ctx, s.cfg.Channel, messaging.NewMessage(EventBookingConfirmed, b))
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(s.cfg.Channel, metrics.Status(err)).Inc()
	}
	if err != nil {
		s.logger.Error(err, "failed to publish booking event", "booking_id", b.ID)
	}

	if s.emailSvc == nil || s.cfg.FrontDesk == "" {
		return
	}
	err = s.emailSvc.SendCustom(ctx, s.cfg.FrontDesk, subject(b), Summary(b))
	if s.metrics != nil {
		s.metrics.EmailsSent.WithLabelValues(metrics.Status(err)).Inc()
	}
	if err != nil {
		s.logger.Error(err, "failed to email front desk", "booking_id", b.ID)
	}
}

func subject(b model.Booking) string {
	return fmt.Sprintf("Appointment %s with %s on %s at %s", b.Token, b.DoctorName, b.AppointmentDate, b.AppointmentTime)
}

// Summary renders the fields printed on a patient's token card.
func Summary(b model.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Token:      %s\n", b.Token)
	fmt.Fprintf(&sb, "Patient:    %s (%d, %s)\n", b.PatientName, b.PatientAge, b.PatientGender)
	if b.PatientPhone != "" {
		fmt.Fprintf(&sb, "Phone:      %s\n", b.PatientPhone)
	}
	fmt.Fprintf(&sb, "Doctor:     %s\n", b.DoctorName)
	fmt.Fprintf(&sb, "Department: %s\n", b.Department)
	fmt.Fprintf(&sb, "Date:       %s\n", b.AppointmentDate)
	fmt.Fprintf(&sb, "Time:       %s\n", b.AppointmentTime)
	fmt.Fprintf(&sb, "Problem:    %s\n", b.Problem)
	return sb.String()
}

// FrontDeskEmailer sends a booking's token card to the front desk. The worker
// uses it when delivery is moved off the API process.
func FrontDeskEmailer(emailSvc email.Service, to string) func(context.Context, model.Booking) error {
	return func(ctx context.Context, b model.Booking) error {
		return emailSvc.SendCustom(ctx, to, subject(b), Summary(b))
	}
}
