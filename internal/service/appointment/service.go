package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/service/slot"
	"github.com/jwalitptl/clinic-booking/internal/service/token"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/validator"
)

// MaxAdvanceBooking is the default booking horizon.
const MaxAdvanceBooking = 90 * 24 * time.Hour

var tracer = otel.Tracer("github.com/jwalitptl/clinic-booking/internal/service/appointment")

// DoctorCatalog is the read-only doctor roster.
type DoctorCatalog interface {
	Get(id string) (*model.Doctor, bool)
	List() []model.Doctor
}

// Notifier is told about every confirmed booking. It must not block.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking)
}

type Config struct {
	Granularity time.Duration
	Capacity    int
	Strategy    token.Strategy
	TokenPrefix bool
	Location    *time.Location
	// MaxAdvanceDays bounds how far ahead a booking may be made.
	MaxAdvanceDays int
	// SnapshotTTL is how long the last good snapshot is kept as a fallback
	// for availability queries.
	SnapshotTTL time.Duration
}

// BookingRequest is one patient submission for a doctor, date and time.
type BookingRequest struct {
	DoctorID string
	Date     model.Date
	Time     model.TimeOfDay
	Patient  model.PatientInfo
}

type Service struct {
	cfg       Config
	repo      repository.BookingRepository
	doctors   DoctorCatalog
	grid      *slot.Grid
	filter    *slot.Filter
	allocator *token.Allocator
	validate  validator.Validator
	snapshots *cache.Cache
	notifier  Notifier
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(cfg Config, repo repository.BookingRepository, doctors DoctorCatalog, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Granularity <= 0 {
		cfg.Granularity = slot.DefaultGranularity
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = slot.DefaultCapacity
	}
	if cfg.MaxAdvanceDays <= 0 {
		cfg.MaxAdvanceDays = int(MaxAdvanceBooking / (24 * time.Hour))
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 10 * time.Minute
	}

	s := &Service{
		cfg:       cfg,
		repo:      repo,
		doctors:   doctors,
		grid:      slot.NewGrid(cfg.Granularity),
		allocator: token.NewAllocator(cfg.Strategy, cfg.TokenPrefix, cfg.Location),
		validate:  validator.New(),
		snapshots: cache.New(cfg.SnapshotTTL, 2*cfg.SnapshotTTL),
		logger:    logger.Nop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.filter = slot.NewFilter(cfg.Capacity, cfg.Location, s.reportMalformed)
	return s
}

func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) Doctors() []model.Doctor {
	return s.doctors.List()
}

func (s *Service) Doctor(id string) (*model.Doctor, error) {
	d, ok := s.doctors.Get(id)
	if !ok {
		return nil, errors.NotFound("doctor", nil)
	}
	return d, nil
}

// Today is the current calendar date in the clinic's timezone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.cfg.Location))
}

func (s *Service) reportMalformed(b *model.Booking, err error) {
	s.logger.Warn("excluding malformed booking",
		"booking_id", b.ID,
		"doctor_id", b.DoctorID,
		"date", b.AppointmentDate,
		"time", b.AppointmentTime,
		"error", err.Error(),
	)
	if s.metrics != nil {
		s.metrics.MalformedRecords.Inc()
	}
}

func (s *Service) countBooking(result string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(result).Inc()
	}
}

func snapshotKey(doctorID string, date model.Date) string {
	return doctorID + "|" + date.String()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// fetchSnapshot reads the doctor's bookings for the date and remembers them
// as the last good snapshot.
func (s *Service) fetchSnapshot(ctx context.Context, doctorID string, date model.Date) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "appointment.snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", doctorID),
		attribute.String("date", date.String()),
	)

	bookings, err := s.repo.FetchAll(ctx, model.BookingFilter{DoctorID: doctorID, Date: date})
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("bookings", len(bookings)))
	s.snapshots.SetDefault(snapshotKey(doctorID, date), bookings)
	return bookings, nil
}

// GetAvailableSlots returns the doctor's grid for the date with availability.
// It never fails: when the store cannot be read it falls back to the last
// good snapshot, or to an empty one, and logs the failure.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID string, date model.Date) []model.TimeSlot {
	ctx, span := tracer.Start(ctx, "appointment.slots")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", doctorID),
		attribute.String("date", date.String()),
	)

	if s.metrics != nil {
		s.metrics.SlotQueries.Inc()
	}

	doc, ok := s.doctors.Get(doctorID)
	if !ok {
		s.logger.Debug("availability requested for unknown doctor", "doctor_id", doctorID)
		return []model.TimeSlot{}
	}

	bookings, err := s.fetchSnapshot(ctx, doctorID, date)
	if err != nil {
		stale := false
		bookings = []model.Booking{}
		if v, found := s.snapshots.Get(snapshotKey(doctorID, date)); found {
			bookings = v.([]model.Booking)
			stale = true
		}
		s.logger.Error(err, "failed to fetch bookings, serving fallback snapshot",
			"doctor_id", doctorID, "date", date.String(), "stale", stale)
		if s.metrics != nil {
			s.metrics.SnapshotFallbacks.Inc()
		}
	}

	return s.filter.Annotate(doctorID, date, s.grid.Slots(doc), bookings)
}

// checkDate rejects dates outside [today, today+MaxAdvanceDays].
func (s *Service) checkDate(date model.Date) error {
	if date.IsZero() {
		return errors.Validation("appointment date is required", nil)
	}
	today := s.Today()
	if date.Before(today) {
		return errors.Validation("appointment date is in the past", nil)
	}
	if today.DaysUntil(date) > s.cfg.MaxAdvanceDays {
		return errors.Validation(fmt.Sprintf("appointments can be booked at most %d days ahead", s.cfg.MaxAdvanceDays), nil)
	}
	return nil
}

// BookAppointment validates the request against a freshly fetched snapshot,
// allocates a token and appends the booking.
//
// Two clients reading the same snapshot can both pass the capacity re-check;
// the store has no uniqueness constraint, so that race is narrowed here but
// not closed.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*model.Booking, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("doctor_id", req.DoctorID),
		attribute.String("date", req.Date.String()),
		attribute.String("time", req.Time.String()),
	)

	booking, err := s.book(ctx, req)
	if err != nil {
		recordError(span, err)
		switch errors.CodeOf(err) {
		case errors.CodeValidation, errors.CodeNotFound:
			s.countBooking(metrics.ResultValidation)
		case errors.CodeSlotUnavailable:
			s.countBooking(metrics.ResultSlotUnavailable)
		default:
			s.countBooking(metrics.ResultPersistence)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("token", booking.Token))
	s.countBooking(metrics.ResultConfirmed)
	s.logger.Info("booking confirmed",
		"booking_id", booking.ID,
		"doctor_id", booking.DoctorID,
		"date", booking.AppointmentDate,
		"time", booking.AppointmentTime,
		"token", booking.Token,
	)
	if s.notifier != nil {
		s.notifier.BookingConfirmed(ctx, *booking)
	}
	return booking, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*model.Booking, error) {
	patient := req.Patient
	patient.Normalize()
	if err := s.validate.Validate(patient); err != nil {
		return nil, err
	}

	doc, err := s.Doctor(req.DoctorID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDate(req.Date); err != nil {
		return nil, err
	}
	if !s.grid.Contains(doc, req.Time) {
		return nil, errors.Validation(fmt.Sprintf("%s is not a bookable time for %s", req.Time, doc.Name), nil)
	}

	snapshot, err := s.fetchSnapshot(ctx, doc.ID, req.Date)
	if err != nil {
		s.logger.Error(err, "failed to refresh bookings before submit", "doctor_id", doc.ID)
		return nil, asPersistence("failed to load current bookings", err)
	}

	if !s.filter.IsAvailable(doc.ID, req.Date, req.Time, snapshot) {
		return nil, errors.SlotUnavailable(fmt.Sprintf("%s on %s is no longer available", req.Time, req.Date))
	}

	tok := s.allocator.Next(doc, req.Date, req.Time, snapshot)
	booking := &model.Booking{
		ID:              s.newID(),
		PatientName:     patient.Name,
		PatientAge:      patient.Age,
		PatientGender:   patient.Gender,
		PatientPhone:    patient.Phone,
		Problem:         patient.Problem,
		DoctorID:        doc.ID,
		DoctorName:      doc.Name,
		Department:      doc.Department,
		AppointmentDate: req.Date.String(),
		AppointmentTime: req.Time.String(),
		Token:           tok.String(),
		TokenSeq:        tok.Seq,
		CreatedAt:       s.now(),
	}

	if err := s.repo.Append(ctx, booking); err != nil {
		s.logger.Error(err, "failed to append booking", "doctor_id", doc.ID, "date", booking.AppointmentDate, "time", booking.AppointmentTime)
		return nil, asPersistence("failed to save booking", err)
	}

	// Keep the fallback snapshot in step with what was just written.
	s.snapshots.SetDefault(snapshotKey(doc.ID, req.Date), append(snapshot[:len(snapshot):len(snapshot)], *booking))
	return booking, nil
}

func asPersistence(message string, err error) error {
	if errors.Is(err, errors.ErrPersistence) {
		return err
	}
	return errors.Persistence(message, err)
}
