// Package app assembles the pieces shared by the binaries: logger, doctor
// roster, booking store and scheduler.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/internal/repository/postgres"
	"github.com/jwalitptl/clinic-booking/internal/repository/sheets"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
	"github.com/jwalitptl/clinic-booking/internal/service/doctor"
	"github.com/jwalitptl/clinic-booking/internal/service/token"
	"github.com/jwalitptl/clinic-booking/pkg/circuitbreaker"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

// NewLogger builds the application logger and installs it as the zerolog
// global used by the HTTP middleware.
func NewLogger(cfg config.LogConfig, out io.Writer) *logger.Logger {
	if out == nil {
		out = os.Stdout
	}
	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     out,
		JSON:       cfg.JSON,
	})
	log.Logger = *lg.Zerolog()
	return lg
}

// Catalog returns the configured roster, or the built-in one when the config
// lists no doctors.
func Catalog(cfg *config.Config) (*doctor.Catalog, error) {
	doctors, err := cfg.DoctorModels()
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 {
		doctors = doctor.Defaults()
	}
	return doctor.NewCatalog(doctors)
}

// Storage is an opened booking store and its release function.
type Storage struct {
	Repo  repository.BookingRepository
	Close func() error
}

// Pinger returns the store's health check, if it has one.
func (s Storage) Pinger() (repository.Pinger, bool) {
	p, ok := s.Repo.(repository.Pinger)
	return p, ok
}

// OpenStorage connects the booking store named by storage.driver.
func OpenStorage(ctx context.Context, cfg *config.Config, catalog *doctor.Catalog, loc *time.Location, lg *logger.Logger, m *metrics.Metrics) (Storage, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case "memory", "":
		return Storage{Repo: memory.NewBookingRepository(loc), Close: noop}, nil

	case "sheets":
		sc := cfg.Storage.Sheets
		cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sheets",
			MaxFailures: sc.BreakerFailures,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     sc.BreakerTimeout,
			OnStateChange: func(name, from, to string) {
				lg.Warn("Circuit breaker state changed", "breaker", name, "from", from, "to", to)
			},
		})
		client := sheets.NewClient(sc.Endpoint,
			sheets.WithTimeout(sc.Timeout),
			sheets.WithBreaker(cb),
			sheets.WithLogger(lg.With("sheets")),
		)
		return Storage{
			Repo:  sheets.NewBookingRepository(client, catalog, loc, lg.With("sheets"), m),
			Close: noop,
		}, nil

	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return Storage{}, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return Storage{}, err
		}
		return Storage{Repo: postgres.NewBookingRepository(db), Close: db.Close}, nil
	}
	return Storage{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// SchedulerConfig maps the schedule section onto the scheduler's settings.
func SchedulerConfig(cfg config.ScheduleConfig) (appointment.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return appointment.Config{}, err
	}
	strategy, err := token.ParseStrategy(cfg.TokenStrategy)
	if err != nil {
		return appointment.Config{}, err
	}
	return appointment.Config{
		Granularity:    cfg.Granularity(),
		Capacity:       cfg.Capacity,
		Strategy:       strategy,
		TokenPrefix:    cfg.TokenPrefix,
		Location:       loc,
		MaxAdvanceDays: cfg.MaxAdvanceDays,
		SnapshotTTL:    cfg.SnapshotTTL,
	}, nil
}
