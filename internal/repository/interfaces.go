package repository

import (
	"context"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// All repository interfaces in one file
type (
	// BookingRepository is an append-only store of bookings. Implementations
	// give no uniqueness or transactional guarantee; rows that cannot be
	// decoded are skipped rather than failing the whole fetch.
	BookingRepository interface {
		// FetchAll returns the current snapshot in append order, pre-filtered
		// by whatever the filter sets.
		FetchAll(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error)
		Append(ctx context.Context, booking *model.Booking) error
	}

	// Pinger is implemented by repositories that can report backend health.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
