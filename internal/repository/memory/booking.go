package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

type BookingRepository struct {
	mu       sync.RWMutex
	bookings []model.Booking
	loc      *time.Location
	now      func() time.Time
}

// NewBookingRepository returns an in-process store, optionally seeded.
func NewBookingRepository(loc *time.Location, seed ...model.Booking) *BookingRepository {
	r := &BookingRepository{loc: loc, now: time.Now}
	r.bookings = append(r.bookings, seed...)
	return r
}

func (r *BookingRepository) FetchAll(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Booking, 0, len(r.bookings))
	for i := range r.bookings {
		if filter.Matches(&r.bookings[i], r.loc) {
			out = append(out, r.bookings[i])
		}
	}
	return out, nil
}

func (r *BookingRepository) Append(ctx context.Context, booking *model.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = r.now()
	}

	r.mu.Lock()
	r.bookings = append(r.bookings, *booking)
	r.mu.Unlock()
	return nil
}

func (r *BookingRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *BookingRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bookings)
}
