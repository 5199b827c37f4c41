package slot

import (
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

const DefaultCapacity = 1

// MalformedFunc is called for every booking whose date or time cannot be parsed.
type MalformedFunc func(b *model.Booking, err error)

// Filter marks slots as available while fewer than Capacity bookings share
// the same doctor, calendar date and time.
type Filter struct {
	Capacity int
	// Location is used to read timestamp-shaped dates and times.
	Location    *time.Location
	OnMalformed MalformedFunc
}

func NewFilter(capacity int, loc *time.Location, onMalformed MalformedFunc) *Filter {
	return &Filter{Capacity: capacity, Location: loc, OnMalformed: onMalformed}
}

func (f *Filter) capacity() int {
	if f.Capacity < 1 {
		return DefaultCapacity
	}
	return f.Capacity
}

// Counts tallies well-formed bookings per time of day for one doctor and date.
func (f *Filter) Counts(doctorID string, date model.Date, bookings []model.Booking) map[model.TimeOfDay]int {
	counts := make(map[model.TimeOfDay]int)
	for i := range bookings {
		b := &bookings[i]
		if b.DoctorID != doctorID {
			continue
		}
		d, t, err := b.Slot(f.Location)
		if err != nil {
			if f.OnMalformed != nil {
				f.OnMalformed(b, err)
			}
			continue
		}
		if d == date {
			counts[t]++
		}
	}
	return counts
}

// Annotate returns one TimeSlot per candidate, in candidate order.
func (f *Filter) Annotate(doctorID string, date model.Date, candidates []model.TimeOfDay, bookings []model.Booking) []model.TimeSlot {
	counts := f.Counts(doctorID, date, bookings)
	limit := f.capacity()

	out := make([]model.TimeSlot, 0, len(candidates))
	for _, t := range candidates {
		booked := counts[t]
		remaining := limit - booked
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, model.TimeSlot{
			Time:      t,
			Available: booked < limit,
			Booked:    booked,
			Remaining: remaining,
		})
	}
	return out
}

func (f *Filter) IsAvailable(doctorID string, date model.Date, t model.TimeOfDay, bookings []model.Booking) bool {
	return f.Counts(doctorID, date, bookings)[t] < f.capacity()
}
