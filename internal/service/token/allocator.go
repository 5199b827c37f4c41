package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

type Strategy string

const (
	// StrategyArrival numbers bookings in submission order.
	StrategyArrival Strategy = "arrival"
	// StrategyTimeRank numbers bookings by their position in the day's schedule.
	StrategyTimeRank Strategy = "time_rank"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyArrival:
		return StrategyArrival, nil
	case StrategyTimeRank, "time-rank", "timerank":
		return StrategyTimeRank, nil
	default:
		return "", fmt.Errorf("unknown token strategy %q", s)
	}
}

// Token is a queue number within one doctor's day, optionally prefixed with
// the doctor's initial ("S1").
type Token struct {
	Seq    int    `json:"seq"`
	Prefix string `json:"prefix,omitempty"`
}

func (t Token) String() string {
	return t.Prefix + strconv.Itoa(t.Seq)
}

// Parse reads a stored token such as "3" or "S3".
func Parse(s string) (Token, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] < '0' || s[i] > '9') {
		i++
	}
	seq, err := strconv.Atoi(s[i:])
	if err != nil || seq < 1 {
		return Token{}, fmt.Errorf("invalid token %q", s)
	}
	return Token{Seq: seq, Prefix: s[:i]}, nil
}

// Assignment pairs a booking from the log with the token derived for it.
type Assignment struct {
	Booking model.Booking
	Token   Token
}

// Allocator computes tokens as a pure function of the booking snapshot.
type Allocator struct {
	Strategy Strategy
	Prefix   bool
	Location *time.Location
	// OnMalformed is called for bookings excluded because their date or time
	// does not parse.
	OnMalformed func(b *model.Booking, err error)
}

func NewAllocator(strategy Strategy, prefix bool, loc *time.Location) *Allocator {
	if strategy == "" {
		strategy = StrategyArrival
	}
	return &Allocator{Strategy: strategy, Prefix: prefix, Location: loc}
}

type entry struct {
	booking model.Booking
	time    model.TimeOfDay
}

// partition returns the well-formed bookings of one doctor's day in log order.
func (a *Allocator) partition(doctorID string, date model.Date, bookings []model.Booking) []entry {
	var out []entry
	for i := range bookings {
		b := &bookings[i]
		if b.DoctorID != doctorID {
			continue
		}
		d, t, err := b.Slot(a.Location)
		if err != nil {
			if a.OnMalformed != nil {
				a.OnMalformed(b, err)
			}
			continue
		}
		if d == date {
			out = append(out, entry{booking: *b, time: t})
		}
	}
	return out
}

func (a *Allocator) token(doctor *model.Doctor, seq int) Token {
	tok := Token{Seq: seq}
	if a.Prefix {
		tok.Prefix = doctor.Initial()
	}
	return tok
}

// Next returns the token for a new booking at t.
func (a *Allocator) Next(doctor *model.Doctor, date model.Date, t model.TimeOfDay, bookings []model.Booking) Token {
	day := a.partition(doctor.ID, date, bookings)

	if a.Strategy == StrategyTimeRank {
		ahead := 0
		for _, e := range day {
			if e.time <= t {
				ahead++
			}
		}
		return a.token(doctor, ahead+1)
	}
	return a.token(doctor, len(day)+1)
}

// Rederive recomputes every token of the doctor's day from the log. For the
// last booking appended it reproduces the value Next returned at submission.
// Under time_rank, bookings sharing a time are ordered by log position.
func (a *Allocator) Rederive(doctor *model.Doctor, date model.Date, bookings []model.Booking) []Assignment {
	day := a.partition(doctor.ID, date, bookings)

	out := make([]Assignment, 0, len(day))
	for i, e := range day {
		seq := i + 1
		if a.Strategy == StrategyTimeRank {
			seq = 1
			for j, o := range day {
				if j == i {
					continue
				}
				if o.time < e.time || (o.time == e.time && j < i) {
					seq++
				}
			}
		}
		out = append(out, Assignment{Booking: e.booking, Token: a.token(doctor, seq)})
	}
	return out
}

// Drift lists the assignments whose stored token differs from the derived one.
func (a *Allocator) Drift(doctor *model.Doctor, date model.Date, bookings []model.Booking) []Assignment {
	var out []Assignment
	for _, as := range a.Rederive(doctor, date, bookings) {
		if strings.TrimSpace(as.Booking.Token) != as.Token.String() {
			out = append(out, as)
		}
	}
	return out
}
