package model

import (
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// NormalizeGender maps free-form input onto the known values, defaulting to other.
func NormalizeGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return GenderMale
	case "female", "f":
		return GenderFemale
	default:
		return GenderOther
	}
}

// Booking is one appended appointment record. Date and time stay textual so
// rows written by other clients can be carried even when they do not parse.
type Booking struct {
	ID              string    `json:"id" db:"id"`
	PatientName     string    `json:"patient_name" db:"patient_name"`
	PatientAge      int       `json:"patient_age" db:"patient_age"`
	PatientGender   Gender    `json:"patient_gender" db:"patient_gender"`
	PatientPhone    string    `json:"patient_phone,omitempty" db:"patient_phone"`
	Problem         string    `json:"problem" db:"problem"`
	DoctorID        string    `json:"doctor_id" db:"doctor_id"`
	DoctorName      string    `json:"doctor_name" db:"doctor_name"`
	Department      string    `json:"department" db:"department"`
	AppointmentDate string    `json:"appointment_date" db:"appointment_date"`
	AppointmentTime string    `json:"appointment_time" db:"appointment_time"`
	Token           string    `json:"token" db:"token"`
	TokenSeq        int       `json:"token_seq" db:"token_seq"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Slot parses the appointment date and time. Timestamps are read in loc.
func (b *Booking) Slot(loc *time.Location) (Date, TimeOfDay, error) {
	d, err := ParseDate(b.AppointmentDate, loc)
	if err != nil {
		return Date{}, 0, err
	}
	t, err := ParseTimeOfDay(b.AppointmentTime, loc)
	if err != nil {
		return Date{}, 0, err
	}
	return d, t, nil
}

// PatientInfo is the form submitted by the patient.
type PatientInfo struct {
	Name          string `json:"name" validate:"required,max=120"`
	Age           int    `json:"age" validate:"gt=0,lte=150"`
	Gender        Gender `json:"gender" validate:"omitempty,oneof=male female other"`
	Phone         string `json:"phone" validate:"required_if=WantsReminder true,max=32"`
	Problem       string `json:"problem" validate:"required,max=1000"`
	WantsReminder bool   `json:"wants_reminder"`
}

// Normalize trims text fields and applies the gender default.
func (p *PatientInfo) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Problem = strings.TrimSpace(p.Problem)
	if p.Gender == "" {
		p.Gender = GenderOther
	} else {
		p.Gender = Gender(strings.ToLower(string(p.Gender)))
	}
}

// TimeSlot is a bookable point in a doctor's day for one date.
type TimeSlot struct {
	Time      TimeOfDay `json:"time"`
	Available bool      `json:"available"`
	Booked    int       `json:"booked"`
	Remaining int       `json:"remaining"`
}

type BookingFilter struct {
	DoctorID string
	Date     Date
	// Query matches a patient name (case-insensitive) or phone substring.
	Query string
}

// Matches applies the filter. Bookings whose date does not parse never match
// a date-constrained filter.
func (f BookingFilter) Matches(b *Booking, loc *time.Location) bool {
	if f.DoctorID != "" && b.DoctorID != f.DoctorID {
		return false
	}
	if !f.Date.IsZero() {
		d, err := ParseDate(b.AppointmentDate, loc)
		if err != nil || d != f.Date {
			return false
		}
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		name := strings.ToLower(b.PatientName)
		if !strings.Contains(name, strings.ToLower(q)) && !strings.Contains(b.PatientPhone, q) {
			return false
		}
	}
	return true
}
