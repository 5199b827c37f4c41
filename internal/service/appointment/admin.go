package appointment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

// CSVHeader is the column order of ExportCSV.
var CSVHeader = []string{
	"Doctor", "Patient Name", "Age", "Gender", "Phone",
	"Department", "Date", "Time", "Token", "Problem",
}

// DoctorTokenCount is the number of tokens issued for one doctor.
type DoctorTokenCount struct {
	DoctorID   string `json:"doctor_id"`
	DoctorName string `json:"doctor_name"`
	Department string `json:"department"`
	Count      int    `json:"count"`
}

// TokenCheck compares a stored token with the one derived from the log.
type TokenCheck struct {
	BookingID   string `json:"booking_id"`
	PatientName string `json:"patient_name"`
	Time        string `json:"time"`
	Stored      string `json:"stored"`
	Derived     string `json:"derived"`
	Drift       bool   `json:"drift"`
}

type TokenReport struct {
	DoctorID string       `json:"doctor_id"`
	Date     model.Date   `json:"date"`
	Strategy string       `json:"strategy"`
	Checks   []TokenCheck `json:"checks"`
	Drifted  int          `json:"drifted"`
}

func (s *Service) fetch(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	bookings, err := s.repo.FetchAll(ctx, filter)
	if err != nil {
		s.logger.Error(err, "failed to fetch bookings", "doctor_id", filter.DoctorID, "date", filter.Date.String())
		return nil, asPersistence("failed to fetch bookings", err)
	}
	return bookings, nil
}

// ListBookings returns matching bookings ordered by date, time and token.
func (s *Service) ListBookings(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	bookings, err := s.fetch(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.AppointmentDate != b.AppointmentDate {
			return a.AppointmentDate < b.AppointmentDate
		}
		if a.AppointmentTime != b.AppointmentTime {
			return a.AppointmentTime < b.AppointmentTime
		}
		return a.TokenSeq < b.TokenSeq
	})
	return bookings, nil
}

// TokenCounts counts bookings per catalog doctor, optionally for one date.
// Doctors without bookings are listed with zero.
func (s *Service) TokenCounts(ctx context.Context, date model.Date) ([]DoctorTokenCount, error) {
	bookings, err := s.fetch(ctx, model.BookingFilter{Date: date})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, b := range bookings {
		counts[b.DoctorID]++
	}

	doctors := s.doctors.List()
	out := make([]DoctorTokenCount, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, DoctorTokenCount{
			DoctorID:   d.ID,
			DoctorName: d.Name,
			Department: d.Department,
			Count:      counts[d.ID],
		})
	}
	return out, nil
}

// ExportCSV writes matching bookings as CSV with CSVHeader.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filter model.BookingFilter) error {
	bookings, err := s.ListBookings(ctx, filter)
	if err != nil {
		return err
	}
	return WriteCSV(w, bookings)
}

func WriteCSV(w io.Writer, bookings []model.Booking) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, b := range bookings {
		record := []string{
			b.DoctorName,
			b.PatientName,
			strconv.Itoa(b.PatientAge),
			string(b.PatientGender),
			b.PatientPhone,
			b.Department,
			b.AppointmentDate,
			b.AppointmentTime,
			b.Token,
			b.Problem,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// RederiveTokens recomputes the tokens of one doctor's day from the booking
// log and flags the stored tokens that disagree.
func (s *Service) RederiveTokens(ctx context.Context, doctorID string, date model.Date) (*TokenReport, error) {
	doc, err := s.Doctor(doctorID)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, errors.Validation("date is required", nil)
	}

	bookings, err := s.fetch(ctx, model.BookingFilter{DoctorID: doctorID, Date: date})
	if err != nil {
		return nil, err
	}

	report := &TokenReport{
		DoctorID: doc.ID,
		Date:     date,
		Strategy: string(s.allocator.Strategy),
		Checks:   []TokenCheck{},
	}
	for _, a := range s.allocator.Rederive(doc, date, bookings) {
		stored := strings.TrimSpace(a.Booking.Token)
		check := TokenCheck{
			BookingID:   a.Booking.ID,
			PatientName: a.Booking.PatientName,
			Time:        a.Booking.AppointmentTime,
			Stored:      stored,
			Derived:     a.Token.String(),
			Drift:       stored != a.Token.String(),
		}
		if check.Drift {
			report.Drifted++
		}
		report.Checks = append(report.Checks, check)
	}
	return report, nil
}
