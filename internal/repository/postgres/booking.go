package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
)

type bookingRepository struct {
	BaseRepository
}

func NewBookingRepository(db *sqlx.DB) repository.BookingRepository {
	return &bookingRepository{BaseRepository: NewBaseRepository(db)}
}

const selectBookings = `
	SELECT id, patient_name, patient_age, patient_gender, patient_phone, problem,
		   doctor_id, doctor_name, department,
		   to_char(appointment_date, 'YYYY-MM-DD') AS appointment_date,
		   to_char(appointment_time, 'HH24:MI') AS appointment_time,
		   token, token_seq, created_at
	FROM bookings`

func (r *bookingRepository) FetchAll(ctx context.Context, filter model.BookingFilter) ([]model.Booking, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.DoctorID != "" {
		args = append(args, filter.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if !filter.Date.IsZero() {
		args = append(args, filter.Date.String())
		conds = append(conds, fmt.Sprintf("appointment_date = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conds = append(conds, fmt.Sprintf("(patient_name ILIKE $%d OR patient_phone LIKE $%d)", len(args), len(args)))
	}

	query := selectBookings
	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY created_at, id"

	bookings := []model.Booking{}
	if err := r.db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	return bookings, nil
}

func (r *bookingRepository) Append(ctx context.Context, booking *model.Booking) error {
	query := `
		INSERT INTO bookings (
			id, patient_name, patient_age, patient_gender, patient_phone, problem,
			doctor_id, doctor_name, department,
			appointment_date, appointment_time, token, token_seq, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		booking.ID,
		booking.PatientName,
		booking.PatientAge,
		booking.PatientGender,
		booking.PatientPhone,
		booking.Problem,
		booking.DoctorID,
		booking.DoctorName,
		booking.Department,
		booking.AppointmentDate,
		booking.AppointmentTime,
		booking.Token,
		booking.TokenSeq,
		booking.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append booking: %w", err)
	}
	return nil
}
