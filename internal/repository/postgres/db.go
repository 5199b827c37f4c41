package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/clinic-booking/internal/config"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id               TEXT PRIMARY KEY,
	patient_name     TEXT NOT NULL,
	patient_age      INTEGER NOT NULL,
	patient_gender   TEXT NOT NULL DEFAULT 'other',
	patient_phone    TEXT NOT NULL DEFAULT '',
	problem          TEXT NOT NULL DEFAULT '',
	doctor_id        TEXT NOT NULL,
	doctor_name      TEXT NOT NULL,
	department       TEXT NOT NULL DEFAULT '',
	appointment_date DATE NOT NULL,
	appointment_time TIME NOT NULL,
	token            TEXT NOT NULL,
	token_seq        INTEGER NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS bookings_doctor_date_idx ON bookings (doctor_id, appointment_date);
`

// EnsureSchema creates the bookings table when it does not exist. There is no
// unique constraint on the slot; capacity is checked by the scheduler.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
