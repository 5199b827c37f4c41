package appointment

import (
	"bytes"
	"context"
	"encoding/csv"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/token"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

func seeded() []model.Booking {
	return []model.Booking{
		{ID: "b1", PatientName: "Asha Rao", PatientAge: 34, PatientGender: model.GenderFemale, PatientPhone: "98765",
			DoctorID: "dr-smith", DoctorName: "Dr. Sarah Smith", Department: "Cardiology",
			AppointmentDate: "2024-05-01", AppointmentTime: "11:00", Token: "1", TokenSeq: 1, Problem: "chest pain, mild"},
		{ID: "b2", PatientName: "Ravi", PatientAge: 8, PatientGender: model.GenderMale,
			DoctorID: "dr-smith", DoctorName: "Dr. Sarah Smith", Department: "Cardiology",
			AppointmentDate: "2024-05-01", AppointmentTime: "10:00", Token: "2", TokenSeq: 2, Problem: "fever"},
		{ID: "b3", PatientName: "Meera", PatientAge: 41, PatientGender: model.GenderFemale, PatientPhone: "12345",
			DoctorID: "dr-chen", DoctorName: "Dr. Li Chen", Department: "Gynecology",
			AppointmentDate: "2024-05-02", AppointmentTime: "09:30", Token: "1", TokenSeq: 1, Problem: "review"},
	}
}

func TestListBookingsOrderAndSearch(t *testing.T) {
	f := newFixture(t, Config{}, seeded()...)
	ctx := context.Background()

	all, err := f.svc.ListBookings(ctx, model.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b2", "b1", "b3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	byName, err := f.svc.ListBookings(ctx, model.BookingFilter{Query: "asha"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "b1", byName[0].ID)

	byPhone, err := f.svc.ListBookings(ctx, model.BookingFilter{Query: "234"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, "b3", byPhone[0].ID)

	byDoctor, err := f.svc.ListBookings(ctx, model.BookingFilter{DoctorID: "dr-smith"})
	require.NoError(t, err)
	assert.Len(t, byDoctor, 2)
}

func TestListBookingsPersistenceError(t *testing.T) {
	f := newFixture(t, Config{})
	f.repo.failFetch(stderrors.New("unreachable"))

	_, err := f.svc.ListBookings(context.Background(), model.BookingFilter{})
	assert.True(t, errors.Is(err, errors.ErrPersistence))
}

func TestTokenCounts(t *testing.T) {
	f := newFixture(t, Config{}, seeded()...)
	ctx := context.Background()

	counts, err := f.svc.TokenCounts(ctx, model.Date{})
	require.NoError(t, err)
	require.Len(t, counts, 6)

	byID := map[string]int{}
	for _, c := range counts {
		byID[c.DoctorID] = c.Count
	}
	assert.Equal(t, 2, byID["dr-smith"])
	assert.Equal(t, 1, byID["dr-chen"])
	assert.Equal(t, 0, byID["dr-brown"])

	counts, err = f.svc.TokenCounts(ctx, model.MustDate("2024-05-02"))
	require.NoError(t, err)
	for _, c := range counts {
		if c.DoctorID == "dr-smith" {
			assert.Zero(t, c.Count)
		}
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, Config{}, seeded()...)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(context.Background(), &buf, model.BookingFilter{DoctorID: "dr-smith"}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, CSVHeader, records[0])
	assert.Equal(t, []string{
		"Dr. Sarah Smith", "Ravi", "8", "male", "", "Cardiology", "2024-05-01", "10:00", "2", "fever",
	}, records[1])
	assert.Equal(t, "chest pain, mild", records[2][9])
}

func TestRederiveTokens(t *testing.T) {
	t.Run("arrival matches stored", func(t *testing.T) {
		f := newFixture(t, Config{}, seeded()...)
		report, err := f.svc.RederiveTokens(context.Background(), "dr-smith", today)
		require.NoError(t, err)
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "arrival", report.Strategy)
		assert.Zero(t, report.Drifted)
	})

	t.Run("time rank flags drift", func(t *testing.T) {
		f := newFixture(t, Config{Strategy: token.StrategyTimeRank}, seeded()...)
		report, err := f.svc.RederiveTokens(context.Background(), "dr-smith", today)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Drifted)
		assert.Equal(t, "b1", report.Checks[0].BookingID)
		assert.Equal(t, "1", report.Checks[0].Stored)
		assert.Equal(t, "2", report.Checks[0].Derived)
		assert.True(t, report.Checks[0].Drift)
	})

	t.Run("unknown doctor", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.RederiveTokens(context.Background(), "dr-x", today)
		assert.True(t, errors.Is(err, errors.ErrNotFound))
	})

	t.Run("missing date", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.RederiveTokens(context.Background(), "dr-smith", model.Date{})
		assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	})
}
