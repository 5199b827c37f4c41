package appointment

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

func states(s *Session) []State {
	out := make([]State, 0, len(s.History))
	for _, tr := range s.History {
		out = append(out, tr.To)
	}
	return out
}

func TestSessionHappyPath(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	sess := f.svc.NewSession()
	assert.Equal(t, StateSelectingDoctor, sess.State)
	assert.Equal(t, today, sess.Date)

	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))
	assert.Equal(t, StateSelectingSlot, sess.State)
	assert.Len(t, sess.Slots, 12)

	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:30")))
	assert.Equal(t, StateCollectingPatientInfo, sess.State)

	b, err := f.svc.Submit(ctx, sess, patient("Asha"))
	require.NoError(t, err)
	assert.Equal(t, "1", b.Token)
	assert.Equal(t, StateConfirmed, sess.State)
	assert.Equal(t, b, sess.Booking)
	assert.Nil(t, sess.Failure)
	assert.Equal(t, []State{StateSelectingSlot, StateCollectingPatientInfo, StateSubmitting, StateConfirmed}, states(sess))
}

func TestSessionDoctorOrDateChangeInvalidatesSlot(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.svc.NewSession()

	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))
	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))
	require.NotNil(t, sess.Time)

	require.NoError(t, f.svc.SelectDate(ctx, sess, today.AddDays(1)))
	assert.Equal(t, StateSelectingSlot, sess.State)
	assert.Nil(t, sess.Time)
	assert.Equal(t, today.AddDays(1), sess.Date)

	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))
	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-wilson"))
	assert.Equal(t, StateSelectingSlot, sess.State)
	assert.Nil(t, sess.Time)
	assert.Equal(t, "08:00", sess.Slots[0].Time.String())
}

func TestSessionSelectDateBeforeDoctor(t *testing.T) {
	f := newFixture(t, Config{})
	sess := f.svc.NewSession()

	require.NoError(t, f.svc.SelectDate(context.Background(), sess, today.AddDays(2)))
	assert.Equal(t, StateSelectingDoctor, sess.State)
	assert.Empty(t, sess.History)

	err := f.svc.SelectDate(context.Background(), sess, today.AddDays(-1))
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
}

func TestSessionUnavailableSlotIsUnselectable(t *testing.T) {
	f := newFixture(t, Config{}, booking("a", "dr-smith", "2024-05-01", "10:00"))
	ctx := context.Background()
	sess := f.svc.NewSession()
	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))

	err := f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00"))
	assert.True(t, errors.Is(err, errors.ErrSlotUnavailable))
	assert.Equal(t, StateSelectingSlot, sess.State)

	err = f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("14:00"))
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	assert.Nil(t, sess.Time)
}

func TestSessionSlotTakenDuringSubmit(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.svc.NewSession()
	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))
	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))

	require.NoError(t, f.repo.BookingRepository.Append(ctx, &model.Booking{
		DoctorID: "dr-smith", AppointmentDate: "2024-05-01", AppointmentTime: "10:00", Token: "1",
	}))

	p := patient("Ravi")
	_, err := f.svc.Submit(ctx, sess, p)
	require.True(t, errors.Is(err, errors.ErrSlotUnavailable))

	assert.Equal(t, StateSelectingSlot, sess.State)
	assert.Nil(t, sess.Time)
	require.NotNil(t, sess.Failure)
	assert.Equal(t, errors.CodeSlotUnavailable, sess.Failure.Code)
	assert.Equal(t, "Ravi", sess.Patient.Name)
	assert.False(t, sess.Slots[0].Available)
	assert.Equal(t, []State{StateSelectingSlot, StateCollectingPatientInfo, StateSubmitting, StateFailed, StateSelectingSlot}, states(sess))

	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:30")))
	assert.Nil(t, sess.Failure)
	b, err := f.svc.Submit(ctx, sess, sess.Patient)
	require.NoError(t, err)
	assert.Equal(t, "2", b.Token)
}

func TestSessionPersistenceFailureKeepsDraft(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.svc.NewSession()
	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-chen"))
	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("09:30")))

	f.repo.failAppend(stderrors.New("network down"))
	_, err := f.svc.Submit(ctx, sess, patient("Meera"))
	require.True(t, errors.Is(err, errors.ErrPersistence))

	assert.Equal(t, StateCollectingPatientInfo, sess.State)
	require.NotNil(t, sess.Time)
	assert.Equal(t, "09:30", sess.Time.String())
	assert.Equal(t, "Meera", sess.Patient.Name)
	assert.Equal(t, errors.CodePersistence, sess.Failure.Code)
	assert.Nil(t, sess.Booking)

	f.repo.failAppend(nil)
	b, err := f.svc.Submit(ctx, sess, sess.Patient)
	require.NoError(t, err)
	assert.Equal(t, "09:30", b.AppointmentTime)
	assert.Equal(t, StateConfirmed, sess.State)
	assert.Equal(t, 1, f.repo.Len())
}

func TestSessionInvalidFormStaysCollecting(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.svc.NewSession()
	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))
	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))
	before := len(sess.History)

	_, err := f.svc.Submit(ctx, sess, model.PatientInfo{Name: "x", Age: 0, Problem: "cough"})
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	assert.Equal(t, StateCollectingPatientInfo, sess.State)
	assert.Len(t, sess.History, before)
	assert.Equal(t, "x", sess.Patient.Name)
	assert.Equal(t, 0, f.repo.Len())
}

func TestSessionIllegalTransitions(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	sess := f.svc.NewSession()

	_, err := f.svc.Submit(ctx, sess, patient("a"))
	assert.Equal(t, errors.CodeValidation, errors.CodeOf(err))
	assert.Error(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))
	assert.True(t, errors.Is(f.svc.SelectDoctor(ctx, sess, "dr-nobody"), errors.ErrNotFound))

	require.NoError(t, f.svc.SelectDoctor(ctx, sess, "dr-smith"))
	require.NoError(t, f.svc.SelectSlot(ctx, sess, model.MustTimeOfDay("10:00")))
	_, err = f.svc.Submit(ctx, sess, patient("a"))
	require.NoError(t, err)

	assert.Error(t, f.svc.SelectDoctor(ctx, sess, "dr-chen"))
	assert.Error(t, f.svc.SelectDate(ctx, sess, today))

	require.NoError(t, f.svc.Reset(sess))
	assert.Equal(t, StateSelectingDoctor, sess.State)
	assert.Empty(t, sess.DoctorID)
	assert.Nil(t, sess.Booking)
	assert.Equal(t, today, sess.Date)
}

func TestSessionStore(t *testing.T) {
	f := newFixture(t, Config{})
	store := NewSessionStore(time.Minute)

	sess := f.svc.NewSession()
	store.Save(sess)
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	got.DoctorID = "mutated"

	again, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, again.DoctorID)

	updated, err := store.Update(sess.ID, func(s *Session) error {
		return f.svc.SelectDoctor(context.Background(), s, "dr-smith")
	})
	require.NoError(t, err)
	assert.Equal(t, StateSelectingSlot, updated.State)

	// changes survive a failing update
	updated, err = store.Update(sess.ID, func(s *Session) error {
		s.DoctorID = "dr-chen"
		return stderrors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, "dr-chen", updated.DoctorID)

	store.Delete(sess.ID)
	_, err = store.Get(sess.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	_, err = store.Update(sess.ID, func(*Session) error { return nil })
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSessionStoreSerializesUpdates(t *testing.T) {
	f := newFixture(t, Config{})
	store := NewSessionStore(time.Minute)
	sess := f.svc.NewSession()
	store.Save(sess)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(sess.ID, func(s *Session) error {
				s.History = append(s.History, Transition{Reason: "tick"})
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 50)
}
