package appointment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

type State string

const (
	StateSelectingDoctor       State = "selecting_doctor"
	StateSelectingSlot         State = "selecting_slot"
	StateCollectingPatientInfo State = "collecting_patient_info"
	StateSubmitting            State = "submitting"
	StateConfirmed             State = "confirmed"
	StateFailed                State = "failed"
)

type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// Failure is the reason the last submission did not confirm.
type Failure struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	At      time.Time        `json:"at"`
}

// Session is one booking in progress. It is only ever mutated by one
// goroutine at a time through SessionStore.Update.
type Session struct {
	ID       string            `json:"id"`
	State    State             `json:"state"`
	DoctorID string            `json:"doctor_id,omitempty"`
	Date     model.Date        `json:"date"`
	Time     *model.TimeOfDay  `json:"time,omitempty"`
	Slots    []model.TimeSlot  `json:"slots,omitempty"`
	Patient  model.PatientInfo `json:"patient"`
	Booking  *model.Booking    `json:"booking,omitempty"`
	Failure  *Failure          `json:"failure,omitempty"`
	History  []Transition      `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) transition(to State, at time.Time, reason string) {
	s.History = append(s.History, Transition{From: s.State, To: to, At: at, Reason: reason})
	s.State = to
	s.UpdatedAt = at
}

func (s *Session) clone() *Session {
	c := *s
	if s.Time != nil {
		t := *s.Time
		c.Time = &t
	}
	if s.Booking != nil {
		b := *s.Booking
		c.Booking = &b
	}
	if s.Failure != nil {
		f := *s.Failure
		c.Failure = &f
	}
	c.Slots = append([]model.TimeSlot(nil), s.Slots...)
	c.History = append([]Transition(nil), s.History...)
	return &c
}

func invalidState(s *Session, action string) error {
	return errors.Validation(fmt.Sprintf("cannot %s while session is %s", action, s.State), nil)
}

// NewSession starts a booking for today's date with no doctor chosen.
func (s *Service) NewSession() *Session {
	now := s.now()
	return &Session{
		ID:        s.newID(),
		State:     StateSelectingDoctor,
		Date:      s.Today(),
		History:   []Transition{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// refreshSlots recomputes the grid for the session's doctor and date, drops
// any selected slot and moves the session to slot selection.
func (s *Service) refreshSlots(ctx context.Context, sess *Session, reason string) {
	sess.Slots = s.GetAvailableSlots(ctx, sess.DoctorID, sess.Date)
	sess.Time = nil
	sess.transition(StateSelectingSlot, s.now(), reason)
}

func editable(sess *Session) bool {
	switch sess.State {
	case StateSelectingDoctor, StateSelectingSlot, StateCollectingPatientInfo:
		return true
	}
	return false
}

func (s *Service) SelectDoctor(ctx context.Context, sess *Session, doctorID string) error {
	if !editable(sess) {
		return invalidState(sess, "choose a doctor")
	}
	if _, err := s.Doctor(doctorID); err != nil {
		return err
	}
	sess.DoctorID = doctorID
	s.refreshSlots(ctx, sess, "doctor selected")
	return nil
}

// SelectDate changes the date. Once a doctor is chosen this rebuilds the grid
// and invalidates the selected slot.
func (s *Service) SelectDate(ctx context.Context, sess *Session, date model.Date) error {
	if !editable(sess) {
		return invalidState(sess, "change the date")
	}
	if err := s.checkDate(date); err != nil {
		return err
	}
	sess.Date = date
	if sess.DoctorID == "" {
		sess.UpdatedAt = s.now()
		return nil
	}
	s.refreshSlots(ctx, sess, "date selected")
	return nil
}

// SelectSlot picks a time from a fresh grid. Times that are full or outside
// the doctor's hours cannot be selected.
func (s *Service) SelectSlot(ctx context.Context, sess *Session, t model.TimeOfDay) error {
	if sess.State != StateSelectingSlot && sess.State != StateCollectingPatientInfo {
		return invalidState(sess, "choose a slot")
	}

	sess.Slots = s.GetAvailableSlots(ctx, sess.DoctorID, sess.Date)
	for _, ts := range sess.Slots {
		if ts.Time != t {
			continue
		}
		if !ts.Available {
			return errors.SlotUnavailable(fmt.Sprintf("%s on %s is fully booked", t, sess.Date))
		}
		sess.Time = &t
		sess.Failure = nil
		if sess.State != StateCollectingPatientInfo {
			sess.transition(StateCollectingPatientInfo, s.now(), "slot selected")
		} else {
			sess.UpdatedAt = s.now()
		}
		return nil
	}
	return errors.Validation(fmt.Sprintf("%s is not a bookable time", t), nil)
}

// Submit books the selected slot with the patient details. A rejected form
// leaves the session where it is. A failed booking passes through failed and
// returns the session to patient info (store error) or slot selection (slot
// taken), keeping the patient draft and recording the failure.
func (s *Service) Submit(ctx context.Context, sess *Session, patient model.PatientInfo) (*model.Booking, error) {
	if sess.State != StateCollectingPatientInfo || sess.Time == nil {
		return nil, invalidState(sess, "submit")
	}

	patient.Normalize()
	sess.Patient = patient
	if err := s.validate.Validate(patient); err != nil {
		sess.UpdatedAt = s.now()
		return nil, err
	}

	sess.transition(StateSubmitting, s.now(), "")
	booking, err := s.BookAppointment(ctx, BookingRequest{
		DoctorID: sess.DoctorID,
		Date:     sess.Date,
		Time:     *sess.Time,
		Patient:  patient,
	})
	if err != nil {
		s.fail(ctx, sess, err)
		return nil, err
	}

	sess.Booking = booking
	sess.Failure = nil
	sess.transition(StateConfirmed, s.now(), "token "+booking.Token)
	return booking, nil
}

func (s *Service) fail(ctx context.Context, sess *Session, err error) {
	now := s.now()
	code := errors.CodeOf(err)
	sess.Failure = &Failure{Code: code, Message: err.Error(), At: now}
	sess.transition(StateFailed, now, err.Error())

	if code == errors.CodeSlotUnavailable {
		s.refreshSlots(ctx, sess, "slot no longer available")
		return
	}
	sess.transition(StateCollectingPatientInfo, s.now(), "retry submission")
}

// Reset starts over after a confirmation, keeping only the date.
func (s *Service) Reset(sess *Session) error {
	if sess.State == StateSubmitting {
		return invalidState(sess, "reset")
	}
	sess.DoctorID = ""
	sess.Time = nil
	sess.Slots = nil
	sess.Patient = model.PatientInfo{}
	sess.Booking = nil
	sess.Failure = nil
	sess.transition(StateSelectingDoctor, s.now(), "reset")
	return nil
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

// SessionStore keeps sessions in memory for a sliding TTL.
type SessionStore struct {
	cache *cache.Cache
	// guards creation so two Updates never race on a missing entry
	mu sync.Mutex
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{cache: cache.New(ttl, ttl)}
}

func (st *SessionStore) Save(sess *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache.SetDefault(sess.ID, &sessionEntry{session: sess.clone()})
}

func (st *SessionStore) entry(id string) (*sessionEntry, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*sessionEntry), true
}

func (st *SessionStore) Get(id string) (*Session, error) {
	e, ok := st.entry(id)
	if !ok {
		return nil, errors.NotFound("session", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), nil
}

// Update runs fn with the session locked and refreshes its TTL. Changes fn
// makes are kept even when it returns an error, so failed submissions stay
// recorded. The returned session is a snapshot taken after fn.
func (st *SessionStore) Update(id string, fn func(*Session) error) (*Session, error) {
	e, ok := st.entry(id)
	if !ok {
		return nil, errors.NotFound("session", nil)
	}

	e.mu.Lock()
	err := fn(e.session)
	snapshot := e.session.clone()
	e.mu.Unlock()

	st.mu.Lock()
	if _, found := st.cache.Get(id); found {
		st.cache.SetDefault(id, e)
	}
	st.mu.Unlock()
	return snapshot, err
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache.Delete(id)
}

func (st *SessionStore) Len() int {
	return st.cache.ItemCount()
}
