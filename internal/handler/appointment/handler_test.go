package appointment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
	"github.com/jwalitptl/clinic-booking/internal/service/doctor"
)

type env struct {
	router *gin.Engine
	repo   *memory.BookingRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := doctor.NewCatalog(doctor.Defaults())
	require.NoError(t, err)
	repo := memory.NewBookingRepository(time.UTC)
	svc := appointment.NewService(appointment.Config{Location: time.UTC}, repo, catalog,
		appointment.WithClock(func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }),
	)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler())
	NewHandler(svc, appointment.NewSessionStore(time.Minute)).RegisterRoutes(r.Group("/api/v1"))
	return &env{router: r, repo: repo}
}

func (e *env) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type sessionBody struct {
	Status  string              `json:"status"`
	Data    appointment.Session `json:"data"`
	Details struct {
		Session appointment.Session `json:"session"`
	} `json:"details"`
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) sessionBody {
	t.Helper()
	var body sessionBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

const patientJSON = `{"patient":{"name":"Asha Rao","age":34,"gender":"Female","phone":"98765","problem":"chest pain"}}`

func TestCreateAppointment(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-smith","date":"2024-05-02","time":"10:30","patient":{"name":"Asha","age":34,"problem":"checkup"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))

	var body struct {
		Data model.Booking `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "1", body.Data.Token)
	assert.Equal(t, "Dr. Sarah Smith", body.Data.DoctorName)
	assert.Equal(t, model.GenderOther, body.Data.PatientGender)
	assert.Equal(t, 1, e.repo.Len())

	w = e.do(http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-smith","date":"2024-05-02","time":"10:30","patient":{"name":"Ravi","age":8,"problem":"fever"}}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateAppointmentValidation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"bad time", `{"doctor_id":"dr-smith","date":"2024-05-02","time":"10am","patient":{"name":"a","age":1,"problem":"x"}}`},
		{"bad date", `{"doctor_id":"dr-smith","date":"02-05-2024","time":"10:00","patient":{"name":"a","age":1,"problem":"x"}}`},
		{"missing doctor", `{"date":"2024-05-02","time":"10:00","patient":{"name":"a","age":1,"problem":"x"}}`},
		{"bad age", `{"doctor_id":"dr-smith","date":"2024-05-02","time":"10:00","patient":{"name":"a","age":0,"problem":"x"}}`},
		{"past", `{"doctor_id":"dr-smith","date":"2024-04-30","time":"10:00","patient":{"name":"a","age":1,"problem":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/api/v1/appointments", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 0, e.repo.Len())
}

func TestSessionFlow(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	sess := decodeSession(t, w).Data
	assert.Equal(t, appointment.StateSelectingDoctor, sess.State)
	base := "/api/v1/sessions/" + sess.ID

	w = e.do(http.MethodPut, base+"/doctor", `{"doctor_id":"dr-chen"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess = decodeSession(t, w).Data
	assert.Equal(t, appointment.StateSelectingSlot, sess.State)
	assert.Equal(t, "09:30", sess.Slots[0].Time.String())

	w = e.do(http.MethodPut, base+"/date", `{"date":"2024-05-03"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.MustDate("2024-05-03"), decodeSession(t, w).Data.Date)

	w = e.do(http.MethodPut, base+"/slot", `{"time":"16:30"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appointment.StateCollectingPatientInfo, decodeSession(t, w).Data.State)

	w = e.do(http.MethodPost, base+"/submit", patientJSON)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sess = decodeSession(t, w).Data
	assert.Equal(t, appointment.StateConfirmed, sess.State)
	require.NotNil(t, sess.Booking)
	assert.Equal(t, "1", sess.Booking.Token)
	assert.Equal(t, "2024-05-03", sess.Booking.AppointmentDate)

	w = e.do(http.MethodGet, base, "")
	assert.Equal(t, appointment.StateConfirmed, decodeSession(t, w).Data.State)

	w = e.do(http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, appointment.StateSelectingDoctor, decodeSession(t, w).Data.State)

	assert.Equal(t, http.StatusOK, e.do(http.MethodDelete, base, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, base, "").Code)
}

func TestSessionSubmitSlotTakenReturnsSession(t *testing.T) {
	e := newEnv(t)

	sess := decodeSession(t, e.do(http.MethodPost, "/api/v1/sessions", "")).Data
	base := "/api/v1/sessions/" + sess.ID
	require.Equal(t, http.StatusOK, e.do(http.MethodPut, base+"/doctor", `{"doctor_id":"dr-smith"}`).Code)
	require.Equal(t, http.StatusOK, e.do(http.MethodPut, base+"/slot", `{"time":"11:00"}`).Code)

	w := e.do(http.MethodPost, "/api/v1/appointments",
		`{"doctor_id":"dr-smith","date":"2024-05-01","time":"11:00","patient":{"name":"Other","age":50,"problem":"x"}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(http.MethodPost, base+"/submit", patientJSON)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeSession(t, w)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, appointment.StateSelectingSlot, body.Details.Session.State)
	assert.Equal(t, "Asha Rao", body.Details.Session.Patient.Name)
	require.NotNil(t, body.Details.Session.Failure)
}

func TestSessionErrors(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/v1/sessions/nope", "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, "/api/v1/sessions/nope/doctor", `{"doctor_id":"dr-smith"}`).Code)

	sess := decodeSession(t, e.do(http.MethodPost, "/api/v1/sessions", "")).Data
	base := "/api/v1/sessions/" + sess.ID

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, base+"/doctor", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPut, base+"/doctor", `{"doctor_id":"dr-who"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPut, base+"/slot", `{"time":"10:00"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, base+"/submit", patientJSON).Code)
}
