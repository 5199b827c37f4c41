package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
	"github.com/jwalitptl/clinic-booking/pkg/validator"
)

type Handler struct {
	service  *appointment.Service
	sessions *appointment.SessionStore
	validate validator.Validator
}

func NewHandler(service *appointment.Service, sessions *appointment.SessionStore) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	noStore := middleware.Cache(middleware.NoStoreConfig())

	appointments := r.Group("/appointments", noStore)
	{
		appointments.POST("", h.CreateAppointment)
	}

	sessions := r.Group("/sessions", noStore)
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.PUT("/:id/doctor", h.SelectDoctor)
		sessions.PUT("/:id/date", h.SelectDate)
		sessions.PUT("/:id/slot", h.SelectSlot)
		sessions.POST("/:id/submit", h.Submit)
		sessions.POST("/:id/reset", h.Reset)
		sessions.DELETE("/:id", h.DeleteSession)
	}
}

type CreateAppointmentRequest struct {
	DoctorID string            `json:"doctor_id" validate:"required"`
	Date     string            `json:"date" validate:"required,yyyymmdd"`
	Time     string            `json:"time" validate:"required,hhmm"`
	// checked by the scheduler after normalization
	Patient model.PatientInfo `json:"patient" validate:"-"`
}

// bind decodes and validates a request body.
func (h *Handler) bind(c *gin.Context, req interface{}) error {
	if err := handler.BindJSON(c, req); err != nil {
		return err
	}
	return h.validate.Validate(req)
}

// CreateAppointment books in one call, without a session.
func (h *Handler) CreateAppointment(c *gin.Context) {
	var req CreateAppointmentRequest
	if err := h.bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	date, err := handler.ParseDate(req.Date, model.Date{})
	if err != nil {
		_ = c.Error(err)
		return
	}
	at, err := handler.ParseTime(req.Time)
	if err != nil {
		_ = c.Error(err)
		return
	}

	booking, err := h.service.BookAppointment(c.Request.Context(), appointment.BookingRequest{
		DoctorID: req.DoctorID,
		Date:     date,
		Time:     at,
		Patient:  req.Patient,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(booking))
}

func (h *Handler) CreateSession(c *gin.Context) {
	sess := h.service.NewSession()
	h.sessions.Save(sess)
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(sess))
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sess))
}

// update applies fn to the session named in the path and renders the result.
func (h *Handler) update(c *gin.Context, fn func(*appointment.Session) error) {
	sess, err := h.sessions.Update(c.Param("id"), fn)
	if err != nil {
		e := c.Error(err)
		if sess != nil {
			e.SetMeta(gin.H{"session": sess})
		}
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sess))
}

type SelectDoctorRequest struct {
	DoctorID string `json:"doctor_id" validate:"required"`
}

func (h *Handler) SelectDoctor(c *gin.Context) {
	var req SelectDoctorRequest
	if err := h.bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.update(c, func(s *appointment.Session) error {
		return h.service.SelectDoctor(c.Request.Context(), s, req.DoctorID)
	})
}

type SelectDateRequest struct {
	Date string `json:"date" validate:"required,yyyymmdd"`
}

func (h *Handler) SelectDate(c *gin.Context) {
	var req SelectDateRequest
	if err := h.bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	date, err := handler.ParseDate(req.Date, model.Date{})
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.update(c, func(s *appointment.Session) error {
		return h.service.SelectDate(c.Request.Context(), s, date)
	})
}

type SelectSlotRequest struct {
	Time string `json:"time" validate:"required,hhmm"`
}

func (h *Handler) SelectSlot(c *gin.Context) {
	var req SelectSlotRequest
	if err := h.bind(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	at, err := handler.ParseTime(req.Time)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.update(c, func(s *appointment.Session) error {
		return h.service.SelectSlot(c.Request.Context(), s, at)
	})
}

type SubmitRequest struct {
	Patient model.PatientInfo `json:"patient"`
}

// Submit books the session's slot. On a failed booking the response still
// carries the session, now back at slot selection or patient info.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := handler.BindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	h.update(c, func(s *appointment.Session) error {
		_, err := h.service.Submit(c.Request.Context(), s, req.Patient)
		return err
	})
}

func (h *Handler) Reset(c *gin.Context) {
	h.update(c, h.service.Reset)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if _, err := h.sessions.Get(c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	h.sessions.Delete(c.Param("id"))
	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
