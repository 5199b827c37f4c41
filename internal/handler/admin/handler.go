package admin

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
)

// Handler serves the front-desk dashboard: booking search, token counts,
// CSV export and token re-derivation.
type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin", middleware.Cache(middleware.NoStoreConfig()))
	{
		admin.GET("/appointments", h.ListAppointments)
		admin.GET("/appointments/export", h.ExportAppointments)
		admin.GET("/token-counts", h.TokenCounts)
		admin.GET("/tokens/:doctor_id", h.RederiveTokens)
	}
}

// filter reads ?doctor_id=&date=&q= into a BookingFilter.
func filter(c *gin.Context) (model.BookingFilter, error) {
	date, err := handler.ParseDate(c.Query("date"), model.Date{})
	if err != nil {
		return model.BookingFilter{}, err
	}
	return model.BookingFilter{
		DoctorID: c.Query("doctor_id"),
		Date:     date,
		Query:    c.Query("q"),
	}, nil
}

func (h *Handler) ListAppointments(c *gin.Context) {
	f, err := filter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	bookings, err := h.service.ListBookings(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(bookings))
}

func (h *Handler) ExportAppointments(c *gin.Context) {
	f, err := filter(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// Fetch before writing headers so a store failure still renders as JSON.
	bookings, err := h.service.ListBookings(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}

	name := "appointments.csv"
	if !f.Date.IsZero() {
		name = fmt.Sprintf("appointments-%s.csv", f.Date)
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Status(http.StatusOK)
	if err := appointment.WriteCSV(c.Writer, bookings); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) TokenCounts(c *gin.Context) {
	date, err := handler.ParseDate(c.Query("date"), model.Date{})
	if err != nil {
		_ = c.Error(err)
		return
	}
	counts, err := h.service.TokenCounts(c.Request.Context(), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(counts))
}

func (h *Handler) RederiveTokens(c *gin.Context) {
	date, err := handler.ParseDate(c.Query("date"), h.service.Today())
	if err != nil {
		_ = c.Error(err)
		return
	}
	report, err := h.service.RederiveTokens(c.Request.Context(), c.Param("doctor_id"), date)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(report))
}
