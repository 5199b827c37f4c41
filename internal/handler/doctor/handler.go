package doctor

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/handler"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.GET("", middleware.Cache(middleware.DefaultCacheConfig()), h.ListDoctors)
		doctors.GET("/:id", middleware.Cache(middleware.DefaultCacheConfig()), h.GetDoctor)
		doctors.GET("/:id/slots", middleware.Cache(middleware.NoStoreConfig()), h.GetSlots)
	}
}

func (h *Handler) ListDoctors(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.Doctors()))
}

func (h *Handler) GetDoctor(c *gin.Context) {
	doc, err := h.service.Doctor(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(doc))
}

type slotsResponse struct {
	DoctorID string           `json:"doctor_id"`
	Date     model.Date       `json:"date"`
	Slots    []model.TimeSlot `json:"slots"`
}

// GetSlots returns the availability grid for ?date=YYYY-MM-DD, today by default.
func (h *Handler) GetSlots(c *gin.Context) {
	doc, err := h.service.Doctor(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	date, err := handler.ParseDate(c.Query("date"), h.service.Today())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slotsResponse{
		DoctorID: doc.ID,
		Date:     date,
		Slots:    h.service.GetAvailableSlots(c.Request.Context(), doc.ID, date),
	}))
}
