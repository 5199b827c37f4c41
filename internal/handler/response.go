package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// BindJSON decodes the body into obj, reporting malformed JSON as a
// validation error.
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return errors.Validation("invalid request body", err)
	}
	return nil
}

// ParseDate reads a YYYY-MM-DD value, falling back to def when it is empty.
func ParseDate(value string, def model.Date) (model.Date, error) {
	if value == "" {
		return def, nil
	}
	d, err := model.ParseDate(value, nil)
	if err != nil {
		return model.Date{}, errors.Validation("invalid date, expected YYYY-MM-DD", err)
	}
	return d, nil
}

// ParseTime reads an HH:MM value.
func ParseTime(value string) (model.TimeOfDay, error) {
	t, err := model.ParseTimeOfDay(value, nil)
	if err != nil {
		return 0, errors.Validation("invalid time, expected HH:MM", err)
	}
	return t, nil
}
