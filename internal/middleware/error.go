package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/validator"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status    string      `json:"status"`
	Code      int         `json:"code,omitempty"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorHandler renders the last error a handler attached with c.Error.
// AppErrors keep their message and map to their HTTP status; anything else
// is reported as an internal error. Error meta, when set, is returned as
// details unless the error carries field errors.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		last := c.Errors.Last()
		err := last.Err

		status := http.StatusInternalServerError
		resp := ErrorResponse{
			Status:    "error",
			Code:      int(errors.CodeInternal),
			Message:   "internal server error",
			RequestID: requestID,
		}

		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			status = appErr.StatusCode()
			resp.Code = int(appErr.Code)
			resp.Message = appErr.Message
			var fields validator.Errors
			if errors.As(appErr.Err, &fields) {
				resp.Details = fields
			}
		}
		if resp.Details == nil && last.Meta != nil {
			resp.Details = last.Meta
		}

		event := log.Warn()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Err(err).
			Str("request_id", requestID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		c.JSON(status, resp)
	}
}
