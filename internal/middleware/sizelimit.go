package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodySize comfortably fits a patient form.
const DefaultMaxBodySize = 64 << 10

// SizeLimit rejects bodies larger than maxBytes. Declared lengths are checked
// up front; chunked bodies are cut off while the handler reads them.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Status:    "error",
				Message:   fmt.Sprintf("request body exceeds %d bytes", maxBytes),
				RequestID: c.GetString(ContextRequestID),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
