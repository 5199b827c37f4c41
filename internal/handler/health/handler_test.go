package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/repository"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newRouter(checks map[string]repository.Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(checks).RegisterRoutes(r.Group("/api/v1"), func(c *gin.Context) { c.String(http.StatusOK, "metrics") })
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := get(newRouter(nil), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}

func TestReadiness(t *testing.T) {
	up := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("circuit breaker is open") })

	w := get(newRouter(map[string]repository.Pinger{"bookings": up}), "/api/v1/health/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = get(newRouter(map[string]repository.Pinger{"bookings": down, "broker": up}), "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string                       `json:"status"`
		Checks map[string]map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DOWN", body.Status)
	assert.Equal(t, "circuit breaker is open", body.Checks["bookings"]["reason"])
	assert.Equal(t, "UP", body.Checks["broker"]["status"])
}

func TestMetricsRoute(t *testing.T) {
	w := get(newRouter(nil), "/api/v1/health/metrics")
	assert.Equal(t, "metrics", w.Body.String())
}
