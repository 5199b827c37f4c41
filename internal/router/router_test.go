package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/handler/doctor"
	"github.com/jwalitptl/clinic-booking/internal/handler/health"
	"github.com/jwalitptl/clinic-booking/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/memory"
	"github.com/jwalitptl/clinic-booking/internal/service/appointment"
	doctorService "github.com/jwalitptl/clinic-booking/internal/service/doctor"
)

func newRouter(t *testing.T, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := doctorService.NewCatalog(doctorService.Defaults())
	require.NoError(t, err)
	repo := memory.NewBookingRepository(time.UTC)
	svc := appointment.NewService(appointment.Config{Location: time.UTC}, repo, catalog)

	r := NewRouter(cfg,
		prometheus.New(nil),
		health.NewHandler(map[string]repository.Pinger{"bookings": repo}),
		doctor.NewHandler(svc),
	)
	r.Setup()
	return r.Engine()
}

func get(e *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoutesAndHeaders(t *testing.T) {
	e := newRouter(t, RouterConfig{CORSConfig: middleware.DefaultCORSConfig()})

	w := get(e, "/api/v1/doctors")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0", w.Header().Get("X-API-Version"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/ready").Code)
	assert.Equal(t, http.StatusNotFound, get(e, "/api/v1/nothing").Code)

	w = get(e, "/api/v1/health/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `http_requests_total{method="GET",path="/api/v1/doctors",status="200"} 1`), w.Body.String())
}

func TestRateLimitApplied(t *testing.T) {
	e := newRouter(t, RouterConfig{
		CORSConfig: middleware.DefaultCORSConfig(),
		RateLimit:  middleware.RateLimiterConfig{Rate: 0.001, Burst: 1},
	})

	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(e, "/api/v1/health/live").Code)
}
