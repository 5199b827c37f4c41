package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jwalitptl/clinic-booking/internal/handler/health"
	"github.com/jwalitptl/clinic-booking/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	// ServiceName labels the request spans.
	ServiceName    string
	CORSConfig     middleware.CORSConfig
	RateLimit      middleware.RateLimiterConfig
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Router struct {
	engine   *gin.Engine
	config   RouterConfig
	metrics  *prometheus.Handler
	health   *health.Handler
	handlers []Handler
}

func NewRouter(config RouterConfig, metrics *prometheus.Handler, healthH *health.Handler, handlers ...Handler) *Router {
	if config.ServiceName == "" {
		config.ServiceName = "clinic-booking"
	}
	if metrics == nil {
		metrics = prometheus.New(nil)
	}

	engine := gin.New()
	r := &Router{
		engine:   engine,
		config:   config,
		metrics:  metrics,
		health:   healthH,
		handlers: handlers,
	}

	// Recovery stays outermost; ErrorHandler must run after every handler
	// has attached its errors.
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		otelgin.Middleware(config.ServiceName),
		metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.MaxBodyBytes),
	)

	rateLimiter := middleware.NewRateLimiter(config.RateLimit)
	engine.Use(
		rateLimiter.RateLimit(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	return r
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.health != nil {
		r.health.RegisterRoutes(api, r.metrics.Handler())
	}
	for _, h := range r.handlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
