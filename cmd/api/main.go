package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-booking/internal/app"
	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/email"
	"github.com/jwalitptl/clinic-booking/internal/handler/admin"
	"github.com/jwalitptl/clinic-booking/internal/handler/appointment"
	"github.com/jwalitptl/clinic-booking/internal/handler/doctor"
	"github.com/jwalitptl/clinic-booking/internal/handler/health"
	"github.com/jwalitptl/clinic-booking/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/router"
	appointmentService "github.com/jwalitptl/clinic-booking/internal/service/appointment"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := app.NewLogger(cfg.Log, os.Stdout)
	gin.SetMode(cfg.Server.Mode)

	schedCfg, err := app.SchedulerConfig(cfg.Schedule)
	if err != nil {
		lg.Fatal(err, "invalid schedule configuration")
	}

	catalog, err := app.Catalog(cfg)
	if err != nil {
		lg.Fatal(err, "invalid doctor roster")
	}

	// Metrics
	promHandler := prometheus.New(nil)
	m := metrics.NewMetrics("clinic", "scheduler", promHandler.Registry())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storage, err := app.OpenStorage(ctx, cfg, catalog, schedCfg.Location, lg, m)
	cancel()
	if err != nil {
		lg.Fatal(err, "failed to open booking storage", "driver", cfg.Storage.Driver)
	}
	defer storage.Close()

	checks := map[string]repository.Pinger{}
	if p, ok := storage.Pinger(); ok {
		checks["bookings"] = p
	}

	// Without a broker the API emails the front desk itself. With one, the
	// worker consumes the events and sends the email.
	var broker messaging.Broker = messaging.NopBroker{}
	frontDesk := cfg.SMTP.To
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		rb, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, lg.With("redis"))
		cancel()
		if err != nil {
			lg.Fatal(err, "failed to connect to Redis")
		}
		broker = rb
		checks["broker"] = rb
		frontDesk = ""
	}
	defer broker.Close()

	notifier := notification.NewService(notification.Config{
		Channel:   cfg.Redis.Channel,
		FrontDesk: frontDesk,
	}, broker, email.NewSMTPService(cfg.SMTP), lg.With("notification"), m)

	svc := appointmentService.NewService(schedCfg, storage.Repo, catalog,
		appointmentService.WithLogger(lg.With("scheduler")),
		appointmentService.WithMetrics(m),
		appointmentService.WithNotifier(notifier),
	)
	sessions := appointmentService.NewSessionStore(cfg.Schedule.SessionTTL)

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowOrigins

	r := router.NewRouter(router.RouterConfig{
		ServiceName: "clinic-booking",
		CORSConfig:  corsConfig,
		RateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.RPS),
			Burst: cfg.RateLimit.Burst,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	},
		promHandler,
		health.NewHandler(checks),
		doctor.NewHandler(svc),
		appointment.NewHandler(svc, sessions),
		admin.NewHandler(svc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		lg.Info("Starting server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "doctors", catalog.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error(err, "server forced to shutdown")
	}
	notifier.Wait()

	lg.Info("Server exited properly")
}
