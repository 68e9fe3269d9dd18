package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/campusfix/backend/internal/config"
	"github.com/campusfix/backend/internal/db"
	"github.com/campusfix/backend/internal/geocode"
	httpapi "github.com/campusfix/backend/internal/http"
	"github.com/campusfix/backend/internal/http/handlers"
	"github.com/campusfix/backend/internal/lock"
	"github.com/campusfix/backend/internal/metrics"
	"github.com/campusfix/backend/internal/notify"
	"github.com/campusfix/backend/internal/observability"
	"github.com/campusfix/backend/internal/prediction"
	"github.com/campusfix/backend/internal/service"
	"github.com/campusfix/backend/internal/store"
	"github.com/campusfix/backend/internal/store/memory"
)

const serviceName = "campusfix-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", serviceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.Start(ctx, observability.TracingFromConfig(serviceName, cfg))
	if err != nil {
		logger.Warn().Err(err).Msg("otel init failed, tracing disabled")
		shutdownTracer = func(context.Context) error { return nil }
	}

	st, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	notifier, closeNotifier := buildNotifier(cfg, st, logger)
	defer closeNotifier()

	var predictions service.PredictionSource = st
	var scorer handlers.ScorerHealth
	if cfg.PredictionURL != "" {
		remote := prediction.HTTPSource{BaseURL: cfg.PredictionURL}
		predictions = prediction.Fallback{Primary: remote, Secondary: st, Record: st, Logger: logger}
		scorer = remote
	} else {
		logger.Info().Msg("PREDICTION_URL not set, serving stored predictions")
	}

	var geocoder geocode.Geocoder
	if cfg.GeocoderEnabled {
		geocoder = geocode.NewNominatim(cfg.GeocoderURL, cfg.GeocoderAgent)
	}

	var tickLock service.TickLocker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		tickLock = lock.New(rdb, cfg.TickLockKey, cfg.TickLockTTL)
	}

	loc := cfg.Location()
	engine := &service.AssignmentEngine{
		Incidents:       st,
		Assignments:     st,
		Registry:        st,
		Notifier:        notifier,
		Logger:          logger.With().Str("component", "assignment").Logger(),
		Window:          cfg.AssignmentWindow,
		DurationMinutes: cfg.AssignmentDurationMinutes,
		CriticalDays:    cfg.CriticalDaysThreshold,
		Location:        loc,
	}
	incidents := &service.IncidentService{
		Incidents:        st,
		Assignments:      st,
		Engine:           engine,
		Notifier:         notifier,
		Geocoder:         geocoder,
		Logger:           logger.With().Str("component", "incidents").Logger(),
		Campus:           cfg.CampusName,
		RecurrenceWindow: cfg.RecurrenceWindow,
		Location:         loc,
	}
	sla := service.NewSLAEngine(cfg.SLABudget)
	escalator := &service.Escalator{
		Incidents:          st,
		Engine:             engine,
		SLA:                sla,
		Predictions:        predictions,
		Notifier:           notifier,
		Lock:               tickLock,
		Logger:             logger.With().Str("component", "escalation").Logger(),
		ProcessPredictions: cfg.EscalationProcessPredictions,
		PredictionLimit:    cfg.PredictionLimit,
		CriticalDays:       cfg.CriticalDaysThreshold,
		RecurrenceWindow:   cfg.RecurrenceWindow,
		TickTimeout:        cfg.EscalationTickTimeout,
	}

	metrics.Register()
	router := httpapi.Router(cfg, httpapi.Services{
		Store:       st,
		Incidents:   incidents,
		Engine:      engine,
		Escalator:   escalator,
		SLA:         sla,
		Predictions: predictions,
		Scorer:      scorer,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "http"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.EscalationEnabled {
		runner := &service.Runner{Escalator: escalator, Interval: cfg.EscalationInterval, Logger: logger}
		if err := runner.Start(gctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start escalation runner")
		}
		g.Go(func() error {
			<-gctx.Done()
			<-runner.Stop().Done()
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
		return shutdownTracer(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}

// openStore connects to Postgres when DATABASE_URL is set and falls back to
// the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL not set, using in-memory store")
		return memory.New(), func() {}
	}
	st, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
	}
	return st, st.Close
}

// buildNotifier always persists notifications. Kafka is added when brokers
// are configured, the log otherwise.
func buildNotifier(cfg config.Config, st store.NotificationStore, logger zerolog.Logger) (service.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notify.Multi{st, notify.LogEmitter{Logger: logger}}, func() {}
	}
	kafka, err := notify.NewKafkaEmitter(notify.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaNotificationTopic,
		ClientID: cfg.KafkaClientID,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create kafka emitter")
	}
	return notify.Multi{st, kafka}, func() {
		if err := kafka.Close(); err != nil {
			logger.Warn().Err(err).Msg("kafka close")
		}
	}
}
