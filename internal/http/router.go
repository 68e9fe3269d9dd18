package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/campusfix/backend/internal/config"
	"github.com/campusfix/backend/internal/http/handlers"
	"github.com/campusfix/backend/internal/http/middleware"
	"github.com/campusfix/backend/internal/metrics"
	"github.com/campusfix/backend/internal/service"
	"github.com/campusfix/backend/internal/store"

	_ "github.com/campusfix/backend/docs"
)

// Services bundles the domain services the routes dispatch to.
type Services struct {
	Store       store.Store
	Incidents   *service.IncidentService
	Engine      *service.AssignmentEngine
	Escalator   *service.Escalator
	SLA         service.SLAEngine
	Predictions service.PredictionSource
	Scorer      handlers.ScorerHealth
}

func Router(cfg config.Config, svc Services, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.Instrument())
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:           svc.Store,
		Incidents:       svc.Incidents,
		Engine:          svc.Engine,
		Escalator:       svc.Escalator,
		SLA:             svc.SLA,
		Predictions:     svc.Predictions,
		Scorer:          svc.Scorer,
		Validator:       validator.New(),
		Logger:          logger,
		AdminKey:        cfg.AdminKey,
		CriticalDays:    cfg.CriticalDaysThreshold,
		PredictionLimit: cfg.PredictionLimit,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		api.GET("/incidents", h.IncidentsList)
		api.POST("/incidents", h.IncidentCreate)
		api.GET("/incidents/:id", h.IncidentDetails)
		api.PATCH("/incidents/:id/status", h.IncidentStatus)
		api.GET("/incidents/:id/sla", h.IncidentSLA)
		api.GET("/sla", h.SLABoard)
		api.GET("/technicians", h.TechniciansList)
		api.GET("/technicians/:id/assignments", h.TechnicianAssignments)
		api.PATCH("/assignments/:id", h.AssignmentUpdate)
		api.GET("/notifications", h.NotificationsList)
		api.GET("/predictions", h.PredictionsList)
		api.GET("/predictions/health", h.PredictionsHealth)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/incidents/:id/assign", h.IncidentAssign)
		admin.POST("/incidents/:id/close", h.IncidentClose)
		admin.POST("/assignments/:id/reassign", h.AssignmentReassign)
		admin.POST("/technicians", h.TechnicianUpsert)
		admin.POST("/technicians/import", h.TechniciansImport)
		admin.POST("/predictions/process-critical", h.ProcessCritical)
		admin.POST("/escalation/tick", h.EscalationTick)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
