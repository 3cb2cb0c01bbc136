package main

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/carenet/clinic/internal/config"
	"github.com/carenet/clinic/internal/domain/followup"
	"github.com/carenet/clinic/internal/domain/patient"
	"github.com/carenet/clinic/internal/domain/scheduling"
	"github.com/carenet/clinic/internal/domain/stats"
	"github.com/carenet/clinic/internal/domain/vitals"
	"github.com/carenet/clinic/internal/platform/auth"
	"github.com/carenet/clinic/internal/platform/db"
	"github.com/carenet/clinic/internal/platform/middleware"
)

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// wire builds the services over pool and returns their HTTP handlers.
func wire(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, loc *time.Location) []routeRegistrar {
	tx := db.NewTransactor(pool)

	patientSvc := patient.NewService(patient.NewRepoPG(pool), tx,
		patient.WithLogger(logger.With().Str("component", "patients").Logger()))
	vitalsSvc := vitals.NewService(vitals.NewRepoPG(pool), patientSvc, tx,
		vitals.WithLocation(loc),
		vitals.WithChartWindow(cfg.VitalsChartWindow),
		vitals.WithLogger(logger.With().Str("component", "vitals").Logger()))
	patientSvc.SetVitals(vitalsSvc)

	schedSvc := scheduling.NewService(scheduling.NewRepoPG(pool), patientSvc, tx,
		scheduling.WithLocation(loc),
		scheduling.WithLogger(logger.With().Str("component", "appointments").Logger()))
	followUpSvc := followup.NewService(followup.NewRepoPG(pool), patientSvc, tx,
		followup.WithLogger(logger.With().Str("component", "followups").Logger()))
	statsSvc := stats.NewService(patientSvc, patientSvc, schedSvc, followUpSvc, vitalsSvc,
		stats.WithChartWindow(cfg.VitalsChartWindow))

	tokens := auth.NewTokenIssuer(cfg.SigningKey(), cfg.JWTIssuer, cfg.JWTTTL)

	return []routeRegistrar{
		auth.NewLoginHandler(patientSvc, tokens),
		patient.NewHandler(patientSvc),
		vitals.NewHandler(vitalsSvc),
		scheduling.NewHandler(schedSvc),
		followup.NewHandler(followUpSvc),
		stats.NewHandler(statsSvc),
	}
}

// newServer assembles the echo instance: global middleware, health check and
// the authenticated /api/v1 group.
func newServer(cfg *config.Config, logger zerolog.Logger, health db.Pinger, handlers ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID, auth.DevActorHeader},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	e.GET("/health", db.HealthHandler(health))

	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.SigningKey(),
		Skipper:    auth.AuthSkipper,
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	api := e.Group("/api/v1", authMW, middleware.Audit(logger))
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return e
}
