// Package server assembles the gateway: configuration, storage
// adapters, the realtime core, and the echo HTTP surface.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/surrealdb/surrealdb.go"

	"github.com/fitlink/realtime-gateway/internal/auth"
	"github.com/fitlink/realtime-gateway/internal/config"
	"github.com/fitlink/realtime-gateway/internal/database"
	"github.com/fitlink/realtime-gateway/internal/dispatch"
	"github.com/fitlink/realtime-gateway/internal/gateway"
	"github.com/fitlink/realtime-gateway/internal/identity"
	"github.com/fitlink/realtime-gateway/internal/limiter"
	"github.com/fitlink/realtime-gateway/internal/logging"
	"github.com/fitlink/realtime-gateway/internal/pubsub"
	"github.com/fitlink/realtime-gateway/internal/registry"
	"github.com/fitlink/realtime-gateway/internal/typing"
)

// Server holds the gateway's assembled dependencies.
type Server struct {
	E   *echo.Echo
	Cfg config.Provider
	DB  *surrealdb.DB

	// Dispatcher is the public notify API; in-process collaborators
	// (the message persistence layer) call it after successful writes.
	Dispatcher *dispatch.Dispatcher

	registry *registry.Registry
	bus      *pubsub.WatermillBus
}

// New builds a fully wired server.
func New(ctx context.Context) (*Server, error) {
	logging.New()

	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gw := cfg.Gateway()

	bus := pubsub.NewWatermillBus()
	reg := registry.New()
	tracker := typing.NewTracker(database.NewSurrealParticipantsLookup(db), reg, gw.TypingExpiry)

	dispatcher, err := dispatch.New(ctx, reg, tracker, bus, bus)
	if err != nil {
		return nil, fmt.Errorf("wiring dispatcher: %w", err)
	}

	handler := gateway.NewHandler(
		limiter.New(gw.RateLimitWindow, gw.RateLimitMax, gw.RateLimitBlockFor, nil),
		auth.NewInvalidTokenCache(gw.InvalidTokenTTL, gw.InvalidTokenCacheSize, nil),
		auth.NewResolver(auth.NewHTTPVerifier(cfg.GetIdentityProviderURL()), gw.TokenCacheTTL, gw.TokenCacheSize, nil),
		identity.NewBridge(database.NewSurrealUserDirectory(db)),
		reg,
		dispatcher,
		tracker,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/ws", handler.ServeWS)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		E:          e,
		Cfg:        cfg,
		DB:         db,
		Dispatcher: dispatcher,
		registry:   reg,
		bus:        bus,
	}, nil
}
