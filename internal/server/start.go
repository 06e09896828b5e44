package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then drains connections and shuts everything down.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.GetBindAddr()); err != nil && err != http.ErrServerClosed {
			s.E.Logger.Fatalf("shutting down the server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close live sockets first so clients see a clean going-away frame
	// instead of a dropped TCP connection.
	s.registry.CloseAll(websocket.StatusGoingAway, "server shutting down")

	if err := s.bus.Close(); err != nil {
		s.E.Logger.Errorf("closing event bus: %v", err)
	}
	s.DB.Close(ctx)
	if err := s.E.Shutdown(ctx); err != nil {
		s.E.Logger.Fatal(err)
	}
}
