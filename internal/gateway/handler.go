// Package gateway owns the connection lifecycle: handshake, pumps, and
// teardown. One inbound upgrade flows rate-limit check → credential
// extraction → token resolution → identity bridging → registration →
// listening, and unwinds through deregistration and typing cleanup when
// the transport closes.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/fitlink/realtime-gateway/internal/auth"
	"github.com/fitlink/realtime-gateway/internal/dispatch"
	"github.com/fitlink/realtime-gateway/internal/domain"
	"github.com/fitlink/realtime-gateway/internal/identity"
	"github.com/fitlink/realtime-gateway/internal/limiter"
	"github.com/fitlink/realtime-gateway/internal/metrics"
	"github.com/fitlink/realtime-gateway/internal/protocol"
	"github.com/fitlink/realtime-gateway/internal/registry"
	"github.com/fitlink/realtime-gateway/internal/typing"
)

const writeTimeout = 10 * time.Second

// Handler upgrades and supervises gateway connections.
type Handler struct {
	guard      *limiter.Guard
	invalid    *auth.InvalidTokenCache
	resolver   *auth.Resolver
	bridge     *identity.Bridge
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	typing     *typing.Tracker
	logger     *slog.Logger
}

// NewHandler wires the handshake pipeline.
func NewHandler(
	guard *limiter.Guard,
	invalid *auth.InvalidTokenCache,
	resolver *auth.Resolver,
	bridge *identity.Bridge,
	reg *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	tracker *typing.Tracker,
) *Handler {
	return &Handler{
		guard:      guard,
		invalid:    invalid,
		resolver:   resolver,
		bridge:     bridge,
		registry:   reg,
		dispatcher: dispatcher,
		typing:     tracker,
		logger:     slog.Default().With("service", "gateway"),
	}
}

// ServeWS is the echo handler for the upgrade endpoint.
func (h *Handler) ServeWS(c echo.Context) error {
	addr := c.RealIP()

	sock, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin enforcement sits on the edge proxy; the gateway
		// authenticates every connection by token regardless of origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "addr", addr, "error", err)
		return err
	}

	// The guard runs before any authentication work: unauthenticated
	// upgrade attempts are the abuse surface.
	if h.guard.ShouldBlock(addr) {
		metrics.HandshakeRejections.WithLabelValues("rate_limited").Inc()
		_ = sock.Close(protocol.StatusRateLimited, "rate limited")
		return nil
	}

	user, ok := h.authenticate(c)
	if !ok {
		metrics.HandshakeRejections.WithLabelValues("auth").Inc()
		_ = sock.Close(protocol.StatusAuthRequired, "authentication required")
		return nil
	}

	conn := registry.NewConn(uuid.NewString(), user.ID, sock)
	h.registry.Register(user.ID, conn)

	// Acknowledge before accepting any inbound traffic so the client
	// knows which identity the server resolved.
	if payload, err := protocol.Encode(protocol.NewConnected(user.ID)); err == nil {
		conn.Enqueue(payload)
	}

	go h.writePump(conn)
	h.readPump(c.Request().Context(), conn)

	h.teardown(conn)
	return nil
}

// authenticate runs the credential through the invalid-token cache, the
// token resolver, the identity bridge, and the optional impersonation
// substitution. Any failure, including a panic in a collaborator, maps
// to a policy rejection; a single bad connection attempt must never take
// the listening process down. Only failures of the credential itself
// poison the invalid-token cache: a valid token whose impersonation
// target is rejected stays usable.
func (h *Handler) authenticate(c echo.Context) (user *domain.User, ok bool) {
	token := extractToken(c)
	credentialRejected := false
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Panic during handshake authentication", "panic", r)
			user, ok = nil, false
			credentialRejected = true
		}
		if credentialRejected && token != "" {
			h.invalid.MarkInvalid(token)
		}
	}()

	if token == "" {
		return nil, false
	}
	if h.invalid.IsInvalid(token) {
		return nil, false
	}

	ctx := c.Request().Context()
	ext := h.resolver.Resolve(ctx, token)
	if ext == nil {
		credentialRejected = true
		return nil, false
	}

	actor, err := h.bridge.ResolveOrCreateUser(ctx, ext)
	if err != nil {
		h.logger.Error("Identity bridge failed", "external_id", ext.ID, "error", err)
		credentialRejected = true
		return nil, false
	}

	user = actor
	if targetID := c.QueryParam("impersonateUserId"); targetID != "" {
		target, err := h.bridge.Impersonate(ctx, actor, targetID)
		switch {
		case errors.Is(err, domain.ErrNotAuthorized):
			// Not an elevated role: the parameter is ignored, the
			// connection proceeds as the actor.
			h.logger.Warn("Ignoring impersonation request from non-elevated user",
				"acting_user_id", actor.ID,
				"target_user_id", targetID)
		case err != nil:
			h.logger.Warn("Impersonation target rejected",
				"acting_user_id", actor.ID,
				"target_user_id", targetID,
				"error", err)
			return nil, false
		default:
			h.logger.Info("Impersonated connection established",
				"acting_user_id", actor.ID,
				"impersonated_user_id", target.ID)
			user = target
		}
	}
	return user, true
}

// extractToken reads the credential from the upgrade query, falling back
// to a bearer Authorization header.
func extractToken(c echo.Context) string {
	if token := c.QueryParam("token"); token != "" {
		return token
	}
	header := c.Request().Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return ""
}

// readPump delivers inbound frames to the dispatcher until the client
// disconnects or the network fails.
func (h *Handler) readPump(ctx context.Context, conn *registry.Conn) {
	sock := conn.Socket()
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF) {
				h.logger.Debug("Connection closed by client",
					"connection_id", conn.ID,
					"user_id", conn.UserID)
			} else {
				h.logger.Info("Connection read ended",
					"connection_id", conn.ID,
					"user_id", conn.UserID,
					"error", err)
			}
			return
		}
		h.dispatcher.HandleInbound(ctx, conn.UserID, data)
	}
}

// writePump drains the connection's outbound queue onto the socket.
// Events reach one connection in the order they were enqueued.
func (h *Handler) writePump(conn *registry.Conn) {
	sock := conn.Socket()
	for payload := range conn.Outbound() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := sock.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			h.logger.Debug("Connection write failed",
				"connection_id", conn.ID,
				"user_id", conn.UserID,
				"error", err)
			conn.BeginClose()
			return
		}
	}
}

// teardown deregisters the connection and, once the user's last
// connection is gone, ends any typing sessions they left in flight so a
// stuck indicator cannot outlive the disconnect.
func (h *Handler) teardown(conn *registry.Conn) {
	conn.BeginClose()
	h.registry.Deregister(conn.UserID, conn)
	if !h.registry.IsOnline(conn.UserID) {
		h.typing.StopAll(conn.UserID)
	}
	_ = conn.Socket().Close(websocket.StatusNormalClosure, "")
}
