// Package relay implements the presence and real-time delivery relay: a
// websocket endpoint that binds authenticated users to live connections and
// forwards chat frames between them. Delivery is transient; nothing here
// persists a frame.
package relay

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftline/chat-relay/internal/registry"
)

type Server struct {
	upgrader *websocket.Upgrader

	params ServerParams

	registry *registry.Registry
	handler  *Handler
	metrics  *Metrics

	mux *http.ServeMux

	log *zap.Logger
}

type ServerParams struct {
	ListenAddress  string
	ListenEndpoint string

	AllowAllOrigins bool
	AllowedOrigins  []string
	DeniedOrigins   []string

	MaxReadMessageSize int64

	Logger *zap.Logger
}

func checkOrigin(r *http.Request, params ServerParams) bool {
	origin := r.Header.Get("Origin")
	if slices.Contains(params.DeniedOrigins, origin) {
		return false
	}

	if params.AllowAllOrigins {
		return true
	}

	return slices.Contains(params.AllowedOrigins, origin)
}

func CreateServer(reg *registry.Registry, handler *Handler, metrics *Metrics, params ServerParams) *Server {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	endpoint := params.ListenEndpoint
	if endpoint == "" {
		endpoint = "/ws"
	}

	s := &Server{
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return checkOrigin(r, params)
			},
		},
		params:   params,
		registry: reg,
		handler:  handler,
		metrics:  metrics,
		mux:      http.NewServeMux(),
		log:      logger.With(zap.String("component", "relay")),
	}

	s.mux.HandleFunc(endpoint, s.onWsRequest)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Mux exposes the serving mux so callers can mount additional routes (the
// REST API) on the same listener before Start.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

// onWsRequest owns one client connection from upgrade to close. The
// connection is bound to a user only once an auth frame arrives; frames of
// other types are processed regardless, since forwarding depends only on
// the recipient's registry entry.
func (s *Server) onWsRequest(w http.ResponseWriter, r *http.Request) {
	log := s.log.With(zap.String("wsConnId", uuid.NewString()[:8]))

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade HTTP request to WebSocket connection", zap.Error(err))
		return
	}

	if s.params.MaxReadMessageSize > 0 {
		c.SetReadLimit(s.params.MaxReadMessageSize)
	}

	log.Info("Client connected", zap.String("remoteAddr", c.RemoteAddr().String()))

	conn := newSafeConn(c)
	defer func() {
		// Error and close are treated identically: sweep the registry entry
		// (if this connection still holds one) and drop the transport.
		if userId, found := s.registry.Unbind(conn); found {
			s.metrics.SetBoundConnections(s.registry.Len())
			log.Info("User disconnected", zap.String("userId", userId))
		}
		c.Close()
	}()

	expectedCloseErrors := []int{websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived}
	for {
		msgType, payload, msgErr := c.ReadMessage()
		if msgErr != nil {
			if websocket.IsCloseError(msgErr, expectedCloseErrors...) {
				log.Info("Client closed connection")
			} else if websocket.IsUnexpectedCloseError(msgErr, expectedCloseErrors...) {
				log.Warn("Client connection closed unexpectedly", zap.Error(msgErr))
			} else {
				log.Info("Connection read failed, closing", zap.Error(msgErr))
			}
			return
		}

		if msgType != websocket.TextMessage {
			log.Debug("Ignoring non-text message", zap.Int("size", len(payload)))
			continue
		}

		s.dispatchFrame(log, conn, payload)
	}
}

// dispatchFrame isolates per-frame handling so one bad payload cannot take
// down the read loop, let alone the listener or other connections.
func (s *Server) dispatchFrame(log *zap.Logger, conn registry.Conn, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while handling frame", zap.Any("panic", r))
		}
	}()

	if err := s.handler.HandleFrame(conn, payload); err != nil {
		// Malformed or unknown frames are discarded; the connection stays up.
		log.Warn("Discarding unusable frame", zap.Error(err))
	}
}

// Start serves until ctx is cancelled, then shuts the listener down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.params.ListenAddress,
		Handler: s.mux,
	}

	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()

		s.log.Info("Starting relay server",
			zap.String("addr", s.params.ListenAddress),
			zap.String("endpoint", s.params.ListenEndpoint))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Unexpected relay server close!", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		<-ctx.Done()

		shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownRelease()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("Failed to gracefully shut down relay server", zap.Error(err))
			return
		}
		s.log.Info("Relay server shut down")
	}()

	wg.Wait()
	return nil
}
