// Package localws runs the realtime engine over plain WebSockets for local
// development: same hooks, dispatcher and registry as the Lambda deployment,
// with in-process gorilla connections standing in for API Gateway.
package localws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ivossos/growzone-realtime/internal/handler"
	"github.com/ivossos/growzone-realtime/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// LocalEndpoint is the endpoint recorded for locally bridged connections.
const LocalEndpoint = "local"

// Server upgrades WebSocket connections and bridges them onto the engine.
// It doubles as the delivery transport for the connections it owns.
type Server struct {
	Hooks       handler.Hooks
	Dispatcher  handler.Dispatcher
	Connections handler.ConnectionGetter
	Logger      zerolog.Logger

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	conns    map[string]*localConn
}

type localConn struct {
	mu sync.Mutex // serializes writes
	ws *websocket.Conn
}

// NewServer creates a local bridge; wire Hooks, Dispatcher and Connections
// before serving.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		Logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: map[string]*localConn{},
	}
}

// Routes returns the HTTP routes for the bridge.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	r.Get("/ws", s.serveWS)
	return r
}

// ListenAndServe runs the bridge on the given port until the listener fails.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%v", port)
	s.Logger.Info().Int("port", port).Msg("starting local websocket bridge")
	return http.ListenAndServe(addr, s.Routes())
}

func (s *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")

	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	connectionID := uuid.NewString()
	logger := s.Logger.With().Str("connection_id", connectionID).Logger()

	// registered before OnConnect so the transport can reach the
	// connection as soon as it exists in the registry
	s.add(connectionID, ws)

	ctx := req.Context()
	userID, err := s.Hooks.OnConnect(ctx, connectionID, LocalEndpoint, token)
	if err != nil {
		logger.Warn().Err(err).Msg("connection rejected")
		s.remove(connectionID)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}

	logger.Info().Int64("user_id", userID).Msg("local connection established")
	go s.readLoop(connectionID, ws, logger)
}

func (s *Server) readLoop(connectionID string, ws *websocket.Conn, logger zerolog.Logger) {
	defer func() {
		s.remove(connectionID)
		ws.Close()
		if _, err := s.Hooks.OnDisconnect(context.Background(), connectionID); err != nil {
			logger.Error().Err(err).Msg("disconnect cleanup failed")
		}
	}()

	ws.SetReadLimit(maxMessageSize)
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}

		ctx := context.Background()
		sender, err := s.Connections.Get(ctx, connectionID)
		if err != nil {
			logger.Warn().Err(err).Msg("connection vanished from registry")
			return
		}

		result := s.Dispatcher.Dispatch(ctx, sender, string(message))
		if !result.OK {
			logger.Warn().Str("reason", result.Reason).Msg("action rejected")
		}
	}
}

// Send implements transport.Transport for locally bridged connections. An
// unknown connection id is Gone: the bridge owns every live local link, so
// absence is authoritative.
func (s *Server) Send(_ context.Context, _ string, connectionID string, data []byte) (transport.Outcome, error) {
	s.mu.RLock()
	conn, ok := s.conns[connectionID]
	s.mu.RUnlock()
	if !ok {
		return transport.Gone, nil
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		s.remove(connectionID)
		conn.ws.Close()
		return transport.Gone, nil
	}
	return transport.Delivered, nil
}

func (s *Server) add(connectionID string, ws *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[connectionID] = &localConn{ws: ws}
}

func (s *Server) remove(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, connectionID)
}
