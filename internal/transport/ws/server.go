// Package ws implements the WebSocket transport: handshake, subprotocol
// negotiation, optional Basic-Auth, per-connection reader/writer
// goroutines, and ping/pong keepalive. Adapted from the teacher's
// internal/transport/websocket.Manager (gorilla/websocket upgrader,
// sendRoutine/receiveRoutine/pingRoutine split), with the teacher's
// HasConnection-then-409-reject behavior replaced by the eviction
// semantics spec.md §4.2/§4.3 mandates: a second connection for the same
// charge point id displaces the first rather than being turned away.
package ws

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ocpp-csms/central-system/internal/command"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
	"github.com/ocpp-csms/central-system/internal/domain/validation"
	"github.com/ocpp-csms/central-system/internal/inbound"
	"github.com/ocpp-csms/central-system/internal/metrics"
	"github.com/ocpp-csms/central-system/internal/ocppframe"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
	"github.com/ocpp-csms/central-system/internal/session"
)

// Config is the WebSocket server's tunables.
type Config struct {
	Host string
	Port int
	Path string

	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	MaxMessageSize   int64

	RequireBasicAuth bool
}

// DefaultConfig mirrors the teacher's websocket.DefaultConfig, generalized
// to the CSMS's three supported subprotocols.
func DefaultConfig() Config {
	return Config{
		Host: "0.0.0.0",
		Port: 8080,
		Path: "/ocpp",

		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      20 * time.Second,
		MaxMessageSize:   1024 * 1024,

		RequireBasicAuth: false,
	}
}

// Server owns the HTTP listener, the gorilla upgrader, and the
// connection lifecycle (registration, eviction, disconnect cleanup).
type Server struct {
	config   Config
	upgrader websocket.Upgrader

	registry   *session.Registry
	negotiator *session.Negotiator
	adapter    *inbound.Adapter
	dispatcher *command.Dispatcher
	repos      ports.RepositoryProvider
	bus        ports.EventBus
	hasher     ports.PasswordHasher
	validate   *validation.Validator

	httpServer *http.Server
	wg         sync.WaitGroup
	log        zerolog.Logger
}

// NewServer builds a Server. hasher may be nil, in which case Basic-Auth
// is never enforced regardless of config.RequireBasicAuth.
func NewServer(cfg Config, registry *session.Registry, negotiator *session.Negotiator, adapter *inbound.Adapter, dispatcher *command.Dispatcher, repos ports.RepositoryProvider, bus ports.EventBus, hasher ports.PasswordHasher, log zerolog.Logger) *Server {
	// Subprotocols is deliberately left nil: gorilla's built-in
	// selectSubprotocol picks the first entry of its own Subprotocols
	// list that the client also offers, which is ascending-version order
	// and not spec.md §4.2's "pick the highest version the CS supports
	// that the CP also offers". handleUpgrade negotiates the version
	// itself from the raw Sec-WebSocket-Protocol header before calling
	// Upgrade and presets the resolved value on responseHeader; with
	// Subprotocols nil, Upgrade echoes that preset value back verbatim.
	upgrader := websocket.Upgrader{
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      func(r *http.Request) bool { return true },
	}

	return &Server{
		config:     cfg,
		upgrader:   upgrader,
		registry:   registry,
		negotiator: negotiator,
		adapter:    adapter,
		dispatcher: dispatcher,
		repos:      repos,
		bus:        bus,
		hasher:     hasher,
		validate:   validation.NewValidator(),
		log:        log.With().Str("component", "ws_server").Logger(),
	}
}

// Start launches the HTTP server in a background goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path+"/", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting WebSocket server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("WebSocket server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the HTTP server and closes all sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.registry.CloseAll()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","connections":%d}`, s.registry.Count())
}

func (s *Server) extractChargePointID(path string) string {
	prefix := s.config.Path + "/"
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}

// checkBasicAuth verifies HTTP Basic credentials against the charge
// point's stored PasswordHash. A charge point with no stored hash yet
// (its first ever connection, before any provisioning) is allowed
// through unauthenticated so BootNotification can establish it; every
// subsequent connection for an id with a stored hash must authenticate.
func (s *Server) checkBasicAuth(r *http.Request, chargePointID string) bool {
	if s.hasher == nil || !s.config.RequireBasicAuth {
		return true
	}

	cp, err := s.repos.ChargePoints().Get(r.Context(), chargePointID)
	if err != nil || cp.PasswordHash == "" {
		return true
	}

	header := r.Header.Get("Authorization")
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return false
	}
	username, password := parts[0], parts[1]
	if username != chargePointID {
		return false
	}
	return s.hasher.Verify(password, cp.PasswordHash)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	chargePointID := s.extractChargePointID(r.URL.Path)
	if err := s.validate.ValidateChargePointID(chargePointID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.checkBasicAuth(r, chargePointID) {
		w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Negotiate before upgrading: per spec.md §4.3 step 2, a charge point
	// offering no mutually supported version must be rejected with HTTP
	// 400, which is only possible while the handshake is still a plain
	// HTTP response — once Upgrade succeeds the socket is already live.
	version, ok := s.negotiator.Negotiate(r.Header.Get("Sec-WebSocket-Protocol"))
	if !ok {
		http.Error(w, "no mutually supported OCPP subprotocol", http.StatusBadRequest)
		return
	}

	responseHeader := http.Header{}
	responseHeader.Set("Sec-WebSocket-Protocol", version.Subprotocol())

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.log.Warn().Str("charge_point_id", chargePointID).Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sess, outcome := s.registry.Register(chargePointID, version)
	if outcome.Evicted {
		s.dispatcher.CleanupChargePoint(chargePointID)
	}

	metrics.ActiveConnections.Inc()
	s.bus.Publish(events.NewChargePointConnected(chargePointID, version.String(), outcome.Evicted))
	s.log.Info().Str("charge_point_id", chargePointID).Str("version", version.String()).Bool("evicted_prior", outcome.Evicted).Msg("charge point connected")

	conn.SetReadLimit(s.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		sess.Touch()
		return nil
	})

	go s.writerLoop(conn, sess)
	go s.pingLoop(conn, sess)
	s.readerLoop(conn, sess, chargePointID, version)
}

func (s *Server) writerLoop(conn *websocket.Conn, sess *session.Connection) {
	for text := range sess.Send {
		conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			s.log.Warn().Str("charge_point_id", sess.ChargePointID).Err(err).Msg("write failed, closing connection")
			conn.Close()
			return
		}
	}
}

func (s *Server) pingLoop(conn *websocket.Conn, sess *session.Connection) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

func (s *Server) readerLoop(conn *websocket.Conn, sess *session.Connection, chargePointID string, version ocppversion.Version) {
	defer func() {
		conn.Close()
		s.registry.Unregister(chargePointID, sess)
		s.dispatcher.CleanupChargePoint(chargePointID)
		metrics.ActiveConnections.Dec()
		s.bus.Publish(events.NewChargePointDisconnected(chargePointID, "connection closed"))
		s.log.Info().Str("charge_point_id", chargePointID).Msg("charge point disconnected")
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Warn().Str("charge_point_id", chargePointID).Err(err).Msg("unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		sess.Touch()
		frameKind := "unparseable"
		if f, perr := ocppframe.Parse(data); perr == nil {
			switch f.Kind {
			case ocppframe.Call:
				frameKind = "call"
			case ocppframe.CallResult:
				frameKind = "call_result"
			case ocppframe.CallError:
				frameKind = "call_error"
			}
		}
		metrics.MessagesReceived.WithLabelValues(version.String(), frameKind).Inc()

		reply := s.adapter.HandleMessage(context.Background(), chargePointID, version, string(data))
		if reply != "" {
			if err := s.registry.SendTo(chargePointID, reply); err != nil {
				s.log.Warn().Str("charge_point_id", chargePointID).Err(err).Msg("failed to queue reply")
			}
		}
	}
}
