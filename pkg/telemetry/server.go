package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/traaittPlatform/traaittplatformd-ha/pkg/config"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/domain"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/errors"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/eventbus"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/logging"
	"github.com/traaittPlatform/traaittplatformd-ha/pkg/rpc"
)

const authEvent = "auth"

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Server relays bus events to websocket subscribers and proxies their
// requests to the node.
type Server struct {
	config       config.TelemetryConfig
	passwordHash string
	operations   map[string]rpc.Operation
	contract     domain.Contract
	hub          *hub
	logger       logging.Logger

	mutex      sync.Mutex
	bus        *eventbus.Bus
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewServer builds the channel. The password is kept only as its Argon2id
// hash; an empty password disables protected delivery.
func NewServer(cfg config.TelemetryConfig, operations map[string]rpc.Operation, contract domain.Contract, logger logging.Logger) (*Server, error) {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = config.DefaultTelemetrySendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = config.DefaultTelemetryPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = config.DefaultTelemetryPongTimeout
	}

	s := &Server{
		config:     cfg,
		operations: operations,
		contract:   contract,
		hub:        newHub(),
		logger:     logger,
	}
	if cfg.Password != "" {
		hash, err := hashPassword(cfg.Password)
		if err != nil {
			return nil, err
		}
		s.passwordHash = hash
	}
	s.config.Password = ""
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Router exposes the websocket endpoint and a JSON status endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleWebSocket)
	r.Get("/status", s.handleStatus)
	return r
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() (net.Addr, error) {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, errors.NewNetworkError("failed to listen for telemetry connections", err).WithContext("address", address)
	}

	server := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mutex.Lock()
	s.httpServer = server
	s.mutex.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Telemetry server failed, error: %v", err)
		}
	}()

	s.report(eventbus.EventInfo, fmt.Sprintf("Accepting WebSocket connections on %s [with password: %t]",
		listener.Addr().String(), s.passwordHash != ""))
	return listener.Addr(), nil
}

// Stop closes every client connection and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.hub.closeAll()

	s.mutex.Lock()
	server := s.httpServer
	s.httpServer = nil
	s.mutex.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.NewTimeoutError("telemetry server shutdown did not complete", err)
	}
	return nil
}

// Attach subscribes the channel to every bus event. Only new top blocks and
// block contents go to everyone; the rest requires authentication, with
// warnings delivered as info.
func (s *Server) Attach(bus *eventbus.Bus) {
	s.mutex.Lock()
	s.bus = bus
	s.mutex.Unlock()

	for _, event := range eventbus.AllEvents {
		event := event
		switch event {
		case eventbus.EventTopBlock, eventbus.EventBlock:
			bus.Subscribe(event, func(payload interface{}) {
				s.Broadcast(string(event), payload)
			})
		case eventbus.EventWarning:
			bus.Subscribe(event, func(payload interface{}) {
				s.BroadcastProtected(string(eventbus.EventInfo), payload)
			})
		default:
			bus.Subscribe(event, func(payload interface{}) {
				s.BroadcastProtected(string(event), payload)
			})
		}
	}
}

// Broadcast delivers to every connected client. It reports false if any
// delivery failed.
func (s *Server) Broadcast(event string, data interface{}) bool {
	return s.deliver(s.hub.snapshot(false), event, data)
}

// BroadcastProtected delivers to authenticated clients only. Without a
// configured password nothing is sent and false is returned.
func (s *Server) BroadcastProtected(event string, data interface{}) bool {
	if s.passwordHash == "" {
		return false
	}
	return s.deliver(s.hub.snapshot(true), event, data)
}

// Send delivers to a single client.
func (s *Server) Send(client *Client, event string, data interface{}) bool {
	return s.deliver([]*Client{client}, event, data)
}

func (s *Server) ClientCount() int {
	clients, _ := s.hub.counts()
	return clients
}

func (s *Server) AuthenticatedCount() int {
	_, authenticated := s.hub.counts()
	return authenticated
}

func (s *Server) deliver(clients []*Client, event string, data interface{}) bool {
	message, err := json.Marshal(outbound{Event: event, Data: wireValue(data)})
	if err != nil {
		s.logger.Errorf("Failed to encode telemetry message, event: %s, error: %v", event, err)
		return false
	}

	delivered := true
	for _, client := range clients {
		if client.trySend(message) {
			continue
		}
		delivered = false
		s.logger.Warnf("Telemetry delivery failed, event: %s, client: %s", event, client.id)
		// Reporting a failed error delivery would feed back into itself.
		if event != string(eventbus.EventError) {
			s.report(eventbus.EventError, fmt.Sprintf("[WEBSOCKET] Could not deliver %s to socketId: %s", event, client.id))
		}
	}
	return delivered
}

// wireValue makes errors readable on the wire.
func wireValue(data interface{}) interface{} {
	if err, ok := data.(error); ok {
		return err.Error()
	}
	return data
}

func (s *Server) report(event eventbus.Event, message string) {
	s.mutex.Lock()
	bus := s.bus
	s.mutex.Unlock()

	if bus == nil {
		s.logger.Infof("%s", message)
		return
	}
	bus.Publish(event, message)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.contract == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "status unavailable"})
		return
	}
	status, err := s.contract.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return
	}
}
