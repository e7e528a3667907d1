package transport

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"room-broker/internal/broker"
)

// Config carries the connection-level settings of the websocket surface.
type Config struct {
	// PingInterval is how often the broker pings each connection. A
	// connection that has not answered by the next tick is evicted.
	PingInterval   time.Duration
	ServerVersion  string
	HostAppVersion string
	StatsEnabled   bool
}

const defaultPingInterval = 5 * time.Second

// Handler upgrades HTTP requests to broker connections.
type Handler struct {
	manager  *broker.Manager
	cfg      Config
	upgrader websocket.Upgrader
}

func NewHandler(m *broker.Manager, cfg Config) *Handler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	return &Handler{
		manager: m,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS handles a new broker connection. A clientId query parameter
// resumes a previous identity after a reconnect.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := newConn(ws, h.cfg.PingInterval)
	c.dispatcher = broker.NewDispatcher(h.manager, c, r.URL.Query().Get("clientId"), broker.DispatcherConfig{
		ServerVersion:  h.cfg.ServerVersion,
		HostAppVersion: h.cfg.HostAppVersion,
		StatsEnabled:   h.cfg.StatsEnabled,
	})

	go c.writePump()
	c.dispatcher.HandleOpen()
	c.readPump()
}
