package api

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"room-broker/internal/broker"
	"room-broker/internal/queue"
	"room-broker/internal/transport"
)

// RouteRegistrar wires one group of routes onto the server's mux.
type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// APIServer is the HTTP front of the broker: the websocket upgrade
// endpoint plus the JSON glue around it (room listing, health, metrics).
type APIServer struct {
	listenAddr      string
	pool            *queue.Pool
	manager         *broker.Manager
	wsHandler       *transport.Handler
	routeRegistrars []RouteRegistrar
	metrics         *metrics
}

func NewAPIServer(listenAddr string, pool *queue.Pool, manager *broker.Manager, ws *transport.Handler, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:      listenAddr,
		pool:            pool,
		manager:         manager,
		wsHandler:       ws,
		routeRegistrars: registrars,
		metrics:         newMetrics(prometheus.DefaultRegisterer, listenAddr, pool),
	}
}

func (s *APIServer) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	fmt.Printf("Broker listening on http://localhost%s\n", s.listenAddr)

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		fmt.Printf("server stopped: %v\n", err)
	}
}

func (s *APIServer) Manager() *broker.Manager {
	return s.manager
}

func (s *APIServer) WSHandler() *transport.Handler {
	return s.wsHandler
}
