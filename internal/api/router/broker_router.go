package router

import (
	"net/http"

	"room-broker/internal/api"
	"room-broker/internal/api/endpoints"
)

func BrokerRoutes(prefix string, statsEnabled bool) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		brokerEndpoints := endpoints.NewBrokerEndpoints(s.Manager(), statsEnabled)
		mux.HandleFunc(prefix+"/rooms", s.MakeHTTPHandleFunc(brokerEndpoints.Rooms))
		mux.HandleFunc(prefix+"/stats", s.MakeHTTPHandleFunc(brokerEndpoints.Stats))
		mux.HandleFunc("/healthz", s.MakeHTTPHandleFunc(brokerEndpoints.Health))
	}
}

// WebsocketRoutes registers the upgrade endpoint straight on the mux. It
// must not run through the worker pool: a websocket connection lives as
// long as the client does and would pin a worker for its whole lifetime.
func WebsocketRoutes(path string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		mux.HandleFunc(path, s.WSHandler().ServeWS)
	}
}
