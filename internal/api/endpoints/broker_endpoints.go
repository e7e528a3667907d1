package endpoints

import (
	"fmt"
	"net/http"

	"room-broker/internal/broker"
	"room-broker/internal/protocol"
)

// BrokerEndpoints is the read-only HTTP view of the broker. Everything that
// changes state goes over the websocket.
type BrokerEndpoints interface {
	Rooms(http.ResponseWriter, *http.Request) error
	Stats(http.ResponseWriter, *http.Request) error
	Health(http.ResponseWriter, *http.Request) error
}

type brokerEndpoints struct {
	manager      *broker.Manager
	statsEnabled bool
}

func NewBrokerEndpoints(m *broker.Manager, statsEnabled bool) BrokerEndpoints {
	return &brokerEndpoints{manager: m, statsEnabled: statsEnabled}
}

// Rooms lists joinable rooms for an app. The version filter matches by
// prefix, so ?version=1.0 also returns rooms registered under 1.0.4.
func (h *brokerEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			q := r.URL.Query()
			app := q.Get("app")
			if app == "" {
				return &HTTPError{
					StatusCode: http.StatusBadRequest,
					Message:    "Query parameter 'app' is required.",
					ErrorLog:   fmt.Errorf("rooms listing without app filter"),
				}
			}

			rooms := h.manager.GetRooms(protocol.RoomInfo{
				App:     app,
				Name:    q.Get("name"),
				Version: q.Get("version"),
			})
			return WriteJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
		},
	})
}

func (h *brokerEndpoints) Stats(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			if !h.statsEnabled {
				return &HTTPError{
					StatusCode: http.StatusForbidden,
					Message:    "Stats are disabled on this server.",
					ErrorLog:   fmt.Errorf("stats endpoint hit while disabled"),
				}
			}
			return WriteJSON(w, http.StatusOK, h.manager.StatsSnapshot())
		},
	})
}

func (h *brokerEndpoints) Health(w http.ResponseWriter, r *http.Request) error {
	return WriteJSON(w, http.StatusOK, struct{}{})
}
