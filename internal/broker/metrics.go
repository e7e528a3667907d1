package broker

import "github.com/prometheus/client_golang/prometheus"

var (
	brokerConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "room_broker_connections",
			Help: "Current number of connected clients.",
		},
	)
	brokerRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "room_broker_rooms",
			Help: "Current number of live rooms, hidden included.",
		},
	)
	brokerMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "room_broker_messages_delivered_total",
			Help: "Total messages delivered to clients.",
		},
	)
	brokerTogetherFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_broker_together_flushes_total",
			Help: "Barrier flushes by cause.",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(brokerConnections, brokerRooms, brokerMessagesDelivered, brokerTogetherFlushes)
}

func incConnections() { brokerConnections.Inc() }

func decConnections() { brokerConnections.Dec() }

func setRooms(count int) { brokerRooms.Set(float64(count)) }

func addDelivered() { brokerMessagesDelivered.Inc() }

func addTogetherFlush(cause string) { brokerTogetherFlushes.WithLabelValues(cause).Inc() }
