package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"room-broker/internal/protocol"
	"room-broker/internal/queue"
)

// Publisher mirrors room lifecycle events onto Redis pub/sub channels so
// external consumers (dashboards, matchmakers) can observe the broker
// without a connection of their own. It implements broker.EventSink.
//
// Publishing goes through the worker pool so an unreachable Redis never
// stalls a dispatcher.
type Publisher struct {
	rdb  *redis.Client
	pool *queue.Pool
}

// Event is the JSON shape published per room change.
type Event struct {
	Event   string                  `json:"event"`
	Room    protocol.RoomDescriptor `json:"room"`
	Clients int                     `json:"clients"`
	Time    int64                   `json:"time"`
}

// New returns nil when addr is empty; a nil Publisher is a valid no-op
// sink.
func New(addr, password string, pool *queue.Pool) *Publisher {
	if addr == "" {
		return nil
	}
	return &Publisher{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		pool: pool,
	}
}

// Channel is the pub/sub channel for one app's room events.
func Channel(app string) string {
	return fmt.Sprintf("room-broker:events:%s", app)
}

// RoomEvent implements broker.EventSink. Safe on a nil receiver.
func (p *Publisher) RoomEvent(event string, room protocol.RoomDescriptor, clients int) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Event:   event,
		Room:    room,
		Clients: clients,
		Time:    time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("bridge: marshal event: %v", err)
		return
	}
	channel := Channel(room.App)
	// RoomEvent runs on the broker's hot path and must not block; a full
	// queue drops the event.
	accepted := p.pool.TryEnqueue(queue.Job{
		Fn: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := p.rdb.Publish(ctx, channel, payload).Err(); err != nil {
				return fmt.Errorf("bridge: redis publish to %s: %w", channel, err)
			}
			return nil
		},
	})
	if !accepted {
		log.Printf("bridge: queue full, dropping %s event for %s", event, channel)
	}
}

// Close releases the Redis client. Safe on a nil receiver.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
