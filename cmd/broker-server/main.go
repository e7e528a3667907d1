package main

import (
	"log"

	"github.com/joho/godotenv"

	"room-broker/internal/api"
	"room-broker/internal/api/router"
	"room-broker/internal/bridge"
	"room-broker/internal/broker"
	"room-broker/internal/env"
	"room-broker/internal/queue"
	"room-broker/internal/transport"
)

const serverVersion = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	pool := queue.NewPool(
		env.GetInt(env.BrokerQueueSize, 10),
		env.GetInt(env.BrokerQueueWorkers, 10),
	)

	events := bridge.New(
		env.Get(env.EventsRedisURL),
		env.Get(env.EventsRedisPassword),
		pool,
	)
	if events != nil {
		log.Println("publishing room events to redis")
		defer events.Close()
	}

	manager := broker.NewManager(broker.Config{
		CleanupGrace: env.GetMillis(env.BrokerCleanupGrace, broker.DefaultCleanupGrace),
		Events:       events,
	})

	statsEnabled := env.GetBool(env.BrokerStatsEnabled, false)

	wsHandler := transport.NewHandler(manager, transport.Config{
		PingInterval:  env.GetMillis(env.BrokerHeartbeat, 0),
		ServerVersion: serverVersion,
		StatsEnabled:  statsEnabled,
	})

	server := api.NewAPIServer(
		":"+env.GetOrDefault(env.BrokerPort, "8000"),
		pool,
		manager,
		wsHandler,
		router.BrokerRoutes("/api/v1", statsEnabled),
		router.WebsocketRoutes("/ws"),
	)

	server.Run()
}
