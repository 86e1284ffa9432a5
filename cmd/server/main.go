package main

import (
	"context"
	"log"
	"net/http"

	"github.com/rs/cors"

	"github.com/nqhuy/iot-device-service/internal/command"
	"github.com/nqhuy/iot-device-service/internal/config"
	"github.com/nqhuy/iot-device-service/internal/httpserver"
	"github.com/nqhuy/iot-device-service/internal/ingest"
	"github.com/nqhuy/iot-device-service/internal/retention"
	"github.com/nqhuy/iot-device-service/internal/store"
	"github.com/nqhuy/iot-device-service/internal/transport"
)

// main boots the service: config → store selection → MQTT → HTTP server.
func main() {
	cfg := config.Load()

	// Durable storage when reachable, otherwise the bounded in-memory
	// fallback. Decided once; nothing re-checks the database per call.
	var st store.Store
	pg, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Printf("postgres unavailable (%v); using volatile in-memory store, data is lost on restart", err)
		st = store.NewMemoryStore()
	} else {
		if err := pg.EnsureSchema(); err != nil {
			log.Fatal(err)
		}
		st = pg
		// Readings older than 30 days are purged daily, durable store only.
		go retention.New(st, retention.Window, retention.Interval).Run(context.Background())
	}
	defer st.Close()

	ing := ingest.New(st)

	// The MQTT client is built before it dials so the dispatcher exists by
	// the time the first subscription can deliver a message.
	mq := transport.New(transport.Config{
		URL:      cfg.MQTTURL,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	})
	disp := command.New(st, mq, command.DefaultTimeout)

	err = mq.Connect(transport.Handlers{
		OnTelemetry: func(deviceID string, payload []byte) {
			if err := ing.Ingest(context.Background(), deviceID, payload); err != nil {
				log.Printf("ingest: %s: %v", deviceID, err)
			}
		},
		OnFeedback: disp.HandleFeedback,
		OnStatus: func(deviceID, status string) {
			log.Printf("device %s status: %s", deviceID, status)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer mq.Close()

	router := httpserver.NewRouter(st, disp, mq.Connected)
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	}).Handler(router)

	addr := ":" + cfg.Port
	log.Printf("server listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, handler))
}
