package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration for the service.
type Config struct {
	Port         string
	DatabaseURL  string
	MQTTURL      string
	MQTTUsername string
	MQTTPassword string
	CORSOrigin   string
}

// Load reads a .env file when present, then the environment. A missing
// DATABASE_URL is not an error here: the store selection at boot falls back
// to the volatile in-memory store.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:         getenv("PORT", "3000"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MQTTURL:      getenv("MQTT_URL", "tcp://localhost:1883"),
		MQTTUsername: os.Getenv("MQTT_USERNAME"),
		MQTTPassword: os.Getenv("MQTT_PASSWORD"),
		CORSOrigin:   getenv("CORS_ORIGIN", "*"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
