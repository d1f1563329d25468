package config

import (
	"os"

	"github.com/joho/godotenv"
)

const (
	defaultRestBaseURL = "https://api.kraken.com"
	defaultWsURL       = "wss://ws.kraken.com"
	defaultWsAuthURL   = "wss://ws-auth.kraken.com"
)

var (
	DebugMode bool

	RestBaseURL = defaultRestBaseURL
	WsURL       = defaultWsURL
	// Private-feed connections (ownOrders) go through the auth endpoint.
	WsAuthURL = defaultWsAuthURL
)

// Load reads the process environment into the package variables.
// A .env file is optional and never overrides variables already set.
func Load() {
	_ = godotenv.Load()

	DebugMode = os.Getenv("DEBUG_MODE") == "true"
	RestBaseURL = getEnv("KRAKEN_REST_BASE_URL", defaultRestBaseURL)
	WsURL = getEnv("KRAKEN_WS_URL", defaultWsURL)
	WsAuthURL = getEnv("KRAKEN_WS_AUTH_URL", defaultWsAuthURL)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
