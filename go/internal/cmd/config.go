package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port              string
	WinScore          int
	Countdown         time.Duration
	BroadcastInterval time.Duration
	CORSOrigins       []string
	NATSURL           string
}

func loadConfig() Config {
	return Config{
		Port:              getEnv("PORT", "3000"),
		WinScore:          getEnvAsInt("WIN_SCORE", 100),
		Countdown:         time.Duration(getEnvAsInt("COUNTDOWN_SECONDS", 8)) * time.Second,
		BroadcastInterval: time.Duration(getEnvAsInt("WS_BROADCAST_INTERVAL_MS", 500)) * time.Millisecond,
		CORSOrigins:       splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		NATSURL:           getEnv("NATS_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil && intValue > 0 {
			return intValue
		}
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
