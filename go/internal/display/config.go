package display

import (
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/votingwar/go/internal/display/bridge"
	"github.com/mcdev12/votingwar/go/internal/display/reconciler"
)

type Config struct {
	APIURL         string
	WSURL          string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	MessagesFile   string

	// NATS.URL empty disables the presentation bridge.
	NATS bridge.Config

	Reconciler reconciler.Config
}

func DefaultConfig() Config {
	nats := bridge.DefaultConfig()
	nats.URL = ""
	return Config{
		APIURL:         "http://localhost:3000/api",
		WSURL:          "ws://localhost:3000/api/ws",
		PollInterval:   2 * time.Second,
		RequestTimeout: 5 * time.Second,
		NATS:           nats,
		Reconciler:     reconciler.DefaultConfig(),
	}
}

// ConfigFromEnv reads the display settings, falling back to DefaultConfig.
// Message pools are loaded from MESSAGES_FILE when it is set.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.APIURL = getEnv("API_URL", cfg.APIURL)
	cfg.WSURL = getEnv("WS_URL", cfg.WSURL)
	cfg.PollInterval = getEnvAsMillis("POLL_INTERVAL_MS", cfg.PollInterval)
	cfg.RequestTimeout = getEnvAsMillis("REQUEST_TIMEOUT_MS", cfg.RequestTimeout)
	cfg.MessagesFile = getEnv("MESSAGES_FILE", "")
	cfg.NATS.URL = getEnv("NATS_URL", "")
	cfg.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATS.SubjectPrefix)

	if cfg.MessagesFile != "" {
		pools, err := reconciler.LoadMessagePools(cfg.MessagesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Reconciler.Messages = pools
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	ms := getEnvAsInt(key, -1)
	if ms <= 0 {
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
