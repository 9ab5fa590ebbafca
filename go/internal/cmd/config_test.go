package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/votingwar/go/internal/match"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WIN_SCORE", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := loadConfig()
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 100, cfg.WinScore)
	assert.Equal(t, 8*time.Second, cfg.Countdown)
	assert.Equal(t, 500*time.Millisecond, cfg.BroadcastInterval)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:5174"}, cfg.CORSOrigins)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WIN_SCORE", "25")
	t.Setenv("COUNTDOWN_SECONDS", "-3")
	t.Setenv("CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg := loadConfig()
	assert.Equal(t, 25, cfg.WinScore)
	assert.Equal(t, 8*time.Second, cfg.Countdown)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestServerAppliesCORS(t *testing.T) {
	t.Setenv("NATS_URL", "")
	cfg := loadConfig()
	cfg.CORSOrigins = []string{"https://kiosk.example"}
	services := setupServices(match.NewMemoryStore(), cfg)
	t.Cleanup(services.Match.Stop)

	srv := httptest.NewServer(setupServer(services, cfg).Handler)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/scores", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://kiosk.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://kiosk.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://elsewhere.example")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}
