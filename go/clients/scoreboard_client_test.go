package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/votingwar/go/internal/models"
)

func TestGetScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/scores", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"team1":12,"team2":9,"matchState":"active","winScore":100}`))
	}))
	defer srv.Close()

	snap, err := NewScoreboardClient(srv.URL + "/api/").GetScores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team1: 12, Team2: 9}, snap.Scores())
	assert.Equal(t, 100, *snap.WinThreshold)
}

func TestVoteSendsTeam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/vote", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "team2", body["team"])
		_, _ = w.Write([]byte(`{"team1":0,"team2":1}`))
	}))
	defer srv.Close()

	snap, err := NewScoreboardClient(srv.URL).Vote(context.Background(), models.SideTeam2)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team2: 1}, snap.Scores())
}

func TestNonSuccessStatusIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewScoreboardClient(srv.URL).Vote(context.Background(), models.SideTeam1)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestUnparseableBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	_, err := NewScoreboardClient(srv.URL).GetScores(context.Background())
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewScoreboardClient(srv.URL)
	client.SetTimeout(50 * time.Millisecond)
	_, err := client.GetScores(context.Background())
	assert.Error(t, err)
}
