package match

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// Service exposes the match over REST and websocket under /api.
type Service struct {
	app *MatchManager
	hub *Hub
}

func NewService(app *MatchManager, hub *Hub) *Service {
	return &Service{app: app, hub: hub}
}

type voteRequest struct {
	Team string `json:"team"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status    string `json:"status"`
	DB        string `json:"db"`
	WSClients int    `json:"ws_clients"`
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/scores", s.GetScores)
	mux.HandleFunc("POST /api/vote", s.Vote)
	mux.HandleFunc("GET /api/health", s.Health)
	mux.HandleFunc("GET /api/ws", s.hub.ServeWS)
}

func (s *Service) GetScores(w http.ResponseWriter, r *http.Request) {
	state, err := s.app.State(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to get scores")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Failed to retrieve scores"})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return
	}

	side, err := models.ParseSide(req.Team)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "team must be 'team1' or 'team2'"})
		return
	}

	state, err := s.app.Vote(r.Context(), side)
	if err != nil {
		if errors.Is(err, models.ErrInvalidSide) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
			return
		}
		log.Error().Err(err).Msg("failed to register vote")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "Failed to register vote"})
		return
	}

	s.hub.Broadcast(state)
	writeJSON(w, http.StatusOK, state)
}

func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		DB:        s.app.StoreName(),
		WSClients: s.hub.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
