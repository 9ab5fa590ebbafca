package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// ScoreboardClient talks to the authoritative scoreboard REST API.
type ScoreboardClient struct {
	*BaseClient
}

func NewScoreboardClient(baseURL string) *ScoreboardClient {
	client := &ScoreboardClient{
		BaseClient: NewBaseClient(baseURL),
	}
	client.SetHeader("Accept", "application/json")
	return client
}

type voteRequest struct {
	Team models.Side `json:"team"`
}

// GetScores fetches the current match state.
func (c *ScoreboardClient) GetScores(ctx context.Context) (models.Snapshot, error) {
	body, err := c.Get(ctx, "/scores")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to get scores: %w", err)
	}

	snap, err := models.ParseSnapshot(body)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse scores: %w", err)
	}
	return snap, nil
}

// Vote submits one vote for side and returns the state after it was applied.
func (c *ScoreboardClient) Vote(ctx context.Context, side models.Side) (models.Snapshot, error) {
	payload, err := json.Marshal(voteRequest{Team: side})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to marshal vote: %w", err)
	}

	body, err := c.Post(ctx, "/vote", bytes.NewReader(payload))
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to submit vote: %w", err)
	}

	snap, err := models.ParseSnapshot(body)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to parse vote response: %w", err)
	}
	return snap, nil
}
