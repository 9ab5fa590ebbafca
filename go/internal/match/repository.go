package match

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// ScoreStore persists the two counters of the current match.
type ScoreStore interface {
	Name() string
	GetScores(ctx context.Context) (models.ScorePair, error)
	// Increment atomically adds one vote for side and returns the new scores.
	Increment(ctx context.Context, side models.Side) (models.ScorePair, error)
	Reset(ctx context.Context) (models.ScorePair, error)
}

// MemoryStore keeps scores in process. Data is lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	scores models.ScorePair
}

func NewMemoryStore() *MemoryStore {
	log.Info().Msg("using in-memory score store")
	return &MemoryStore{}
}

func (s *MemoryStore) Name() string { return "MemoryStore" }

func (s *MemoryStore) GetScores(ctx context.Context) (models.ScorePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scores, nil
}

func (s *MemoryStore) Increment(ctx context.Context, side models.Side) (models.ScorePair, error) {
	if !side.Valid() {
		return models.ScorePair{}, fmt.Errorf("%w: %q", models.ErrInvalidSide, side)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores.Add(side, 1)
	return s.scores, nil
}

func (s *MemoryStore) Reset(ctx context.Context) (models.ScorePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = models.ScorePair{}
	return s.scores, nil
}

// DB is the part of *pgxpool.Pool the Postgres store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const currentMatchKey = "current"

const (
	createScoresTable = `
CREATE TABLE IF NOT EXISTS scores (
	pk    TEXT PRIMARY KEY,
	team1 BIGINT NOT NULL DEFAULT 0,
	team2 BIGINT NOT NULL DEFAULT 0
)`
	seedScores = `
INSERT INTO scores (pk, team1, team2) VALUES ($1, 0, 0)
ON CONFLICT (pk) DO NOTHING`
	getScores = `SELECT team1, team2 FROM scores WHERE pk = $1`
	// column names cannot be parameters; the side is validated before use
	incrementTeam1 = `UPDATE scores SET team1 = team1 + 1 WHERE pk = $1 RETURNING team1, team2`
	incrementTeam2 = `UPDATE scores SET team2 = team2 + 1 WHERE pk = $1 RETURNING team1, team2`
	resetScores    = `UPDATE scores SET team1 = 0, team2 = 0 WHERE pk = $1 RETURNING team1, team2`
)

// PostgresStore keeps scores in a single row updated with atomic
// UPDATE ... RETURNING statements.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates the scores table and its row if they do not exist.
func NewPostgresStore(ctx context.Context, db DB) (*PostgresStore, error) {
	if _, err := db.Exec(ctx, createScoresTable); err != nil {
		return nil, fmt.Errorf("failed to create scores table: %w", err)
	}
	if _, err := db.Exec(ctx, seedScores, currentMatchKey); err != nil {
		return nil, fmt.Errorf("failed to seed scores: %w", err)
	}
	log.Info().Msg("using Postgres score store")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Name() string { return "PostgresStore" }

func (s *PostgresStore) GetScores(ctx context.Context) (models.ScorePair, error) {
	scores, err := s.scan(s.db.QueryRow(ctx, getScores, currentMatchKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScorePair{}, nil
	}
	if err != nil {
		return models.ScorePair{}, fmt.Errorf("failed to get scores: %w", err)
	}
	return scores, nil
}

func (s *PostgresStore) Increment(ctx context.Context, side models.Side) (models.ScorePair, error) {
	var query string
	switch side {
	case models.SideTeam1:
		query = incrementTeam1
	case models.SideTeam2:
		query = incrementTeam2
	default:
		return models.ScorePair{}, fmt.Errorf("%w: %q", models.ErrInvalidSide, side)
	}

	scores, err := s.scan(s.db.QueryRow(ctx, query, currentMatchKey))
	if err != nil {
		return models.ScorePair{}, fmt.Errorf("failed to increment %s: %w", side, err)
	}
	return scores, nil
}

func (s *PostgresStore) Reset(ctx context.Context) (models.ScorePair, error) {
	scores, err := s.scan(s.db.QueryRow(ctx, resetScores, currentMatchKey))
	if err != nil {
		return models.ScorePair{}, fmt.Errorf("failed to reset scores: %w", err)
	}
	return scores, nil
}

func (s *PostgresStore) scan(row pgx.Row) (models.ScorePair, error) {
	var team1, team2 int64
	if err := row.Scan(&team1, &team2); err != nil {
		return models.ScorePair{}, err
	}
	return models.ScorePair{Team1: int(team1), Team2: int(team2)}, nil
}
