package match

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/votingwar/go/internal/models"
)

type fakeRow struct {
	vals []int64
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*(d.(*int64)) = r.vals[i]
	}
	return nil
}

// fakeDB emulates the single scores row.
type fakeDB struct {
	mu           sync.Mutex
	seeded       bool
	team1, team2 int64
	execs        []string
	failQuery    error
}

func (db *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)
	if sql == seedScores {
		db.seeded = true
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (db *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.failQuery != nil {
		return fakeRow{err: db.failQuery}
	}
	if !db.seeded {
		return fakeRow{err: pgx.ErrNoRows}
	}
	switch sql {
	case incrementTeam1:
		db.team1++
	case incrementTeam2:
		db.team2++
	case resetScores:
		db.team1, db.team2 = 0, 0
	}
	return fakeRow{vals: []int64{db.team1, db.team2}}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Increment(ctx, models.SideTeam1)
	require.NoError(t, err)
	scores, err := store.Increment(ctx, models.SideTeam2)
	require.NoError(t, err)
	scores, err = store.Increment(ctx, models.SideTeam2)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team1: 1, Team2: 2}, scores)

	_, err = store.Increment(ctx, models.Side("team3"))
	assert.ErrorIs(t, err, models.ErrInvalidSide)

	scores, err = store.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{}, scores)
	assert.Equal(t, "MemoryStore", store.Name())
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{}
	store, err := NewPostgresStore(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{createScoresTable, seedScores}, db.execs)

	scores, err := store.Increment(ctx, models.SideTeam1)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team1: 1}, scores)

	scores, err = store.Increment(ctx, models.SideTeam2)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team1: 1, Team2: 1}, scores)

	scores, err = store.GetScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{Team1: 1, Team2: 1}, scores)

	scores, err = store.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{}, scores)

	_, err = store.Increment(ctx, models.Side("team3"))
	assert.ErrorIs(t, err, models.ErrInvalidSide)
}

func TestPostgresStoreMissingRowReadsZero(t *testing.T) {
	store := &PostgresStore{db: &fakeDB{}}
	scores, err := store.GetScores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ScorePair{}, scores)
}

func TestPostgresStoreQueryError(t *testing.T) {
	boom := errors.New("connection reset")
	store := &PostgresStore{db: &fakeDB{seeded: true, failQuery: boom}}
	_, err := store.Increment(context.Background(), models.SideTeam1)
	assert.ErrorIs(t, err, boom)
}
