package reconciler

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/votingwar/go/internal/models"
	"github.com/mcdev12/votingwar/go/internal/timers"
)

type recorder struct {
	mu     sync.Mutex
	views  []View
	events []UIEvent
}

func (r *recorder) OnView(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) OnEvent(e UIEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) eventsOfKind(kind EventKind) []UIEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []UIEvent
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestReconciler(t *testing.T) (*Reconciler, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := timers.NewRegistry(clock)
	t.Cleanup(registry.Stop)

	r := New(DefaultConfig(), registry)
	r.SetRand(rand.New(rand.NewSource(1)))
	rec := &recorder{}
	r.AddListener(rec)
	return r, clock, rec
}

func scores(team1, team2 int) models.Snapshot {
	return models.Snapshot{Team1: &team1, Team2: &team2}
}

func withState(snap models.Snapshot, state models.MatchState) models.Snapshot {
	snap.MatchState = &state
	return snap
}

func withSeq(snap models.Snapshot, epoch string, seq uint64) models.Snapshot {
	snap.Seq = &seq
	snap.Epoch = epoch
	return snap
}

func TestColdStartView(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	v := r.View()
	assert.Equal(t, models.ScorePair{}, v.Scores)
	assert.Equal(t, models.MatchStateActive, v.MatchState)
	assert.Equal(t, models.ConnectivityOffline, v.Connectivity)
	assert.Empty(t, v.Error)
	assert.Equal(t, 50, v.Team1Pct)
	assert.Equal(t, 50, v.Team2Pct)
	assert.Equal(t, LeaderTie, v.Leader)
	assert.False(t, v.IsMatchOver)
	assert.Equal(t, 100, v.WinThreshold)
}

func TestLocalVotesAreMonotonic(t *testing.T) {
	r, _, rec := newTestReconciler(t)

	prev := r.View().Scores
	for i := 0; i < 10; i++ {
		side := models.Sides[i%2]
		require.True(t, r.ApplyLocalVote(side))
		cur := r.View().Scores
		assert.GreaterOrEqual(t, cur.Team1, prev.Team1)
		assert.GreaterOrEqual(t, cur.Team2, prev.Team2)
		prev = cur
	}

	assert.Equal(t, models.ScorePair{Team1: 5, Team2: 5}, prev)
	assert.Equal(t, Ledger{Team1: 5, Team2: 5}, r.View().Pending)
	assert.Len(t, rec.eventsOfKind(EventVoteFeedback), 10)
}

func TestVoteThenFailedSubmissionRestoresScores(t *testing.T) {
	r, _, rec := newTestReconciler(t)

	require.True(t, r.ApplyLocalVote(models.SideTeam1))
	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 1}, v.Scores)
	assert.Equal(t, Ledger{Team1: 1}, v.Pending)

	r.RevertVote(models.SideTeam1)
	v = r.View()
	assert.Equal(t, models.ScorePair{}, v.Scores)
	assert.Equal(t, Ledger{}, v.Pending)
	assert.Equal(t, models.ConnectivityOffline, v.Connectivity)
	assert.Contains(t, DefaultMessagePools().Offline, v.Error)

	offline := 0
	for _, e := range rec.eventsOfKind(EventMessage) {
		if e.Tone == ToneOffline {
			offline++
			assert.NotContains(t, DefaultMessagePools().Hype, e.Text)
		}
	}
	assert.Equal(t, 1, offline)
}

func TestRevertAfterSnapshotDoesNotUndoAuthoritativeScore(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	require.True(t, r.ApplyLocalVote(models.SideTeam2))
	require.True(t, r.ApplyAuthoritative(scores(4, 7)))
	r.RevertVote(models.SideTeam2)

	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 4, Team2: 7}, v.Scores)
	assert.Equal(t, Ledger{}, v.Pending)
	assert.Equal(t, models.ConnectivityOffline, v.Connectivity)
}

func TestAuthoritativeSnapshotOverwrites(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.ApplyAuthoritative(scores(5, 3)))
	require.True(t, r.ApplyLocalVote(models.SideTeam1))
	require.True(t, r.ApplyLocalVote(models.SideTeam1))

	require.True(t, r.ApplyAuthoritative(scores(6, 3)))

	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 6, Team2: 3}, v.Scores)
	assert.Equal(t, Ledger{}, v.Pending)
	assert.Equal(t, models.ConnectivityOnline, v.Connectivity)
	assert.Empty(t, v.Error)
}

func TestApplyAuthoritativeIsIdempotent(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	winner := models.SideTeam2
	snap := withState(scores(100, 87), models.MatchStateFinished)
	snap.Winner = &winner
	snap.WinnerSet = true

	require.True(t, r.ApplyAuthoritative(snap))
	once := r.View()
	require.True(t, r.ApplyAuthoritative(snap))
	assert.Equal(t, once, r.View())
}

func TestSnapshotWithoutScoresStillUpdatesMatch(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.ApplyAuthoritative(scores(10, 12)))
	r.MarkOffline("server offline")

	countdown := 5
	snap := withState(models.Snapshot{Countdown: &countdown}, models.MatchStateResetting)
	require.True(t, r.ApplyAuthoritative(snap))

	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 10, Team2: 12}, v.Scores)
	assert.Equal(t, models.MatchStateResetting, v.MatchState)
	assert.Equal(t, 5, v.Countdown)
	assert.Equal(t, models.ConnectivityOffline, v.Connectivity)
}

func TestMalformedPayloadLeavesScoresUntouched(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.ApplyAuthoritative(scores(2, 2)))

	snap, err := models.ParseSnapshot([]byte(`{"team1":"lots","team2":9,"matchesPlayed":3}`))
	require.NoError(t, err)
	require.True(t, r.ApplyAuthoritative(snap))

	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 2, Team2: 2}, v.Scores)
	assert.Equal(t, 3, v.MatchesPlayed)
}

func TestFinishedMatchFreezesVoting(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.ApplyAuthoritative(scores(100, 87)))

	snap, err := models.ParseSnapshot([]byte(`{"matchState":"finished","winner":"team2"}`))
	require.NoError(t, err)
	require.True(t, r.ApplyAuthoritative(snap))

	before := r.View()
	assert.True(t, before.IsMatchOver)
	assert.Equal(t, models.SideTeam2, before.Winner)

	assert.False(t, r.ApplyLocalVote(models.SideTeam1))
	assert.False(t, r.ApplyLocalVote(models.SideTeam2))

	after := r.View()
	assert.Equal(t, before.Scores, after.Scores)
	assert.Equal(t, before.Pending, after.Pending)
	assert.Equal(t, string(models.SideTeam1), after.Leader)
	assert.Equal(t, 53, after.Team1Pct)
	assert.Equal(t, 47, after.Team2Pct)
}

func TestInvalidSideIsIgnored(t *testing.T) {
	r, _, rec := newTestReconciler(t)
	assert.False(t, r.ApplyLocalVote(models.Side("team3")))
	assert.Equal(t, models.ScorePair{}, r.View().Scores)
	assert.Empty(t, rec.views)
}

func TestVictoryMessageSelectedOnlyOnTransition(t *testing.T) {
	r, _, rec := newTestReconciler(t)

	finished := withState(models.Snapshot{}, models.MatchStateFinished)
	for i := 0; i < 5; i++ {
		require.True(t, r.ApplyAuthoritative(finished))
	}
	first := r.View().VictoryMessage
	require.NotEmpty(t, first)

	require.True(t, r.ApplyAuthoritative(withState(models.Snapshot{}, models.MatchStateResetting)))
	assert.Equal(t, first, r.View().VictoryMessage)
	assert.Len(t, rec.eventsOfKind(EventVictory), 1)

	require.True(t, r.ApplyAuthoritative(withState(scores(0, 0), models.MatchStateActive)))
	assert.Empty(t, r.View().VictoryMessage)

	require.True(t, r.ApplyAuthoritative(finished))
	assert.Len(t, rec.eventsOfKind(EventVictory), 2)
}

func TestStaleSnapshotIsDiscarded(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	require.True(t, r.ApplyAuthoritative(withSeq(scores(10, 4), "e1", 20)))
	assert.False(t, r.ApplyAuthoritative(withSeq(scores(9, 4), "e1", 19)))
	assert.Equal(t, models.ScorePair{Team1: 10, Team2: 4}, r.View().Scores)

	// Equal sequence is a redundant overwrite, not stale.
	assert.True(t, r.ApplyAuthoritative(withSeq(scores(10, 4), "e1", 20)))

	// A restarted server starts a new epoch with a low sequence.
	assert.True(t, r.ApplyAuthoritative(withSeq(scores(0, 0), "e2", 1)))
	assert.Equal(t, models.ScorePair{}, r.View().Scores)

	// Snapshots without a sequence are always applied.
	assert.True(t, r.ApplyAuthoritative(scores(3, 3)))
	assert.Equal(t, models.ScorePair{Team1: 3, Team2: 3}, r.View().Scores)
}

func TestStaleSnapshotStillMarksOnline(t *testing.T) {
	r, _, _ := newTestReconciler(t)

	require.True(t, r.ApplyAuthoritative(withSeq(scores(1, 2), "e", 5)))
	r.MarkOffline("server offline")
	require.Equal(t, models.ConnectivityOffline, r.View().Connectivity)

	assert.False(t, r.ApplyAuthoritative(withSeq(scores(1, 1), "e", 4)))
	v := r.View()
	assert.Equal(t, models.ConnectivityOnline, v.Connectivity)
	assert.Empty(t, v.Error)
	assert.Equal(t, models.ScorePair{Team1: 1, Team2: 2}, v.Scores)
}

func TestComboResetsAfterWindow(t *testing.T) {
	r, clock, rec := newTestReconciler(t)

	require.True(t, r.ApplyLocalVote(models.SideTeam1))
	clock.Advance(500 * time.Millisecond)
	require.True(t, r.ApplyLocalVote(models.SideTeam1))
	assert.Equal(t, 2, r.View().Combo.Team1)

	clock.Advance(500 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, r.View().Combo.Team1)

	clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.eventsOfKind(EventComboReset)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.View().Combo.Team1)

	feedback := rec.eventsOfKind(EventVoteFeedback)
	require.Len(t, feedback, 2)
	assert.Equal(t, 1, feedback[0].Combo)
	assert.Equal(t, 2, feedback[1].Combo)
}

func TestMessageHidesAfterDuration(t *testing.T) {
	r, clock, rec := newTestReconciler(t)

	r.MarkOffline("server offline")
	assert.Equal(t, Message{Tone: ToneOffline, Text: "server offline"}, r.View().Message)

	// Repeated identical failures do not re-flash the notice.
	r.MarkOffline("server offline")
	assert.Len(t, rec.eventsOfKind(EventMessage), 1)

	clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return len(rec.eventsOfKind(EventMessageHidden)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Message{}, r.View().Message)
	assert.Equal(t, "server offline", r.View().Error)
}

func TestMarkOnlineClearsError(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	r.MarkOffline("server offline")
	r.MarkOnline()

	v := r.View()
	assert.Equal(t, models.ConnectivityOnline, v.Connectivity)
	assert.Empty(t, v.Error)
}

func TestConfirmVoteAppliesSnapshot(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	require.True(t, r.ApplyLocalVote(models.SideTeam1))
	require.True(t, r.ApplyLocalVote(models.SideTeam2))

	r.ConfirmVote(models.SideTeam1, scores(1, 1))
	v := r.View()
	assert.Equal(t, models.ScorePair{Team1: 1, Team2: 1}, v.Scores)
	assert.Equal(t, Ledger{}, v.Pending)
	assert.Equal(t, models.ConnectivityOnline, v.Connectivity)
}

func TestListenersSeeOnlyChangedViews(t *testing.T) {
	r, _, rec := newTestReconciler(t)
	require.True(t, r.ApplyAuthoritative(scores(1, 2)))
	require.True(t, r.ApplyAuthoritative(scores(1, 2)))
	assert.Len(t, rec.views, 1)
}

func TestPercentages(t *testing.T) {
	cases := []struct {
		pair         models.ScorePair
		team1, team2 int
	}{
		{models.ScorePair{}, 50, 50},
		{models.ScorePair{Team1: 1}, 100, 0},
		{models.ScorePair{Team1: 1, Team2: 2}, 33, 67},
		{models.ScorePair{Team1: 100, Team2: 87}, 53, 47},
		{models.ScorePair{Team1: 1, Team2: 7}, 13, 87},
	}
	for _, tc := range cases {
		team1, team2 := Percentages(tc.pair)
		assert.Equal(t, tc.team1, team1, "%+v", tc.pair)
		assert.Equal(t, tc.team2, team2, "%+v", tc.pair)
	}
}

func TestLoadMessagePools(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hype:\n  - GO GO GO\nvictory: []\n"), 0o600))

	pools, err := LoadMessagePools(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"GO GO GO"}, pools.Hype)
	assert.Equal(t, DefaultMessagePools().Victory, pools.Victory)
	assert.Equal(t, DefaultMessagePools().Offline, pools.Offline)

	_, err = LoadMessagePools(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
