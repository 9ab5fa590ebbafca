package match

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

type Config struct {
	WinScore  int
	Countdown time.Duration
	// ResetRetry is how long to wait before retrying a failed store reset.
	ResetRetry time.Duration
	Clock      clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		WinScore:   100,
		Countdown:  8 * time.Second,
		ResetRetry: time.Second,
		Clock:      clockwork.NewRealClock(),
	}
}

// Broadcaster pushes the full state to every connected viewer.
type Broadcaster interface {
	Broadcast(state models.MatchSnapshot)
}

// MatchManager is the authoritative match lifecycle:
// active -> finished (countdown) -> resetting -> active.
type MatchManager struct {
	store     ScoreStore
	config    Config
	clock     clockwork.Clock
	epoch     string
	publisher EventPublisher

	mu           sync.Mutex
	state        models.MatchState
	winner       *models.Side
	played       int
	seq          uint64
	countdownEnd time.Time
	timer        clockwork.Timer
	stopped      bool
	done         chan struct{}
	broadcaster  Broadcaster
}

func NewMatchManager(store ScoreStore, cfg Config) *MatchManager {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.WinScore <= 0 {
		cfg.WinScore = DefaultConfig().WinScore
	}
	if cfg.ResetRetry <= 0 {
		cfg.ResetRetry = DefaultConfig().ResetRetry
	}
	return &MatchManager{
		store:  store,
		config: cfg,
		clock:  cfg.Clock,
		epoch:  uuid.New().String(),
		state:  models.MatchStateActive,
		done:   make(chan struct{}),
	}
}

// SetPublisher enables lifecycle events.
func (m *MatchManager) SetPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// SetBroadcaster registers where state changes made outside a request go.
func (m *MatchManager) SetBroadcaster(b Broadcaster) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcaster = b
}

func (m *MatchManager) Epoch() string {
	return m.epoch
}

func (m *MatchManager) StoreName() string {
	return m.store.Name()
}

// State returns the full current state.
func (m *MatchManager) State(ctx context.Context) (models.MatchSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scores, err := m.store.GetScores(ctx)
	if err != nil {
		return models.MatchSnapshot{}, fmt.Errorf("failed to get scores: %w", err)
	}
	return m.snapshotLocked(scores), nil
}

// Vote records one vote for side. While the match is not active the vote
// is ignored and the current state is returned. The win check runs under
// the same lock as the increment so the score never overshoots.
func (m *MatchManager) Vote(ctx context.Context, side models.Side) (models.MatchSnapshot, error) {
	if !side.Valid() {
		return models.MatchSnapshot{}, fmt.Errorf("%w: %q", models.ErrInvalidSide, side)
	}

	m.mu.Lock()
	if m.state != models.MatchStateActive {
		defer m.mu.Unlock()
		scores, err := m.store.GetScores(ctx)
		if err != nil {
			return models.MatchSnapshot{}, fmt.Errorf("failed to get scores: %w", err)
		}
		log.Debug().Str("side", string(side)).Str("state", string(m.state)).Msg("vote ignored, match not active")
		return m.snapshotLocked(scores), nil
	}

	scores, err := m.store.Increment(ctx, side)
	if err != nil {
		m.mu.Unlock()
		return models.MatchSnapshot{}, fmt.Errorf("failed to record vote: %w", err)
	}
	m.seq++

	var won *MatchEvent
	if scores.Team1 >= m.config.WinScore || scores.Team2 >= m.config.WinScore {
		winner := models.SideTeam1
		if scores.Team1 < m.config.WinScore {
			winner = models.SideTeam2
		}
		m.state = models.MatchStateFinished
		m.winner = &winner
		m.startCountdownLocked()

		log.Info().
			Str("winner", string(winner)).
			Int("team1", scores.Team1).
			Int("team2", scores.Team2).
			Int("match", m.played+1).
			Msg("match won")

		event := m.eventLocked(EventMatchWon, scores)
		won = &event
	}

	snap := m.snapshotLocked(scores)
	publisher := m.publisher
	m.mu.Unlock()

	if won != nil && publisher != nil {
		m.publish(publisher, *won)
	}
	return snap, nil
}

// Stop cancels a running countdown.
func (m *MatchManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	close(m.done)
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *MatchManager) startCountdownLocked() {
	m.countdownEnd = m.clock.Now().Add(m.config.Countdown)
	m.armResetLocked(m.config.Countdown)
}

func (m *MatchManager) armResetLocked(d time.Duration) {
	timer := m.clock.NewTimer(d)
	m.timer = timer

	go func() {
		select {
		case <-timer.Chan():
			m.reset()
		case <-m.done:
		}
	}()
}

// reset runs when the countdown expires. The match stays in resetting,
// rejecting votes, until the store has actually been cleared.
func (m *MatchManager) reset() {
	ctx := context.Background()

	m.mu.Lock()
	if m.stopped || (m.state != models.MatchStateFinished && m.state != models.MatchStateResetting) {
		m.mu.Unlock()
		return
	}
	entering := m.state == models.MatchStateFinished
	if entering {
		m.state = models.MatchStateResetting
		m.seq++
	}
	m.timer = nil
	m.mu.Unlock()
	if entering {
		m.broadcastCurrent(ctx)
	}

	scores, err := m.store.Reset(ctx)
	if err != nil {
		log.Error().Err(err).Dur("retry_in", m.config.ResetRetry).Msg("failed to reset scores")
		m.mu.Lock()
		if !m.stopped {
			m.armResetLocked(m.config.ResetRetry)
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.played++
	m.state = models.MatchStateActive
	m.winner = nil
	m.countdownEnd = time.Time{}
	m.seq++
	event := m.eventLocked(EventMatchReset, scores)
	publisher := m.publisher
	m.mu.Unlock()

	log.Info().Int("match", m.MatchesPlayed()+1).Msg("match reset")

	if publisher != nil {
		m.publish(publisher, event)
	}
	m.broadcastCurrent(ctx)
}

func (m *MatchManager) MatchesPlayed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.played
}

func (m *MatchManager) broadcastCurrent(ctx context.Context) {
	m.mu.Lock()
	b := m.broadcaster
	m.mu.Unlock()
	if b == nil {
		return
	}

	state, err := m.State(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load state for broadcast")
		return
	}
	b.Broadcast(state)
}

func (m *MatchManager) publish(p EventPublisher, event MatchEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Publish(ctx, event); err != nil {
		log.Error().Err(err).Str("event_type", string(event.Type)).Msg("failed to publish match event")
	}
}

func (m *MatchManager) eventLocked(t EventType, scores models.ScorePair) MatchEvent {
	event := MatchEvent{
		ID:          uuid.New(),
		Type:        t,
		Epoch:       m.epoch,
		MatchNumber: m.played + 1,
		Scores:      scores,
		Timestamp:   m.clock.Now().UTC(),
	}
	if t == EventMatchReset {
		event.MatchNumber = m.played
	}
	if m.winner != nil {
		w := *m.winner
		event.Winner = &w
	}
	return event
}

func (m *MatchManager) snapshotLocked(scores models.ScorePair) models.MatchSnapshot {
	snap := models.MatchSnapshot{
		Team1:         scores.Team1,
		Team2:         scores.Team2,
		MatchState:    m.state,
		MatchesPlayed: m.played,
		Countdown:     m.countdownRemainingLocked(),
		WinScore:      m.config.WinScore,
		Seq:           m.seq,
		Epoch:         m.epoch,
	}
	if m.winner != nil {
		w := *m.winner
		snap.Winner = &w
	}
	return snap
}

// countdownRemainingLocked reports whole seconds left, rounded up.
func (m *MatchManager) countdownRemainingLocked() int {
	if m.countdownEnd.IsZero() {
		return 0
	}
	remaining := m.countdownEnd.Sub(m.clock.Now())
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
