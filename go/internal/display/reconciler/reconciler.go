package reconciler

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
	"github.com/mcdev12/votingwar/go/internal/timers"
)

const (
	defaultWinThreshold = 100
	messageTimerKey     = "message"
	comboTimerPrefix    = "combo:"
)

// Config holds presentation timing and message pools.
type Config struct {
	ComboWindow            time.Duration
	HypeMessageDuration    time.Duration
	OfflineMessageDuration time.Duration
	Messages               MessagePools
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		ComboWindow:            800 * time.Millisecond,
		HypeMessageDuration:    1500 * time.Millisecond,
		OfflineMessageDuration: 3 * time.Second,
		Messages:               DefaultMessagePools(),
	}
}

// Reconciler owns the displayed counters, the pending ledger, connectivity
// and match state. Every operation is atomic with respect to all of them.
type Reconciler struct {
	cfg    Config
	timers *timers.Registry

	// emitMu serializes whole operations including listener dispatch, so
	// listeners observe changes in the order they were made.
	emitMu sync.Mutex

	mu           sync.Mutex
	rng          *rand.Rand
	scores       models.ScorePair
	pending      Ledger
	combo        Ledger
	connectivity models.Connectivity
	errMsg       string
	matchState   models.MatchState
	winner       models.Side
	played       int
	countdown    int
	winThreshold int
	victoryMsg   string
	message      Message
	lastSeq      *uint64
	epoch        string
	listeners    []Listener
}

// New creates a reconciler in the cold-start state: zero scores, active
// match, offline until the first successful exchange.
func New(cfg Config, registry *timers.Registry) *Reconciler {
	if registry == nil {
		registry = timers.NewRegistry(nil)
	}
	cfg.Messages = cfg.Messages.withDefaults()
	return &Reconciler{
		cfg:          cfg,
		timers:       registry,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		connectivity: models.ConnectivityOffline,
		matchState:   models.MatchStateActive,
		winThreshold: defaultWinThreshold,
	}
}

// SetRand replaces the message selection source.
func (r *Reconciler) SetRand(rng *rand.Rand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng = rng
}

// AddListener registers l for views and UI events.
func (r *Reconciler) AddListener(l Listener) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// View returns the current state with derived values.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// ApplyLocalVote optimistically counts one vote for side. It is a no-op,
// returning false, when the side is invalid or the match is not active.
func (r *Reconciler) ApplyLocalVote(side models.Side) bool {
	return r.update(func(b *batch) bool {
		if !side.Valid() {
			log.Debug().Str("side", string(side)).Msg("ignoring vote for invalid side")
			return false
		}
		if r.matchState != models.MatchStateActive {
			log.Debug().Str("side", string(side)).Str("match_state", string(r.matchState)).Msg("ignoring vote while match is not active")
			return false
		}

		r.scores.Add(side, 1)
		r.pending.add(side, 1)
		r.combo.add(side, 1)
		r.timers.Schedule(comboTimerPrefix+string(side), r.cfg.ComboWindow, func() {
			r.resetCombo(side)
		})

		b.emit(UIEvent{Kind: EventVoteFeedback, Side: side, Combo: r.combo.Get(side)})
		r.showMessageLocked(b, ToneHype, pick(r.rng, r.cfg.Messages.Hype), r.cfg.HypeMessageDuration)
		return true
	})
}

// ConfirmVote applies the server's answer to a submitted vote and clears
// the side's pending entry.
func (r *Reconciler) ConfirmVote(side models.Side, snap models.Snapshot) {
	r.update(func(b *batch) bool {
		r.applyAuthoritativeLocked(b, snap)
		if side.Valid() {
			r.pending.set(side, 0)
		}
		return true
	})
}

// RevertVote undoes one optimistic vote after its submission failed and
// marks the client offline. When an authoritative snapshot has already
// superseded the optimistic delta there is nothing left to undo.
func (r *Reconciler) RevertVote(side models.Side) {
	r.update(func(b *batch) bool {
		if side.Valid() && r.pending.Get(side) > 0 {
			r.scores.Add(side, -1)
			r.pending.add(side, -1)
		}
		r.connectivity = models.ConnectivityOffline
		r.errMsg = pick(r.rng, r.cfg.Messages.Offline)
		r.showMessageLocked(b, ToneOffline, r.errMsg, r.cfg.OfflineMessageDuration)
		return true
	})
}

// ApplyAuthoritative folds a server snapshot into local state. Malformed or
// missing fields are skipped individually. It returns false when the
// snapshot is older than one already applied from the same server process.
func (r *Reconciler) ApplyAuthoritative(snap models.Snapshot) bool {
	return r.update(func(b *batch) bool {
		return r.applyAuthoritativeLocked(b, snap)
	})
}

// MarkOnline records a successful exchange that carried no snapshot.
func (r *Reconciler) MarkOnline() {
	r.update(func(b *batch) bool {
		r.connectivity = models.ConnectivityOnline
		r.errMsg = ""
		return true
	})
}

// MarkOffline records a transport failure with a user-visible notice.
func (r *Reconciler) MarkOffline(message string) {
	r.update(func(b *batch) bool {
		wasOnline := r.connectivity == models.ConnectivityOnline
		changed := wasOnline || r.errMsg != message
		r.connectivity = models.ConnectivityOffline
		r.errMsg = message
		if changed && message != "" {
			r.showMessageLocked(b, ToneOffline, message, r.cfg.OfflineMessageDuration)
		}
		return true
	})
}

func (r *Reconciler) applyAuthoritativeLocked(b *batch, snap models.Snapshot) bool {
	if snap.Seq != nil {
		if r.lastSeq != nil && snap.Epoch == r.epoch && *snap.Seq < *r.lastSeq {
			// The server answered, only its payload is outdated.
			r.connectivity = models.ConnectivityOnline
			r.errMsg = ""
			log.Debug().
				Uint64("seq", *snap.Seq).
				Uint64("last_seq", *r.lastSeq).
				Msg("discarding stale snapshot")
			return false
		}
		seq := *snap.Seq
		r.lastSeq = &seq
		r.epoch = snap.Epoch
	}

	if snap.HasScores() {
		r.scores = snap.Scores()
		r.pending = Ledger{}
		r.connectivity = models.ConnectivityOnline
		r.errMsg = ""
	}

	if snap.MatchState != nil {
		prev := r.matchState
		next := *snap.MatchState
		r.matchState = next

		switch {
		case next != models.MatchStateActive && (prev == models.MatchStateActive || r.victoryMsg == ""):
			r.victoryMsg = pick(r.rng, r.cfg.Messages.Victory)
			b.emit(UIEvent{Kind: EventVictory, Tone: ToneVictory, Text: r.victoryMsg})
		case next == models.MatchStateActive && prev != models.MatchStateActive:
			r.victoryMsg = ""
			r.combo = Ledger{}
			r.timers.Cancel(comboTimerPrefix + string(models.SideTeam1))
			r.timers.Cancel(comboTimerPrefix + string(models.SideTeam2))
		}
	}

	if snap.WinnerSet {
		r.winner = ""
		if snap.Winner != nil {
			r.winner = *snap.Winner
		}
	}
	if snap.MatchesPlayed != nil {
		r.played = *snap.MatchesPlayed
	}
	if snap.Countdown != nil {
		r.countdown = *snap.Countdown
	}
	if snap.WinThreshold != nil {
		r.winThreshold = *snap.WinThreshold
	}
	return true
}

func (r *Reconciler) resetCombo(side models.Side) {
	r.update(func(b *batch) bool {
		if r.combo.Get(side) == 0 {
			return false
		}
		r.combo.set(side, 0)
		b.emit(UIEvent{Kind: EventComboReset, Side: side})
		return true
	})
}

func (r *Reconciler) hideMessage() {
	r.update(func(b *batch) bool {
		if r.message == (Message{}) {
			return false
		}
		r.message = Message{}
		b.emit(UIEvent{Kind: EventMessageHidden})
		return true
	})
}

func (r *Reconciler) showMessageLocked(b *batch, tone Tone, text string, d time.Duration) {
	if text == "" {
		return
	}
	r.message = Message{Tone: tone, Text: text}
	b.emit(UIEvent{Kind: EventMessage, Tone: tone, Text: text, DurationMS: d.Milliseconds()})
	r.timers.Schedule(messageTimerKey, d, r.hideMessage)
}

func (r *Reconciler) viewLocked() View {
	team1Pct, team2Pct := Percentages(r.scores)
	return View{
		Scores:         r.scores,
		Pending:        r.pending,
		Combo:          r.combo,
		Connectivity:   r.connectivity,
		Error:          r.errMsg,
		MatchState:     r.matchState,
		Winner:         r.winner,
		MatchesPlayed:  r.played,
		Countdown:      r.countdown,
		WinThreshold:   r.winThreshold,
		VictoryMessage: r.victoryMsg,
		Message:        r.message,
		Leader:         Leader(r.scores),
		Total:          r.scores.Total(),
		Team1Pct:       team1Pct,
		Team2Pct:       team2Pct,
		IsMatchOver:    r.matchState != models.MatchStateActive,
	}
}

type batch struct {
	events []UIEvent
}

func (b *batch) emit(e UIEvent) {
	b.events = append(b.events, e)
}

// update runs fn under the state lock, then hands the resulting events and,
// if the view changed, the new view to listeners.
func (r *Reconciler) update(fn func(b *batch) bool) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	before := r.viewLocked()
	var b batch
	result := fn(&b)
	after := r.viewLocked()
	r.mu.Unlock()

	for _, l := range r.listeners {
		for _, e := range b.events {
			l.OnEvent(e)
		}
		if after != before {
			l.OnView(after)
		}
	}
	return result
}
