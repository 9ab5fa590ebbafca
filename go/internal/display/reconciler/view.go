package reconciler

import (
	"math"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// LeaderTie is reported when neither side is strictly ahead.
const LeaderTie = "tie"

// Ledger holds a signed per-side count.
type Ledger struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Get returns the entry for side.
func (l Ledger) Get(side models.Side) int {
	if side == models.SideTeam2 {
		return l.Team2
	}
	return l.Team1
}

func (l *Ledger) add(side models.Side, delta int) {
	switch side {
	case models.SideTeam1:
		l.Team1 += delta
	case models.SideTeam2:
		l.Team2 += delta
	}
}

func (l *Ledger) set(side models.Side, v int) {
	switch side {
	case models.SideTeam1:
		l.Team1 = v
	case models.SideTeam2:
		l.Team2 = v
	}
}

// Message is the user-visible message currently on screen.
type Message struct {
	Tone Tone   `json:"tone,omitempty"`
	Text string `json:"text,omitempty"`
}

// View is an immutable, comparable copy of everything the presentation layer renders.
type View struct {
	Scores         models.ScorePair    `json:"scores"`
	Pending        Ledger              `json:"pending"`
	Combo          Ledger              `json:"combo"`
	Connectivity   models.Connectivity `json:"connectivity"`
	Error          string              `json:"error,omitempty"`
	MatchState     models.MatchState   `json:"matchState"`
	Winner         models.Side         `json:"winner,omitempty"`
	MatchesPlayed  int                 `json:"matchesPlayed"`
	Countdown      int                 `json:"countdown"`
	WinThreshold   int                 `json:"winThreshold"`
	VictoryMessage string              `json:"victoryMessage,omitempty"`
	Message        Message             `json:"message"`

	Leader      string `json:"leader"`
	Total       int    `json:"total"`
	Team1Pct    int    `json:"team1Pct"`
	Team2Pct    int    `json:"team2Pct"` // 100 - Team1Pct, so the bar always fills
	IsMatchOver bool   `json:"isMatchOver"`
}

// Leader returns the side with the strictly greater score, or LeaderTie.
func Leader(p models.ScorePair) string {
	switch {
	case p.Team1 > p.Team2:
		return string(models.SideTeam1)
	case p.Team2 > p.Team1:
		return string(models.SideTeam2)
	default:
		return LeaderTie
	}
}

// Percentages returns each side's rounded share. The two always sum to 100
// and an empty tally reports 50/50.
func Percentages(p models.ScorePair) (int, int) {
	total := p.Total()
	if total <= 0 {
		return 50, 50
	}
	team1 := int(math.Round(float64(p.Team1) * 100 / float64(total)))
	return team1, 100 - team1
}
