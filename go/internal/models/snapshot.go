package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Snapshot is an authoritative, possibly partial, statement of server state.
// Nil fields were absent or malformed in the payload and must not be applied.
type Snapshot struct {
	Team1         *int
	Team2         *int
	MatchState    *MatchState
	Winner        *Side
	WinnerSet     bool // winner key present; Winner nil means "no winner"
	MatchesPlayed *int
	Countdown     *int
	WinThreshold  *int

	// Seq and Epoch order snapshots from one server process.
	Seq   *uint64
	Epoch string
}

// HasScores reports whether both counters are present and valid.
func (s Snapshot) HasScores() bool {
	return s.Team1 != nil && s.Team2 != nil
}

// Scores returns the score pair carried by the snapshot. Only meaningful when HasScores is true.
func (s Snapshot) Scores() ScorePair {
	var p ScorePair
	if s.Team1 != nil {
		p.Team1 = *s.Team1
	}
	if s.Team2 != nil {
		p.Team2 = *s.Team2
	}
	return p
}

// ParseSnapshot decodes a server payload field by field. It fails only when
// the payload is not a JSON object; every malformed field is simply dropped.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if raw == nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: not an object")
	}

	var snap Snapshot
	snap.Team1 = nonNegativeInt(raw["team1"])
	snap.Team2 = nonNegativeInt(raw["team2"])
	snap.MatchesPlayed = nonNegativeInt(raw["matchesPlayed"])
	snap.Countdown = nonNegativeInt(raw["countdown"])
	snap.WinThreshold = nonNegativeInt(raw["winScore"])

	if v, ok := raw["matchState"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if state, ok := ParseMatchState(s); ok {
				snap.MatchState = &state
			}
		}
	}

	if v, ok := raw["winner"]; ok {
		if isNull(v) {
			snap.WinnerSet = true
		} else {
			var s string
			if err := json.Unmarshal(v, &s); err == nil {
				if side, err := ParseSide(s); err == nil {
					snap.Winner = &side
					snap.WinnerSet = true
				}
			}
		}
	}

	if v, ok := raw["seq"]; ok {
		if n, err := strconv.ParseUint(string(bytes.TrimSpace(v)), 10, 64); err == nil {
			snap.Seq = &n
		}
	}

	if v, ok := raw["epoch"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			snap.Epoch = s
		}
	}

	return snap, nil
}

func nonNegativeInt(v json.RawMessage) *int {
	if len(v) == 0 || isNull(v) {
		return nil
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(v)))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// MatchSnapshot is the full state a server reports after every exchange.
type MatchSnapshot struct {
	Team1         int        `json:"team1"`
	Team2         int        `json:"team2"`
	MatchState    MatchState `json:"matchState"`
	Winner        *Side      `json:"winner"`
	MatchesPlayed int        `json:"matchesPlayed"`
	Countdown     int        `json:"countdown"`
	WinScore      int        `json:"winScore"`
	Seq           uint64     `json:"seq"`
	Epoch         string     `json:"epoch"`
}

// Snapshot converts the full state into the partial form the reconciler consumes.
func (m MatchSnapshot) Snapshot() Snapshot {
	team1, team2 := m.Team1, m.Team2
	state := m.MatchState
	played, countdown, win := m.MatchesPlayed, m.Countdown, m.WinScore
	seq := m.Seq
	snap := Snapshot{
		Team1:         &team1,
		Team2:         &team2,
		MatchState:    &state,
		WinnerSet:     true,
		MatchesPlayed: &played,
		Countdown:     &countdown,
		WinThreshold:  &win,
		Seq:           &seq,
		Epoch:         m.Epoch,
	}
	if m.Winner != nil {
		w := *m.Winner
		snap.Winner = &w
	}
	return snap
}
