package models

import (
	"errors"
	"fmt"
)

// ErrInvalidSide is returned when a side identifier is not one of the two teams.
var ErrInvalidSide = errors.New("invalid side")

// Side identifies one of the two counters.
type Side string

const (
	SideTeam1 Side = "team1"
	SideTeam2 Side = "team2"
)

// Sides lists the valid sides in display order.
var Sides = []Side{SideTeam1, SideTeam2}

// Valid reports whether s is one of the two teams.
func (s Side) Valid() bool {
	return s == SideTeam1 || s == SideTeam2
}

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideTeam1 {
		return SideTeam2
	}
	return SideTeam1
}

// ParseSide validates a raw side identifier.
func ParseSide(raw string) (Side, error) {
	s := Side(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, raw)
	}
	return s, nil
}

// MatchState is the server-declared lifecycle state of a match.
type MatchState string

const (
	MatchStateActive    MatchState = "active"
	MatchStateFinished  MatchState = "finished"
	MatchStateResetting MatchState = "resetting"
)

// ParseMatchState accepts the canonical names plus the legacy
// "victory" and "countdown" names some servers still emit.
func ParseMatchState(raw string) (MatchState, bool) {
	switch raw {
	case "active":
		return MatchStateActive, true
	case "finished", "victory":
		return MatchStateFinished, true
	case "resetting", "countdown":
		return MatchStateResetting, true
	default:
		return "", false
	}
}

// Connectivity is the client's view of the link to the server.
type Connectivity string

const (
	ConnectivityOnline  Connectivity = "online"
	ConnectivityOffline Connectivity = "offline"
)

// ScorePair holds one counter per side.
type ScorePair struct {
	Team1 int `json:"team1"`
	Team2 int `json:"team2"`
}

// Get returns the counter for side.
func (p ScorePair) Get(side Side) int {
	if side == SideTeam2 {
		return p.Team2
	}
	return p.Team1
}

// Add adjusts the counter for side by delta, never going below zero.
func (p *ScorePair) Add(side Side, delta int) {
	switch side {
	case SideTeam1:
		p.Team1 = max(0, p.Team1+delta)
	case SideTeam2:
		p.Team2 = max(0, p.Team2+delta)
	}
}

// Total returns the sum of both counters.
func (p ScorePair) Total() int {
	return p.Team1 + p.Team2
}
