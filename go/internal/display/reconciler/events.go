package reconciler

import "github.com/mcdev12/votingwar/go/internal/models"

// EventKind names a presentation-only signal.
type EventKind string

const (
	EventVoteFeedback  EventKind = "vote_feedback"
	EventComboReset    EventKind = "combo_reset"
	EventMessage       EventKind = "message"
	EventMessageHidden EventKind = "message_hidden"
	EventVictory       EventKind = "victory"
)

// Tone classifies a user-visible message.
type Tone string

const (
	ToneHype    Tone = "hype"
	ToneOffline Tone = "offline"
	ToneVictory Tone = "victory"
)

// UIEvent is an ephemeral signal for the presentation layer. It carries no state truth.
type UIEvent struct {
	Kind       EventKind   `json:"kind"`
	Side       models.Side `json:"side,omitempty"`
	Combo      int         `json:"combo,omitempty"`
	Tone       Tone        `json:"tone,omitempty"`
	Text       string      `json:"text,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
}

// Listener receives reconciler output. Callbacks run serialized, in the
// order the changes happened, and must not call mutating reconciler methods.
type Listener interface {
	OnView(View)
	OnEvent(UIEvent)
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	View  func(View)
	Event func(UIEvent)
}

func (l ListenerFuncs) OnView(v View) {
	if l.View != nil {
		l.View(v)
	}
}

func (l ListenerFuncs) OnEvent(e UIEvent) {
	if l.Event != nil {
		l.Event(e)
	}
}
