package vote

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// Client sends a single vote to the authoritative server.
type Client interface {
	Vote(ctx context.Context, side models.Side) (models.Snapshot, error)
}

// Reconciler receives the outcome of a submitted vote.
type Reconciler interface {
	ConfirmVote(side models.Side, snap models.Snapshot)
	RevertVote(side models.Side)
}

// Submitter forwards votes to the server and folds the result back into
// the reconciler. Failed votes are never retried.
type Submitter struct {
	client     Client
	reconciler Reconciler
	timeout    time.Duration
}

func NewSubmitter(client Client, reconciler Reconciler, timeout time.Duration) *Submitter {
	return &Submitter{
		client:     client,
		reconciler: reconciler,
		timeout:    timeout,
	}
}

// Submit sends one vote for side. It blocks until the request completes and
// reports whether the server accepted it.
func (s *Submitter) Submit(ctx context.Context, side models.Side) bool {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	snap, err := s.client.Vote(ctx, side)
	if err != nil {
		log.Warn().Err(err).Str("side", string(side)).Msg("vote submission failed, reverting")
		s.reconciler.RevertVote(side)
		return false
	}

	log.Debug().Str("side", string(side)).Msg("vote confirmed")
	s.reconciler.ConfirmVote(side, snap)
	return true
}
