package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/models"
)

// OfflineMessage is surfaced whenever a pull fails.
const OfflineMessage = "server offline"

// Fetcher performs one pull of the authoritative state.
type Fetcher interface {
	GetScores(ctx context.Context) (models.Snapshot, error)
}

// Sink receives the outcome of every pull.
type Sink interface {
	ApplyAuthoritative(snap models.Snapshot) bool
	MarkOffline(message string)
}

type Config struct {
	Interval time.Duration
	Clock    clockwork.Clock
}

func DefaultConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Clock:    clockwork.NewRealClock(),
	}
}

// Poller pulls the scoreboard on a fixed interval, independently of the
// push channel.
type Poller struct {
	fetcher Fetcher
	sink    Sink
	config  Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(fetcher Fetcher, sink Sink, cfg Config) *Poller {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Poller{
		fetcher: fetcher,
		sink:    sink,
		config:  cfg,
	}
}

// Start fetches once immediately and then once per interval until Stop is
// called or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})

	ticker := p.config.Clock.NewTicker(p.config.Interval)
	p.wg.Add(1)
	go p.run(ctx, ticker, p.stopChan)

	log.Info().Dur("interval", p.config.Interval).Msg("poller started")
	return nil
}

// Stop halts polling and waits for an in-flight fetch to finish. Calling it
// on a stopped poller does nothing.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	log.Info().Msg("poller stopped")
}

func (p *Poller) run(ctx context.Context, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer p.wg.Done()
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.Chan():
			p.poll(ctx)
		}
	}
}

// poll performs one pull. A response that arrives after Stop is still
// applied; it is an ordinary authoritative snapshot.
func (p *Poller) poll(ctx context.Context) {
	snap, err := p.fetcher.GetScores(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("poll failed")
		p.sink.MarkOffline(OfflineMessage)
		return
	}

	if !p.sink.ApplyAuthoritative(snap) {
		log.Debug().Msg("poll returned a stale snapshot")
	}
}
