package display

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/votingwar/go/clients"
	"github.com/mcdev12/votingwar/go/internal/display/bridge"
	"github.com/mcdev12/votingwar/go/internal/display/gateway"
	"github.com/mcdev12/votingwar/go/internal/display/poller"
	"github.com/mcdev12/votingwar/go/internal/display/reconciler"
	"github.com/mcdev12/votingwar/go/internal/display/vote"
	"github.com/mcdev12/votingwar/go/internal/models"
	"github.com/mcdev12/votingwar/go/internal/timers"
)

// App wires the reconciliation core: one reconciler fed by the push
// channel, the poller and local votes.
type App struct {
	cfg Config

	timers     *timers.Registry
	reconciler *reconciler.Reconciler
	submitter  *vote.Submitter
	poller     *poller.Poller
	conn       *gateway.ConnectionManager

	nc     *nats.Conn
	bridge *bridge.Bridge

	mu       sync.Mutex
	stopping bool
	votes    sync.WaitGroup
}

// NewApp builds the core. A nil clock means the real clock. When
// cfg.NATS.URL is set the presentation bridge is connected here.
func NewApp(cfg Config, clock clockwork.Clock) (*App, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	registry := timers.NewRegistry(clock)
	rec := reconciler.New(cfg.Reconciler, registry)

	client := clients.NewScoreboardClient(cfg.APIURL)
	client.SetTimeout(cfg.RequestTimeout)

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.URL = cfg.WSURL
	connCfg.ReconnectDelay = cfg.PollInterval
	connCfg.OfflineMessage = poller.OfflineMessage

	app := &App{
		cfg:        cfg,
		timers:     registry,
		reconciler: rec,
		submitter:  vote.NewSubmitter(client, rec, cfg.RequestTimeout),
		poller:     poller.New(client, rec, poller.Config{Interval: cfg.PollInterval, Clock: clock}),
		conn:       gateway.NewConnectionManager(connCfg, rec, registry),
	}

	if cfg.NATS.URL != "" {
		nc, err := bridge.Connect(cfg.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to start presentation bridge: %w", err)
		}
		app.nc = nc
		app.bridge = bridge.New(nc, cfg.NATS.SubjectPrefix, app)
		rec.AddListener(app.bridge)
	}

	return app, nil
}

// Reconciler exposes the reconciler for reads and listeners.
func (a *App) Reconciler() *reconciler.Reconciler {
	return a.reconciler
}

// AddListener registers a presentation listener.
func (a *App) AddListener(l reconciler.Listener) {
	a.reconciler.AddListener(l)
}

// Vote applies one optimistic vote and submits it in the background. It
// reports whether the vote was accepted locally. Once Run is shutting down
// every vote is refused.
func (a *App) Vote(ctx context.Context, side models.Side) bool {
	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		log.Debug().Str("side", string(side)).Msg("ignoring vote during shutdown")
		return false
	}
	a.votes.Add(1)
	a.mu.Unlock()

	if !a.reconciler.ApplyLocalVote(side) {
		a.votes.Done()
		return false
	}

	// An issued request runs to completion even if ctx ends.
	submitCtx := context.WithoutCancel(ctx)
	go func() {
		defer a.votes.Done()
		a.submitter.Submit(submitCtx, side)
	}()
	return true
}

// Run starts the push channel, the poller and the bridge, and blocks until
// ctx is done. It then stops everything and cancels pending timers.
func (a *App) Run(ctx context.Context) error {
	log.Info().
		Str("api_url", a.cfg.APIURL).
		Str("ws_url", a.cfg.WSURL).
		Dur("poll_interval", a.cfg.PollInterval).
		Bool("bridge", a.bridge != nil).
		Msg("display core starting")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.poller.Start(gctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		<-gctx.Done()
		a.poller.Stop()
		return nil
	})

	g.Go(func() error {
		go a.conn.Connect()
		<-gctx.Done()
		a.conn.Stop()
		return nil
	})

	if a.bridge != nil {
		g.Go(func() error {
			if err := a.bridge.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return a.bridge.Stop()
		})
	}

	err := g.Wait()

	a.mu.Lock()
	a.stopping = true
	a.mu.Unlock()
	a.votes.Wait()
	a.timers.Stop()
	if a.nc != nil {
		if drainErr := a.nc.Drain(); drainErr != nil {
			log.Warn().Err(drainErr).Msg("failed to drain NATS connection")
		}
	}

	log.Info().Msg("display core stopped")
	return err
}
