package main

import (
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/match"
)

type Services struct {
	Match     *match.MatchManager
	Hub       *match.Hub
	Scores    *match.Service
	Publisher *match.JetStreamPublisher
}

func setupServices(store match.ScoreStore, cfg Config) *Services {
	// Store → MatchManager → Hub → Service

	manager := match.NewMatchManager(store, match.Config{
		WinScore:  cfg.WinScore,
		Countdown: cfg.Countdown,
	})

	hubCfg := match.DefaultHubConfig()
	hubCfg.BroadcastInterval = cfg.BroadcastInterval
	hub := match.NewHub(manager, hubCfg)
	manager.SetBroadcaster(hub)

	services := &Services{
		Match:  manager,
		Hub:    hub,
		Scores: match.NewService(manager, hub),
	}

	if cfg.NATSURL != "" {
		jsCfg := match.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		publisher, err := match.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Error().Err(err).Msg("failed to start match event publisher, continuing without it")
		} else {
			manager.SetPublisher(publisher)
			services.Publisher = publisher
		}
	}

	return services
}
