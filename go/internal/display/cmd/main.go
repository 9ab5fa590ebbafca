package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/display"
	"github.com/mcdev12/votingwar/go/internal/display/reconciler"
	"github.com/mcdev12/votingwar/go/internal/models"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := display.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	app, err := display.NewApp(cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create display")
	}

	app.AddListener(reconciler.ListenerFuncs{
		View: func(v reconciler.View) {
			log.Info().
				Int("team1", v.Scores.Team1).
				Int("team2", v.Scores.Team2).
				Int("team1_pct", v.Team1Pct).
				Int("team2_pct", v.Team2Pct).
				Str("leader", v.Leader).
				Str("match", string(v.MatchState)).
				Str("winner", string(v.Winner)).
				Int("countdown", v.Countdown).
				Str("connectivity", string(v.Connectivity)).
				Msg("scoreboard")
		},
		Event: func(e reconciler.UIEvent) {
			switch e.Kind {
			case reconciler.EventMessage, reconciler.EventVictory:
				log.Info().Str("tone", string(e.Tone)).Msg(e.Text)
			case reconciler.EventVoteFeedback:
				log.Debug().Str("side", string(e.Side)).Int("combo", e.Combo).Msg("vote")
			}
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go readVotes(ctx, app)

	log.Info().Msg("type 1 or 2 and press enter to vote")
	if err := app.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("display failed")
	}
}

// readVotes turns stdin lines into votes.
func readVotes(ctx context.Context, app *display.App) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		side, ok := parseInput(scanner.Text())
		if !ok {
			log.Warn().Str("input", scanner.Text()).Msg("expected 1, 2, team1 or team2")
			continue
		}
		if !app.Vote(ctx, side) {
			log.Info().Msg("match is not active, vote ignored")
		}
	}
}

func parseInput(line string) (models.Side, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "1", "team1":
		return models.SideTeam1, true
	case "2", "team2":
		return models.SideTeam2, true
	default:
		return "", false
	}
}
