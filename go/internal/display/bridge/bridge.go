package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/votingwar/go/internal/display/reconciler"
	"github.com/mcdev12/votingwar/go/internal/models"
)

// Conn is the part of *nats.Conn the bridge uses.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Voter runs a user action through the core.
type Voter interface {
	Vote(ctx context.Context, side models.Side) bool
}

type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "votingwar.display",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with the reconnect policy from cfg.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("votingwar-display"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Envelope wraps everything the bridge publishes.
type Envelope struct {
	Instance  string          `json:"instance"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Action is a user action sent by the presentation layer.
type Action struct {
	Team string `json:"team"`
}

// Bridge connects the core to an out-of-process presentation layer. It
// publishes every view and UI event and turns inbound actions into votes.
type Bridge struct {
	conn       Conn
	prefix     string
	instanceID string
	voter      Voter

	mu      sync.Mutex
	started bool
	sub     *nats.Subscription
	ctx     context.Context
}

func New(conn Conn, prefix string, voter Voter) *Bridge {
	return &Bridge{
		conn:       conn,
		prefix:     prefix,
		instanceID: uuid.New().String(),
		voter:      voter,
		ctx:        context.Background(),
	}
}

func (b *Bridge) InstanceID() string {
	return b.instanceID
}

func (b *Bridge) ViewSubject() string    { return b.prefix + ".view" }
func (b *Bridge) EventsSubject() string  { return b.prefix + ".events" }
func (b *Bridge) ActionsSubject() string { return b.prefix + ".actions" }

// Start subscribes to user actions. Votes run with ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("bridge already started")
	}
	b.ctx = ctx

	sub, err := b.conn.Subscribe(b.ActionsSubject(), b.handleAction)
	if err != nil {
		return fmt.Errorf("subscribe to actions: %w", err)
	}
	b.sub = sub
	b.started = true

	log.Info().
		Str("instance", b.instanceID).
		Str("actions", b.ActionsSubject()).
		Msg("presentation bridge started")
	return nil
}

// Stop unsubscribes from user actions.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	sub := b.sub
	b.sub = nil
	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe from actions: %w", err)
	}
	return nil
}

// OnView publishes a view change.
func (b *Bridge) OnView(v reconciler.View) {
	b.publish(b.ViewSubject(), "view", v)
}

// OnEvent publishes a UI event.
func (b *Bridge) OnEvent(e reconciler.UIEvent) {
	b.publish(b.EventsSubject(), string(e.Kind), e)
}

func (b *Bridge) publish(subject, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal payload")
		return
	}

	env, err := json.Marshal(Envelope{
		Instance:  b.instanceID,
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to marshal envelope")
		return
	}

	err = b.conn.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    env,
		Header: nats.Header{
			"Instance-ID": []string{b.instanceID},
			"Event-Type":  []string{kind},
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish to presentation")
	}
}

func (b *Bridge) handleAction(msg *nats.Msg) {
	var action Action
	if err := json.Unmarshal(msg.Data, &action); err != nil {
		log.Debug().Err(err).Msg("dropping malformed action")
		return
	}
	side, err := models.ParseSide(action.Team)
	if err != nil {
		log.Debug().Err(err).Msg("dropping action for unknown team")
		return
	}

	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	b.voter.Vote(ctx, side)
}
