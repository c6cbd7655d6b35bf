package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mojobot/internal/domain"
	"mojobot/internal/metrics"
)

// Delivery posts into conversations through short-lived chat sessions. Every
// call opens its own session and closes it before returning, whatever happened.
type Delivery struct {
	connector domain.ChatConnector
	identity  domain.AgentIdentity
	reactions []string
	pick      func(n int) int
	logger    *slog.Logger
}

type DeliveryConfig struct {
	Connector domain.ChatConnector
	Identity  domain.AgentIdentity
	Reactions []string
	// Pick returns an index in [0, n). Defaults to math/rand/v2.
	Pick   func(n int) int
	Logger *slog.Logger
}

func NewDelivery(cfg DeliveryConfig) *Delivery {
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Delivery{
		connector: cfg.Connector,
		identity:  cfg.Identity,
		reactions: cfg.Reactions,
		pick:      cfg.Pick,
		logger:    cfg.Logger,
	}
}

var errNoReactions = errors.New("no reaction types configured")

// SendMessage posts text into the channel as the agent.
func (d *Delivery) SendMessage(ctx context.Context, channelType, channelID, text string) error {
	err := d.withChannel(ctx, "message", channelType, channelID, func(ch domain.ChatChannel) error {
		return ch.SendMessage(ctx, text)
	})
	record("message", err)
	return err
}

// SendReaction adds one randomly chosen reaction to messageID.
func (d *Delivery) SendReaction(ctx context.Context, channelType, channelID, messageID string) error {
	if len(d.reactions) == 0 {
		return errNoReactions
	}
	reactionType := d.reactions[d.pick(len(d.reactions))]
	err := d.withChannel(ctx, "reaction", channelType, channelID, func(ch domain.ChatChannel) error {
		return ch.SendReaction(ctx, messageID, reactionType)
	})
	record("reaction", err)
	return err
}

// withChannel connects, watches the channel, runs fn and always disconnects.
func (d *Delivery) withChannel(ctx context.Context, kind, channelType, channelID string, fn func(domain.ChatChannel) error) (err error) {
	ctx, span := otel.Tracer("mojobot/channel").Start(ctx, "delivery."+kind)
	defer span.End()
	span.SetAttributes(
		attribute.String("channel_type", channelType),
		attribute.String("channel_id", channelID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, kind+" delivery failed")
		}
	}()

	session, err := d.connector.Connect(ctx, d.identity)
	if err != nil {
		return fmt.Errorf("connect as %s: %w", d.identity.ID, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			d.logger.Warn("chat session close failed", "channel_id", channelID, "err", cerr)
		}
	}()

	ch := session.Channel(channelType, channelID)
	if err := ch.Watch(ctx); err != nil {
		return err
	}
	return fn(ch)
}

func record(kind string, err error) {
	if err != nil {
		metrics.Delivery(kind, "error").Inc()
		return
	}
	metrics.Delivery(kind, "ok").Inc()
}
