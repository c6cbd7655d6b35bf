package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mojobot/internal/domain"
	"mojobot/internal/metrics"
)

const IgnoredSelfMessage = "self-message"

// WebContextSource looks up web context for a question. Lookup returns nil
// whenever no usable context exists.
type WebContextSource interface {
	Enabled() bool
	Lookup(ctx context.Context, question string) *domain.WebContext
}

// Orchestrator runs one webhook event through filter, trigger matching and
// either the passive reaction or the answer pipeline.
type Orchestrator struct {
	identity        domain.AgentIdentity
	triggers        *TriggerMatcher
	responder       *Responder
	webContext      WebContextSource
	deliverer       domain.Deliverer
	emptyReply      string
	reactionRate    float64
	reactionTimeout time.Duration
	chance          func() float64
	logger          *slog.Logger
	tracer          trace.Tracer

	reactions sync.WaitGroup
}

type OrchestratorConfig struct {
	Identity   domain.AgentIdentity
	Triggers   *TriggerMatcher
	Responder  *Responder
	WebContext WebContextSource // nil disables augmentation
	Deliverer  domain.Deliverer
	EmptyReply string
	// ReactionRate is the probability of reacting to a message that does not
	// mention the agent.
	ReactionRate    float64
	ReactionTimeout time.Duration
	// Chance returns a value in [0, 1). Defaults to math/rand/v2.
	Chance func() float64
	Logger *slog.Logger
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.EmptyReply == "" {
		cfg.EmptyReply = "Hey! You mentioned me but didn't ask anything. How can I help? 🤔"
	}
	if cfg.ReactionTimeout <= 0 {
		cfg.ReactionTimeout = 15 * time.Second
	}
	if cfg.Chance == nil {
		cfg.Chance = rand.Float64
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		identity:        cfg.Identity,
		triggers:        cfg.Triggers,
		responder:       cfg.Responder,
		webContext:      cfg.WebContext,
		deliverer:       cfg.Deliverer,
		emptyReply:      cfg.EmptyReply,
		reactionRate:    cfg.ReactionRate,
		reactionTimeout: cfg.ReactionTimeout,
		chance:          cfg.Chance,
		logger:          cfg.Logger,
		tracer:          otel.Tracer("mojobot/agent"),
	}
}

func ptr[T any](v T) *T { return &v }

// HandleEvent processes one decoded webhook event. A non-nil error means the
// delivery failed and must be answered with a server error.
func (o *Orchestrator) HandleEvent(ctx context.Context, ev *domain.InboundEvent) (ack domain.Ack, err error) {
	ctx, span := o.tracer.Start(ctx, "agent.handle_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", ev.Type),
		attribute.String("channel_type", ev.ChannelType),
		attribute.String("channel_id", ev.ChannelID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "event failed")
			metrics.Event("failed").Inc()
		}
	}()
	defer o.recoverInto(&err)

	if ev.Type != domain.EventMessageNew {
		metrics.Event("ignored").Inc()
		return domain.Ack{Received: true}, nil
	}
	if o.identity.Authored(ev) {
		metrics.Event("self").Inc()
		return domain.Ack{Received: true, Ignored: IgnoredSelfMessage}, nil
	}

	q, triggered := o.triggers.Match(ev.MessageText())
	span.SetAttributes(attribute.Bool("triggered", triggered))
	if !triggered {
		o.maybeReact(ctx, ev)
		metrics.Event("passive").Inc()
		return domain.Ack{Received: true, Triggered: ptr(false)}, nil
	}

	start := time.Now()
	defer metrics.PipelineLatency.Since(start)

	log := o.logger.With(
		"channel_type", ev.ChannelType,
		"channel_id", ev.ChannelID,
		"user_id", ev.AuthorID(),
		"message_id", ev.MessageID(),
	)

	if q.Empty() {
		log.Info("mentioned without a question")
		if err := o.deliverer.SendMessage(ctx, ev.ChannelType, ev.ChannelID, o.emptyReply); err != nil {
			return domain.Ack{}, fmt.Errorf("send empty-question reply: %w", err)
		}
		metrics.Event("empty").Inc()
		return domain.Ack{Received: true, Triggered: ptr(true), Empty: true}, nil
	}

	log.Info("answering mention", "question_len", len(q.Question))

	wc := o.lookupContext(ctx, q.Question)
	webSearched := wc != nil
	span.SetAttributes(attribute.Bool("web_searched", webSearched))

	reply, err := o.responder.Respond(ctx, q.Question, ev.AuthorName(), wc)
	if err != nil {
		return domain.Ack{}, err
	}
	if err := o.deliverer.SendMessage(ctx, ev.ChannelType, ev.ChannelID, reply.Text); err != nil {
		return domain.Ack{}, fmt.Errorf("send reply: %w", err)
	}

	log.Info("reply sent", "web_searched", webSearched, "reply_len", len(reply.Text))
	metrics.Event("answered").Inc()
	return domain.Ack{Received: true, Triggered: ptr(true), WebSearched: ptr(webSearched)}, nil
}

func (o *Orchestrator) lookupContext(ctx context.Context, question string) *domain.WebContext {
	if o.webContext == nil || !o.webContext.Enabled() || !NeedsWebSearch(question) {
		return nil
	}
	return o.webContext.Lookup(ctx, question)
}

// maybeReact fires at most one reaction for a passive message, off the request
// path. The reaction outlives the request but not the timeout.
func (o *Orchestrator) maybeReact(ctx context.Context, ev *domain.InboundEvent) {
	messageID := ev.MessageID()
	if messageID == "" || o.reactionRate <= 0 {
		return
	}
	if o.chance() >= o.reactionRate {
		return
	}

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.reactionTimeout)
	o.reactions.Add(1)
	metrics.ReactionsPending.Inc()
	go func() {
		defer o.reactions.Done()
		defer metrics.ReactionsPending.Dec()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("reaction panicked", "message_id", messageID, "panic", r)
			}
		}()

		if err := o.deliverer.SendReaction(detached, ev.ChannelType, ev.ChannelID, messageID); err != nil {
			o.logger.Warn("reaction failed", "channel_id", ev.ChannelID, "message_id", messageID, "err", err)
			return
		}
		o.logger.Debug("reaction sent", "channel_id", ev.ChannelID, "message_id", messageID)
	}()
}

// Drain waits for in-flight reactions, or until ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.reactions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("reactions still in flight"), ctx.Err())
	}
}

// DryRun is the outcome of answering a message without delivering it.
type DryRun struct {
	Triggered   bool
	Question    string
	WebSearched bool
	Context     *domain.WebContext
	Reply       string
}

// recoverInto turns a panic in the pipeline into an error on *err.
func (o *Orchestrator) recoverInto(err *error) {
	if rec := recover(); rec != nil {
		o.logger.Error("event pipeline panicked", "panic", rec, "stack", string(debug.Stack()))
		*err = fmt.Errorf("pipeline panic: %v", rec)
	}
}

// Preview runs trigger matching, web context and generation for text as if
// asker had posted it, but sends nothing.
func (o *Orchestrator) Preview(ctx context.Context, text, asker string) (out DryRun, err error) {
	defer o.recoverInto(&err)
	q, triggered := o.triggers.Match(text)
	if !triggered {
		return DryRun{}, nil
	}
	out = DryRun{Triggered: true, Question: q.Question}
	if q.Empty() {
		out.Reply = o.emptyReply
		return out, nil
	}
	out.Context = o.lookupContext(ctx, q.Question)
	out.WebSearched = out.Context != nil
	reply, err := o.responder.Respond(ctx, q.Question, asker, out.Context)
	if err != nil {
		return out, err
	}
	out.Reply = reply.Text
	return out, nil
}
