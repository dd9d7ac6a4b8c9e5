// Package relay bridges a messaging channel and a Direct Line bot.
//
// Each inbound message runs one linear chain: resolve the sender's backend
// session, forward the text and poll once for the reply, then dispatch the
// reply through the channel. Nothing runs in the background.
package relay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinyland-inc/dlrelay/pkg/bus"
	"github.com/tinyland-inc/dlrelay/pkg/channels"
	"github.com/tinyland-inc/dlrelay/pkg/logger"
	"github.com/tinyland-inc/dlrelay/pkg/session"
)

const tracerName = "github.com/tinyland-inc/dlrelay/pkg/relay"

// Stage names a step of the per-message chain.
type Stage string

const (
	StageReceived     Stage = "received"
	StageResolving    Stage = "resolving"
	StageForwarding   Stage = "forwarding"
	StageDispatching  Stage = "dispatching"
	StageAcknowledged Stage = "acknowledged"
)

// Backend is everything the relay needs from the conversational service.
type Backend interface {
	ConversationStarter
	ActivityClient
}

// Outcome reports how far a message got. Err is set only when the chain
// stopped early; a failed dispatch is reported in DispatchErr and still
// ends in StageAcknowledged.
type Outcome struct {
	Stage       Stage
	SessionID   string
	Reply       Reply
	Err         error
	DispatchErr error
}

// Failed reports whether the inbound caller should see an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Option configures a Relay.
type Option func(*Relay)

// WithTracerProvider sets the provider used for relay spans. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Relay) { r.tracer = tp.Tracer(tracerName) }
}

type Relay struct {
	store      session.Store
	resolver   *Resolver
	forwarder  *Forwarder
	dispatcher *Dispatcher
	tracer     trace.Tracer
}

func New(store session.Store, backend Backend, channel channels.Channel, opts ...Option) *Relay {
	r := &Relay{
		store:      store,
		resolver:   NewResolver(store, backend),
		forwarder:  NewForwarder(backend),
		dispatcher: NewDispatcher(channel),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sessions returns the number of senders with a backend session.
func (r *Relay) Sessions() int {
	return r.store.Len()
}

// Resolve returns the backend session for senderID, creating it if needed.
func (r *Relay) Resolve(ctx context.Context, senderID string) (string, error) {
	ctx, span := r.tracer.Start(ctx, "relay.resolve")
	defer span.End()

	handle, err := r.resolver.Resolve(ctx, senderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return "", err
	}
	span.SetAttributes(attribute.String("relay.session_id", handle))
	return handle, nil
}

// Forward sends text into the session and returns the bot's reply.
func (r *Relay) Forward(ctx context.Context, sessionID, text string) (Reply, error) {
	ctx, span := r.tracer.Start(ctx, "relay.forward", trace.WithAttributes(
		attribute.String("relay.session_id", sessionID),
	))
	defer span.End()

	reply, err := r.forwarder.Forward(ctx, sessionID, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "forward failed")
		return Reply{}, err
	}
	span.SetAttributes(attribute.String("relay.reply_kind", reply.Kind.String()))
	if reply.Err != nil {
		span.RecordError(reply.Err)
	}
	return reply, nil
}

// Dispatch sends text back to senderID through the channel.
func (r *Relay) Dispatch(ctx context.Context, senderID, text string) error {
	ctx, span := r.tracer.Start(ctx, "relay.dispatch")
	defer span.End()

	if err := r.dispatcher.Dispatch(ctx, senderID, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return err
	}
	return nil
}

// Handle runs the full chain for one inbound message.
func (r *Relay) Handle(ctx context.Context, msg bus.InboundMessage) Outcome {
	ctx, span := r.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("relay.channel", msg.Channel),
		attribute.String("relay.message_id", msg.MessageID),
	))
	defer span.End()

	out := Outcome{Stage: StageReceived}
	fields := map[string]any{
		"sender":     msg.SenderID,
		"message_id": msg.MessageID,
		"length":     len(msg.Content),
	}
	if name := msg.Metadata["profile_name"]; name != "" {
		fields["profile_name"] = name
	}
	logger.InfoCF("relay", "Message received", fields)

	out.Stage = StageResolving
	sessionID, err := r.Resolve(ctx, msg.SenderID)
	if err != nil {
		return r.abort(span, out, err, msg)
	}
	out.SessionID = sessionID

	out.Stage = StageForwarding
	reply, err := r.Forward(ctx, sessionID, msg.Content)
	if err != nil {
		return r.abort(span, out, err, msg)
	}
	out.Reply = reply
	if reply.Kind == ReplyPollFailed {
		logger.WarnCF("relay", "Reply poll failed, sending placeholder", map[string]any{
			"sender":  msg.SenderID,
			"session": sessionID,
			"error":   reply.Err.Error(),
		})
	}

	out.Stage = StageDispatching
	if err := r.Dispatch(ctx, msg.SenderID, reply.Text); err != nil {
		out.DispatchErr = err
		logger.ErrorCF("relay", "Reply dispatch failed", map[string]any{
			"sender":  msg.SenderID,
			"session": sessionID,
			"error":   err.Error(),
		})
	}

	out.Stage = StageAcknowledged
	logger.InfoCF("relay", "Message relayed", map[string]any{
		"sender":     msg.SenderID,
		"session":    sessionID,
		"reply_kind": reply.Kind.String(),
		"dispatched": out.DispatchErr == nil,
	})
	return out
}

func (r *Relay) abort(span trace.Span, out Outcome, err error, msg bus.InboundMessage) Outcome {
	out.Err = err
	span.SetStatus(codes.Error, string(out.Stage))
	logger.ErrorCF("relay", "Relay aborted", map[string]any{
		"sender": msg.SenderID,
		"stage":  string(out.Stage),
		"error":  err.Error(),
	})
	return out
}
