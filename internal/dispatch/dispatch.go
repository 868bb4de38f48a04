// Package dispatch interprets inbound client actions and turns each into
// fanout instructions and registry mutations. Dispatching is stateless per
// action; malformed input yields a typed rejection, never a panic or error.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivossos/growzone-realtime/internal/event"
	"github.com/ivossos/growzone-realtime/internal/fanout"
	"github.com/ivossos/growzone-realtime/internal/registry"
	"github.com/ivossos/growzone-realtime/internal/transport"
)

// Rejection reasons, machine-readable.
const (
	ReasonInvalidJSON       = "invalid_json"
	ReasonUnknownAction     = "unknown_action"
	ReasonMissingRecipient  = "missing_recipient_id"
	ReasonMissingIsTyping   = "missing_is_typing"
	ReasonMissingMessageIDs = "missing_message_ids"
	ReasonMissingSender     = "missing_sender_id"
	ReasonUnknownConnection = "unknown_connection"
	ReasonPersistFailed     = "persist_failed"
)

// Result is the outcome of dispatching one inbound action. Reason is set
// only when the action was rejected; Report covers any fanout performed on
// the action's behalf.
type Result struct {
	OK     bool
	Reason string
	Report fanout.Report
}

func rejected(reason string) Result {
	return Result{Reason: reason}
}

// Toucher is the registry mutation the dispatcher needs (heartbeats).
type Toucher interface {
	Touch(ctx context.Context, connectionID string) error
}

// Deliverer is the fanout surface the dispatcher drives.
type Deliverer interface {
	DeliverToUser(ctx context.Context, userID int64, ev event.Outbound) (fanout.Report, error)
	DeliverToConnection(ctx context.Context, conn registry.Connection, ev event.Outbound) (transport.Outcome, error)
}

// MessageStore persists a message record durably. The schema beyond the
// message payload belongs to the collaborator.
type MessageStore interface {
	Save(ctx context.Context, msg event.Message) error
}

// NopStore skips persistence, preserving fanout-only behavior for
// deployments where the REST tier owns message durability.
type NopStore struct{}

func (NopStore) Save(context.Context, event.Message) error { return nil }

// Dispatcher routes inbound actions for one connection at a time.
type Dispatcher struct {
	Registry Toucher
	Fanout   Deliverer
	Store    MessageStore
	Logger   zerolog.Logger

	// now is overridable in tests
	Now func() time.Time
}

// Dispatch parses the action body and applies it on behalf of the sending
// connection. Validation failures reject without side effects: zero fanout
// attempts, zero registry mutations.
func (d *Dispatcher) Dispatch(ctx context.Context, sender registry.Connection, body string) Result {
	in, err := event.ParseInbound(body)
	if err != nil {
		d.Logger.Warn().Err(err).Str("connection_id", sender.ConnectionID).Msg("invalid action")
		return rejected(ReasonInvalidJSON)
	}

	logger := d.Logger.With().
		Str("connection_id", sender.ConnectionID).
		Int64("user_id", sender.UserID).
		Str("action", in.Action).
		Logger()

	switch in.Action {
	case event.ActionSendMessage:
		return d.sendMessage(ctx, logger, sender, in.Data)
	case event.ActionTyping:
		return d.typing(ctx, logger, sender, in.Data)
	case event.ActionMarkRead:
		return d.markRead(ctx, logger, sender, in.Data)
	case event.ActionPing:
		return d.ping(ctx, logger, sender)
	default:
		logger.Warn().Msg("unknown action")
		return rejected(ReasonUnknownAction)
	}
}

// unmarshalPayload treats an absent data object as empty so that missing
// fields surface as field-level rejections rather than JSON errors.
func unmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	RecipientID    int64  `json:"recipientId"`
	ContentType    string `json:"contentType"`
	TextContent    string `json:"textContent"`
	MediaURL       string `json:"mediaUrl"`
	ReplyToID      string `json:"replyToId"`
}

func (d *Dispatcher) sendMessage(ctx context.Context, logger zerolog.Logger, sender registry.Connection, data json.RawMessage) Result {
	var payload sendMessagePayload
	if err := unmarshalPayload(data, &payload); err != nil {
		return rejected(ReasonInvalidJSON)
	}
	if payload.RecipientID == 0 {
		return rejected(ReasonMissingRecipient)
	}

	contentType := payload.ContentType
	if contentType == "" {
		contentType = "text"
	}

	msg := event.Message{
		ID:             event.NewMessageID(),
		ConversationID: payload.ConversationID,
		SenderID:       sender.UserID,
		RecipientID:    payload.RecipientID,
		ContentType:    contentType,
		TextContent:    payload.TextContent,
		MediaURL:       payload.MediaURL,
		ReplyToID:      payload.ReplyToID,
		CreatedAt:      event.Timestamp(d.now()),
	}

	// Persist before fanout: a recipient never sees a message that could
	// subsequently be lost.
	if err := d.Store.Save(ctx, msg); err != nil {
		logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to persist message")
		return rejected(ReasonPersistFailed)
	}

	ev, err := event.NewMessage(msg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build newMessage event")
		return rejected(ReasonInvalidJSON)
	}

	report, err := d.Fanout.DeliverToUser(ctx, payload.RecipientID, ev)
	if err != nil {
		logger.Error().Err(err).Msg("fanout failed")
	}
	logger.Info().
		Str("message_id", msg.ID).
		Int("delivered", report.Delivered).
		Int("attempted", report.Attempted).
		Msg("message dispatched")
	return Result{OK: true, Report: report}
}

type typingPayload struct {
	ConversationID string `json:"conversationId"`
	RecipientID    int64  `json:"recipientId"`
	IsTyping       *bool  `json:"isTyping"`
}

func (d *Dispatcher) typing(ctx context.Context, logger zerolog.Logger, sender registry.Connection, data json.RawMessage) Result {
	var payload typingPayload
	if err := unmarshalPayload(data, &payload); err != nil {
		return rejected(ReasonInvalidJSON)
	}
	if payload.RecipientID == 0 {
		return rejected(ReasonMissingRecipient)
	}
	if payload.IsTyping == nil {
		return rejected(ReasonMissingIsTyping)
	}

	ev := event.Typing(payload.ConversationID, sender.UserID, *payload.IsTyping)
	report, err := d.Fanout.DeliverToUser(ctx, payload.RecipientID, ev)
	if err != nil {
		logger.Error().Err(err).Msg("fanout failed")
	}
	return Result{OK: true, Report: report}
}

type markReadPayload struct {
	MessageIDs []string `json:"messageIds"`
	SenderID   int64    `json:"senderId"`
}

func (d *Dispatcher) markRead(ctx context.Context, logger zerolog.Logger, sender registry.Connection, data json.RawMessage) Result {
	var payload markReadPayload
	if err := unmarshalPayload(data, &payload); err != nil {
		return rejected(ReasonInvalidJSON)
	}
	if len(payload.MessageIDs) == 0 {
		return rejected(ReasonMissingMessageIDs)
	}
	if payload.SenderID == 0 {
		return rejected(ReasonMissingSender)
	}

	// Durable read-state lives with the message store collaborator; this
	// core only notifies the original sender's devices.
	ev := event.MessageStatus(payload.MessageIDs, sender.UserID, d.now())
	report, err := d.Fanout.DeliverToUser(ctx, payload.SenderID, ev)
	if err != nil {
		logger.Error().Err(err).Msg("fanout failed")
	}
	return Result{OK: true, Report: report}
}

func (d *Dispatcher) ping(ctx context.Context, logger zerolog.Logger, sender registry.Connection) Result {
	if err := d.Registry.Touch(ctx, sender.ConnectionID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			logger.Warn().Msg("ping from unknown connection")
			return rejected(ReasonUnknownConnection)
		}
		logger.Error().Err(err).Msg("failed to record heartbeat")
		// heartbeat write failed but the link is live; still answer
	}

	// pong goes back to the originating connection only, never fanned out
	outcome, err := d.Fanout.DeliverToConnection(ctx, sender, event.Pong())
	if err != nil || outcome != transport.Delivered {
		logger.Warn().Err(err).Stringer("outcome", outcome).Msg("pong not delivered")
	}
	report := fanout.Report{Attempted: 1}
	if outcome == transport.Delivered {
		report.Delivered = 1
	}
	return Result{OK: true, Report: report}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
