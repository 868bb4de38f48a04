// Package event defines the envelopes exchanged with chat clients: inbound
// actions received over the WebSocket and outbound events pushed back through
// the delivery transport.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outbound event types.
const (
	TypeNewMessage    = "newMessage"
	TypeMessageStatus = "messageStatus"
	TypeTyping        = "typing"
	TypeUserOnline    = "userOnline"
	TypeUserOffline   = "userOffline"
	TypePong          = "pong"
)

// Inbound actions.
const (
	ActionSendMessage = "sendMessage"
	ActionTyping      = "typing"
	ActionMarkRead    = "markRead"
	ActionPing        = "ping"
)

// Outbound is an event pushed to clients: {type, data}.
type Outbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal renders the event to wire bytes.
func (e Outbound) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshalling %v event: %w", e.Type, err)
	}
	return data, nil
}

// Inbound is a client action received over the WebSocket: {action, data}.
type Inbound struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ParseInbound parses a client action from a JSON body. Malformed input and a
// missing action are errors; they never panic the caller.
func ParseInbound(body string) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return nil, fmt.Errorf("invalid action envelope: %w", err)
	}
	if in.Action == "" {
		return nil, fmt.Errorf("missing action")
	}
	return &in, nil
}

// Message is the payload fanned out for a newMessage event. The id is
// assigned here; persistence of the record belongs to the message store
// collaborator.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       int64  `json:"senderId"`
	RecipientID    int64  `json:"recipientId"`
	ContentType    string `json:"contentType"`
	TextContent    string `json:"textContent,omitempty"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	ReplyToID      string `json:"replyToId,omitempty"`
	CreatedAt      string `json:"createdAt"`
	Read           bool   `json:"read"`
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewMessage wraps a message payload in a newMessage event.
func NewMessage(msg Message) (Outbound, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return Outbound{}, fmt.Errorf("marshalling message payload: %w", err)
	}
	return Outbound{Type: TypeNewMessage, Data: data}, nil
}

// TypingPayload is the data of a typing event.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         int64  `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// Typing builds a typing event announcing that userID is (or stopped) typing
// in the conversation.
func Typing(conversationID string, userID int64, isTyping bool) Outbound {
	data, _ := json.Marshal(TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return Outbound{Type: TypeTyping, Data: data}
}

// StatusRead is the only message status currently emitted.
const StatusRead = "read"

// MessageStatusPayload is the data of a messageStatus event.
type MessageStatusPayload struct {
	MessageIDs []string `json:"messageIds"`
	Status     string   `json:"status"`
	ReadBy     int64    `json:"readBy"`
	ReadAt     string   `json:"readAt"`
}

// MessageStatus builds a messageStatus event reporting the messages readBy
// has read.
func MessageStatus(messageIDs []string, readBy int64, readAt time.Time) Outbound {
	data, _ := json.Marshal(MessageStatusPayload{
		MessageIDs: messageIDs,
		Status:     StatusRead,
		ReadBy:     readBy,
		ReadAt:     Timestamp(readAt),
	})
	return Outbound{Type: TypeMessageStatus, Data: data}
}

// PresencePayload is the data of userOnline and userOffline events.
type PresencePayload struct {
	UserID int64 `json:"userId"`
}

// UserOnline builds a userOnline presence event.
func UserOnline(userID int64) Outbound {
	data, _ := json.Marshal(PresencePayload{UserID: userID})
	return Outbound{Type: TypeUserOnline, Data: data}
}

// UserOffline builds a userOffline presence event.
func UserOffline(userID int64) Outbound {
	data, _ := json.Marshal(PresencePayload{UserID: userID})
	return Outbound{Type: TypeUserOffline, Data: data}
}

// Pong builds the pong reply to a client ping.
func Pong() Outbound {
	return Outbound{Type: TypePong, Data: json.RawMessage(`{}`)}
}

// Timestamp renders a time in the wire format clients expect.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
