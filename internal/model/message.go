package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message delivery states. Transitions are monotonic: sent -> delivered ->
// read, never backward.
const (
	MessageStatusSent      = 1
	MessageStatusDelivered = 2
	MessageStatusRead      = 3
)

// Message types
const (
	MessageTypeText            = "text"
	MessageTypeImage           = "image"
	MessageTypeAudio           = "audio"
	MessageTypeSystem          = "system"
	MessageTypeAudioCallInvite = "audio-call-invite"
	MessageTypeAudioCallAccept = "audio-call-accept"
	MessageTypeAudioCallReject = "audio-call-reject"
)

// Message represents a chat message document. Messages are append-only per
// conversation; only status and readBy are ever mutated.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	SenderID       string             `json:"senderId" bson:"sender_id"`
	Type           string             `json:"type" bson:"type"`
	Body           string             `json:"body" bson:"body"`
	FileURL        *string            `json:"fileUrl,omitempty" bson:"file_url,omitempty"`
	Duration       *int               `json:"duration,omitempty" bson:"duration,omitempty"`
	Status         int                `json:"status" bson:"status"`
	ReadBy         []string           `json:"readBy" bson:"read_by"`
	CallID         *string            `json:"callId,omitempty" bson:"call_id,omitempty"`
	CreatedAt      time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt      time.Time          `json:"updatedAt" bson:"updated_at"`
}

// IsValidMessageType reports whether t is one of the supported message types.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeSystem,
		MessageTypeAudioCallInvite, MessageTypeAudioCallAccept, MessageTypeAudioCallReject:
		return true
	default:
		return false
	}
}

// SendMessagePayload is the client payload of a send_message event.
type SendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Type           string  `json:"type"`
	Content        string  `json:"content"`
	FileURL        *string `json:"fileUrl,omitempty"`
	Duration       *int    `json:"duration,omitempty"`
}

// MessageSentAck is returned to the sending connection once the message is
// persisted.
type MessageSentAck struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

// MarkReadPayload is the client payload of a mark_read event. An empty
// MessageIDs slice means "everything currently unread for me in this room".
type MarkReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds,omitempty"`
}

// MessageAckPayload acknowledges receipt of broadcast messages.
type MessageAckPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}
