package model

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudioCall represents a call document. Signaling payloads are opaque to this
// layer: the first payload from each party is kept whole, everything after
// that accumulates as candidates.
type AudioCall struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CallID          string             `json:"callId" bson:"call_id"`
	ConversationID  primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	InitiatorID     string             `json:"initiatorId" bson:"initiator_id"`
	ReceiverID      string             `json:"receiverId" bson:"receiver_id"`
	Status          int                `json:"status" bson:"status"`
	InitiatorSignal json.RawMessage    `json:"initiatorSignal,omitempty" bson:"initiator_signal,omitempty"`
	ReceiverSignal  json.RawMessage    `json:"receiverSignal,omitempty" bson:"receiver_signal,omitempty"`
	Candidates      []json.RawMessage  `json:"candidates" bson:"candidates"`
	StartedAt       *time.Time         `json:"startedAt,omitempty" bson:"started_at,omitempty"`
	EndedAt         *time.Time         `json:"endedAt,omitempty" bson:"ended_at,omitempty"`
	Duration        int                `json:"duration" bson:"duration"`
	CreatedAt       time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updatedAt" bson:"updated_at"`
}

// -----------------------------------------------------------------
// WebSocket Event Payloads - Client to Server
// -----------------------------------------------------------------

// CallInitiatePayload is sent by the initiator to start a call.
type CallInitiatePayload struct {
	ConversationID string          `json:"conversationId"`
	Signal         json.RawMessage `json:"signal,omitempty"` // initial offer, opaque
}

// CallSignalPayload relays an offer, answer or network-path candidate.
type CallSignalPayload struct {
	CallID string          `json:"callId"`
	Signal json.RawMessage `json:"signal"`
}

// CallControlPayload covers accept, reject, cancel and end, which all
// address a call by id.
type CallControlPayload struct {
	CallID string `json:"callId"`
}

// -----------------------------------------------------------------
// WebSocket Event Payloads - Server to Client
// -----------------------------------------------------------------

// CallInitiatedAck is returned to the initiator with the new call id.
type CallInitiatedAck struct {
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
}

// CallIncomingEvent is sent to the receiver when a call starts ringing.
type CallIncomingEvent struct {
	CallID         string          `json:"callId"`
	ConversationID string          `json:"conversationId"`
	InitiatorID    string          `json:"initiatorId"`
	Signal         json.RawMessage `json:"signal,omitempty"`
	Timeout        int             `json:"timeout"` // seconds until missed
	Timestamp      int64           `json:"timestamp"`
}

// CallSignalEvent forwards a relayed payload to the other party.
type CallSignalEvent struct {
	CallID     string          `json:"callId"`
	FromUserID string          `json:"fromUserId"`
	Signal     json.RawMessage `json:"signal"`
	Timestamp  int64           `json:"timestamp"`
}

// CallStateEvent announces a lifecycle transition (accepted, rejected,
// cancelled, missed, ended) to the party that did not cause it.
type CallStateEvent struct {
	CallID    string `json:"callId"`
	Status    int    `json:"status"`
	ByUserID  string `json:"byUserId,omitempty"`
	Duration  int    `json:"duration,omitempty"` // seconds, ended calls only
	Timestamp int64  `json:"timestamp"`
}
