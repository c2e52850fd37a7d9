package event

import "encoding/json"

// Client to Server events
const (
	EventAuthenticate = "authenticate"
	EventJoinRoom     = "join_room"
	EventLeaveRoom    = "leave_room"
	EventSendMessage  = "send_message"
	EventMarkRead     = "mark_read"
	EventMessageAck   = "message_ack"
	EventTyping       = "typing"
)

// Server to Client events
const (
	EventAuthenticated    = "authenticated"
	EventRoomJoined       = "room_joined"
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventMessageDelivered = "message_delivered"
	EventMessagesRead     = "messages_read"
	EventUserTyping       = "user_typing"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventError            = "error"
)

// WsEvent is the envelope for every frame in either direction. RequestId is
// echoed back on acks and errors so clients can correlate replies.
type WsEvent struct {
	Event     string          `json:"event"`
	RequestId string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(name string, payload any) WsEvent {
	raw, _ := json.Marshal(payload)
	return WsEvent{Event: name, Payload: raw}
}

// Error codes, one per failure class the protocol can surface.
const (
	CodeUnauthorized     = "unauthorized"
	CodeNotParticipant   = "not_participant"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodePersistenceError = "persistence_error"
	CodeReceiverOffline  = "receiver_offline"
	CodeInvalidState     = "invalid_state"
	CodeBadPayload       = "bad_payload"
)

// Error is the payload of an EventError frame. It rejects exactly one inbound
// event; the connection itself stays up.
type Error struct {
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
