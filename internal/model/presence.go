package model

// TypingPayload is the client payload of a typing event.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// TypingIndicator is broadcast to the other room members. Pure ephemeral
// signal, never persisted.
type TypingIndicator struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// PresenceEvent announces a user joining or leaving a room.
type PresenceEvent struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Timestamp      int64  `json:"timestamp"`
}

// RoomPayload addresses a room by id (join_room, leave_room).
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// RoomJoinedEvent is returned to the joining connection with enough history
// to render the room without a second call.
type RoomJoinedEvent struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
	Page           int64     `json:"page"`
	TotalPages     int64     `json:"totalPages"`
}

// AuthenticatePayload carries the verified user id supplied by the upstream
// auth layer.
type AuthenticatePayload struct {
	UserID string `json:"userId"`
}

// MessageDelivered notifies the original sender that one of their messages
// reached the other participant.
type MessageDelivered struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	DeliveredTo    string `json:"deliveredTo"`
	DeliveredAt    int64  `json:"deliveredAt"`
}

// MessagesRead notifies the original sender of a batch of read receipts.
type MessagesRead struct {
	UserID         string   `json:"userId"`
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}
