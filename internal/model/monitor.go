package model

// MonitorResponse is the hub snapshot served on the monitor endpoint.
type MonitorResponse struct {
	Status      string       `json:"status"`
	Connections ConnStats    `json:"connections"`
	Rooms       RoomStats    `json:"rooms"`
	Calls       CallStats    `json:"calls"`
	Clients     []ClientInfo `json:"clients"`
}

// ConnStats summarizes live connections.
type ConnStats struct {
	TotalConnections int `json:"totalConnections"`
	TotalUsers       int `json:"totalUsers"`
}

// RoomStats summarizes rooms with at least one joined connection.
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo describes a single room's live membership.
type RoomInfo struct {
	ConversationID string   `json:"conversationId"`
	MemberIDs      []string `json:"memberIds"`
	Connections    int      `json:"connections"`
}

// CallStats summarizes in-flight calls.
type CallStats struct {
	TotalActiveCalls int        `json:"totalActiveCalls"`
	CallDetails      []CallInfo `json:"callDetails"`
}

// CallInfo describes a single in-flight call.
type CallInfo struct {
	CallID         string `json:"callId"`
	ConversationID string `json:"conversationId"`
	InitiatorID    string `json:"initiatorId"`
	ReceiverID     string `json:"receiverId"`
	Status         int    `json:"status"`
	StartedAt      string `json:"startedAt,omitempty"`
}

// ClientInfo describes a single connection.
type ClientInfo struct {
	ConnectionID string   `json:"connectionId"`
	UserID       string   `json:"userId"`
	Rooms        []string `json:"rooms"`
}
