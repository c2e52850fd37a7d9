package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation represents a two-party room document. Every conversation has
// exactly two fixed participants: the seeker and the guide.
type Conversation struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SeekerID      string             `json:"seekerId" bson:"seeker_id"`
	GuideID       string             `json:"guideId" bson:"guide_id"`
	IsActive      bool               `json:"isActive" bson:"is_active"`
	LastMessage   *LastMessage       `json:"lastMessage" bson:"last_message"`
	LastMessageAt time.Time          `json:"lastMessageAt" bson:"last_message_at"`
	CreatedAt     time.Time          `json:"createdAt" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updated_at"`
}

// LastMessage stores the most recent message preview on the conversation.
type LastMessage struct {
	MessageID string    `json:"messageId" bson:"message_id"`
	SenderID  string    `json:"senderId" bson:"sender_id"`
	Type      string    `json:"type" bson:"type"`
	Preview   string    `json:"preview" bson:"preview"`
	SentAt    time.Time `json:"sentAt" bson:"sent_at"`
}

// HasParticipant reports whether userID is the seeker or the guide.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.SeekerID || userID == c.GuideID
}

// OtherParticipant returns the participant that is not userID. The empty
// string means userID is not a participant at all.
func (c *Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.SeekerID:
		return c.GuideID
	case c.GuideID:
		return c.SeekerID
	default:
		return ""
	}
}
