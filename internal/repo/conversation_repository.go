package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

type conversationRepository struct {
	conversations *db.Repository[model.Conversation]
	logger        *zap.Logger
}

// ConversationRepository is the read side of room membership. The two fixed
// participants of every conversation come from here; this process never
// creates or deletes conversations (that is the profile/matching service).
type ConversationRepository interface {
	GetRoom(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListActive(ctx context.Context) ([]model.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID string, lm *model.LastMessage) error
}

func NewConversationRepository(conversations *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		conversations: conversations,
		logger:        logger,
	}
}

// GetRoom fetches a conversation by id. Returns ErrNotFound for unknown ids.
func (r *conversationRepository) GetRoom(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", conversationID).Build()
	if len(filter) == 0 {
		// id did not parse as an ObjectID
		return nil, ErrNotFound
	}

	conversation, err := r.conversations.FindOne(ctx, filter)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.logger.Debug("conversation not found", zap.String("conversation_id", conversationID))
			return nil, ErrNotFound
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// ListActive returns active conversations, most recently active first. The
// "recently active bumps to top" ordering lives here, at the conversation
// list, never inside per-room message history.
func (r *conversationRepository) ListActive(ctx context.Context) ([]model.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.M{"last_message_at": -1})
	conversations, err := r.conversations.FindAll(ctx, db.NewFilter().Eq("is_active", true).Build(), opts)
	if err != nil {
		r.logger.Error("failed to list conversations", zap.Error(err))
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	r.logger.Debug("conversations listed", zap.Int("count", len(conversations)))
	return conversations, nil
}

// SetLastMessage updates the preview and activity timestamp after a send.
func (r *conversationRepository) SetLastMessage(ctx context.Context, conversationID string, lm *model.LastMessage) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("_id", conversationID).Build()
	_, err := r.conversations.Update(ctx, filter, bson.M{
		"last_message":    lm,
		"last_message_at": lm.SentAt,
		"updated_at":      time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to update last message",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to update last message: %w", err)
	}
	return nil
}
