package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

const historyPageSize = 15

type messageRepository struct {
	messages *db.Repository[model.Message]
	logger   *zap.Logger
}

// MessageRepository is the durable side of the message pipeline. Messages are
// append-only; only status and read_by are ever updated, and both updates
// carry a monotonic guard so a read message can never fall back to delivered
// or sent.
type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	History(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error)
	MarkDelivered(ctx context.Context, conversationID string, messageIDs []string, ackedBy string) ([]model.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]model.Message, error)
	UnreadIDs(ctx context.Context, conversationID, readerID string) ([]string, error)
}

func NewMessageRepository(messages *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		messages: messages,
		logger:   logger,
	}
}

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationID.IsZero() {
		return "", ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.messages.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
				msg.ID = oid
			}

			m.logger.Info("message inserted",
				zap.String("message_id", insertedID),
				zap.String("conversation_id", msg.ConversationID.Hex()),
				zap.String("type", msg.Type),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID.Hex()),
	)
	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// History returns one reverse-chronological page ordered by creation time.
func (m *messageRepository) History(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if conversationID == "" {
		return nil, ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().ObjectID("conversation_id", conversationID).Build()

	result, err := m.messages.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: historyPageSize,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		m.logger.Error("history read failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID),
		)
		return nil, fmt.Errorf("history read failed: %w", err)
	}

	m.logger.Debug("history page fetched",
		zap.String("conversation_id", conversationID),
		zap.Int64("page", result.Page),
		zap.Int("count", len(result.Data)),
	)
	return result, nil
}

// MarkDelivered advances messages authored by the other participant from
// sent to delivered and returns the affected documents so the caller can
// notify each sender.
func (m *messageRepository) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string, ackedBy string) ([]model.Message, error) {
	affected, filter, err := m.findEligible(ctx, conversationID, messageIDs, ackedBy, model.MessageStatusDelivered)
	if err != nil || len(affected) == 0 {
		return affected, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err = m.messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"status":     model.MessageStatusDelivered,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return nil, fmt.Errorf("mark delivered failed: %w", err)
	}
	return affected, nil
}

// MarkRead advances messages authored by someone other than the reader to
// read and records the reader in read_by. Re-invoking with already-read ids
// matches nothing and returns an empty slice, which keeps the bulk form
// idempotent.
func (m *messageRepository) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]model.Message, error) {
	affected, filter, err := m.findEligible(ctx, conversationID, messageIDs, readerID, model.MessageStatusRead)
	if err != nil || len(affected) == 0 {
		return affected, err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	_, err = m.messages.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{
			"status":     model.MessageStatusRead,
			"updated_at": time.Now().UTC(),
		},
		"$addToSet": bson.M{"read_by": readerID},
	})
	if err != nil {
		return nil, fmt.Errorf("mark read failed: %w", err)
	}
	return affected, nil
}

// UnreadIDs lists ids of messages addressed to the reader that are not yet
// read, for the empty mark_read form.
func (m *messageRepository) UnreadIDs(ctx context.Context, conversationID, readerID string) ([]string, error) {
	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Ne("sender_id", readerID).
		Lt("status", model.MessageStatusRead).
		Build()

	msgs, err := m.messages.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("unread lookup failed: %w", err)
	}

	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.ID.Hex())
	}
	return ids, nil
}

// findEligible resolves the messages a status advance would touch: in the
// room, authored by someone other than userID, and currently below the target
// status.
func (m *messageRepository) findEligible(ctx context.Context, conversationID string, messageIDs []string, userID string, targetStatus int) ([]model.Message, bson.M, error) {
	if conversationID == "" {
		return nil, nil, ErrInvalidID
	}

	objectIDs := make([]primitive.ObjectID, 0, len(messageIDs))
	for _, id := range messageIDs {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		objectIDs = append(objectIDs, oid)
	}

	builder := db.NewFilter().
		ObjectID("conversation_id", conversationID).
		Ne("sender_id", userID).
		Lt("status", targetStatus)
	if len(objectIDs) > 0 {
		builder.In("_id", objectIDs)
	}
	filter := builder.Build()

	readCtx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	affected, err := m.messages.FindAll(readCtx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("eligibility lookup failed: %w", err)
	}
	return affected, filter, nil
}
