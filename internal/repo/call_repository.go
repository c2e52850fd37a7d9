package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

type callRepository struct {
	calls  *db.Repository[model.AudioCall]
	logger *zap.Logger
}

// CallRepository persists the call lifecycle. Signaling payloads are stored
// verbatim, never parsed.
type CallRepository interface {
	Insert(ctx context.Context, call *model.AudioCall) error
	SetStatus(ctx context.Context, callID string, status int) error
	MarkOngoing(ctx context.Context, callID string, startedAt time.Time) error
	MarkEnded(ctx context.Context, callID string, status int, endedAt time.Time, duration int) error
	SetReceiverSignal(ctx context.Context, callID string, payload json.RawMessage) error
	SetInitiatorSignal(ctx context.Context, callID string, payload json.RawMessage) error
	AddCandidate(ctx context.Context, callID string, payload json.RawMessage) error
}

func NewCallRepository(calls *db.Repository[model.AudioCall], logger *zap.Logger) CallRepository {
	return &callRepository{
		calls:  calls,
		logger: logger,
	}
}

func (r *callRepository) Insert(ctx context.Context, call *model.AudioCall) error {
	if call == nil || call.CallID == "" {
		return ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		_, err := r.calls.Create(ctx, *call)
		if err == nil {
			r.logger.Info("call record created",
				zap.String("call_id", call.CallID),
				zap.String("conversation_id", call.ConversationID.Hex()),
				zap.String("initiator_id", call.InitiatorID),
			)
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	r.logger.Error("failed to insert call record",
		zap.Error(lastErr),
		zap.String("call_id", call.CallID),
	)
	return fmt.Errorf("insert call failed: %w", lastErr)
}

func (r *callRepository) SetStatus(ctx context.Context, callID string, status int) error {
	return r.update(ctx, callID, bson.M{"$set": bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}})
}

func (r *callRepository) MarkOngoing(ctx context.Context, callID string, startedAt time.Time) error {
	return r.update(ctx, callID, bson.M{"$set": bson.M{
		"status":     event.CallStatusOngoing,
		"started_at": startedAt,
		"updated_at": time.Now().UTC(),
	}})
}

func (r *callRepository) MarkEnded(ctx context.Context, callID string, status int, endedAt time.Time, duration int) error {
	return r.update(ctx, callID, bson.M{"$set": bson.M{
		"status":     status,
		"ended_at":   endedAt,
		"duration":   duration,
		"updated_at": time.Now().UTC(),
	}})
}

func (r *callRepository) SetInitiatorSignal(ctx context.Context, callID string, payload json.RawMessage) error {
	return r.update(ctx, callID, bson.M{"$set": bson.M{
		"initiator_signal": payload,
		"updated_at":       time.Now().UTC(),
	}})
}

func (r *callRepository) SetReceiverSignal(ctx context.Context, callID string, payload json.RawMessage) error {
	return r.update(ctx, callID, bson.M{"$set": bson.M{
		"receiver_signal": payload,
		"updated_at":      time.Now().UTC(),
	}})
}

func (r *callRepository) AddCandidate(ctx context.Context, callID string, payload json.RawMessage) error {
	return r.update(ctx, callID, bson.M{
		"$push": bson.M{"candidates": payload},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
}

func (r *callRepository) update(ctx context.Context, callID string, update bson.M) error {
	if callID == "" {
		return ErrInvalidID
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.calls.UpdateRaw(ctx, db.NewFilter().Eq("call_id", callID).Build(), update)
	if err != nil {
		r.logger.Error("call update failed", zap.String("call_id", callID), zap.Error(err))
		return fmt.Errorf("call update failed: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
