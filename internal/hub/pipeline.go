package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

// SendInput is everything a caller supplies for one message.
type SendInput struct {
	Type     string
	Content  string
	FileURL  *string
	Duration *int
	CallID   *string
}

// Pipeline owns the append-only message log and its fan-out/ack protocol.
// All operations touching one room are serialized on that room's lock, which
// gives every member the same message order; across rooms nothing blocks.
type Pipeline struct {
	rooms         *RoomManager
	registry      *Registry
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	logger        *zap.Logger

	lockMu    sync.Mutex
	roomLocks map[string]*sync.Mutex
}

func NewPipeline(rooms *RoomManager, registry *Registry, messages repo.MessageRepository, conversations repo.ConversationRepository, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		rooms:         rooms,
		registry:      registry,
		messages:      messages,
		conversations: conversations,
		logger:        logger,
		roomLocks:     make(map[string]*sync.Mutex),
	}
}

// lockRoom takes the room's own ordering mutex: one room's persistence never
// stalls another's.
func (p *Pipeline) lockRoom(roomID string) func() {
	p.lockMu.Lock()
	mu, ok := p.roomLocks[roomID]
	if !ok {
		mu = &sync.Mutex{}
		p.roomLocks[roomID] = mu
	}
	p.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Send validates the sender, persists the message with status sent, and fans
// it out to every connection currently joined to the room, sender included
// (multi-device consistency). Persistence failures surface to the caller and
// are never silently retried here: a retry could duplicate a visible message.
func (p *Pipeline) Send(ctx context.Context, senderID, roomID string, in SendInput) (*model.Message, error) {
	conv, err := p.rooms.Authorize(ctx, senderID, roomID)
	if err != nil {
		return nil, err
	}
	if !model.IsValidMessageType(in.Type) {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrBadPayload, in.Type)
	}

	unlock := p.lockRoom(roomID)
	defer unlock()

	now := time.Now().UTC()
	msg := &model.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           in.Type,
		Body:           in.Content,
		FileURL:        in.FileURL,
		Duration:       in.Duration,
		CallID:         in.CallID,
		Status:         model.MessageStatusSent,
		ReadBy:         []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if _, err := p.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	// Preview update is best effort: the message is already durable.
	if err := p.conversations.SetLastMessage(ctx, roomID, &model.LastMessage{
		MessageID: msg.ID.Hex(),
		SenderID:  senderID,
		Type:      in.Type,
		Preview:   in.Content,
		SentAt:    now,
	}); err != nil {
		p.logger.Warn("last message preview update failed",
			zap.String("conversation_id", roomID),
			zap.Error(err),
		)
	}

	p.rooms.Broadcast(roomID, event.NewEvent(event.EventNewMessage, msg), "")
	return msg, nil
}

// Ack records that a receiving participant's device got a batch of broadcast
// messages. Affected messages advance to delivered and their senders are told
// on all of their connections.
func (p *Pipeline) Ack(ctx context.Context, ackerID, roomID string, messageIDs []string) error {
	if _, err := p.rooms.Authorize(ctx, ackerID, roomID); err != nil {
		return err
	}
	if len(messageIDs) == 0 {
		return nil
	}

	unlock := p.lockRoom(roomID)
	defer unlock()

	affected, err := p.messages.MarkDelivered(ctx, roomID, messageIDs, ackerID)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}

	now := time.Now().Unix()
	for _, msg := range affected {
		p.registry.SendToUser(msg.SenderID, event.NewEvent(event.EventMessageDelivered, model.MessageDelivered{
			MessageID:      msg.ID.Hex(),
			ConversationID: roomID,
			DeliveredTo:    ackerID,
			DeliveredAt:    now,
		}))
	}
	return nil
}

// MarkRead advances messages addressed to the reader to read and emits one
// messages_read batch per original sender. An empty id list means everything
// currently unread for this reader in this room. Re-invoking with already
// read ids changes nothing and still succeeds.
func (p *Pipeline) MarkRead(ctx context.Context, readerID, roomID string, messageIDs []string) error {
	if _, err := p.rooms.Authorize(ctx, readerID, roomID); err != nil {
		return err
	}

	unlock := p.lockRoom(roomID)
	defer unlock()

	if len(messageIDs) == 0 {
		unread, err := p.messages.UnreadIDs(ctx, roomID, readerID)
		if err != nil {
			return fmt.Errorf("unread lookup: %w", err)
		}
		if len(unread) == 0 {
			return nil
		}
		messageIDs = unread
	}

	affected, err := p.messages.MarkRead(ctx, roomID, readerID, messageIDs)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if len(affected) == 0 {
		return nil
	}

	bySender := make(map[string][]string)
	for _, msg := range affected {
		bySender[msg.SenderID] = append(bySender[msg.SenderID], msg.ID.Hex())
	}
	for senderID, ids := range bySender {
		p.registry.SendToUser(senderID, event.NewEvent(event.EventMessagesRead, model.MessagesRead{
			UserID:         readerID,
			ConversationID: roomID,
			MessageIDs:     ids,
		}))
	}
	return nil
}

// History returns one reverse-chronological page of the room's log, the
// reconciliation path for clients that missed or double-received an event.
func (p *Pipeline) History(ctx context.Context, roomID string, page int64) (*db.PaginatedResult[model.Message], error) {
	return p.messages.History(ctx, roomID, page)
}
