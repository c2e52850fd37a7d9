package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
	"github.com/FillingVoid7/PeerAid-sub001/internal/observability"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]Session // roomID -> connID -> session
}

// RoomManager enforces room membership rules and drives presence. It is the
// single authorization gate: the pipeline and the call coordinator both call
// Authorize here instead of re-checking participants themselves.
type RoomManager struct {
	shards        [shardCount]*roomBucket
	registry      *Registry
	conversations repo.ConversationRepository
	logger        *zap.Logger
}

func NewRoomManager(registry *Registry, conversations repo.ConversationRepository, logger *zap.Logger) *RoomManager {
	rm := &RoomManager{
		registry:      registry,
		conversations: conversations,
		logger:        logger,
	}
	for i := 0; i < shardCount; i++ {
		rm.shards[i] = &roomBucket{rooms: make(map[string]map[string]Session)}
	}
	return rm
}

// Authorize confirms userID is the seeker or the guide of the room and
// returns the conversation. ErrRoomNotFound for unknown rooms,
// ErrNotParticipant otherwise.
func (rm *RoomManager) Authorize(ctx context.Context, userID, roomID string) (*model.Conversation, error) {
	conv, err := rm.conversations.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, repo.ErrInvalidID) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// Join records membership and announces presence to the other participant.
// The first connection of a user in a room emits user_joined; additional
// connections of the same user collapse into the existing presence.
func (rm *RoomManager) Join(ctx context.Context, s Session, roomID string) (*model.Conversation, error) {
	conv, err := rm.Authorize(ctx, s.UserID(), roomID)
	if err != nil {
		return nil, err
	}

	b := rm.shards[getShard(roomID)]
	b.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]Session)
		b.rooms[roomID] = room
	}
	_, already := room[s.ID()]
	room[s.ID()] = s
	firstOfUser := !already && !userPresentLocked(room, s.UserID(), s.ID())
	b.Unlock()

	rm.registry.MarkJoined(s, roomID)

	if firstOfUser {
		rm.Broadcast(roomID, event.NewEvent(event.EventUserJoined, model.PresenceEvent{
			UserID:         s.UserID(),
			ConversationID: roomID,
			Timestamp:      time.Now().Unix(),
		}), s.UserID())
	}

	rm.logger.Debug("room joined",
		zap.String("connection_id", s.ID()),
		zap.String("user_id", s.UserID()),
		zap.String("conversation_id", roomID),
	)
	return conv, nil
}

// Leave removes the connection from the room. Removing a non-member is a
// no-op. Returns true when this was the user's last connection in the room,
// in which case user_left was broadcast.
func (rm *RoomManager) Leave(s Session, roomID string) bool {
	b := rm.shards[getShard(roomID)]
	b.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		b.Unlock()
		return false
	}
	if _, member := room[s.ID()]; !member {
		b.Unlock()
		return false
	}
	delete(room, s.ID())
	userGone := !userPresentLocked(room, s.UserID(), "")
	if len(room) == 0 {
		delete(b.rooms, roomID)
	}
	b.Unlock()

	rm.registry.MarkLeft(s, roomID)

	if userGone {
		rm.Broadcast(roomID, event.NewEvent(event.EventUserLeft, model.PresenceEvent{
			UserID:         s.UserID(),
			ConversationID: roomID,
			Timestamp:      time.Now().Unix(),
		}), s.UserID())
	}

	rm.logger.Debug("room left",
		zap.String("connection_id", s.ID()),
		zap.String("user_id", s.UserID()),
		zap.String("conversation_id", roomID),
	)
	return userGone
}

// userPresentLocked reports whether userID still has a connection in the room
// other than skipConnID. Callers hold the bucket lock.
func userPresentLocked(room map[string]Session, userID, skipConnID string) bool {
	for connID, member := range room {
		if connID == skipConnID {
			continue
		}
		if member.UserID() == userID {
			return true
		}
	}
	return false
}

// Broadcast fans an event out to every connection currently joined to the
// room, skipping all connections of exceptUser when it is non-empty.
func (rm *RoomManager) Broadcast(roomID string, ev event.WsEvent, exceptUser string) {
	b := rm.shards[getShard(roomID)]

	// collect sessions while holding RLock, deliver without it
	b.RLock()
	room := b.rooms[roomID]
	sessions := make([]Session, 0, len(room))
	for _, s := range room {
		if exceptUser != "" && s.UserID() == exceptUser {
			continue
		}
		sessions = append(sessions, s)
	}
	b.RUnlock()

	for _, s := range sessions {
		if !s.Send(ev) {
			rm.logger.Warn("broadcast dropped, egress full or closed",
				zap.String("connection_id", s.ID()),
				zap.String("conversation_id", roomID),
				zap.String("event", ev.Event),
			)
			continue
		}
		observability.WSBroadcastTotal.WithLabelValues(ev.Event).Inc()
	}
}

// IsUserJoined reports whether the user has at least one connection in the
// room right now.
func (rm *RoomManager) IsUserJoined(roomID, userID string) bool {
	b := rm.shards[getShard(roomID)]
	b.RLock()
	defer b.RUnlock()
	return userPresentLocked(b.rooms[roomID], userID, "")
}

// Snapshot reports live rooms for the monitor endpoint.
func (rm *RoomManager) Snapshot() model.RoomStats {
	stats := model.RoomStats{RoomDetails: make([]model.RoomInfo, 0)}

	for _, b := range rm.shards {
		b.RLock()
		for roomID, room := range b.rooms {
			memberSet := make(map[string]struct{})
			for _, s := range room {
				memberSet[s.UserID()] = struct{}{}
			}
			memberIDs := make([]string, 0, len(memberSet))
			for userID := range memberSet {
				memberIDs = append(memberIDs, userID)
			}

			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				ConversationID: roomID,
				MemberIDs:      memberIDs,
				Connections:    len(room),
			})
			stats.TotalRooms++
		}
		b.RUnlock()
	}
	return stats
}
