package hub

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

// typingTTL is the debounce window: a typing=true signal with no renewal
// auto-expires into a stopped-typing broadcast after this long.
const typingTTL = 3 * time.Second

// TypingTracker owns the ephemeral typing state per (user, room) pair.
// Nothing here is persisted or acknowledged; every renewal resets the expiry
// window. Timers racing a renewal are harmless: whichever broadcast lands
// last expresses current truth.
type TypingTracker struct {
	rooms  *RoomManager
	logger *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer // userID + "|" + roomID
}

func NewTypingTracker(rooms *RoomManager, logger *zap.Logger) *TypingTracker {
	return &TypingTracker{
		rooms:  rooms,
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

func typingKey(userID, roomID string) string {
	return userID + "|" + roomID
}

// SetTyping broadcasts the signal to the other room members and, for
// typing=true, schedules the automatic stop unless renewed.
func (t *TypingTracker) SetTyping(userID, roomID string, isTyping bool) {
	t.rooms.Broadcast(roomID, event.NewEvent(event.EventUserTyping, model.TypingIndicator{
		UserID:         userID,
		ConversationID: roomID,
		IsTyping:       isTyping,
	}), userID)

	key := typingKey(userID, roomID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
	if !isTyping {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(typingTTL, func() {
		t.mu.Lock()
		// A renewal may have replaced this timer; only the current one expires.
		if t.timers[key] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, key)
		t.mu.Unlock()

		t.rooms.Broadcast(roomID, event.NewEvent(event.EventUserTyping, model.TypingIndicator{
			UserID:         userID,
			ConversationID: roomID,
			IsTyping:       false,
		}), userID)
	})
	t.timers[key] = timer
}

// Clear drops any pending expiry without broadcasting, used when the user
// leaves the room entirely.
func (t *TypingTracker) Clear(userID, roomID string) {
	key := typingKey(userID, roomID)

	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[key]; ok {
		timer.Stop()
		delete(t.timers, key)
	}
}

// Stop cancels all pending timers, used on shutdown.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, timer := range t.timers {
		timer.Stop()
		delete(t.timers, key)
	}
	t.logger.Debug("typing tracker stopped")
}
