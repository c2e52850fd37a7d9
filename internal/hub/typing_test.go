package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

func newTypingFixture(t *testing.T) (*TypingTracker, *fakeSession, *fakeSession, string) {
	t.Helper()

	registry := NewRegistry(testLogger())
	convs := new(MockConversationRepo)
	rooms := NewRoomManager(registry, convs, testLogger())
	tracker := NewTypingTracker(rooms, testLogger())
	t.Cleanup(tracker.Stop)

	conv := testConversation(convs, "seeker", "guide")
	roomID := conv.ID.Hex()

	seeker := newFakeSession("seeker")
	guide := newFakeSession("guide")
	for _, s := range []*fakeSession{seeker, guide} {
		registry.Register(s)
		if _, err := rooms.Join(context.Background(), s, roomID); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	return tracker, seeker, guide, roomID
}

func TestTypingTracker_BroadcastSkipsTypist(t *testing.T) {
	tracker, seeker, guide, roomID := newTypingFixture(t)

	tracker.SetTyping("seeker", roomID, true)

	got := guide.eventsNamed(event.EventUserTyping)
	assert.Len(t, got, 1)
	payload := decodePayload[model.TypingIndicator](t, got[0])
	assert.Equal(t, "seeker", payload.UserID)
	assert.True(t, payload.IsTyping)

	assert.Empty(t, seeker.eventsNamed(event.EventUserTyping))
}

func TestTypingTracker_ExplicitStop(t *testing.T) {
	tracker, _, guide, roomID := newTypingFixture(t)

	tracker.SetTyping("seeker", roomID, true)
	tracker.SetTyping("seeker", roomID, false)

	got := guide.eventsNamed(event.EventUserTyping)
	assert.Len(t, got, 2)
	assert.False(t, decodePayload[model.TypingIndicator](t, got[1]).IsTyping)

	// no pending timer left: nothing more arrives after the TTL
	time.Sleep(typingTTL + 200*time.Millisecond)
	assert.Len(t, guide.eventsNamed(event.EventUserTyping), 2)
}

func TestTypingTracker_AutoExpiry(t *testing.T) {
	tracker, _, guide, roomID := newTypingFixture(t)

	tracker.SetTyping("seeker", roomID, true)

	waitFor(t, typingTTL+time.Second, func() bool {
		return len(guide.eventsNamed(event.EventUserTyping)) == 2
	})
	got := guide.eventsNamed(event.EventUserTyping)
	assert.False(t, decodePayload[model.TypingIndicator](t, got[1]).IsTyping)
}

func TestTypingTracker_RenewalResetsExpiry(t *testing.T) {
	tracker, _, guide, roomID := newTypingFixture(t)

	tracker.SetTyping("seeker", roomID, true)
	time.Sleep(typingTTL / 2)
	tracker.SetTyping("seeker", roomID, true)

	// past the first timer's original deadline: only the two explicit signals
	time.Sleep(typingTTL/2 + 200*time.Millisecond)
	assert.Len(t, guide.eventsNamed(event.EventUserTyping), 2)

	// the renewed window still expires on its own
	waitFor(t, typingTTL+time.Second, func() bool {
		return len(guide.eventsNamed(event.EventUserTyping)) == 3
	})
}

func TestTypingTracker_ClearDropsTimerSilently(t *testing.T) {
	tracker, _, guide, roomID := newTypingFixture(t)

	tracker.SetTyping("seeker", roomID, true)
	tracker.Clear("seeker", roomID)

	time.Sleep(typingTTL + 200*time.Millisecond)
	// the departure broadcast is the room manager's job, not the tracker's
	assert.Len(t, guide.eventsNamed(event.EventUserTyping), 1)
}
