package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
)

func TestRegistry_RegisterAndOnline(t *testing.T) {
	registry := NewRegistry(testLogger())

	assert.False(t, registry.IsUserOnline("user_A"))

	s1 := newFakeSession("user_A")
	s2 := newFakeSession("user_A") // second device
	registry.Register(s1)
	registry.Register(s2)

	assert.True(t, registry.IsUserOnline("user_A"))
	assert.Len(t, registry.ConnectionsForUser("user_A"), 2)

	registry.Unregister(s1)
	assert.True(t, registry.IsUserOnline("user_A"), "one device still connected")

	registry.Unregister(s2)
	assert.False(t, registry.IsUserOnline("user_A"))
}

func TestRegistry_UnregisterReturnsJoinedRooms(t *testing.T) {
	registry := NewRegistry(testLogger())

	s := newFakeSession("user_A")
	registry.Register(s)
	registry.MarkJoined(s, "room1")
	registry.MarkJoined(s, "room2")
	registry.MarkLeft(s, "room2")

	rooms := registry.Unregister(s)
	assert.Equal(t, []string{"room1"}, rooms)

	// second unregister is a no-op
	assert.Nil(t, registry.Unregister(s))
}

func TestRegistry_SendToUserReachesEveryDevice(t *testing.T) {
	registry := NewRegistry(testLogger())

	s1 := newFakeSession("user_A")
	s2 := newFakeSession("user_A")
	registry.Register(s1)
	registry.Register(s2)

	ev := event.NewEvent("ping", nil)
	assert.Equal(t, 2, registry.SendToUser("user_A", ev))
	assert.Len(t, s1.received(), 1)
	assert.Len(t, s2.received(), 1)

	// a closed connection does not count as delivered
	s2.close()
	assert.Equal(t, 1, registry.SendToUser("user_A", ev))

	assert.Equal(t, 0, registry.SendToUser("user_B", ev))
}

func TestRegistry_Snapshot(t *testing.T) {
	registry := NewRegistry(testLogger())

	a := newFakeSession("user_A")
	b := newFakeSession("user_B")
	registry.Register(a)
	registry.Register(b)
	registry.MarkJoined(a, "room1")

	clients, stats := registry.Snapshot()
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Len(t, clients, 2)

	for _, info := range clients {
		if info.UserID == "user_A" {
			assert.Equal(t, []string{"room1"}, info.Rooms)
		}
	}
}
