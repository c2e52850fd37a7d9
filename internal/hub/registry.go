package hub

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

const (
	shardCount = 64 // tune: 16/64/128 depending on load
)

func getShard(key string) uint32 {
	if key == "" {
		return 0
	}

	h := sha1.Sum([]byte(key))
	return binary.BigEndian.Uint32(h[:4]) % shardCount
}

type connEntry struct {
	session Session
	rooms   map[string]struct{}
}

type userBucket struct {
	sync.RWMutex
	users map[string]map[string]*connEntry // userID -> connID -> entry
}

// Registry is the single source of truth for which connections belong to
// which user and which rooms each connection has joined. All state is
// process-local and rebuilt from zero on restart. Buckets are sharded by
// user id, so mutations for one user are serialized while different users
// proceed in parallel.
type Registry struct {
	shards [shardCount]*userBucket
	logger *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{logger: logger}
	for i := 0; i < shardCount; i++ {
		r.shards[i] = &userBucket{users: make(map[string]map[string]*connEntry)}
	}
	return r
}

// Register adds a connection for a user. A user may hold several connections
// at once (multi-device); duplicates simply add another entry.
func (r *Registry) Register(s Session) {
	b := r.shards[getShard(s.UserID())]
	b.Lock()
	defer b.Unlock()

	conns, ok := b.users[s.UserID()]
	if !ok {
		conns = make(map[string]*connEntry)
		b.users[s.UserID()] = conns
	}
	conns[s.ID()] = &connEntry{session: s, rooms: make(map[string]struct{})}

	r.logger.Info("connection registered",
		zap.String("connection_id", s.ID()),
		zap.String("user_id", s.UserID()),
		zap.Int("user_connections", len(conns)),
	)
}

// Unregister removes a connection and returns the rooms it had joined so the
// caller can drive room-leave broadcasts. Presence stays accurate on abrupt
// disconnects because this is the only teardown path.
func (r *Registry) Unregister(s Session) []string {
	b := r.shards[getShard(s.UserID())]
	b.Lock()
	defer b.Unlock()

	conns, ok := b.users[s.UserID()]
	if !ok {
		return nil
	}
	entry, ok := conns[s.ID()]
	if !ok {
		return nil
	}

	delete(conns, s.ID())
	if len(conns) == 0 {
		delete(b.users, s.UserID())
	}

	rooms := make([]string, 0, len(entry.rooms))
	for roomID := range entry.rooms {
		rooms = append(rooms, roomID)
	}

	r.logger.Info("connection unregistered",
		zap.String("connection_id", s.ID()),
		zap.String("user_id", s.UserID()),
		zap.Int("joined_rooms", len(rooms)),
	)
	return rooms
}

// MarkJoined records a room on the connection's joined set.
func (r *Registry) MarkJoined(s Session, roomID string) {
	b := r.shards[getShard(s.UserID())]
	b.Lock()
	defer b.Unlock()

	if entry, ok := b.users[s.UserID()][s.ID()]; ok {
		entry.rooms[roomID] = struct{}{}
	}
}

// MarkLeft removes a room from the connection's joined set.
func (r *Registry) MarkLeft(s Session, roomID string) {
	b := r.shards[getShard(s.UserID())]
	b.Lock()
	defer b.Unlock()

	if entry, ok := b.users[s.UserID()][s.ID()]; ok {
		delete(entry.rooms, roomID)
	}
}

// ConnectionsForUser returns the live connections of a user, for fan-out to
// all of their devices.
func (r *Registry) ConnectionsForUser(userID string) []Session {
	b := r.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()

	conns := b.users[userID]
	sessions := make([]Session, 0, len(conns))
	for _, entry := range conns {
		sessions = append(sessions, entry.session)
	}
	return sessions
}

// IsUserOnline reports whether at least one live connection exists.
func (r *Registry) IsUserOnline(userID string) bool {
	b := r.shards[getShard(userID)]
	b.RLock()
	defer b.RUnlock()
	return len(b.users[userID]) > 0
}

// SendToUser delivers an event to every connection of a user. Returns the
// number of connections reached.
func (r *Registry) SendToUser(userID string, ev event.WsEvent) int {
	delivered := 0
	for _, s := range r.ConnectionsForUser(userID) {
		if s.Send(ev) {
			delivered++
		}
	}
	return delivered
}

// Snapshot reports every live connection, for the monitor endpoint.
func (r *Registry) Snapshot() ([]model.ClientInfo, model.ConnStats) {
	clients := make([]model.ClientInfo, 0)
	stats := model.ConnStats{}

	for _, b := range r.shards {
		b.RLock()
		for userID, conns := range b.users {
			stats.TotalUsers++
			for connID, entry := range conns {
				stats.TotalConnections++
				rooms := make([]string, 0, len(entry.rooms))
				for roomID := range entry.rooms {
					rooms = append(rooms, roomID)
				}
				clients = append(clients, model.ClientInfo{
					ConnectionID: connID,
					UserID:       userID,
					Rooms:        rooms,
				})
			}
		}
		b.RUnlock()
	}
	return clients, stats
}

// Sessions returns every live session, used on shutdown.
func (r *Registry) Sessions() []Session {
	sessions := make([]Session, 0)
	for _, b := range r.shards {
		b.RLock()
		for _, conns := range b.users {
			for _, entry := range conns {
				sessions = append(sessions, entry.session)
			}
		}
		b.RUnlock()
	}
	return sessions
}
