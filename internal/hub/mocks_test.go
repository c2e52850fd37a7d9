package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/db"
	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

// fakeSession captures everything sent to one connection.
type fakeSession struct {
	id     string
	userID string

	mu     sync.Mutex
	events []event.WsEvent
	closed bool
}

func newFakeSession(userID string) *fakeSession {
	return &fakeSession{
		id:     uuid.New().String(),
		userID: userID,
	}
}

func (s *fakeSession) ID() string     { return s.id }
func (s *fakeSession) UserID() string { return s.userID }

func (s *fakeSession) Send(ev event.WsEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *fakeSession) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) received() []event.WsEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.WsEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *fakeSession) eventsNamed(name string) []event.WsEvent {
	var out []event.WsEvent
	for _, ev := range s.received() {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func decodePayload[T any](t *testing.T, ev event.WsEvent) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("decode %s payload: %v", ev.Event, err)
	}
	return payload
}

// waitFor polls cond until it holds or the deadline passes; timers fire on a
// background goroutine, so expiry assertions need a small grace window.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Insert(ctx context.Context, msg *model.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockMessageRepo) History(ctx context.Context, conversationID string, page int64) (*db.PaginatedResult[model.Message], error) {
	args := m.Called(ctx, conversationID, page)
	result, _ := args.Get(0).(*db.PaginatedResult[model.Message])
	return result, args.Error(1)
}

func (m *MockMessageRepo) MarkDelivered(ctx context.Context, conversationID string, messageIDs []string, ackedBy string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, messageIDs, ackedBy)
	affected, _ := args.Get(0).([]model.Message)
	return affected, args.Error(1)
}

func (m *MockMessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string) ([]model.Message, error) {
	args := m.Called(ctx, conversationID, readerID, messageIDs)
	affected, _ := args.Get(0).([]model.Message)
	return affected, args.Error(1)
}

func (m *MockMessageRepo) UnreadIDs(ctx context.Context, conversationID, readerID string) ([]string, error) {
	args := m.Called(ctx, conversationID, readerID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// expectInsert stamps a fresh id on any inserted message, like Mongo would.
func (m *MockMessageRepo) expectInsert() *mock.Call {
	return m.On("Insert", mock.Anything, mock.AnythingOfType("*model.Message")).
		Run(func(args mock.Arguments) {
			msg := args.Get(1).(*model.Message)
			msg.ID = primitive.NewObjectID()
		}).
		Return(primitive.NewObjectID().Hex(), nil)
}

type MockConversationRepo struct {
	mock.Mock
}

func (m *MockConversationRepo) GetRoom(ctx context.Context, conversationID string) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID)
	conv, _ := args.Get(0).(*model.Conversation)
	return conv, args.Error(1)
}

func (m *MockConversationRepo) ListActive(ctx context.Context) ([]model.Conversation, error) {
	args := m.Called(ctx)
	convs, _ := args.Get(0).([]model.Conversation)
	return convs, args.Error(1)
}

func (m *MockConversationRepo) SetLastMessage(ctx context.Context, conversationID string, lm *model.LastMessage) error {
	args := m.Called(ctx, conversationID, lm)
	return args.Error(0)
}

type MockCallRepo struct {
	mock.Mock
}

func (m *MockCallRepo) Insert(ctx context.Context, call *model.AudioCall) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepo) SetStatus(ctx context.Context, callID string, status int) error {
	args := m.Called(ctx, callID, status)
	return args.Error(0)
}

func (m *MockCallRepo) MarkOngoing(ctx context.Context, callID string, startedAt time.Time) error {
	args := m.Called(ctx, callID, startedAt)
	return args.Error(0)
}

func (m *MockCallRepo) MarkEnded(ctx context.Context, callID string, status int, endedAt time.Time, duration int) error {
	args := m.Called(ctx, callID, status, endedAt, duration)
	return args.Error(0)
}

func (m *MockCallRepo) SetReceiverSignal(ctx context.Context, callID string, payload json.RawMessage) error {
	args := m.Called(ctx, callID, payload)
	return args.Error(0)
}

func (m *MockCallRepo) SetInitiatorSignal(ctx context.Context, callID string, payload json.RawMessage) error {
	args := m.Called(ctx, callID, payload)
	return args.Error(0)
}

func (m *MockCallRepo) AddCandidate(ctx context.Context, callID string, payload json.RawMessage) error {
	args := m.Called(ctx, callID, payload)
	return args.Error(0)
}

// testConversation builds a two-party room and wires its lookup into convs.
func testConversation(convs *MockConversationRepo, seekerID, guideID string) *model.Conversation {
	conv := &model.Conversation{
		ID:       primitive.NewObjectID(),
		SeekerID: seekerID,
		GuideID:  guideID,
		IsActive: true,
	}
	convs.On("GetRoom", mock.Anything, conv.ID.Hex()).Return(conv, nil)
	return conv
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
