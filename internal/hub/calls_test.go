package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
)

type callFixture struct {
	coordinator *CallCoordinator
	registry    *Registry
	calls       *MockCallRepo
	messages    *MockMessageRepo
	roomID      string
	seeker      *fakeSession
	guide       *fakeSession
}

func newCallFixture(t *testing.T, ringTimeout time.Duration) *callFixture {
	t.Helper()

	registry := NewRegistry(testLogger())
	convs := new(MockConversationRepo)
	messages := new(MockMessageRepo)
	calls := new(MockCallRepo)
	rooms := NewRoomManager(registry, convs, testLogger())
	pipeline := NewPipeline(rooms, registry, messages, convs, testLogger())
	coordinator := NewCallCoordinator(rooms, registry, pipeline, calls, ringTimeout, testLogger())
	t.Cleanup(coordinator.Stop)

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

	// lifecycle writes and the call log messages they append
	messages.expectInsert()
	convs.On("SetLastMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("Insert", mock.Anything, mock.AnythingOfType("*model.AudioCall")).Return(nil)
	calls.On("SetStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("MarkOngoing", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("MarkEnded", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("SetInitiatorSignal", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("SetReceiverSignal", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	calls.On("AddCandidate", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return &callFixture{
		coordinator: coordinator,
		registry:    registry,
		calls:       calls,
		messages:    messages,
		roomID:      roomID,
		seeker:      seeker,
		guide:       guide,
	}
}

var testOffer = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

func TestCallCoordinator_Initiate(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)
	assert.NotEmpty(t, call.CallID)
	assert.Equal(t, event.CallStatusRinging, call.Status)
	assert.Equal(t, "guide", call.ReceiverID)

	incoming := f.guide.eventsNamed(event.EventCallIncoming)
	assert.Len(t, incoming, 1)
	payload := decodePayload[model.CallIncomingEvent](t, incoming[0])
	assert.Equal(t, call.CallID, payload.CallID)
	assert.Equal(t, "seeker", payload.InitiatorID)
	assert.JSONEq(t, string(testOffer), string(payload.Signal))

	// the invite lands in the room log
	invites := f.guide.eventsNamed(event.EventNewMessage)
	assert.Len(t, invites, 1)
	msg := decodePayload[model.Message](t, invites[0])
	assert.Equal(t, model.MessageTypeAudioCallInvite, msg.Type)
	assert.Equal(t, call.CallID, *msg.CallID)

	stats := f.coordinator.Snapshot()
	assert.Equal(t, 1, stats.TotalActiveCalls)
}

func TestCallCoordinator_InitiateReceiverOffline(t *testing.T) {
	f := newCallFixture(t, time.Minute)
	f.registry.Unregister(f.guide)

	_, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.ErrorIs(t, err, ErrReceiverOffline)

	// no record exists for a call that never rang
	f.calls.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Equal(t, 0, f.coordinator.Snapshot().TotalActiveCalls)
}

func TestCallCoordinator_InitiateDeniedForNonParticipant(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	_, err := f.coordinator.Initiate(context.Background(), "stranger", f.roomID, testOffer)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestCallCoordinator_AcceptAndEnd(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	// only the receiver may accept
	assert.ErrorIs(t, f.coordinator.Accept(context.Background(), "seeker", call.CallID), ErrForbidden)

	assert.NoError(t, f.coordinator.Accept(context.Background(), "guide", call.CallID))
	accepted := f.seeker.eventsNamed(event.EventCallAccepted)
	assert.Len(t, accepted, 1)
	assert.Equal(t, event.CallStatusOngoing, decodePayload[model.CallStateEvent](t, accepted[0]).Status)

	// accepting twice is not a valid transition
	assert.ErrorIs(t, f.coordinator.Accept(context.Background(), "guide", call.CallID), ErrInvalidState)

	assert.NoError(t, f.coordinator.End(context.Background(), "seeker", call.CallID))
	ended := f.guide.eventsNamed(event.EventCallEnded)
	assert.Len(t, ended, 1)
	payload := decodePayload[model.CallStateEvent](t, ended[0])
	assert.Equal(t, event.CallStatusCompleted, payload.Status)
	assert.Equal(t, "seeker", payload.ByUserID)
	assert.GreaterOrEqual(t, payload.Duration, 0)

	// terminal: the call is gone, nothing more is accepted
	assert.ErrorIs(t, f.coordinator.End(context.Background(), "seeker", call.CallID), ErrCallNotFound)
	assert.ErrorIs(t, f.coordinator.RelaySignal(context.Background(), "seeker", call.CallID, testOffer), ErrCallNotFound)
	assert.Equal(t, 0, f.coordinator.Snapshot().TotalActiveCalls)
}

func TestCallCoordinator_EndBeforeAcceptInvalid(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.coordinator.End(context.Background(), "seeker", call.CallID), ErrInvalidState)
}

func TestCallCoordinator_RelaySignal(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	candidate := json.RawMessage(`{"candidate":"udp 1 1"}`)

	// first payload from the receiver is the answer
	assert.NoError(t, f.coordinator.RelaySignal(context.Background(), "guide", call.CallID, answer))
	f.calls.AssertCalled(t, "SetReceiverSignal", mock.Anything, call.CallID, answer)

	relayed := f.seeker.eventsNamed(event.EventCallSignal)
	assert.Len(t, relayed, 1)
	payload := decodePayload[model.CallSignalEvent](t, relayed[0])
	assert.Equal(t, "guide", payload.FromUserID)
	assert.JSONEq(t, string(answer), string(payload.Signal))

	// everything after the first payload accumulates as candidates
	assert.NoError(t, f.coordinator.RelaySignal(context.Background(), "guide", call.CallID, candidate))
	f.calls.AssertCalled(t, "AddCandidate", mock.Anything, call.CallID, candidate)
	assert.Len(t, f.seeker.eventsNamed(event.EventCallSignal), 2)

	// strangers cannot inject signaling
	assert.ErrorIs(t, f.coordinator.RelaySignal(context.Background(), "stranger", call.CallID, candidate), ErrForbidden)
	assert.ErrorIs(t, f.coordinator.RelaySignal(context.Background(), "guide", "no-such-call", candidate), ErrCallNotFound)
}

func TestCallCoordinator_Reject(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	// only the receiver may reject
	assert.ErrorIs(t, f.coordinator.Reject(context.Background(), "seeker", call.CallID), ErrForbidden)

	assert.NoError(t, f.coordinator.Reject(context.Background(), "guide", call.CallID))
	rejected := f.seeker.eventsNamed(event.EventCallRejected)
	assert.Len(t, rejected, 1)
	assert.Equal(t, "guide", decodePayload[model.CallStateEvent](t, rejected[0]).ByUserID)

	assert.Equal(t, 0, f.coordinator.Snapshot().TotalActiveCalls)
	assert.ErrorIs(t, f.coordinator.Accept(context.Background(), "guide", call.CallID), ErrCallNotFound)
}

func TestCallCoordinator_Cancel(t *testing.T) {
	f := newCallFixture(t, time.Minute)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	// only the initiator may cancel
	assert.ErrorIs(t, f.coordinator.Cancel(context.Background(), "guide", call.CallID), ErrForbidden)

	assert.NoError(t, f.coordinator.Cancel(context.Background(), "seeker", call.CallID))
	cancelled := f.guide.eventsNamed(event.EventCallCancelled)
	assert.Len(t, cancelled, 1)
	assert.Equal(t, 0, f.coordinator.Snapshot().TotalActiveCalls)
}

func TestCallCoordinator_RingTimeoutMissesCall(t *testing.T) {
	f := newCallFixture(t, 50*time.Millisecond)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	waitFor(t, 2*time.Second, func() bool {
		return len(f.seeker.eventsNamed(event.EventCallMissed)) == 1
	})
	missed := decodePayload[model.CallStateEvent](t, f.seeker.eventsNamed(event.EventCallMissed)[0])
	assert.Equal(t, event.CallStatusMissed, missed.Status)

	// the missed-call marker lands in the room log
	waitFor(t, 2*time.Second, func() bool {
		for _, ev := range f.guide.eventsNamed(event.EventNewMessage) {
			msg := decodePayload[model.Message](t, ev)
			if msg.Type == model.MessageTypeSystem {
				return true
			}
		}
		return false
	})

	assert.Equal(t, 0, f.coordinator.Snapshot().TotalActiveCalls)
	assert.ErrorIs(t, f.coordinator.Accept(context.Background(), "guide", call.CallID), ErrCallNotFound)
}

// promptSession accepts a call synchronously from inside the call_incoming
// delivery, the fastest possible answer.
type promptSession struct {
	*fakeSession
	coordinator *CallCoordinator
}

func (s *promptSession) Send(ev event.WsEvent) bool {
	if ev.Event == event.EventCallIncoming {
		var payload model.CallIncomingEvent
		if err := json.Unmarshal(ev.Payload, &payload); err == nil {
			_ = s.coordinator.Accept(context.Background(), s.userID, payload.CallID)
		}
	}
	return s.fakeSession.Send(ev)
}

func TestCallCoordinator_ImmediateAcceptSurvivesRingWindow(t *testing.T) {
	f := newCallFixture(t, 100*time.Millisecond)

	// swap the guide's plain session for one that answers mid-notification
	f.registry.Unregister(f.guide)
	prompt := &promptSession{fakeSession: newFakeSession("guide"), coordinator: f.coordinator}
	f.registry.Register(prompt)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)

	// the accept that raced the ring write must stick
	stats := f.coordinator.Snapshot()
	assert.Equal(t, 1, stats.TotalActiveCalls)
	assert.Equal(t, event.CallStatusOngoing, stats.CallDetails[0].Status)
	assert.NotEmpty(t, stats.CallDetails[0].StartedAt)

	accepted := f.seeker.eventsNamed(event.EventCallAccepted)
	assert.Len(t, accepted, 1)

	// past the ring window: the answered call never rings out
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, f.seeker.eventsNamed(event.EventCallMissed))
	assert.Equal(t, 1, f.coordinator.Snapshot().TotalActiveCalls)

	assert.NoError(t, f.coordinator.End(context.Background(), "guide", call.CallID))
}

func TestCallCoordinator_AnswerStopsRingTimer(t *testing.T) {
	f := newCallFixture(t, 50*time.Millisecond)

	call, err := f.coordinator.Initiate(context.Background(), "seeker", f.roomID, testOffer)
	assert.NoError(t, err)
	assert.NoError(t, f.coordinator.Accept(context.Background(), "guide", call.CallID))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, f.seeker.eventsNamed(event.EventCallMissed))
	assert.Equal(t, 1, f.coordinator.Snapshot().TotalActiveCalls)
}
