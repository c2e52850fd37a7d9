package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
	"github.com/FillingVoid7/PeerAid-sub001/internal/observability"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

// activeCall tracks one in-flight call between exactly two room participants.
type activeCall struct {
	callID         string
	conversationID string
	initiatorID    string
	receiverID     string

	mu                 sync.Mutex
	status             int
	createdAt          time.Time
	startedAt          *time.Time
	ringTimer          *time.Timer
	hasInitiatorSignal bool
	hasReceiverSignal  bool
}

func (c *activeCall) otherParty(userID string) string {
	if userID == c.initiatorID {
		return c.receiverID
	}
	return c.initiatorID
}

func (c *activeCall) isParty(userID string) bool {
	return userID == c.initiatorID || userID == c.receiverID
}

// CallCoordinator relays signaling between the two participants of a room
// and tracks the call lifecycle. It never inspects the payloads it relays.
// Lifecycle transitions append messages into the room log through the
// pipeline; the pipeline never calls back into here.
type CallCoordinator struct {
	rooms    *RoomManager
	registry *Registry
	pipeline *Pipeline
	calls    repo.CallRepository
	logger   *zap.Logger

	ringTimeout time.Duration

	mu          sync.RWMutex
	activeCalls map[string]*activeCall
}

func NewCallCoordinator(rooms *RoomManager, registry *Registry, pipeline *Pipeline, calls repo.CallRepository, ringTimeout time.Duration, logger *zap.Logger) *CallCoordinator {
	if ringTimeout <= 0 {
		ringTimeout = event.DefaultRingTimeout * time.Second
	}
	if ringTimeout > event.MaxRingTimeout*time.Second {
		ringTimeout = event.MaxRingTimeout * time.Second
	}
	return &CallCoordinator{
		rooms:       rooms,
		registry:    registry,
		pipeline:    pipeline,
		calls:       calls,
		logger:      logger,
		ringTimeout: ringTimeout,
		activeCalls: make(map[string]*activeCall),
	}
}

func (cc *CallCoordinator) registerCall(call *activeCall) {
	cc.mu.Lock()
	cc.activeCalls[call.callID] = call
	cc.mu.Unlock()
	observability.ActiveCalls.Inc()
}

func (cc *CallCoordinator) getCall(callID string) *activeCall {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.activeCalls[callID]
}

func (cc *CallCoordinator) dropCall(callID string) {
	cc.mu.Lock()
	if _, ok := cc.activeCalls[callID]; ok {
		delete(cc.activeCalls, callID)
		observability.ActiveCalls.Dec()
	}
	cc.mu.Unlock()
}

// Initiate starts a call. No call record is created for an unreachable peer:
// the receiver must hold at least one live connection. On success the call is
// durable in initiated, the receiver's devices ring, and the state advances
// to ringing with a miss timer running.
func (cc *CallCoordinator) Initiate(ctx context.Context, initiatorID, roomID string, signal json.RawMessage) (*model.AudioCall, error) {
	conv, err := cc.rooms.Authorize(ctx, initiatorID, roomID)
	if err != nil {
		return nil, err
	}

	receiverID := conv.OtherParticipant(initiatorID)
	if !cc.registry.IsUserOnline(receiverID) {
		return nil, ErrReceiverOffline
	}

	now := time.Now().UTC()
	doc := &model.AudioCall{
		CallID:          uuid.New().String(),
		ConversationID:  conv.ID,
		InitiatorID:     initiatorID,
		ReceiverID:      receiverID,
		Status:          event.CallStatusInitiated,
		InitiatorSignal: signal,
		Candidates:      []json.RawMessage{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := cc.calls.Insert(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist call: %w", err)
	}

	call := &activeCall{
		callID:             doc.CallID,
		conversationID:     roomID,
		initiatorID:        initiatorID,
		receiverID:         receiverID,
		status:             event.CallStatusInitiated,
		createdAt:          now,
		hasInitiatorSignal: len(signal) > 0,
	}
	cc.registerCall(call)

	// Ring state and timer must be in place before the receiver hears about
	// the call: an immediate accept transitions ringing -> ongoing, and
	// nothing after this point may write ringing again.
	call.mu.Lock()
	call.status = event.CallStatusRinging
	call.ringTimer = time.AfterFunc(cc.ringTimeout, func() {
		cc.missCall(doc.CallID)
	})
	call.mu.Unlock()

	if err := cc.calls.SetStatus(ctx, doc.CallID, event.CallStatusRinging); err != nil {
		cc.logger.Warn("ringing transition write failed", zap.String("call_id", doc.CallID), zap.Error(err))
	}
	doc.Status = event.CallStatusRinging

	cc.registry.SendToUser(receiverID, event.NewEvent(event.EventCallIncoming, model.CallIncomingEvent{
		CallID:         doc.CallID,
		ConversationID: roomID,
		InitiatorID:    initiatorID,
		Signal:         signal,
		Timeout:        int(cc.ringTimeout.Seconds()),
		Timestamp:      now.Unix(),
	}))

	cc.appendCallMessage(ctx, call, initiatorID, model.MessageTypeAudioCallInvite, "Audio call")

	cc.logger.Info("call initiated",
		zap.String("call_id", doc.CallID),
		zap.String("conversation_id", roomID),
		zap.String("initiator_id", initiatorID),
		zap.String("receiver_id", receiverID),
	)
	return doc, nil
}

// RelaySignal stores a payload on the call record and forwards it verbatim
// to the other party. The first payload from each party is kept whole
// (offer/answer); everything after that accumulates as candidates.
func (cc *CallCoordinator) RelaySignal(ctx context.Context, fromUserID, callID string, signal json.RawMessage) error {
	call := cc.getCall(callID)
	if call == nil {
		return ErrCallNotFound
	}
	if !call.isParty(fromUserID) {
		return ErrForbidden
	}

	call.mu.Lock()
	if event.IsTerminalCallStatus(call.status) {
		call.mu.Unlock()
		return ErrInvalidState
	}

	var persist func(context.Context, string, json.RawMessage) error
	switch {
	case fromUserID == call.initiatorID && !call.hasInitiatorSignal:
		call.hasInitiatorSignal = true
		persist = cc.calls.SetInitiatorSignal
	case fromUserID == call.receiverID && !call.hasReceiverSignal:
		call.hasReceiverSignal = true
		persist = cc.calls.SetReceiverSignal
	default:
		persist = cc.calls.AddCandidate
	}
	call.mu.Unlock()

	if err := persist(ctx, callID, signal); err != nil {
		cc.logger.Warn("signal persist failed", zap.String("call_id", callID), zap.Error(err))
	}

	cc.registry.SendToUser(call.otherParty(fromUserID), event.NewEvent(event.EventCallSignal, model.CallSignalEvent{
		CallID:     callID,
		FromUserID: fromUserID,
		Signal:     signal,
		Timestamp:  time.Now().Unix(),
	}))
	return nil
}

// Accept transitions a ringing call to ongoing and stamps its start time.
func (cc *CallCoordinator) Accept(ctx context.Context, receiverID, callID string) error {
	call := cc.getCall(callID)
	if call == nil {
		return ErrCallNotFound
	}
	if receiverID != call.receiverID {
		return ErrForbidden
	}

	call.mu.Lock()
	if call.status != event.CallStatusInitiated && call.status != event.CallStatusRinging {
		call.mu.Unlock()
		return ErrInvalidState
	}
	now := time.Now().UTC()
	call.status = event.CallStatusOngoing
	call.startedAt = &now
	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	call.mu.Unlock()

	if err := cc.calls.MarkOngoing(ctx, callID, now); err != nil {
		cc.failCall(ctx, call, "accept write failed")
		return fmt.Errorf("persist accept: %w", err)
	}

	cc.registry.SendToUser(call.initiatorID, event.NewEvent(event.EventCallAccepted, model.CallStateEvent{
		CallID:    callID,
		Status:    event.CallStatusOngoing,
		ByUserID:  receiverID,
		Timestamp: now.Unix(),
	}))

	cc.appendCallMessage(ctx, call, receiverID, model.MessageTypeAudioCallAccept, "Call accepted")

	cc.logger.Info("call accepted", zap.String("call_id", callID), zap.String("receiver_id", receiverID))
	return nil
}

// Reject declines a call that has not been answered yet.
func (cc *CallCoordinator) Reject(ctx context.Context, receiverID, callID string) error {
	call := cc.getCall(callID)
	if call == nil {
		return ErrCallNotFound
	}
	if receiverID != call.receiverID {
		return ErrForbidden
	}

	if err := cc.terminateBeforeAnswer(ctx, call); err != nil {
		return err
	}

	cc.registry.SendToUser(call.initiatorID, event.NewEvent(event.EventCallRejected, model.CallStateEvent{
		CallID:    callID,
		Status:    event.CallStatusRejected,
		ByUserID:  receiverID,
		Timestamp: time.Now().Unix(),
	}))

	cc.appendCallMessage(ctx, call, receiverID, model.MessageTypeAudioCallReject, "Call declined")

	cc.logger.Info("call rejected", zap.String("call_id", callID), zap.String("receiver_id", receiverID))
	return nil
}

// Cancel withdraws a call the initiator started, before it was answered.
func (cc *CallCoordinator) Cancel(ctx context.Context, initiatorID, callID string) error {
	call := cc.getCall(callID)
	if call == nil {
		return ErrCallNotFound
	}
	if initiatorID != call.initiatorID {
		return ErrForbidden
	}

	if err := cc.terminateBeforeAnswer(ctx, call); err != nil {
		return err
	}

	cc.registry.SendToUser(call.receiverID, event.NewEvent(event.EventCallCancelled, model.CallStateEvent{
		CallID:    callID,
		Status:    event.CallStatusRejected,
		ByUserID:  initiatorID,
		Timestamp: time.Now().Unix(),
	}))

	cc.appendCallMessage(ctx, call, initiatorID, model.MessageTypeSystem, "Call cancelled")

	cc.logger.Info("call cancelled", zap.String("call_id", callID), zap.String("initiator_id", initiatorID))
	return nil
}

// terminateBeforeAnswer moves a not-yet-ongoing call to rejected.
func (cc *CallCoordinator) terminateBeforeAnswer(ctx context.Context, call *activeCall) error {
	call.mu.Lock()
	if call.status != event.CallStatusInitiated && call.status != event.CallStatusRinging {
		call.mu.Unlock()
		return ErrInvalidState
	}
	call.status = event.CallStatusRejected
	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	call.mu.Unlock()

	now := time.Now().UTC()
	if err := cc.calls.MarkEnded(ctx, call.callID, event.CallStatusRejected, now, 0); err != nil {
		cc.logger.Warn("reject write failed", zap.String("call_id", call.callID), zap.Error(err))
	}
	cc.dropCall(call.callID)
	return nil
}

// End hangs up an ongoing call and computes its duration.
func (cc *CallCoordinator) End(ctx context.Context, byUserID, callID string) error {
	call := cc.getCall(callID)
	if call == nil {
		return ErrCallNotFound
	}
	if !call.isParty(byUserID) {
		return ErrForbidden
	}

	call.mu.Lock()
	if call.status != event.CallStatusOngoing {
		call.mu.Unlock()
		return ErrInvalidState
	}
	now := time.Now().UTC()
	duration := 0
	if call.startedAt != nil {
		duration = int(now.Sub(*call.startedAt).Seconds())
	}
	call.status = event.CallStatusCompleted
	call.mu.Unlock()

	if err := cc.calls.MarkEnded(ctx, callID, event.CallStatusCompleted, now, duration); err != nil {
		cc.logger.Warn("end write failed", zap.String("call_id", callID), zap.Error(err))
	}
	cc.dropCall(callID)

	cc.registry.SendToUser(call.otherParty(byUserID), event.NewEvent(event.EventCallEnded, model.CallStateEvent{
		CallID:    callID,
		Status:    event.CallStatusCompleted,
		ByUserID:  byUserID,
		Duration:  duration,
		Timestamp: now.Unix(),
	}))

	cc.appendCallMessage(ctx, call, byUserID,
		model.MessageTypeSystem, "Call ended, duration "+formatDuration(duration))

	cc.logger.Info("call ended",
		zap.String("call_id", callID),
		zap.String("by_user_id", byUserID),
		zap.Int("duration_seconds", duration),
	)
	return nil
}

// missCall fires when the ring timer elapses with no answer.
func (cc *CallCoordinator) missCall(callID string) {
	call := cc.getCall(callID)
	if call == nil {
		return
	}

	call.mu.Lock()
	if call.status != event.CallStatusInitiated && call.status != event.CallStatusRinging {
		call.mu.Unlock()
		return
	}
	call.status = event.CallStatusMissed
	call.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := cc.calls.MarkEnded(ctx, callID, event.CallStatusMissed, now, 0); err != nil {
		cc.logger.Warn("missed write failed", zap.String("call_id", callID), zap.Error(err))
	}
	cc.dropCall(callID)

	cc.registry.SendToUser(call.initiatorID, event.NewEvent(event.EventCallMissed, model.CallStateEvent{
		CallID:    callID,
		Status:    event.CallStatusMissed,
		Timestamp: now.Unix(),
	}))

	cc.appendCallMessage(ctx, call, call.initiatorID, model.MessageTypeSystem, "Missed audio call")

	cc.logger.Info("call missed", zap.String("call_id", callID))
}

// failCall moves a call to failed from any state, used when a lifecycle write
// cannot be persisted mid-call.
func (cc *CallCoordinator) failCall(ctx context.Context, call *activeCall, reason string) {
	call.mu.Lock()
	if event.IsTerminalCallStatus(call.status) {
		call.mu.Unlock()
		return
	}
	call.status = event.CallStatusFailed
	if call.ringTimer != nil {
		call.ringTimer.Stop()
	}
	call.mu.Unlock()

	now := time.Now().UTC()
	if err := cc.calls.MarkEnded(ctx, call.callID, event.CallStatusFailed, now, 0); err != nil {
		cc.logger.Error("failed-state write failed", zap.String("call_id", call.callID), zap.Error(err))
	}
	cc.dropCall(call.callID)

	ev := event.NewEvent(event.EventCallEnded, model.CallStateEvent{
		CallID:    call.callID,
		Status:    event.CallStatusFailed,
		Timestamp: now.Unix(),
	})
	cc.registry.SendToUser(call.initiatorID, ev)
	cc.registry.SendToUser(call.receiverID, ev)

	cc.logger.Error("call failed", zap.String("call_id", call.callID), zap.String("reason", reason))
}

// appendCallMessage writes a lifecycle marker into the room's message log so
// history reflects call events. Best effort: the realtime notification has
// already gone out.
func (cc *CallCoordinator) appendCallMessage(ctx context.Context, call *activeCall, senderID, msgType, body string) {
	callID := call.callID
	if _, err := cc.pipeline.Send(ctx, senderID, call.conversationID, SendInput{
		Type:    msgType,
		Content: body,
		CallID:  &callID,
	}); err != nil {
		cc.logger.Warn("call log message failed",
			zap.String("call_id", callID),
			zap.String("conversation_id", call.conversationID),
			zap.Error(err),
		)
	}
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Snapshot reports in-flight calls for the monitor endpoint.
func (cc *CallCoordinator) Snapshot() model.CallStats {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	stats := model.CallStats{CallDetails: make([]model.CallInfo, 0, len(cc.activeCalls))}
	for _, call := range cc.activeCalls {
		call.mu.Lock()
		info := model.CallInfo{
			CallID:         call.callID,
			ConversationID: call.conversationID,
			InitiatorID:    call.initiatorID,
			ReceiverID:     call.receiverID,
			Status:         call.status,
		}
		if call.startedAt != nil {
			info.StartedAt = call.startedAt.Format(time.RFC3339)
		}
		call.mu.Unlock()

		stats.CallDetails = append(stats.CallDetails, info)
		stats.TotalActiveCalls++
	}
	return stats
}

// Stop cancels every pending ring timer, used on shutdown.
func (cc *CallCoordinator) Stop() {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	for _, call := range cc.activeCalls {
		call.mu.Lock()
		if call.ringTimer != nil {
			call.ringTimer.Stop()
		}
		call.mu.Unlock()
	}
}
