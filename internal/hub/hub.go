package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/model"
	"github.com/FillingVoid7/PeerAid-sub001/internal/observability"
)

type inboundMessage struct {
	event  event.WsEvent
	client *Client
}

// handlerFunc processes one inbound event. A returned error rejects that
// event only; the connection stays up and other rooms are unaffected.
type handlerFunc func(ctx context.Context, c *Client, ev event.WsEvent) error

// Hub is the client gateway: it owns the connection lifecycle and dispatches
// inbound events to the registry, room manager, pipeline, typing tracker and
// call coordinator. Handlers are pure (connection, payload) -> error
// functions wired through a dispatch table keyed by event name.
type Hub struct {
	registry *Registry
	rooms    *RoomManager
	pipeline *Pipeline
	typing   *TypingTracker
	calls    *CallCoordinator
	logger   *zap.Logger

	upgrader websocket.Upgrader

	unregister chan *Client
	inbound    chan inboundMessage
	handlers   map[string]handlerFunc

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(registry *Registry, rooms *RoomManager, pipeline *Pipeline, typing *TypingTracker, calls *CallCoordinator, allowedOrigins []string, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   registry,
		rooms:      rooms,
		pipeline:   pipeline,
		typing:     typing,
		calls:      calls,
		logger:     logger,
		unregister: make(chan *Client, 1024),
		inbound:    make(chan inboundMessage, 4096), // buffer for burst handling
		ctx:        ctx,
		cancel:     cancel,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	h.handlers = map[string]handlerFunc{
		event.EventJoinRoom:     h.handleJoinRoom,
		event.EventLeaveRoom:    h.handleLeaveRoom,
		event.EventSendMessage:  h.handleSendMessage,
		event.EventMarkRead:     h.handleMarkRead,
		event.EventMessageAck:   h.handleMessageAck,
		event.EventTyping:       h.handleTyping,
		event.EventCallInitiate: h.handleCallInitiate,
		event.EventCallSignal:   h.handleCallSignal,
		event.EventCallAccept:   h.handleCallAccept,
		event.EventCallReject:   h.handleCallReject,
		event.EventCallCancel:   h.handleCallCancel,
		event.EventCallEnd:      h.handleCallEnd,
	}

	go h.run()

	for i := 0; i < workerPoolSize; i++ {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in, ok := <-h.inbound:
					if !ok {
						return
					}
					h.handleEvent(in.event, in.client)
				}
			}
		}()
	}

	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if origin == a {
				return true
			}
		}
		return false
	}
}

// ServeWS upgrades the request and starts the connection's pumps. The
// connection is useless until it authenticates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	NewClient(conn, h)
	observability.WSActiveConnections.Inc()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case c := <-h.unregister:
			h.teardown(c)
		}
	}
}

// teardown runs full cleanup for a disconnecting client: registry removal,
// balanced room leaves, typing expiry. An in-flight persistence write is not
// aborted; it completes on the worker that carries it.
func (h *Hub) teardown(c *Client) {
	observability.WSActiveConnections.Dec()

	if c.UserID() != "" {
		joined := h.registry.Unregister(c)
		for _, roomID := range joined {
			if userGone := h.rooms.Leave(c, roomID); userGone {
				h.typing.Clear(c.UserID(), roomID)
			}
		}
	}
	c.Close()
}

func (h *Hub) handleEvent(ev event.WsEvent, c *Client) {
	observability.WSEventsTotal.WithLabelValues(ev.Event).Inc()

	if ev.Event == event.EventAuthenticate {
		if err := h.handleAuthenticate(h.ctx, c, ev); err != nil {
			h.reject(c, ev, err)
		}
		return
	}

	if c.UserID() == "" {
		h.reject(c, ev, ErrUnauthorized)
		return
	}

	handler, ok := h.handlers[ev.Event]
	if !ok {
		h.logger.Debug("unknown event type", zap.String("event", ev.Event))
		h.reject(c, ev, ErrBadPayload)
		return
	}

	if err := handler(h.ctx, c, ev); err != nil {
		h.reject(c, ev, err)
	}
}

// reject answers one failed event with a typed error frame.
func (h *Hub) reject(c *Client, ev event.WsEvent, err error) {
	code := errorCode(err)
	if code == event.CodePersistenceError {
		h.logger.Error("event failed",
			zap.String("event", ev.Event),
			zap.String("connection_id", c.ID()),
			zap.Error(err),
		)
	}

	reply := event.NewEvent(event.EventError, event.Error{
		Code:    code,
		Event:   ev.Event,
		Message: err.Error(),
	})
	reply.RequestId = ev.RequestId
	c.Send(reply)
}

// ack answers one successful event on the connection that issued it.
func (h *Hub) ack(c *Client, requestID, name string, payload any) {
	reply := event.NewEvent(name, payload)
	reply.RequestId = requestID
	c.Send(reply)
}

// -----------------------------------------------------------------
// Event handlers
// -----------------------------------------------------------------

func (h *Hub) handleAuthenticate(_ context.Context, c *Client, ev event.WsEvent) error {
	// One identity per connection. Switching users would orphan the registry
	// entry and room membership held under the old id.
	if c.UserID() != "" {
		return ErrAlreadyAuthenticated
	}

	var payload model.AuthenticatePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.UserID == "" {
		return ErrBadPayload
	}

	c.setUser(payload.UserID)
	h.registry.Register(c)
	h.ack(c, ev.RequestId, event.EventAuthenticated, model.AuthenticatePayload{UserID: payload.UserID})
	return nil
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.RoomPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}

	if _, err := h.rooms.Join(ctx, c, payload.ConversationID); err != nil {
		return err
	}

	// Recent history rides along so the client renders without a second call.
	history, err := h.pipeline.History(ctx, payload.ConversationID, 1)
	if err != nil {
		return err
	}

	h.ack(c, ev.RequestId, event.EventRoomJoined, model.RoomJoinedEvent{
		ConversationID: payload.ConversationID,
		Messages:       history.Data,
		Page:           history.Page,
		TotalPages:     history.TotalPages,
	})
	return nil
}

func (h *Hub) handleLeaveRoom(_ context.Context, c *Client, ev event.WsEvent) error {
	var payload model.RoomPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}

	if userGone := h.rooms.Leave(c, payload.ConversationID); userGone {
		h.typing.Clear(c.UserID(), payload.ConversationID)
	}
	return nil
}

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.SendMessagePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}

	msg, err := h.pipeline.Send(ctx, c.UserID(), payload.ConversationID, SendInput{
		Type:     payload.Type,
		Content:  payload.Content,
		FileURL:  payload.FileURL,
		Duration: payload.Duration,
	})
	if err != nil {
		return err
	}

	h.ack(c, ev.RequestId, event.EventMessageSent, model.MessageSentAck{
		MessageID:      msg.ID.Hex(),
		ConversationID: payload.ConversationID,
	})
	return nil
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.MarkReadPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}
	return h.pipeline.MarkRead(ctx, c.UserID(), payload.ConversationID, payload.MessageIDs)
}

func (h *Hub) handleMessageAck(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.MessageAckPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}
	return h.pipeline.Ack(ctx, c.UserID(), payload.ConversationID, payload.MessageIDs)
}

func (h *Hub) handleTyping(_ context.Context, c *Client, ev event.WsEvent) error {
	var payload model.TypingPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}

	// Typing only flows between currently joined members; no store lookup.
	if !h.rooms.IsUserJoined(payload.ConversationID, c.UserID()) {
		return ErrNotParticipant
	}

	h.typing.SetTyping(c.UserID(), payload.ConversationID, payload.IsTyping)
	return nil
}

func (h *Hub) handleCallInitiate(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.CallInitiatePayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.ConversationID == "" {
		return ErrBadPayload
	}

	call, err := h.calls.Initiate(ctx, c.UserID(), payload.ConversationID, payload.Signal)
	if err != nil {
		return err
	}

	h.ack(c, ev.RequestId, event.EventCallInitiated, model.CallInitiatedAck{
		CallID:         call.CallID,
		ConversationID: payload.ConversationID,
	})
	return nil
}

func (h *Hub) handleCallSignal(ctx context.Context, c *Client, ev event.WsEvent) error {
	var payload model.CallSignalPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.CallID == "" {
		return ErrBadPayload
	}
	return h.calls.RelaySignal(ctx, c.UserID(), payload.CallID, payload.Signal)
}

func (h *Hub) handleCallAccept(ctx context.Context, c *Client, ev event.WsEvent) error {
	callID, err := callControl(ev)
	if err != nil {
		return err
	}
	return h.calls.Accept(ctx, c.UserID(), callID)
}

func (h *Hub) handleCallReject(ctx context.Context, c *Client, ev event.WsEvent) error {
	callID, err := callControl(ev)
	if err != nil {
		return err
	}
	return h.calls.Reject(ctx, c.UserID(), callID)
}

func (h *Hub) handleCallCancel(ctx context.Context, c *Client, ev event.WsEvent) error {
	callID, err := callControl(ev)
	if err != nil {
		return err
	}
	return h.calls.Cancel(ctx, c.UserID(), callID)
}

func (h *Hub) handleCallEnd(ctx context.Context, c *Client, ev event.WsEvent) error {
	callID, err := callControl(ev)
	if err != nil {
		return err
	}
	return h.calls.End(ctx, c.UserID(), callID)
}

func callControl(ev event.WsEvent) (string, error) {
	var payload model.CallControlPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil || payload.CallID == "" {
		return "", ErrBadPayload
	}
	return payload.CallID, nil
}

// Stop shuts the gateway down: no new events are processed, all connections
// close, pending typing and ring timers are cancelled.
func (h *Hub) Stop() {
	h.cancel()

	for _, s := range h.registry.Sessions() {
		if c, ok := s.(*Client); ok {
			c.Close()
		}
	}

	h.typing.Stop()
	h.calls.Stop()
	h.wg.Wait()
}
