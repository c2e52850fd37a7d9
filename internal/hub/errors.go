package hub

import (
	"errors"

	"github.com/FillingVoid7/PeerAid-sub001/internal/event"
	"github.com/FillingVoid7/PeerAid-sub001/internal/repo"
)

var (
	ErrUnauthorized         = errors.New("connection is not authenticated")
	ErrAlreadyAuthenticated = errors.New("connection is already authenticated")
	ErrNotParticipant       = errors.New("user is not a participant of the room")
	ErrForbidden            = errors.New("user is not a party to this call")
	ErrRoomNotFound         = errors.New("room not found")
	ErrCallNotFound         = errors.New("call not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrReceiverOffline      = errors.New("receiver has no live connection")
	ErrInvalidState         = errors.New("illegal call state transition")
	ErrBadPayload           = errors.New("malformed event payload")
)

// errorCode maps an internal failure onto the protocol error taxonomy. Any
// error outside the taxonomy is treated as a persistence failure, which is
// the only unexpected class this layer produces.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return event.CodeUnauthorized
	case errors.Is(err, ErrNotParticipant):
		return event.CodeNotParticipant
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrAlreadyAuthenticated):
		return event.CodeForbidden
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrCallNotFound),
		errors.Is(err, ErrMessageNotFound), errors.Is(err, repo.ErrNotFound):
		return event.CodeNotFound
	case errors.Is(err, ErrReceiverOffline):
		return event.CodeReceiverOffline
	case errors.Is(err, ErrInvalidState):
		return event.CodeInvalidState
	case errors.Is(err, ErrBadPayload):
		return event.CodeBadPayload
	default:
		return event.CodePersistenceError
	}
}
