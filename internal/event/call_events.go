package event

// Call Event Types - Client to Server
const (
	// EventCallInitiate - Initiator starts a call in a conversation
	EventCallInitiate = "call_initiate"

	// EventCallSignal - Either party relays an opaque signaling payload
	EventCallSignal = "call_signal"

	// EventCallAccept - Receiver accepts the incoming call
	EventCallAccept = "call_accept"

	// EventCallReject - Receiver rejects the incoming call
	EventCallReject = "call_reject"

	// EventCallCancel - Initiator cancels before the receiver answers
	EventCallCancel = "call_cancel"

	// EventCallEnd - Either party ends an ongoing call
	EventCallEnd = "call_end"
)

// Call Event Types - Server to Client
const (
	// EventCallInitiated - Ack to the initiator, carries the call id
	EventCallInitiated = "call_initiated"

	// EventCallIncoming - Notify receiver of an incoming call
	EventCallIncoming = "call_incoming"

	// EventCallAccepted - Notify initiator that the receiver accepted
	EventCallAccepted = "call_accepted"

	// EventCallRejected - Notify initiator that the receiver rejected
	EventCallRejected = "call_rejected"

	// EventCallCancelled - Notify receiver that the initiator cancelled
	EventCallCancelled = "call_cancelled"

	// EventCallMissed - Notify initiator that the call rang out
	EventCallMissed = "call_missed"

	// EventCallEnded - Notify the other party that the call ended
	EventCallEnded = "call_ended"
)

// Call status values, persisted on the call document.
const (
	CallStatusInitiated = 1
	CallStatusRinging   = 2
	CallStatusOngoing   = 3
	CallStatusCompleted = 4
	CallStatusRejected  = 5
	CallStatusMissed    = 6
	CallStatusFailed    = 7
)

// Call Configuration
const (
	// DefaultRingTimeout is the default ring window in seconds
	DefaultRingTimeout = 40

	// MaxRingTimeout is the maximum allowed ring window in seconds
	MaxRingTimeout = 120
)

// IsTerminalCallStatus reports whether a call status admits no further
// transitions.
func IsTerminalCallStatus(status int) bool {
	switch status {
	case CallStatusCompleted, CallStatusRejected, CallStatusMissed, CallStatusFailed:
		return true
	default:
		return false
	}
}
