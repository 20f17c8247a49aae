package relay

import "errors"

// Error taxonomy for the relay core. Controllers map these to wire codes;
// everything else is treated as an internal error.
var (
	// ErrNotAMember rejects subscribe/publish/join attempts for rooms the
	// user does not belong to. Membership store failures also surface as
	// ErrNotAMember (fail closed).
	ErrNotAMember = errors.New("relay: user is not a member of the room")

	// ErrAppendFailed signals that the durable log write failed or timed
	// out. No fan-out happens in that case; the caller may retry.
	ErrAppendFailed = errors.New("relay: message log append failed")

	// ErrMessageNotFound covers edit/delete of an unknown message or one
	// authored by somebody else.
	ErrMessageNotFound = errors.New("relay: message not found")

	// ErrBufferFull marks a consumer whose outbound buffer is exhausted.
	// The event is dropped for that consumer only; publishers never see it.
	ErrBufferFull = errors.New("relay: connection send buffer full")

	// ErrConnectionGone marks a fan-out target that disconnected between
	// enqueue and delivery. Skipped silently.
	ErrConnectionGone = errors.New("relay: connection gone")

	// ErrMalformedFrame covers undecodable or semantically invalid client
	// frames. The frame is dropped with a warning; the connection stays up.
	ErrMalformedFrame = errors.New("relay: malformed client frame")
)
