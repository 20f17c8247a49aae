package relay

// Subscriber is a fan-out target registered with the bus. The gateway's
// websocket connection is the production implementation; tests plug mocks.
//
// Send must never block: implementations enqueue into a bounded buffer and
// return ErrBufferFull when it is exhausted, or ErrConnectionGone once the
// underlying transport is closed.
type Subscriber interface {
	ID() string
	UserID() string
	Send(payload []byte) error
}
