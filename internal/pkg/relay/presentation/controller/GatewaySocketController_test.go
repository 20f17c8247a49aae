package controller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/bus"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
)

type fakeMembers struct {
	mu      sync.Mutex
	members map[string]map[string]bool
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{members: make(map[string]map[string]bool)}
}

func (m *fakeMembers) add(roomID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.members[roomID] == nil {
		m.members[roomID] = make(map[string]bool)
	}
	m.members[roomID][userID] = true
}

func (m *fakeMembers) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[roomID][userID], nil
}

func (m *fakeMembers) ListRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rooms []string
	for r, users := range m.members {
		if users[userID] {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

type fakeLog struct {
	mu       sync.Mutex
	seqs     map[string]int64
	messages map[string]map[int64]relay.Message
}

func newFakeLog() *fakeLog {
	return &fakeLog{seqs: make(map[string]int64), messages: make(map[string]map[int64]relay.Message)}
}

func (l *fakeLog) Append(ctx context.Context, roomID, authorID, body string) (relay.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seqs[roomID]++
	m := relay.Message{ID: l.seqs[roomID], Room: roomID, Author: authorID, Body: body, CreatedAt: time.Now()}
	if l.messages[roomID] == nil {
		l.messages[roomID] = make(map[int64]relay.Message)
	}
	l.messages[roomID][m.ID] = m
	return m, nil
}

func (l *fakeLog) ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]relay.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []relay.Message
	for id := afterID + 1; id <= l.seqs[roomID]; id++ {
		if m, ok := l.messages[roomID][id]; ok {
			out = append(out, m)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *fakeLog) Edit(ctx context.Context, roomID string, messageID int64, authorID, body string) (relay.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.messages[roomID][messageID]
	if !ok || m.Author != authorID || m.Deleted {
		return relay.Message{}, relay.ErrMessageNotFound
	}
	m.Body = body
	m.Edited = true
	l.messages[roomID][messageID] = m
	return m, nil
}

func (l *fakeLog) Delete(ctx context.Context, roomID string, messageID int64, authorID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.messages[roomID][messageID]
	if !ok || m.Author != authorID || m.Deleted {
		return relay.ErrMessageNotFound
	}
	m.Deleted = true
	l.messages[roomID][messageID] = m
	return nil
}

// fakeSubscriber stands in for a live websocket connection.
type fakeSubscriber struct {
	id     string
	userID string
	mu     sync.Mutex
	frames [][]byte
}

func (s *fakeSubscriber) ID() string     { return s.id }
func (s *fakeSubscriber) UserID() string { return s.userID }

func (s *fakeSubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, payload)
	return nil
}

// frame decodes the i-th sent frame into a generic map.
func (s *fakeSubscriber) frame(t *testing.T, i int) map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Greater(t, len(s.frames), i, "expected at least %d frames", i+1)
	var m map[string]any
	require.NoError(t, json.Unmarshal(s.frames[i], &m))
	return m
}

func (s *fakeSubscriber) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type gatewayFixture struct {
	ctl     *GatewaySocketController
	bus     *bus.Bus
	tracker *presence.Tracker
	members *fakeMembers
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	members := newFakeMembers()
	b := bus.New(members, newFakeLog())
	tracker := presence.NewTracker()
	return &gatewayFixture{
		ctl:     NewGatewaySocketController(b, tracker, members, nil, nil),
		bus:     b,
		tracker: tracker,
		members: members,
	}
}

func (f *gatewayFixture) connect(t *testing.T, userID, connID string) (*session, *fakeSubscriber) {
	t.Helper()
	sub := &fakeSubscriber{id: connID, userID: userID}
	sess := &session{sub: sub, rooms: make(map[string]struct{})}
	f.ctl.onConnect(sess)
	return sess, sub
}

func send(ctl *GatewaySocketController, sess *session, frame inboundFrame) {
	data, _ := json.Marshal(frame)
	ctl.dispatch(sess, data)
}

func TestGateway_ConnectSubscribesExistingRooms(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("7", "u1")

	sess, sub := f.connect(t, "u1", "c1")

	assert.Len(t, sess.rooms, 2)
	assert.True(t, f.tracker.IsOnline("42", "u1"))
	assert.True(t, f.tracker.IsOnline("7", "u1"))

	last := sub.frame(t, sub.frameCount()-1)
	assert.Equal(t, "connected", last["type"])
}

func TestGateway_MalformedFrameSurvives(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	f.ctl.dispatch(sess, []byte("{not json"))

	frame := sub.frame(t, before)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "bad_request", frame["code"])

	// The connection keeps working afterwards.
	send(f.ctl, sess, inboundFrame{Type: "ping"})
	assert.Equal(t, "pong", sub.frame(t, before+1)["type"])
}

func TestGateway_UnknownFrameType(t *testing.T) {
	f := newGatewayFixture(t)
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	send(f.ctl, sess, inboundFrame{Type: "teleport"})

	frame := sub.frame(t, before)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "unsupported_type", frame["code"])
}

func TestGateway_SendMessageAckAndFanOut(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("42", "u2")

	sessA, subA := f.connect(t, "u1", "c1")
	_, subB := f.connect(t, "u2", "c2")
	beforeA, beforeB := subA.frameCount(), subB.frameCount()

	send(f.ctl, sessA, inboundFrame{Type: "send_message", Room: "42", Body: "hello"})

	// The sender sees the broadcast first, then the ack with the assigned id.
	ev := subA.frame(t, beforeA)
	assert.Equal(t, "new_message", ev["type"])
	assert.Equal(t, "hello", ev["body"])
	assert.Equal(t, float64(1), ev["id"])

	ack := subA.frame(t, beforeA+1)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, "send_message", ack["op"])
	assert.Equal(t, float64(1), ack["id"])

	got := subB.frame(t, beforeB)
	assert.Equal(t, "new_message", got["type"])
	assert.Equal(t, "u1", got["author"])
}

func TestGateway_SendToForeignRoomRejected(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	send(f.ctl, sess, inboundFrame{Type: "send_message", Room: "99", Body: "hi"})

	frame := sub.frame(t, before)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "not_a_member", frame["code"])
}

func TestGateway_SendBlankBodyRejected(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	send(f.ctl, sess, inboundFrame{Type: "send_message", Room: "42", Body: "   "})

	frame := sub.frame(t, before)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "bad_request", frame["code"])
}

func TestGateway_JoinAndLeave(t *testing.T) {
	f := newGatewayFixture(t)
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	// Joining a room the user does not belong to is refused.
	send(f.ctl, sess, inboundFrame{Type: "join_room", Room: "42"})
	assert.Equal(t, "not_a_member", sub.frame(t, before)["code"])

	f.members.add("42", "u1")
	send(f.ctl, sess, inboundFrame{Type: "join_room", Room: "42"})
	joined := sub.frame(t, before+1)
	assert.Equal(t, "joined", joined["type"])
	assert.Equal(t, "42", joined["room"])
	assert.True(t, f.tracker.IsOnline("42", "u1"))

	send(f.ctl, sess, inboundFrame{Type: "leave_room", Room: "42"})
	assert.Equal(t, "left", sub.frame(t, before+2)["type"])
	assert.False(t, f.tracker.IsOnline("42", "u1"))
	assert.Empty(t, sess.rooms)
}

func TestGateway_TypingFanOut(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("42", "u2")
	sessA, _ := f.connect(t, "u1", "c1")
	_, subB := f.connect(t, "u2", "c2")
	beforeB := subB.frameCount()

	send(f.ctl, sessA, inboundFrame{Type: "typing_start", Room: "42"})

	frame := subB.frame(t, beforeB)
	assert.Equal(t, "user_typing", frame["type"])
	assert.Equal(t, "u1", frame["user"])
	assert.Equal(t, true, frame["is_typing"])
	assert.Equal(t, []string{"u1"}, f.tracker.TypingUsers("42", ""))

	send(f.ctl, sessA, inboundFrame{Type: "typing_stop", Room: "42"})
	stop := subB.frame(t, beforeB+1)
	assert.Equal(t, false, stop["is_typing"])
	assert.Empty(t, f.tracker.TypingUsers("42", ""))
}

func TestGateway_TypingRequiresSubscription(t *testing.T) {
	f := newGatewayFixture(t)
	sess, sub := f.connect(t, "u1", "c1")
	before := sub.frameCount()

	send(f.ctl, sess, inboundFrame{Type: "typing_start", Room: "42"})

	assert.Equal(t, "not_a_member", sub.frame(t, before)["code"])
}

func TestGateway_PresenceTransitionsBroadcast(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("42", "u2")
	_, subA := f.connect(t, "u1", "c1")
	beforeA := subA.frameCount()

	sessB, _ := f.connect(t, "u2", "c2")

	online := subA.frame(t, beforeA)
	assert.Equal(t, "presence_changed", online["type"])
	assert.Equal(t, "u2", online["user"])
	assert.Equal(t, true, online["online"])

	f.ctl.onDisconnect(sessB)

	offline := subA.frame(t, beforeA+1)
	assert.Equal(t, "presence_changed", offline["type"])
	assert.Equal(t, false, offline["online"])
}

func TestGateway_SecondTabNoPresenceNoise(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("42", "u2")
	_, subA := f.connect(t, "u1", "c1")

	f.connect(t, "u2", "c2")
	beforeA := subA.frameCount()

	// A second tab for an already-online user is silent.
	sessB2, _ := f.connect(t, "u2", "c3")
	assert.Equal(t, beforeA, subA.frameCount())

	// Closing one of the two tabs is silent too.
	f.ctl.onDisconnect(sessB2)
	assert.Equal(t, beforeA, subA.frameCount())
	assert.True(t, f.tracker.IsOnline("42", "u2"))
}

func TestGateway_EditAndDelete(t *testing.T) {
	f := newGatewayFixture(t)
	f.members.add("42", "u1")
	f.members.add("42", "u2")
	sessA, subA := f.connect(t, "u1", "c1")
	sessB, subB := f.connect(t, "u2", "c2")

	send(f.ctl, sessA, inboundFrame{Type: "send_message", Room: "42", Body: "hello"})
	beforeB := subB.frameCount()

	// Another member cannot edit the message.
	send(f.ctl, sessB, inboundFrame{Type: "edit_message", Room: "42", MessageID: 1, Body: "hijack"})
	assert.Equal(t, "not_found", subB.frame(t, beforeB)["code"])

	beforeA := subA.frameCount()
	send(f.ctl, sessA, inboundFrame{Type: "edit_message", Room: "42", MessageID: 1, Body: "hello!"})
	edited := subA.frame(t, beforeA)
	assert.Equal(t, "message_edited", edited["type"])
	assert.Equal(t, "hello!", edited["body"])

	beforeA = subA.frameCount()
	send(f.ctl, sessA, inboundFrame{Type: "delete_message", Room: "42", MessageID: 1})
	deleted := subA.frame(t, beforeA)
	assert.Equal(t, "message_deleted", deleted["type"])
	assert.Equal(t, float64(1), deleted["id"])
}
