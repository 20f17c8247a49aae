package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	qport "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/queue/port"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/realtime"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/application/task"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/bus"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// GatewaySocketController owns the websocket endpoint: it authenticates the
// upgrade, subscribes the connection to the user's rooms, translates client
// frames into bus/presence operations and tears everything down on
// disconnect.
type GatewaySocketController struct {
	bus      *bus.Bus
	tracker  *presence.Tracker
	members  repository.MembershipStore
	queue    qport.Client // may be nil; activity touches are best-effort
	verifier *identity.Verifier

	inflightTimeout time.Duration
}

func NewGatewaySocketController(b *bus.Bus, tracker *presence.Tracker, members repository.MembershipStore, queue qport.Client, verifier *identity.Verifier) *GatewaySocketController {
	return &GatewaySocketController{
		bus:             b,
		tracker:         tracker,
		members:         members,
		queue:           queue,
		verifier:        verifier,
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin browsers are expected; the token is the gate.
		return true
	},
}

type inboundFrame struct {
	Type      string `json:"type"`
	Room      string `json:"room,omitempty"`
	Body      string `json:"body,omitempty"`
	MessageID int64  `json:"message_id,omitempty"`
}

type ackFrame struct {
	Type string `json:"type"`
	Op   string `json:"op,omitempty"`
	Room string `json:"room,omitempty"`
	ID   int64  `json:"id,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

const defaultReadTimeout = 60 * time.Second

// session is the gateway-side state for one connection: the subscriber handle
// plus the set of rooms it is currently subscribed to. Owned by the read loop
// goroutine, so no locking.
type session struct {
	sub   relay.Subscriber
	rooms map[string]struct{}
}

// Handle upgrades the HTTP connection and processes frames until the client
// disconnects. Identity comes from the signed token in the `token` query
// parameter; connections without a valid token are refused before upgrade.
func (ctl *GatewaySocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ctl.verifier.Verify(c.Query("token"))
		if err != nil {
			log.Warn().Err(err).Str("remote", c.ClientIP()).Msg("gateway: rejected connect")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID := claims.UserID

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		conn := realtime.NewConnection(userID, ws)
		conn.Start()
		sess := &session{sub: conn, rooms: make(map[string]struct{})}
		defer func() {
			ctl.onDisconnect(sess)
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ctl.onConnect(sess)

		ws.SetReadLimit(1 << 20)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
					errors.Is(err, websocket.ErrCloseSent) {
					return
				}
				log.Debug().Err(err).Str("user", userID).Msg("gateway: read ended")
				return
			}
			ctl.dispatch(sess, data)
		}
	}
}

// onConnect subscribes the fresh connection to every room the user belongs to
// at connect time. Later membership changes reach the session only through
// explicit join/leave frames.
func (ctl *GatewaySocketController) onConnect(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	rooms, err := ctl.members.ListRoomsForUser(ctx, sess.sub.UserID())
	if err != nil {
		log.Error().Err(err).Str("user", sess.sub.UserID()).Msg("gateway: list rooms on connect")
		ctl.replyError(sess.sub, "internal_error", "failed to load room memberships")
		return
	}

	for _, roomID := range rooms {
		if err := ctl.subscribeRoom(ctx, sess, roomID); err != nil {
			log.Warn().Err(err).Str("user", sess.sub.UserID()).Str("room", roomID).Msg("gateway: auto-subscribe failed")
		}
	}

	ctl.reply(sess.sub, ackFrame{Type: "connected"})
	log.Info().Str("user", sess.sub.UserID()).Int("rooms", len(sess.rooms)).Msg("gateway: connected")
}

// onDisconnect unsubscribes from all rooms, clears typing state and
// broadcasts offline transitions. Pending deliveries to this connection die
// with its buffer; no redelivery.
func (ctl *GatewaySocketController) onDisconnect(sess *session) {
	for roomID := range sess.rooms {
		ctl.unsubscribeRoom(sess, roomID)
	}
	log.Info().Str("user", sess.sub.UserID()).Msg("gateway: disconnected")
}

func (ctl *GatewaySocketController) subscribeRoom(ctx context.Context, sess *session, roomID string) error {
	if _, ok := sess.rooms[roomID]; ok {
		return nil
	}
	if err := ctl.bus.Subscribe(ctx, roomID, sess.sub); err != nil {
		return err
	}
	sess.rooms[roomID] = struct{}{}

	if wentOnline := ctl.tracker.MarkOnline(roomID, sess.sub.UserID(), sess.sub.ID()); wentOnline {
		ctl.bus.PublishEphemeral(roomID, relay.PresenceEvent{
			Type:   relay.EventPresenceChanged,
			Room:   roomID,
			User:   sess.sub.UserID(),
			Online: true,
		})
	}
	return nil
}

func (ctl *GatewaySocketController) unsubscribeRoom(sess *session, roomID string) {
	ctl.bus.Unsubscribe(roomID, sess.sub.ID())
	delete(sess.rooms, roomID)

	if wentOffline := ctl.tracker.MarkOffline(roomID, sess.sub.UserID(), sess.sub.ID()); wentOffline {
		ctl.bus.PublishEphemeral(roomID, relay.PresenceEvent{
			Type:   relay.EventPresenceChanged,
			Room:   roomID,
			User:   sess.sub.UserID(),
			Online: false,
		})
	}
}

// dispatch decodes one client frame and routes it. Malformed frames are
// logged and discarded; the connection always survives them.
func (ctl *GatewaySocketController) dispatch(sess *session, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Str("user", sess.sub.UserID()).Msg("gateway: malformed frame")
		ctl.replyError(sess.sub, "bad_request", "invalid payload")
		return
	}

	switch frame.Type {
	case "ping":
		ctl.reply(sess.sub, ackFrame{Type: "pong"})
	case "join_room":
		ctl.handleJoin(sess, frame)
	case "leave_room":
		ctl.handleLeave(sess, frame)
	case "send_message":
		ctl.handleSend(sess, frame)
	case "edit_message":
		ctl.handleEdit(sess, frame)
	case "delete_message":
		ctl.handleDelete(sess, frame)
	case "typing_start":
		ctl.handleTyping(sess, frame, true)
	case "typing_stop":
		ctl.handleTyping(sess, frame, false)
	default:
		log.Warn().Str("user", sess.sub.UserID()).Str("type", frame.Type).Msg("gateway: unknown frame type")
		ctl.replyError(sess.sub, "unsupported_type", "unknown frame type")
	}
}

func (ctl *GatewaySocketController) handleJoin(sess *session, frame inboundFrame) {
	if frame.Room == "" {
		ctl.replyError(sess.sub, "bad_request", "room is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	// Membership is re-validated inside Subscribe; a stale client cannot
	// join a room it was removed from.
	if err := ctl.subscribeRoom(ctx, sess, frame.Room); err != nil {
		ctl.replyBusError(sess.sub, err)
		return
	}
	ctl.reply(sess.sub, ackFrame{Type: "joined", Room: frame.Room})
}

func (ctl *GatewaySocketController) handleLeave(sess *session, frame inboundFrame) {
	if frame.Room == "" {
		ctl.replyError(sess.sub, "bad_request", "room is required")
		return
	}
	ctl.unsubscribeRoom(sess, frame.Room)
	ctl.reply(sess.sub, ackFrame{Type: "left", Room: frame.Room})
}

func (ctl *GatewaySocketController) handleSend(sess *session, frame inboundFrame) {
	if frame.Room == "" {
		ctl.replyError(sess.sub, "bad_request", "room is required")
		return
	}
	body, err := relay.NewMessageBody(frame.Body)
	if err != nil {
		ctl.replyError(sess.sub, "bad_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	m, err := ctl.bus.PublishMessage(ctx, frame.Room, sess.sub.UserID(), body)
	if err != nil {
		ctl.replyBusError(sess.sub, err)
		return
	}

	// The fan-out already delivered the event to the sender too; the ack
	// additionally ties the client's optimistic message to the assigned id.
	ctl.reply(sess.sub, ackFrame{Type: "ack", Op: "send_message", Room: frame.Room, ID: m.ID})
	ctl.touchRoom(frame.Room)
}

func (ctl *GatewaySocketController) handleEdit(sess *session, frame inboundFrame) {
	if frame.Room == "" || frame.MessageID == 0 {
		ctl.replyError(sess.sub, "bad_request", "room and message_id are required")
		return
	}
	body, err := relay.NewMessageBody(frame.Body)
	if err != nil {
		ctl.replyError(sess.sub, "bad_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	m, err := ctl.bus.PublishEdit(ctx, frame.Room, frame.MessageID, sess.sub.UserID(), body)
	if err != nil {
		ctl.replyBusError(sess.sub, err)
		return
	}
	ctl.reply(sess.sub, ackFrame{Type: "ack", Op: "edit_message", Room: frame.Room, ID: m.ID})
}

func (ctl *GatewaySocketController) handleDelete(sess *session, frame inboundFrame) {
	if frame.Room == "" || frame.MessageID == 0 {
		ctl.replyError(sess.sub, "bad_request", "room and message_id are required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ctl.inflightTimeout)
	defer cancel()

	if err := ctl.bus.PublishDelete(ctx, frame.Room, frame.MessageID, sess.sub.UserID()); err != nil {
		ctl.replyBusError(sess.sub, err)
		return
	}
	ctl.reply(sess.sub, ackFrame{Type: "ack", Op: "delete_message", Room: frame.Room, ID: frame.MessageID})
}

func (ctl *GatewaySocketController) handleTyping(sess *session, frame inboundFrame, isTyping bool) {
	if frame.Room == "" {
		ctl.replyError(sess.sub, "bad_request", "room is required")
		return
	}
	// Only rooms this session is subscribed to; no membership round-trip
	// for a high-frequency, best-effort signal.
	if _, ok := sess.rooms[frame.Room]; !ok {
		ctl.replyError(sess.sub, "not_a_member", "not subscribed to this room")
		return
	}

	if isTyping {
		ctl.tracker.SetTyping(frame.Room, sess.sub.UserID())
	} else {
		ctl.tracker.ClearTyping(frame.Room, sess.sub.UserID())
	}

	ctl.bus.PublishEphemeral(frame.Room, relay.TypingEvent{
		Type:     relay.EventUserTyping,
		Room:     frame.Room,
		User:     sess.sub.UserID(),
		IsTyping: isTyping,
	})
}

// touchRoom queues the last-activity stamp; enqueue failures only log.
func (ctl *GatewaySocketController) touchRoom(roomID string) {
	if ctl.queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := task.EnqueueRoomActivity(ctx, ctl.queue, roomID); err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("gateway: enqueue room activity")
	}
}

func (ctl *GatewaySocketController) replyBusError(sub relay.Subscriber, err error) {
	switch {
	case errors.Is(err, relay.ErrNotAMember):
		ctl.replyError(sub, "not_a_member", "you are not a member of this room")
	case errors.Is(err, relay.ErrAppendFailed):
		ctl.replyError(sub, "append_failed", "message could not be stored, retry")
	case errors.Is(err, relay.ErrMessageNotFound):
		ctl.replyError(sub, "not_found", "message not found or not yours")
	default:
		ctl.replyError(sub, "internal_error", err.Error())
	}
}

func (ctl *GatewaySocketController) replyError(sub relay.Subscriber, code string, message string) {
	ctl.reply(sub, errorFrame{Type: "error", Code: code, Error: message})
}

func (ctl *GatewaySocketController) reply(sub relay.Subscriber, frame any) {
	if payload, err := json.Marshal(frame); err == nil {
		_ = sub.Send(payload)
	}
}
