package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// appendTimeout bounds the durable write inside Publish so a stalled log
// cannot hang the caller's connection handling.
const appendTimeout = 5 * time.Second

// Bus is the room-scoped publish/subscribe core. Each room is an independent
// broadcast channel guarded by its own lock, so contention on one room never
// blocks another. Message events are durable-then-broadcast: the log append
// must succeed before any fan-out happens. Typing and presence events skip
// the log entirely and are best-effort.
type Bus struct {
	members repository.MembershipStore
	log     repository.MessageLog

	mu    sync.RWMutex
	rooms map[string]*room
}

// room holds the fan-out list for one channel. The mutex also serializes
// appends for the room: sequence assignment order and fan-out enqueue order
// are the same, which is what gives subscribers in-order delivery.
//
// dead is set under mu when Unsubscribe prunes the room from the bus map.
// Anyone holding a reference to a dead room must discard it and re-resolve
// through the map, otherwise a subscriber can land in an orphaned room and
// silently stop receiving events.
type room struct {
	mu   sync.Mutex
	dead bool
	subs map[string]relay.Subscriber // connection id -> subscriber
}

func New(members repository.MembershipStore, msgLog repository.MessageLog) *Bus {
	return &Bus{
		members: members,
		log:     msgLog,
		rooms:   make(map[string]*room),
	}
}

// Subscribe registers the connection as a fan-out target for the room after
// checking membership. Already-subscribed connections are a no-op. Membership
// store failures deny access (fail closed).
func (b *Bus) Subscribe(ctx context.Context, roomID string, sub relay.Subscriber) error {
	ok, err := b.members.IsMember(ctx, roomID, sub.UserID())
	if err != nil {
		return fmt.Errorf("%w: membership check: %v", relay.ErrNotAMember, err)
	}
	if !ok {
		return relay.ErrNotAMember
	}

	for {
		r := b.getOrCreateRoom(roomID)
		r.mu.Lock()
		if r.dead {
			// Lost a race with the prune in Unsubscribe; the map holds
			// a fresh room by now, resolve again.
			r.mu.Unlock()
			continue
		}
		r.subs[sub.ID()] = sub
		r.mu.Unlock()
		return nil
	}
}

// Unsubscribe removes the connection from the room. Idempotent; unknown rooms
// and connections are a no-op. Empty rooms are pruned.
func (b *Bus) Unsubscribe(roomID string, connectionID string) {
	b.mu.RLock()
	r := b.rooms[roomID]
	b.mu.RUnlock()
	if r == nil {
		return
	}

	r.mu.Lock()
	delete(r.subs, connectionID)
	empty := len(r.subs) == 0
	r.mu.Unlock()

	if !empty {
		return
	}
	b.mu.Lock()
	if r2 := b.rooms[roomID]; r2 != nil {
		r2.mu.Lock()
		if len(r2.subs) == 0 {
			r2.dead = true
			delete(b.rooms, roomID)
		}
		r2.mu.Unlock()
	}
	b.mu.Unlock()
}

// PublishMessage appends the message to the durable log and, only on success,
// fans the event out to every subscribed connection in the room, the sender
// included so its client reconciles against the authoritative sequence id.
// A slow consumer gets the event dropped, never retried; the publisher does
// not block and other consumers are unaffected. With no subscribers the
// append still happens; the log's own transaction keeps sequence ids unique,
// and there is nobody to deliver to.
func (b *Bus) PublishMessage(ctx context.Context, roomID string, authorID string, body string) (relay.Message, error) {
	if err := b.checkMember(ctx, roomID, authorID); err != nil {
		return relay.Message{}, err
	}

	r := b.lockRoom(roomID)
	if r != nil {
		defer r.mu.Unlock()
	}

	appendCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	m, err := b.log.Append(appendCtx, roomID, authorID, body)
	if err != nil {
		return relay.Message{}, fmt.Errorf("%w: %v", relay.ErrAppendFailed, err)
	}

	if r != nil {
		b.fanOutLocked(r, roomID, relay.NewMessageEvent(m))
	}
	return m, nil
}

// PublishEdit rewrites an existing message owned by authorID and broadcasts
// the correction. Same durable-then-broadcast contract as PublishMessage.
func (b *Bus) PublishEdit(ctx context.Context, roomID string, messageID int64, authorID string, body string) (relay.Message, error) {
	if err := b.checkMember(ctx, roomID, authorID); err != nil {
		return relay.Message{}, err
	}

	r := b.lockRoom(roomID)
	if r != nil {
		defer r.mu.Unlock()
	}

	editCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	m, err := b.log.Edit(editCtx, roomID, messageID, authorID, body)
	if errors.Is(err, relay.ErrMessageNotFound) {
		return relay.Message{}, err
	}
	if err != nil {
		return relay.Message{}, fmt.Errorf("%w: %v", relay.ErrAppendFailed, err)
	}

	if r != nil {
		b.fanOutLocked(r, roomID, relay.NewMessageEvent(m))
	}
	return m, nil
}

// PublishDelete tombstones a message owned by authorID and broadcasts the
// deletion.
func (b *Bus) PublishDelete(ctx context.Context, roomID string, messageID int64, authorID string) error {
	if err := b.checkMember(ctx, roomID, authorID); err != nil {
		return err
	}

	r := b.lockRoom(roomID)
	if r != nil {
		defer r.mu.Unlock()
	}

	delCtx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	err := b.log.Delete(delCtx, roomID, messageID, authorID)
	if errors.Is(err, relay.ErrMessageNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", relay.ErrAppendFailed, err)
	}

	if r != nil {
		b.fanOutLocked(r, roomID, relay.MessageDeletedEvent{Type: relay.EventMessageDeleted, Room: roomID, ID: messageID})
	}
	return nil
}

// PublishEphemeral fans out a typing or presence event with no durability and
// no error reporting. It never fails the caller; partial delivery is fine.
func (b *Bus) PublishEphemeral(roomID string, event any) {
	r := b.lockRoom(roomID)
	if r == nil {
		return
	}
	b.fanOutLocked(r, roomID, event)
	r.mu.Unlock()
}

// Stats reports the number of active rooms and subscribed connections.
func (b *Bus) Stats() (rooms, subscribers int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rooms = len(b.rooms)
	for _, r := range b.rooms {
		r.mu.Lock()
		subscribers += len(r.subs)
		r.mu.Unlock()
	}
	return rooms, subscribers
}

func (b *Bus) checkMember(ctx context.Context, roomID string, userID string) error {
	ok, err := b.members.IsMember(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("%w: membership check: %v", relay.ErrNotAMember, err)
	}
	if !ok {
		return relay.ErrNotAMember
	}
	return nil
}

// lockRoom returns the live room for roomID with its lock held, or nil when
// the room has no subscribers. Rooms are only materialized by Subscribe, so
// publishing to an idle room leaves no state behind. Retries when the lookup
// races with the prune in Unsubscribe.
func (b *Bus) lockRoom(roomID string) *room {
	for {
		b.mu.RLock()
		r := b.rooms[roomID]
		b.mu.RUnlock()
		if r == nil {
			return nil
		}
		r.mu.Lock()
		if !r.dead {
			return r
		}
		r.mu.Unlock()
	}
}

func (b *Bus) getOrCreateRoom(roomID string) *room {
	b.mu.RLock()
	r := b.rooms[roomID]
	b.mu.RUnlock()
	if r != nil {
		return r
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if r = b.rooms[roomID]; r == nil {
		r = &room{subs: make(map[string]relay.Subscriber)}
		b.rooms[roomID] = r
	}
	return r
}

// fanOutLocked marshals event once and enqueues it on every subscriber.
// Caller holds r.mu. Send is non-blocking on every subscriber, so holding the
// lock across the loop is bounded work; it is what keeps fan-out order equal
// to append order for all subscribers.
func (b *Bus) fanOutLocked(r *room, roomID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("relay: marshal event")
		return
	}
	for _, sub := range r.subs {
		if err := sub.Send(payload); err != nil {
			// Drops and gone connections are invisible to the
			// publisher; catch-up reads fill the gap.
			continue
		}
	}
}
