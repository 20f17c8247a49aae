package repository

import (
	"context"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
)

// MembershipStore answers room membership questions. It is consulted at
// connect/join time and re-checked on every publish; implementations may
// cache, but only with a short TTL, never indefinitely.
type MembershipStore interface {
	IsMember(ctx context.Context, roomID string, userID string) (bool, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]string, error)
}

// MessageLog is the durable, strictly ordered per-room append log. Append
// assigns the room-scoped monotonically increasing sequence id. Callers must
// serialize Append per room (single-writer discipline); cross-room appends
// are independent.
type MessageLog interface {
	Append(ctx context.Context, roomID string, authorID string, body string) (relay.Message, error)
	ReadRange(ctx context.Context, roomID string, afterID int64, limit int) ([]relay.Message, error)
	Edit(ctx context.Context, roomID string, messageID int64, authorID string, body string) (relay.Message, error)
	Delete(ctx context.Context, roomID string, messageID int64, authorID string) error
}

// ActivityRecorder stamps a room's last-activity time. Invoked from a
// background task, never on the publish hot path.
type ActivityRecorder interface {
	TouchRoom(ctx context.Context, roomID string) error
}
