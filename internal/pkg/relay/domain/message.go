package relay

import (
	"errors"
	"strings"
	"time"
)

// Message is one entry in a room's append log. The sequence id is assigned by
// the log at append time, is monotonically increasing per room and is never
// reused. Edits and deletes flip flags and re-publish a correction event; the
// entry itself is never reordered.
type Message struct {
	ID        int64     `db:"seq"`
	Room      string    `db:"room_id"`
	Author    string    `db:"author_id"`
	Body      string    `db:"body"`
	CreatedAt time.Time `db:"created_at"`
	Edited    bool      `db:"edited"`
	Deleted   bool      `db:"deleted"`
}

// NewMessageBody validates and normalizes an inbound message body.
func NewMessageBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", errors.New("relay: empty message body")
	}
	return trimmed, nil
}
