package relay

import "time"

// Server-to-client event types.
const (
	EventNewMessage      = "new_message"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventUserTyping      = "user_typing"
	EventPresenceChanged = "presence_changed"
)

// MessageEvent is the wire payload for new_message and message_edited.
type MessageEvent struct {
	Type   string    `json:"type"`
	Room   string    `json:"room"`
	ID     int64     `json:"id"`
	Author string    `json:"author"`
	Body   string    `json:"body"`
	Ts     time.Time `json:"ts"`
	Edited bool      `json:"edited,omitempty"`
}

// MessageDeletedEvent is the wire payload for message_deleted.
type MessageDeletedEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
	ID   int64  `json:"id"`
}

// TypingEvent is the wire payload for user_typing. Best-effort only.
type TypingEvent struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

// PresenceEvent is the wire payload for presence_changed. Best-effort only.
type PresenceEvent struct {
	Type   string `json:"type"`
	Room   string `json:"room"`
	User   string `json:"user"`
	Online bool   `json:"online"`
}

// NewMessageEvent builds the broadcast payload for a stored message.
func NewMessageEvent(m Message) MessageEvent {
	typ := EventNewMessage
	if m.Edited {
		typ = EventMessageEdited
	}
	return MessageEvent{
		Type:   typ,
		Room:   m.Room,
		ID:     m.ID,
		Author: m.Author,
		Body:   m.Body,
		Ts:     m.CreatedAt,
		Edited: m.Edited,
	}
}
