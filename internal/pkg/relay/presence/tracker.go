package presence

import (
	"sort"
	"sync"
	"time"
)

// TypingTTL is how long a typing flag stays live without a refresh. Expiry is
// lazy: entries are filtered (and pruned) at read time, no background sweep.
const TypingTTL = 5 * time.Second

// Tracker answers "who is online in room R" and "who is typing in room R"
// from in-memory state only. Online status is derived from the set of open
// connections per (room, user): a user with two tabs stays online until both
// are gone. All state is ephemeral and rebuildable from connection lifecycle
// calls.
type Tracker struct {
	mu     sync.Mutex
	online map[string]map[string]map[string]struct{} // room -> user -> connection ids
	typing map[string]map[string]time.Time           // room -> user -> last refresh

	ttl time.Duration
	now func() time.Time // overridable in tests
}

func NewTracker() *Tracker {
	return &Tracker{
		online: make(map[string]map[string]map[string]struct{}),
		typing: make(map[string]map[string]time.Time),
		ttl:    TypingTTL,
		now:    time.Now,
	}
}

// MarkOnline records an open connection for the user in the room and reports
// whether this flipped the user from offline to online. Idempotent per
// connection id.
func (t *Tracker) MarkOnline(roomID, userID, connectionID string) (wentOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.online[roomID]
	if users == nil {
		users = make(map[string]map[string]struct{})
		t.online[roomID] = users
	}
	conns := users[userID]
	if conns == nil {
		conns = make(map[string]struct{})
		users[userID] = conns
	}
	wentOnline = len(conns) == 0
	conns[connectionID] = struct{}{}
	return wentOnline
}

// MarkOffline removes one connection and reports whether the user is now
// fully offline in the room. Unknown ids are a no-op.
func (t *Tracker) MarkOffline(roomID, userID, connectionID string) (wentOffline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.online[roomID]
	if users == nil {
		return false
	}
	conns := users[userID]
	if conns == nil {
		return false
	}
	if _, ok := conns[connectionID]; !ok {
		return false
	}
	delete(conns, connectionID)
	if len(conns) > 0 {
		return false
	}

	delete(users, userID)
	if len(users) == 0 {
		delete(t.online, roomID)
	}
	// A fully offline user is by definition not typing either.
	t.clearTypingLocked(roomID, userID)
	return true
}

// IsOnline reports whether the user holds at least one open connection to the
// room.
func (t *Tracker) IsOnline(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.online[roomID][userID]) > 0
}

// OnlineUsers returns the users currently online in the room, sorted for
// stable output.
func (t *Tracker) OnlineUsers(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]string, 0, len(t.online[roomID]))
	for u := range t.online[roomID] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// SetTyping records or refreshes the typing flag for (room, user).
func (t *Tracker) SetTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[roomID]
	if users == nil {
		users = make(map[string]time.Time)
		t.typing[roomID] = users
	}
	users[userID] = t.now()
}

// ClearTyping removes the flag immediately. Explicit typing-stop is advisory;
// the TTL remains authoritative for clients that never send it.
func (t *Tracker) ClearTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearTypingLocked(roomID, userID)
}

// TypingUsers returns users whose flag was refreshed within the TTL window,
// excluding the caller. Stale entries are pruned as they are seen.
func (t *Tracker) TypingUsers(roomID, excludeUserID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.typing[roomID]
	if len(users) == 0 {
		return nil
	}

	cutoff := t.now().Add(-t.ttl)
	var typing []string
	for u, at := range users {
		if at.Before(cutoff) {
			delete(users, u)
			continue
		}
		if u == excludeUserID {
			continue
		}
		typing = append(typing, u)
	}
	if len(users) == 0 {
		delete(t.typing, roomID)
	}
	sort.Strings(typing)
	return typing
}

func (t *Tracker) clearTypingLocked(roomID, userID string) {
	users := t.typing[roomID]
	if users == nil {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.typing, roomID)
	}
}
