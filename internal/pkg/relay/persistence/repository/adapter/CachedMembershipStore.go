package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	cacheport "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/cache/port"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// membershipTTL bounds how stale a cached membership answer can be. Kicked
// users keep receiving events for at most this long unless Invalidate is
// called on the membership-change path.
const membershipTTL = 30 * time.Second

// CachedMembershipStore is a read-through cache over a MembershipStore.
// Both positive and negative answers are cached so a flood of publishes from
// a non-member cannot hammer the backing store.
type CachedMembershipStore struct {
	inner repository.MembershipStore
	cache cacheport.Cache
}

func NewCachedMembershipStore(inner repository.MembershipStore, cache cacheport.Cache) *CachedMembershipStore {
	return &CachedMembershipStore{inner: inner, cache: cache}
}

var _ repository.MembershipStore = (*CachedMembershipStore)(nil)

func memberKey(roomID, userID string) string {
	return fmt.Sprintf("relay:member:%s:%s", roomID, userID)
}

func (s *CachedMembershipStore) IsMember(ctx context.Context, roomID string, userID string) (bool, error) {
	key := memberKey(roomID, userID)

	if v, err := s.cache.Get(ctx, key); err == nil {
		return v == "1", nil
	} else if !errors.Is(err, cacheport.ErrMiss) {
		// Cache transport error: fall through to the source of truth.
		// A broken cache must not turn into a membership denial by itself.
		_ = err
	}

	ok, err := s.inner.IsMember(ctx, roomID, userID)
	if err != nil {
		return false, err
	}

	v := "0"
	if ok {
		v = "1"
	}
	_ = s.cache.Set(ctx, key, v, membershipTTL)
	return ok, nil
}

// ListRoomsForUser is a connect-time call; it always hits the source store.
func (s *CachedMembershipStore) ListRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	return s.inner.ListRoomsForUser(ctx, userID)
}

// Invalidate drops the cached answer for (room, user). Call it from whatever
// handles membership changes so revocations take effect before the TTL runs out.
func (s *CachedMembershipStore) Invalidate(ctx context.Context, roomID string, userID string) {
	_, _ = s.cache.Del(ctx, memberKey(roomID, userID))
}
