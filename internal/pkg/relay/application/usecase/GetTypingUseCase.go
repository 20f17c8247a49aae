package usecase

import (
	"context"
	"fmt"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// GetTypingInput reads who is typing in a room, excluding the caller.
type GetTypingInput struct {
	RoomID string
	UserID string
}

// GetTypingUseCase serves the polling read of the typing state. Expiry is
// handled inside the tracker at read time.
type GetTypingUseCase struct {
	Members repository.MembershipStore
	Tracker *presence.Tracker
}

func NewGetTypingUseCase(members repository.MembershipStore, tracker *presence.Tracker) *GetTypingUseCase {
	return &GetTypingUseCase{Members: members, Tracker: tracker}
}

func (uc *GetTypingUseCase) Execute(ctx context.Context, in GetTypingInput) ([]string, error) {
	if in.RoomID == "" || in.UserID == "" {
		return nil, fmt.Errorf("room_id and user_id are required")
	}

	ok, err := uc.Members.IsMember(ctx, in.RoomID, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return nil, relay.ErrNotAMember
	}

	return uc.Tracker.TypingUsers(in.RoomID, in.UserID), nil
}
