package usecase

import (
	"context"
	"fmt"

	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// CatchUpInput asks for the messages a client missed: everything in the room
// after its last seen sequence id. This backs both the reconnect gap-fill and
// the polling fallback.
type CatchUpInput struct {
	RoomID  string
	UserID  string
	AfterID int64
	Limit   int
}

// CatchUpUseCase reads a message range for a member of the room.
type CatchUpUseCase struct {
	Members repository.MembershipStore
	Log     repository.MessageLog
}

func NewCatchUpUseCase(members repository.MembershipStore, msgLog repository.MessageLog) *CatchUpUseCase {
	return &CatchUpUseCase{Members: members, Log: msgLog}
}

func (uc *CatchUpUseCase) Execute(ctx context.Context, in CatchUpInput) ([]relay.Message, error) {
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

	msgs, err := uc.Log.ReadRange(ctx, in.RoomID, in.AfterID, in.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
