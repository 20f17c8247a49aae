package usecase

import (
	"context"
	"fmt"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/bus"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// UpdateTypingInput flips the typing flag for a member. Used by both the
// websocket typing frames and the polling fallback POST, so both paths share
// the membership check and the live broadcast.
type UpdateTypingInput struct {
	RoomID   string
	UserID   string
	IsTyping bool
}

// UpdateTypingUseCase refreshes the tracker and pushes a best-effort
// user_typing event to live subscribers. The tracker TTL stays authoritative;
// the broadcast only lowers latency for connected clients.
type UpdateTypingUseCase struct {
	Members repository.MembershipStore
	Tracker *presence.Tracker
	Bus     *bus.Bus
}

func NewUpdateTypingUseCase(members repository.MembershipStore, tracker *presence.Tracker, b *bus.Bus) *UpdateTypingUseCase {
	return &UpdateTypingUseCase{Members: members, Tracker: tracker, Bus: b}
}

func (uc *UpdateTypingUseCase) Execute(ctx context.Context, in UpdateTypingInput) error {
	if in.RoomID == "" || in.UserID == "" {
		return fmt.Errorf("room_id and user_id are required")
	}

	ok, err := uc.Members.IsMember(ctx, in.RoomID, in.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return relay.ErrNotAMember
	}

	if in.IsTyping {
		uc.Tracker.SetTyping(in.RoomID, in.UserID)
	} else {
		uc.Tracker.ClearTyping(in.RoomID, in.UserID)
	}

	uc.Bus.PublishEphemeral(in.RoomID, relay.TypingEvent{
		Type:     relay.EventUserTyping,
		Room:     in.RoomID,
		User:     in.UserID,
		IsTyping: in.IsTyping,
	})
	return nil
}
