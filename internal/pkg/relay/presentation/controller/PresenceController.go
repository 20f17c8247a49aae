package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
)

// PresenceController reads the online set of a room from the tracker. Purely
// derived state; nothing here touches a store except the membership gate.
type PresenceController struct {
	Tracker  *presence.Tracker
	Members  repository.MembershipStore
	Verifier *identity.Verifier
}

func NewPresenceController(tracker *presence.Tracker, members repository.MembershipStore, verifier *identity.Verifier) *PresenceController {
	return &PresenceController{Tracker: tracker, Members: members, Verifier: verifier}
}

func (h *PresenceController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := authedUser(c, h.Verifier)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		roomID := c.Param("roomId")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomId is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		member, err := h.Members.IsMember(ctx, roomID, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": relay.ErrNotAMember.Error()})
			return
		}

		users := h.Tracker.OnlineUsers(roomID)
		c.JSON(http.StatusOK, gin.H{"room": roomID, "online": users, "count": len(users)})
	}
}
