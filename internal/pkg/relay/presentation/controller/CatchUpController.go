package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/application/usecase"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
)

// CatchUpController serves the polling/reconnect read: messages after the
// client's last seen sequence id (one controller per endpoint).
type CatchUpController struct {
	UC       *usecase.CatchUpUseCase
	Verifier *identity.Verifier
}

func NewCatchUpController(uc *usecase.CatchUpUseCase, verifier *identity.Verifier) *CatchUpController {
	return &CatchUpController{UC: uc, Verifier: verifier}
}

func (h *CatchUpController) Handle() gin.HandlerFunc {
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

		var afterID int64
		if v := c.Query("after_id"); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
				afterID = n
			}
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.CatchUpInput{
			RoomID:  roomID,
			UserID:  userID,
			AfterID: afterID,
			Limit:   limit,
		})
		if err != nil {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, relay.ErrNotAMember):
				status = http.StatusForbidden
			case errors.Is(err, usecase.ErrPersistence):
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		out := make([]gin.H, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, gin.H{
				"id":      m.ID,
				"room":    m.Room,
				"author":  m.Author,
				"body":    m.Body,
				"ts":      m.CreatedAt,
				"edited":  m.Edited,
				"deleted": m.Deleted,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": out,
			"after_id": afterID,
			"count":    len(out),
		})
	}
}
