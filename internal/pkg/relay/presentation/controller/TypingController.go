package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/application/usecase"
	relay "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/domain"
)

// TypingController serves the polling fallback for typing indicators: POST
// flips the caller's flag, GET reads who is typing. The TTL inside the
// tracker makes an explicit stop optional.
type TypingController struct {
	UpdateUC *usecase.UpdateTypingUseCase
	GetUC    *usecase.GetTypingUseCase
	Verifier *identity.Verifier
}

func NewTypingController(updateUC *usecase.UpdateTypingUseCase, getUC *usecase.GetTypingUseCase, verifier *identity.Verifier) *TypingController {
	return &TypingController{UpdateUC: updateUC, GetUC: getUC, Verifier: verifier}
}

type setTypingRequest struct {
	IsTyping int `json:"is_typing"`
}

func (h *TypingController) HandleSet() gin.HandlerFunc {
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

		var req setTypingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		err := h.UpdateUC.Execute(ctx, usecase.UpdateTypingInput{
			RoomID:   roomID,
			UserID:   userID,
			IsTyping: req.IsTyping != 0,
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

		c.JSON(http.StatusOK, gin.H{"room": roomID, "is_typing": req.IsTyping != 0})
	}
}

func (h *TypingController) HandleGet() gin.HandlerFunc {
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

		users, err := h.GetUC.Execute(ctx, usecase.GetTypingInput{RoomID: roomID, UserID: userID})
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
		if users == nil {
			users = []string{}
		}

		c.JSON(http.StatusOK, gin.H{"room": roomID, "typing": users})
	}
}
