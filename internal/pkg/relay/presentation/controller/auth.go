package controller

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
)

// authedUser resolves the caller's user id from a bearer token or, for
// clients that cannot set headers, a `token` query parameter. Same token the
// websocket handshake uses.
func authedUser(c *gin.Context, verifier *identity.Verifier) (string, bool) {
	token := c.Query("token")
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		return "", false
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		return "", false
	}
	return claims.UserID, true
}
