package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	qport "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/queue/port"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/application/usecase"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/bus"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presentation/controller"
)

// Deps bundles the shared relay components the routes close over.
type Deps struct {
	Bus      *bus.Bus
	Tracker  *presence.Tracker
	Members  repository.MembershipStore
	Log      repository.MessageLog
	Queue    qport.Client // optional
	Verifier *identity.Verifier
}

// RegisterRoutes registers the relay endpoints under the given router group.
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	socketCtl := controller.NewGatewaySocketController(d.Bus, d.Tracker, d.Members, d.Queue, d.Verifier)
	catchUpCtl := controller.NewCatchUpController(usecase.NewCatchUpUseCase(d.Members, d.Log), d.Verifier)
	typingCtl := controller.NewTypingController(
		usecase.NewUpdateTypingUseCase(d.Members, d.Tracker, d.Bus),
		usecase.NewGetTypingUseCase(d.Members, d.Tracker),
		d.Verifier,
	)
	presenceCtl := controller.NewPresenceController(d.Tracker, d.Members, d.Verifier)

	// GET /api/v1/ws -> websocket gateway
	g.GET("/ws", socketCtl.Handle())

	// GET /api/v1/rooms/:roomId/messages?after_id=N -> catch-up read
	g.GET("/rooms/:roomId/messages", catchUpCtl.Handle())

	// POST/GET /api/v1/rooms/:roomId/typing -> polling typing fallback
	g.POST("/rooms/:roomId/typing", typingCtl.HandleSet())
	g.GET("/rooms/:roomId/typing", typingCtl.HandleGet())

	// GET /api/v1/rooms/:roomId/online -> derived presence snapshot
	g.GET("/rooms/:roomId/online", presenceCtl.Handle())
}
