package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	v1 "github.com/mubasherdevv/friend-chatapp-sub000/cmd/api/router/v1"
	cacheAdapter "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/cache/adapter"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/database"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/identity"
	queueAdapter "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/queue/adapter"
	qport "github.com/mubasherdevv/friend-chatapp-sub000/internal/infrastructure/queue/port"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/application/task"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/bus"
	repoAdapter "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/adapter"
	repository "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/persistence/repository/port"
	"github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presence"
	httpHandler "github.com/mubasherdevv/friend-chatapp-sub000/internal/pkg/relay/presentation/http"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg(".env file not found or could not be loaded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := database.NewPoolFromEnv(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	verifier, err := identity.NewVerifierFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure connect identity")
	}

	repo := repoAdapter.NewPgRelayRepository(pool)

	// Membership answers go through Redis with a short TTL when available;
	// otherwise straight to Postgres.
	var members repository.MembershipStore = repo
	if cache, err := cacheAdapter.NewRedisAdapter(); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, membership checks uncached")
	} else {
		defer cache.Close()
		members = repoAdapter.NewCachedMembershipStore(repo, cache)
	}

	var queue qport.Client
	if q, err := queueAdapter.NewAsynqClientFromEnv(); err != nil {
		log.Warn().Err(err).Msg("queue unavailable, room activity updates disabled")
	} else {
		defer q.Close()
		queue = q
	}

	relayBus := bus.New(members, repo)
	tracker := presence.NewTracker()

	// runCtx ends on SIGINT/SIGTERM; the worker and the HTTP server both
	// shut down from it so the deferred pool/cache/queue cleanup runs.
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the worker in-process when the queue is configured.
	if queue != nil {
		srv, err := queueAdapter.NewAsynqServer()
		if err != nil {
			log.Warn().Err(err).Msg("asynq server not started")
		} else {
			task.RegisterRoomActivityTask(srv, repo)
			go func() {
				if err := srv.Run(runCtx); err != nil {
					log.Error().Err(err).Msg("asynq server stopped")
				}
			}()
		}
	}

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/", func(c *gin.Context) {
		rooms, subscribers := relayBus.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "OK",
			"rooms":       rooms,
			"connections": subscribers,
		})
	})

	v1.RegisterRoutes(r, httpHandler.Deps{
		Bus:      relayBus,
		Tracker:  tracker,
		Members:  members,
		Log:      repo,
		Queue:    queue,
		Verifier: verifier,
	})

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server exited")
		}
	}()
	log.Info().Str("addr", addr).Msg("listening")

	<-runCtx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
