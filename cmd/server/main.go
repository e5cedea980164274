package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/huddle/internal/arena"
	"github.com/mbeoliero/huddle/internal/config"
	"github.com/mbeoliero/huddle/internal/entity"
	"github.com/mbeoliero/huddle/internal/fanout"
	"github.com/mbeoliero/huddle/internal/gateway"
	"github.com/mbeoliero/huddle/internal/identity"
	"github.com/mbeoliero/huddle/internal/middleware"
	"github.com/mbeoliero/huddle/internal/notify"
	"github.com/mbeoliero/huddle/internal/presence"
	"github.com/mbeoliero/huddle/internal/repository"
	"github.com/mbeoliero/huddle/internal/router"
	"github.com/mbeoliero/huddle/internal/service"
	"github.com/mbeoliero/huddle/pkg/constant"
	"github.com/mbeoliero/huddle/pkg/idgen"
	"github.com/mbeoliero/huddle/pkg/jwt"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "config loaded: mode=%s, store=%s", cfg.Server.Mode, cfg.Store.Driver)

	gen, err := idgen.NewSonyflakeGenerator(cfg.Server.MachineId)
	if err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}
	idgen.SetDefaultGenerator(gen)

	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	rdb := repository.NewRedis(cfg)
	if rdb != nil {
		log.CtxInfo(ctx, "redis enabled: addr=%s, key_prefix=%s", cfg.Redis.Addr(), constant.GetRedisKeyPrefix())
	}

	store, resolver, err := openStore(ctx, cfg, rdb)
	if err != nil {
		log.CtxError(ctx, "failed to open store: %v", err)
		panic(err)
	}

	// Engine
	hub := fanout.NewHub(cfg.Engine.SessionBufferSize)
	trackerOpts := []presence.Option{presence.WithExpireFunc(service.DetachOnExpire(hub))}
	if rdb != nil {
		trackerOpts = append(trackerOpts, presence.WithMirror(presence.NewRedisMirror(rdb)))
	}
	tracker := presence.NewTracker(cfg.Engine.PresenceTimeout, trackerOpts...)
	workers := arena.New(cfg.Engine.WorkerQueueSize, cfg.Engine.WorkerIdleTimeout)

	var (
		dispatcher notify.Dispatcher = notify.LogDispatcher{}
		worker     *notify.Worker
	)
	if cfg.Notify.Enabled {
		asynqDispatcher := notify.NewAsynqDispatcher(&cfg.Redis, &cfg.Notify)
		dispatcher = asynqDispatcher
		defer asynqDispatcher.Close()

		worker = notify.NewWorker(&cfg.Redis, &cfg.Notify, tracker, nil)
		if err := worker.Start(); err != nil {
			log.CtxError(ctx, "failed to start notify worker: %v", err)
			panic(err)
		}
		log.CtxInfo(ctx, "notify worker started: queue=%s", cfg.Notify.Queue)
	}

	services := service.NewServices(&service.Deps{
		Store:      store,
		Resolver:   resolver,
		Arena:      workers,
		Hub:        hub,
		Presence:   tracker,
		Dispatcher: dispatcher,
		Engine:     cfg.Engine,
	})
	go services.Presence.Run(ctx)

	wsServer := gateway.NewWsServer(&cfg.WebSocket, func(token string) (*jwt.Claims, error) {
		return middleware.ParseTokenWithFallback(token, cfg)
	}, services, gateway.WithAllowedOrigins(cfg.Server.AllowedOrigins))

	// Create Hertz server
	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
		server.WithExitWaitTime(5*time.Second),
	)
	router.SetupRouter(h.Engine, cfg, router.NewHandlers(services), wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)
	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	wsServer.Shutdown(shutdownCtx)
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}
	cancel()
	if worker != nil {
		worker.Shutdown()
	}
	workers.Close()
	if err := store.Close(); err != nil {
		log.CtxWarn(ctx, "store close error: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	log.CtxInfo(ctx, "server stopped")
}

// openStore returns the durable store and the identity directory for the configured driver
func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (repository.Store, identity.Resolver, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		resolver := identity.NewStaticResolver()
		for _, u := range cfg.Store.Users {
			resolver.Add(&entity.User{Id: u.Id, Identifier: u.Identifier, Nickname: u.Nickname})
		}
		log.CtxWarn(ctx, "using in-memory store, nothing is persisted: seeded_users=%d", len(cfg.Store.Users))
		return repository.NewMemoryStore(), resolver, nil
	}

	repos, err := repository.NewRepositories(cfg, rdb)
	if err != nil {
		return nil, nil, err
	}
	if err := repos.CheckConnection(ctx); err != nil {
		_ = repos.Close()
		return nil, nil, err
	}
	log.CtxInfo(ctx, "database connection established")
	return repos, identity.NewDBResolver(repos.User), nil
}
