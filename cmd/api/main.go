package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ideaboard.app/internal/audit"
	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/config"
	"ideaboard.app/internal/events"
	"ideaboard.app/internal/httpapi"
	"ideaboard.app/internal/nonce"
	"ideaboard.app/internal/obs"
	"ideaboard.app/internal/store/pg"
	"ideaboard.app/internal/stream"
	"ideaboard.app/internal/tasks"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	runner := tasks.New(tasks.WithConcurrency(cfg.TaskWorkers), tasks.WithTimeout(cfg.TaskTimeout))

	var (
		users      auth.UserStore
		tokenStore auth.TokenStore
		auditStore audit.Store
		probe      httpapi.ReadyProbe
		db         *pg.Store
	)
	if cfg.PostgresDSN != "" {
		db, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		users, tokenStore, auditStore = db.Users(), db.Tokens(), db.Audit()
		probe.DB = db
	} else {
		obs.Warn("no database configured, using in-memory stores", nil)
		mem := auth.NewMemoryStore()
		users, tokenStore, auditStore = mem, mem.Tokens(), audit.NewMemoryStore(10000)
	}

	sessions, err := auth.NewSessionIssuer(cfg.AuthSecret, auth.WithSessionTTL(cfg.SessionTTL))
	if err != nil {
		log.Fatalf("session issuer: %v", err)
	}

	var loginOpts []auth.ServiceOption
	var challenges *nonce.Store
	if cfg.RequireNonce {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		challenges, err = nonce.Dial(ctx, cfg.RedisURL, nonce.WithTTL(cfg.NonceTTL))
		cancel()
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		loginOpts = append(loginOpts, auth.WithChallenges(challenges))
		probe.Redis = challenges
	}

	live := stream.New()
	recorderOpts := []audit.Option{audit.WithPublisher(live)}
	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		publisher = events.NewPublisher(cfg.AMQPURL, cfg.AuditQueue)
		recorderOpts = append(recorderOpts, audit.WithPublisher(publisher))
	}

	proxies, err := httpapi.ParseProxyList(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("trusted proxies: %v", err)
	}

	tokens := auth.NewTokenManager(tokenStore, runner)
	guard := auth.NewGuard(sessions, tokens)
	api := httpapi.New(httpapi.Deps{
		Guard:          guard,
		Logins:         auth.NewService(users, sessions, loginOpts...),
		Tokens:         tokens,
		Admins:         auth.NewAdminResolver(users, cfg.AdminWallets),
		Audit:          audit.NewRecorder(auditStore, runner, recorderOpts...),
		Live:           live,
		Ready:          probe,
		Version:        version,
		RateBurst:      cfg.RateLimitBurst,
		RatePerSec:     cfg.RateLimitRPS,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := httpapi.NewHealthReporter(probe)
	go health.Run(ctx, 10*time.Second)

	grpcSrv := httpapi.NewGRPCServer(guard, health)
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		go func() {
			obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
			if err := grpcSrv.Serve(lis); err != nil {
				obs.Error("grpc serve failed", map[string]any{"error": err})
			}
		}()
	}

	go func() {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	if err := runner.Wait(shutdownCtx); err != nil {
		obs.Warn("background tasks did not drain", map[string]any{"error": err})
	}
	if publisher != nil {
		_ = publisher.Close()
	}
	if challenges != nil {
		_ = challenges.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	obs.Info("stopped", nil)
}
