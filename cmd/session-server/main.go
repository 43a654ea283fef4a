package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/park285/Cheese-session-server/internal/config"
	"github.com/park285/Cheese-session-server/internal/archive"
	"github.com/park285/Cheese-session-server/internal/board"
	"github.com/park285/Cheese-session-server/internal/bot"
	"github.com/park285/Cheese-session-server/internal/hub"
	"github.com/park285/Cheese-session-server/internal/identity"
	"github.com/park285/Cheese-session-server/internal/ledger"
	"github.com/park285/Cheese-session-server/internal/msgcat"
	"github.com/park285/Cheese-session-server/internal/obslog"
	"github.com/park285/Cheese-session-server/internal/pgdb"
	"github.com/park285/Cheese-session-server/internal/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_exit", zap.Error(err))
		obslog.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appcfg.AppConfig, logger *zap.Logger) error {
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("message catalog: %w", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = pgdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := pgdb.Migrate(ctx, db); err != nil {
				return err
			}
		}
	}

	store, closeStore, err := openStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := buildVerifier(cfg, db)
	if err != nil {
		return err
	}

	opts := session.Options{BotMoveDelay: cfg.BotMoveDelay}
	if cfg.BotEnabled {
		mover, closeMover, err := buildMover(cfg, logger)
		if err != nil {
			return err
		}
		defer closeMover()
		opts.Mover = mover
	}
	if cfg.ArchiveEnabled {
		if db != nil {
			opts.Archive = archive.NewPostgresRepository(db)
		} else {
			opts.Archive = archive.NewMemoryRepository()
		}
	}

	co := session.New(ledger.New(store, logger), cat, opts, logger)
	coErr := make(chan error, 1)
	go func() { coErr <- co.Run(ctx) }()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.NewServer(verifier, co, hub.Options{
		OriginPatterns: cfg.AllowedOrigins,
		SendBuffer:     cfg.SendBuffer,
		VerifyTimeout:  cfg.IdentityTimeout,
	}, logger))
	mux.Handle("/board.png", board.Handler(func(ctx context.Context) ([]string, error) {
		snap, err := co.State(ctx)
		if err != nil {
			return nil, err
		}
		return ledger.HalfMovesOf(snap.Records), nil
	}, logger))
	if opts.Archive != nil {
		games := archive.Handler(opts.Archive, logger)
		mux.Handle("/games", games)
		mux.Handle("/games/", games)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("server_listen",
			zap.String("addr", cfg.ListenAddr),
			zap.String("move_store", cfg.MoveStore),
			zap.String("identity_mode", cfg.IdentityMode),
			zap.Bool("bot", cfg.BotEnabled),
			zap.Bool("archive", cfg.ArchiveEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case err := <-coErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("coordinator stopped: %w", err)
		}
	}

	logger.Info("server_shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; the coordinator
	// closes them when ctx is cancelled.
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("server_shutdown_error", zap.Error(err))
	}
	select {
	case <-coErr:
	case <-sctx.Done():
	}
	return nil
}

func openStore(ctx context.Context, cfg *appcfg.AppConfig, db *sql.DB) (ledger.Store, func(), error) {
	switch cfg.MoveStore {
	case appcfg.StorePostgres:
		return ledger.NewPostgresStore(db), func() {}, nil
	case appcfg.StoreRedis:
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(ropts)
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return ledger.NewRedisStore(rdb, cfg.RedisMovesKey), func() { _ = rdb.Close() }, nil
	default:
		return ledger.NewMemoryStore(), func() {}, nil
	}
}

func buildVerifier(cfg *appcfg.AppConfig, db *sql.DB) (identity.Verifier, error) {
	switch cfg.IdentityMode {
	case appcfg.IdentityJWT:
		if db == nil {
			return nil, errors.New("jwt identity needs DATABASE_URL")
		}
		return identity.NewJWTVerifier(cfg.JWTSecret, identity.NewPostgresUsers(db)), nil
	case appcfg.IdentityRemote:
		return identity.NewRemoteVerifier(cfg.IdentityURL, identity.WithTimeout(cfg.IdentityTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown identity mode %q", cfg.IdentityMode)
	}
}

func buildMover(cfg *appcfg.AppConfig, logger *zap.Logger) (session.Mover, func(), error) {
	if cfg.BotEnginePath == "" {
		return bot.NewRandomMover(), func() {}, nil
	}
	em, err := bot.NewEngineMover(bot.EngineOptions{
		Path:       cfg.BotEnginePath,
		MoveTime:   cfg.BotEngineMoveTime,
		SkillLevel: cfg.BotSkillLevel,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("bot engine: %w", err)
	}
	return em, func() { _ = em.Close() }, nil
}
