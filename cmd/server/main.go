package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-docsync/internal/api"
	"github.com/npezzotti/go-docsync/internal/config"
	"github.com/npezzotti/go-docsync/internal/database"
	"github.com/npezzotti/go-docsync/internal/server"
	"github.com/npezzotti/go-docsync/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	store          string
	dsn            string
	redisURL       string
	signingKey     string
	allowedOrigins stringSliceFlag
	syncCfg        = config.DefaultSyncConfig()
)

func openStore(cfg *config.Config) (database.DocumentRepository, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return database.NewPgDocumentRepository(cfg.DatabaseDSN)
	case config.StoreRedis:
		return database.NewRedisDocumentRepository(cfg.RedisURL)
	case config.StoreMemory:
		return database.NewMemoryDocumentRepository(), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&store, "store", config.StoreMemory, "snapshot store: memory, postgres or redis")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "postgres connection string")
	flag.StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "redis connection url")
	flag.StringVar(&signingKey, "signing-key", "", "base64 encoded key verifying username tokens")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&syncCfg.IdleTimeout, "idle-timeout", syncCfg.IdleTimeout, "evict sessions idle for this long")
	flag.DurationVar(&syncCfg.SweepInterval, "sweep-interval", syncCfg.SweepInterval, "how often rooms check for idle sessions")
	flag.DurationVar(&syncCfg.AutoSaveInterval, "autosave-interval", syncCfg.AutoSaveInterval, "how often rooms save changed documents")
	flag.DurationVar(&syncCfg.RoomIdleTimeout, "room-idle-timeout", syncCfg.RoomIdleTimeout, "unload empty rooms after this long")
	flag.Float64Var(&syncCfg.MessageRate, "message-rate", syncCfg.MessageRate, "inbound messages per second allowed per session")
	flag.IntVar(&syncCfg.MessageBurst, "message-burst", syncCfg.MessageBurst, "inbound message burst allowed per session")
	flag.Parse()

	logger := log.New(os.Stderr, "[go-docsync] ", log.LstdFlags)

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:     addr,
		AllowedOrigins: allowedOrigins,
		SigningSecret:  signingKey,
		Store:          store,
		DatabaseDSN:    dsn,
		RedisURL:       redisURL,
		Sync:           syncCfg,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("open %s store: %v", cfg.Store, err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	syncServer, err := server.NewSyncServer(logger, db, statsUpdater, cfg.Sync)
	if err != nil {
		logger.Fatal("new sync server:", err)
	}

	srv := api.NewDocSyncApp(mux, logger, syncServer, db, cfg)

	statsUpdater.Run()

	go syncServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down sync server...")
	if err := syncServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("sync server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
