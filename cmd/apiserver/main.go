// Command apiserver runs the HTTP intake surface and Live Event Endpoint
// (spec.md §6, §4.I): it accepts task submissions, answers task/snapshot
// lookups, and upgrades /ws/monitor to a filtered WebSocket event stream.
//
// Grounded on the teacher's cmd/tarsy/main.go gin.Default()/router.Run
// wiring shape, and on goadesign-goa-ai's example/cmd/assistant/http.go
// http.Server/Shutdown pattern for draining in-flight connections on
// SIGINT/SIGTERM instead of tarsy's bare, unbounded router.Run.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/api"
	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/live"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/queue"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
)

// shutdownGrace bounds how long apiserver waits for in-flight HTTP and
// WebSocket connections to drain before forcing an exit.
const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("NEXUS_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", getEnv("NEXUS_HTTP_ADDR", ":8080"), "HTTP listen address")
	projectID := flag.String("project-id", os.Getenv("NEXUS_PROJECT_ID"), "Project id tagged onto tasks this process enqueues")
	flag.Parse()

	log := slog.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("apiserver: load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(parseRedisOptions(cfg.RedisURL))
	defer rdb.Close()

	st, err := store.Open(ctx, store.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("apiserver: open knowledge store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mon := monitor.New(rdb, cfg.Monitor, log)

	q := queue.New(rdb, cfg.Queue)
	hb := queue.NewHeartbeat(queue.RedisAdapter{RDB: rdb}, cfg.Queue)

	liveManager := live.NewManager(5*time.Second, log)
	subscriber := live.NewSubscriber(rdb, liveManager, log)
	go func() {
		if err := subscriber.Run(ctx, cfg.Monitor.EventsChannel, cfg.Monitor.StatsChannel, cfg.Monitor.ProjectChannelPrefix); err != nil && ctx.Err() == nil {
			log.Error("apiserver: live subscriber exited", "error", err)
		}
	}()

	srv := api.NewServer(st, q, hb, mon, liveManager, *projectID, log)

	gin.SetMode(getEnv("GIN_MODE", "release"))
	router := gin.Default()
	srv.Register(router)

	httpServer := &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info("apiserver: listening", "addr", *addr)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			log.Error("apiserver: listen", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		log.Info("apiserver: shutting down, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("apiserver: forced shutdown", "error", err)
		}
	}

	log.Info("apiserver: exited cleanly")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseRedisOptions(url string) *redis.Options {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return &redis.Options{Addr: url}
	}
	return opts
}
