// Command worker runs the Worker process (spec.md §4.E): it drains the
// Work Queue, drives each job through the Orchestration Pipeline, and
// exits cleanly on SIGINT/SIGTERM once its in-flight task finishes.
//
// Grounded on the teacher's cmd/tarsy/main.go flag/env wiring shape and
// goadesign-goa-ai's example/cmd/assistant/main.go signal-driven
// graceful-shutdown pattern (SIGINT/SIGTERM cancel a context; the main
// loop drains in-flight work before exiting).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nexus-research/nexus-orchestrator/pkg/agents"
	"github.com/nexus-research/nexus-orchestrator/pkg/bus"
	"github.com/nexus-research/nexus-orchestrator/pkg/config"
	"github.com/nexus-research/nexus-orchestrator/pkg/llmprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/models"
	"github.com/nexus-research/nexus-orchestrator/pkg/monitor"
	"github.com/nexus-research/nexus-orchestrator/pkg/pipeline"
	"github.com/nexus-research/nexus-orchestrator/pkg/queue"
	"github.com/nexus-research/nexus-orchestrator/pkg/searchprovider"
	"github.com/nexus-research/nexus-orchestrator/pkg/store"
	"github.com/nexus-research/nexus-orchestrator/pkg/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("NEXUS_CONFIG"), "Path to YAML config file")
	workerID := flag.String("worker-id", os.Getenv("NEXUS_WORKER_ID"), "Stable worker id (random if unset)")
	supervise := flag.Bool("supervise", true, "Run the crash-recovery Supervisor in this process")
	flag.Parse()

	log := slog.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("worker: load config", "error", err)
		os.Exit(1)
	}

	id := *workerID
	if id == "" {
		id = "worker-" + uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(parseRedisOptions(cfg.RedisURL))
	defer rdb.Close()

	st, err := store.Open(ctx, store.Config{DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		log.Error("worker: open knowledge store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	mon := monitor.New(rdb, cfg.Monitor, log)
	messagingBus := bus.New(rdb, log)

	q := queue.New(rdb, cfg.Queue)
	hb := queue.NewHeartbeat(queue.RedisAdapter{RDB: rdb}, cfg.Queue)
	delayed := queue.NewDelayedScheduler(rdb, q, cfg.Queue)
	if *supervise {
		supervisor := queue.NewSupervisor(queue.RedisAdapter{RDB: rdb}, q, hb, cfg.Queue, mon, log)
		go supervisor.Run(ctx, cfg.Queue.HeartbeatInterval)
	}
	go delayed.Run(ctx, cfg.Queue.HeartbeatInterval)

	reg := buildAgentRegistry(messagingBus, st, cfg)
	if err := reg.StartAll(ctx); err != nil {
		log.Error("worker: start agent registry", "error", err)
		os.Exit(1)
	}
	defer reg.StopAll()

	pipe := pipeline.New(messagingBus, st, mon, log)
	w := worker.New(id, q, hb, delayed, pipe, st, mon, rdb, cfg.Worker, cfg.Queue.HeartbeatInterval, log)

	if err := w.Start(ctx); err != nil {
		log.Error("worker: start", "worker_id", id, "error", err)
		os.Exit(1)
	}

	log.Info("worker: running", "worker_id", id)
	<-ctx.Done()

	log.Info("worker: shutting down, draining in-flight task", "worker_id", id)
	w.Stop()
	log.Info("worker: exited cleanly", "worker_id", id)
}

// buildAgentRegistry wires every Agent (§4.G) against the in-memory
// deterministic provider doubles named in SPEC_FULL.md §3: real
// multi-vendor LLM/search adapters are an external collaborator per
// spec.md §1 Non-goals, so a worker process ships the stub providers it
// needs to be exercisable end to end.
func buildAgentRegistry(b bus.MessagingBus, st store.KnowledgeStore, cfg *config.Config) *agents.Registry {
	reg := agents.NewRegistry(b, nil)

	llm := llmprovider.NewStub(
		`{"title":"root","description":"decomposed research task","subtopics":[]}`,
	)
	reg.Register(agents.NewDecomposer(llm, st))
	reg.Register(agents.NewPlanner())

	querySearch := searchprovider.NewCircuitBreaking(searchprovider.NewStub("query_search"))
	browserSearch := searchprovider.NewCircuitBreaking(searchprovider.NewStub("browser_search"))
	reg.Register(agents.NewSearchAgent(models.AgentTypeQuerySearch, []searchprovider.Provider{querySearch}, st))
	reg.Register(agents.NewSearchAgent(models.AgentTypeBrowserSearch, []searchprovider.Provider{browserSearch}, st))

	reg.Register(agents.NewAggregator(st))
	reg.Register(agents.NewSummarizer(llmprovider.NewStub(`{"executive_summary":"","key_findings":[],"sources":[]}`)))
	reg.Register(agents.NewReasoner(llmprovider.NewStub(`{"synthesis":"","insights":[]}`)))
	reg.Register(agents.NewArtifactGenerator(st, cfg.StoragePath))

	return reg
}

func parseRedisOptions(url string) *redis.Options {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return &redis.Options{Addr: url}
	}
	return opts
}
