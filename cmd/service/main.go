// Command service is the single entrypoint dispatching the pipeline's four
// run modes: a synchronous one-off pipeline run, the two moderation/
// promotion agents, and the HTTP/WS gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redditcraft/commission-pipeline/app"
	"github.com/redditcraft/commission-pipeline/core/config"
	"github.com/redditcraft/commission-pipeline/core/logger"
	"github.com/redditcraft/commission-pipeline/core/services"
	"github.com/redditcraft/commission-pipeline/internal/agents"
	"github.com/redditcraft/commission-pipeline/internal/bus"
	"github.com/redditcraft/commission-pipeline/internal/pipeline"
	"github.com/redditcraft/commission-pipeline/internal/progress"
	"github.com/redditcraft/commission-pipeline/internal/queue"
	"github.com/redditcraft/commission-pipeline/internal/reddit"
	"github.com/redditcraft/commission-pipeline/internal/store"
)

// Exit codes (spec §6): 0 normal, 1 config error, 2 upstream unavailable at
// startup, 3 unrecoverable runtime.
const (
	exitOK              = 0
	exitConfigError     = 1
	exitUpstreamAtStart = 2
	exitRuntime         = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitConfigError)
	}

	switch os.Args[1] {
	case "api":
		runAPI()
	case "pipeline":
		os.Exit(runPipeline(os.Args[2:]))
	case "agent":
		os.Exit(runAgent(os.Args[2:]))
	default:
		fmt.Printf("unknown mode: %s\n", os.Args[1])
		printUsage()
		os.Exit(exitConfigError)
	}
}

func printUsage() {
	fmt.Println("usage:")
	fmt.Println("  service api")
	fmt.Println("  service pipeline --mode full [--subreddit <name>]")
	fmt.Println("  service agent community --subreddits <a,b,c> [--dry-run]")
	fmt.Println("  service agent promoter [--subreddit <name>] [--dry-run] [--single-cycle]")
}

func runAPI() {
	app.NewFxApp().Run()
}

// bootstrap wires the store/bus/queue triad every non-api mode needs,
// bypassing fx entirely — these are one-shot or long-lived CLI processes,
// not the HTTP graph.
type bootstrap struct {
	cfg   *config.AppConfig
	log   logger.Logger
	store store.Store
	bus   bus.Bus
	queue queue.TaskQueue
}

func newBootstrap() (*bootstrap, int) {
	log := logger.NewLogger()
	cfg := config.NewAppConfig()
	ctx := context.Background()

	if err := services.OpenConnection(log); err != nil {
		log.LogError(ctx, "failed to connect to database", err)
		return nil, exitUpstreamAtStart
	}

	st, err := store.NewStore(services.Connector, log)
	if err != nil {
		log.Error(ctx, "failed to initialize store", logger.Fields{"error": err.Error()})
		return nil, exitUpstreamAtStart
	}

	amqpBus, err := bus.NewAMQPBus(cfg.BusConnection, log)
	if err != nil {
		log.Error(ctx, "failed to connect to bus", logger.Fields{"error": err.Error()})
		return nil, exitUpstreamAtStart
	}

	taskQueue := queue.NewStoreQueue(st, cfg, log)

	return &bootstrap{cfg: cfg, log: log, store: st, bus: amqpBus, queue: taskQueue}, exitOK
}

func runPipeline(args []string) int {
	flags, err := parseFlags(args, map[string]bool{"subreddit": true, "mode": true}, nil)
	if err != nil {
		fmt.Println(err)
		return exitConfigError
	}

	b, code := newBootstrap()
	if b == nil {
		return code
	}
	ctx := context.Background()

	broker := progress.NewBroker(b.store, b.bus, b.log)
	redditClient := reddit.NewClient(b.cfg, b.log)
	designer := pipeline.NewDesignDeviser(b.cfg, b.log)
	imageGen := pipeline.NewImageGenerator(b.cfg, b.log)
	engine := pipeline.NewEngine(b.store, b.queue, broker, redditClient, designer, imageGen, b.cfg, b.log)

	task := &store.PipelineTask{Type: store.TaskFrontPage, Priority: queue.PriorityFrontPage}
	if subreddit := flags["subreddit"]; subreddit != "" {
		sub, err := b.store.GetOrCreateSubreddit(ctx, subreddit, subreddit, false)
		if err != nil {
			b.log.Error(ctx, "failed to resolve subreddit", logger.Fields{"error": err.Error()})
			return exitRuntime
		}
		task.Type = store.TaskSubredditPost
		task.Priority = queue.PrioritySubredditPost
		task.SubredditID = &sub.ID
	}

	if _, err := b.queue.Enqueue(ctx, task); err != nil {
		b.log.Error(ctx, "failed to enqueue task", logger.Fields{"error": err.Error()})
		return exitRuntime
	}

	claimed, err := b.queue.ClaimNext(ctx, "cli-pipeline", b.cfg.LeaseTTL)
	if err != nil {
		b.log.Error(ctx, "failed to claim enqueued task", logger.Fields{"error": err.Error()})
		return exitRuntime
	}

	if err := engine.RunTask(ctx, claimed); err != nil {
		b.log.Error(ctx, "pipeline run failed", logger.Fields{"task_id": claimed.ID.String(), "error": err.Error()})
		return exitRuntime
	}

	b.log.Info(ctx, "pipeline run completed", logger.Fields{"task_id": claimed.ID.String()})
	return exitOK
}

func runAgent(args []string) int {
	if len(args) < 1 {
		fmt.Println("usage: service agent <community|promoter> ...")
		return exitConfigError
	}
	kind := args[0]

	flags, err := parseFlags(args[1:], map[string]bool{"subreddit": true, "subreddits": true}, map[string]bool{"dry-run": true, "single-cycle": true})
	if err != nil {
		fmt.Println(err)
		return exitConfigError
	}

	b, code := newBootstrap()
	if b == nil {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redditClient := reddit.NewClient(b.cfg, b.log)
	advisor := agents.NewAdvisor(b.cfg, b.log)
	dryRun := flags["dry-run"] == "true" || b.cfg.AgentDryRun

	switch kind {
	case "community":
		if flags["subreddits"] == "" {
			fmt.Println("usage: service agent community --subreddits <a,b,c> [--dry-run]")
			return exitConfigError
		}
		subreddits := strings.Split(flags["subreddits"], ",")
		communityAgent := agents.NewCommunityAgent(redditClient, b.store, advisor, b.cfg, b.log)
		if err := communityAgent.Run(ctx, subreddits, dryRun); err != nil {
			b.log.Error(ctx, "community agent exited with error", logger.Fields{"error": err.Error()})
			return exitRuntime
		}
	case "promoter":
		singleCycle := flags["single-cycle"] == "true"
		promoterAgent := agents.NewPromoterAgent(redditClient, b.store, advisor, b.cfg, b.log)
		if err := promoterAgent.Run(ctx, flags["subreddit"], dryRun, singleCycle); err != nil {
			b.log.Error(ctx, "promoter agent exited with error", logger.Fields{"error": err.Error()})
			return exitRuntime
		}
	default:
		fmt.Printf("unknown agent: %s\n", kind)
		return exitConfigError
	}

	return exitOK
}

// parseFlags does minimal --key value / --bool-flag parsing; valueFlags and
// boolFlags name the recognized flags of each kind. Every recognized flag is
// present in the result, defaulting to "" (string) or unset (bool, read as
// the literal "true" when passed).
func parseFlags(args []string, valueFlags, boolFlags map[string]bool) (map[string]string, error) {
	result := make(map[string]string)
	for name := range valueFlags {
		result[name] = ""
	}

	for i := 0; i < len(args); i++ {
		arg := strings.TrimPrefix(args[i], "--")
		if arg == args[i] {
			return nil, fmt.Errorf("unexpected argument: %s", args[i])
		}

		if boolFlags[arg] {
			result[arg] = "true"
			continue
		}

		if !valueFlags[arg] {
			return nil, fmt.Errorf("unknown flag: --%s", arg)
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("--%s requires a value", arg)
		}
		i++
		result[arg] = args[i]
	}

	return result, nil
}
