// Command backplane is the Developer Productivity Backplane's single
// entrypoint: it composes the Memory Abstraction Layer (components
// A-G) and the Sprint Automation Daemon (components H-N) and exposes
// them over one HTTP/JSON process bus (spec §6).
//
// Subcommands:
//
//	backplane run       start the daemon loop + IPC surface (default)
//	backplane --status  query a running daemon's state and print JSON
//	backplane --stop    call a running daemon's stop method, which clears
//	                    manually_started; the daemon process keeps running
//	backplane --list    print the current sprint's issue list
//	backplane --dbus    start the IPC surface only, no scheduler loop
//
// Exit code 0 on normal operation, nonzero on a configuration error or
// an unreachable daemon for the query subcommands (spec §7 ConfigError).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/devbackplane/backplane/internal/config"
	"github.com/devbackplane/backplane/internal/database"
	"github.com/devbackplane/backplane/pkg/memory"
	"github.com/devbackplane/backplane/pkg/memory/adapters/pgvector"
	"github.com/devbackplane/backplane/pkg/memory/adapters/yamladapter"
	"github.com/devbackplane/backplane/pkg/memory/inference"
	"github.com/devbackplane/backplane/pkg/metrics"
	"github.com/devbackplane/backplane/pkg/sprint"
	"github.com/devbackplane/backplane/pkg/sprint/agent"
	"github.com/devbackplane/backplane/pkg/sprint/chatpeer"
	"github.com/devbackplane/backplane/pkg/sprint/ipc"
	"github.com/devbackplane/backplane/pkg/sprint/notify"
	"github.com/devbackplane/backplane/pkg/sprint/policy"
	"github.com/devbackplane/backplane/pkg/sprint/trackerclient"
	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// Environment variables read at startup (spec §6 "auth token, optional
// base URL override; state root / plugin dir paths; optional
// inference endpoint URL").
const (
	envTrackerToken    = "BACKPLANE_TRACKER_TOKEN"
	envTrackerBaseURL  = "BACKPLANE_TRACKER_BASE_URL"
	envTrackerBinary   = "BACKPLANE_TRACKER_BINARY"
	envAgentBinary     = "BACKPLANE_AGENT_BINARY"
	envStateRoot       = "BACKPLANE_STATE_ROOT"
	envPluginDir       = "BACKPLANE_PLUGIN_DIR"
	envInferenceURL    = "BACKPLANE_INFERENCE_ENDPOINT"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("backplane", flag.ContinueOnError)
	configPath := fs.String("config", "backplane.yaml", "path to YAML config")
	status := fs.Bool("status", false, "print running daemon state and exit")
	stop := fs.Bool("stop", false, "clear manually_started on a running daemon (the process keeps running) and exit")
	list := fs.Bool("list", false, "print the current sprint issue list and exit")
	dbusOnly := fs.Bool("dbus", false, "start the IPC surface only, skip the scheduler loop")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	busAddr := "http://127.0.0.1:" + cfg.Server.HTTPPort + ipc.ObjectPath

	switch {
	case *status:
		return queryCommand(busAddr, "get_state", nil)
	case *stop:
		return queryCommand(busAddr, "stop", nil)
	case *list:
		return queryCommand(busAddr, "list_issues", nil)
	}

	app, err := build(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runLoop := !*dbusOnly
	return app.Run(ctx, runLoop)
}

// application bundles every composed component main needs to run and
// to tear down cleanly.
type application struct {
	cfg     *config.Config
	daemon  *sprint.Daemon
	mirror  *database.Mirror
	httpSrv *http.Server
	zlog    *zap.Logger
}

func (a *application) Close() {
	if a.mirror != nil {
		_ = a.mirror.Close()
	}
}

// Run starts the IPC HTTP surface (always) and, when loop is true, the
// scheduler loop, blocking until ctx is cancelled.
func (a *application) Run(ctx context.Context, loop bool) int {
	errCh := make(chan error, 2)

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if loop {
		go func() {
			if err := a.daemon.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.httpSrv.Shutdown(shutdownCtx)
		if loop {
			a.daemon.Stop()
		}
		return 0
	case err := <-errCh:
		a.zlog.Error("fatal component error", zap.Error(err))
		return 1
	}
}

// build composes the MAL and SAD stacks from cfg. When enabled, the
// pgvector store (migration plus pool ping) and the Postgres mirror
// connect to their databases here, during build, not lazily.
func build(cfg *config.Config) (*application, error) {
	logLevel := logrus.InfoLevel
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logLevel = lvl
	}
	malLog := logrus.New()
	malLog.SetLevel(logLevel)
	if cfg.Logging.Format == "json" {
		malLog.SetFormatter(&logrus.JSONFormatter{})
	}

	zapLevel := zap.NewAtomicLevel()
	_ = zapLevel.UnmarshalText([]byte(cfg.Logging.Level))
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zapLevel
	zlog, err := zapCfg.Build()
	if err != nil {
		return nil, sharederrors.NewConfigError("build logger", err)
	}

	metricsReg := metrics.New()

	stateRoot := cfg.Sprint.StateRoot
	if v := os.Getenv(envStateRoot); v != "" {
		stateRoot = v
	}
	pluginDir := cfg.Memory.PluginDir
	if v := os.Getenv(envPluginDir); v != "" {
		pluginDir = v
	}

	malIface, err := buildMemory(cfg, pluginDir, malLog, metricsReg)
	if err != nil {
		return nil, err
	}

	sprintStack, err := buildSprint(cfg, stateRoot, zlog, metricsReg)
	if err != nil {
		return nil, err
	}

	handlers := &ipc.Handlers{
		Store:     sprintStack.store,
		Executor:  sprintStack.executor,
		Planner:   sprintStack.planner,
		Daemon:    sprintStack.daemon,
		History:   sprintStack.history,
		StateRoot: stateRoot,
		Config:    &cfg.Sprint,
		ChatPeer:  sprintStack.chatPeer,
	}
	_ = malIface // the MAL façade is consumed in-process by callers embedding this binary as a library; no dedicated bus route exists for it in spec §4.M

	router := ipc.NewRouter(handlers, zlog)
	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", metricsReg.Handler())

	return &application{
		cfg:    cfg,
		daemon: sprintStack.daemon,
		mirror: sprintStack.mirror,
		httpSrv: &http.Server{
			Addr:    ":" + cfg.Server.HTTPPort,
			Handler: mux,
		},
		zlog: zlog,
	}, nil
}

// buildMemory composes components A-G.
func buildMemory(cfg *config.Config, pluginDir string, log *logrus.Logger, metricsReg *metrics.Registry) (*memory.Interface, error) {
	registry := memory.NewRegistry(log)

	yaml := yamladapter.New(pluginDir + "/yaml")
	registry.Register(&memory.AdapterInfo{
		Name:        "yaml",
		DisplayName: "YAML store",
		Capabilities: map[memory.Capability]bool{
			memory.CapabilityQuery: true, memory.CapabilitySearch: true, memory.CapabilityStore: true,
		},
		NewInstance: func() (memory.Adapter, error) { return yaml, nil },
	})

	if cfg.VectorDB.Enabled && cfg.VectorDB.Backend == "postgres" {
		migrationDB, err := pgvector.OpenMigrationDB(cfg.VectorDB.DSN)
		if err != nil {
			return nil, sharederrors.NewConfigError("open vector db", err)
		}
		if err := pgvector.Migrate(migrationDB); err != nil {
			migrationDB.Close()
			return nil, sharederrors.NewConfigError("migrate vector db", err)
		}
		migrationDB.Close()

		pool, err := pgvector.Connect(context.Background(), cfg.VectorDB.DSN)
		if err != nil {
			return nil, sharederrors.NewConfigError("connect vector db", err)
		}
		var embedder pgvector.Embedder
		if cfg.VectorDB.EmbeddingService.Service == "local" || cfg.VectorDB.EmbeddingService.Service == "" {
			embedder = pgvector.HashEmbedder{Dimension: cfg.VectorDB.EmbeddingService.Dimension}
		}
		vec := pgvector.New(pool, embedder, cfg.VectorDB.EmbeddingService.Dimension)
		registry.Register(&memory.AdapterInfo{
			Name:        "vectordb",
			DisplayName: "Postgres vector memory",
			Capabilities: map[memory.Capability]bool{
				memory.CapabilityQuery: true, memory.CapabilitySearch: true, memory.CapabilityStore: true,
			},
			LatencyClass: memory.LatencySlow,
			NewInstance:  func() (memory.Adapter, error) { return vec, nil },
		})
	}

	discovery := memory.NewDiscovery(pluginDir, registry, log)
	if err := discovery.Scan(); err != nil {
		log.WithError(err).Warn("adapter discovery scan failed")
	}
	if err := discovery.Watch(); err != nil {
		log.WithError(err).Warn("adapter discovery watch failed")
	}

	infClient, err := buildInference(cfg.Inference)
	if err != nil {
		return nil, err
	}

	classifier := memory.NewClassifier(registry, infClient, memory.DefaultIntentPatterns(), cfg.Memory.TrainingLogPath, log)
	router := memory.NewRouter(registry, classifier, cfg.Memory.HealthCacheTTL, log)
	router.SetMetrics(metricsReg)
	executor := memory.NewExecutor(registry, cfg.Memory.DefaultDeadline, log)
	executor.SetMetrics(metricsReg)

	var broadcaster *memory.Broadcaster
	if cfg.Memory.RedisAddr != "" {
		broadcaster = memory.NewBroadcaster(cfg.Memory.RedisAddr, cfg.Memory.BroadcastChannel, log)
	}

	return memory.NewInterface(registry, classifier, router, executor, broadcaster,
		cfg.Memory.MaxItems, cfg.Memory.DedupThreshold, cfg.Memory.SearchLimit, log,
		memory.WithIncludeSlow(cfg.Memory.IncludeSlow)), nil
}

func buildInference(cfg config.InferenceConfig) (inference.Client, error) {
	endpoint := cfg.Endpoint
	if v := os.Getenv(envInferenceURL); v != "" {
		endpoint = v
	}
	switch cfg.Provider {
	case "anthropic":
		return inference.NewAnthropicClient(endpoint, os.Getenv("ANTHROPIC_API_KEY"), cfg.Model, cfg.Timeout, cfg.HealthTTL), nil
	case "bedrock":
		client, err := inference.NewBedrockClient(context.Background(), cfg.AWSRegion, cfg.Model, cfg.Timeout, cfg.HealthTTL)
		if err != nil {
			return nil, sharederrors.NewConfigError("build bedrock inference client", err)
		}
		return client, nil
	default:
		return inference.NewLocalAIClient(endpoint, cfg.Model, cfg.Timeout, cfg.HealthTTL), nil
	}
}

// sprintComponents bundles the H-N constructions the IPC handlers and
// the application's Run loop both need direct references to.
type sprintComponents struct {
	store    *sprint.StateStore
	history  *sprint.History
	planner  *sprint.Planner
	executor *sprint.Executor
	reviewer *sprint.ReviewChecker
	daemon   *sprint.Daemon
	mirror   *database.Mirror
	chatPeer chatpeer.Peer
}

// buildSprint composes components H-N.
func buildSprint(cfg *config.Config, stateRoot string, zlog *zap.Logger, metricsReg *metrics.Registry) (*sprintComponents, error) {
	token := os.Getenv(envTrackerToken)
	baseURL := cfg.Tracker.BaseURLOverride
	if v := os.Getenv(envTrackerBaseURL); v != "" {
		baseURL = v
	}
	trackerBinary := os.Getenv(envTrackerBinary)
	if trackerBinary == "" {
		trackerBinary = "tracker-cli"
	}
	tokenSrc := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tracker := trackerclient.NewCLIClient(trackerBinary, baseURL, tokenSrc)

	store := sprint.NewStateStore(stateRoot)
	history := sprint.NewHistory(stateRoot)

	var actionablePolicy *policy.Engine
	var mergePolicy *policy.Engine
	if cfg.Sprint.OPAPolicyPath != "" {
		var err error
		actionablePolicy, err = policy.LoadActionable(context.Background(), cfg.Sprint.OPAPolicyPath)
		if err != nil {
			return nil, sharederrors.NewConfigError("load actionable policy", err)
		}
		mergePolicy, err = policy.LoadMergeable(context.Background(), cfg.Sprint.OPAPolicyPath)
		if err != nil {
			return nil, sharederrors.NewConfigError("load merge policy", err)
		}
	}

	weights := sprint.PrioritizerWeights{
		Priority: cfg.Sprint.PrioritizerWeights.Priority,
		Points:   cfg.Sprint.PrioritizerWeights.Points,
		Age:      cfg.Sprint.PrioritizerWeights.Age,
		Type:     cfg.Sprint.PrioritizerWeights.Type,
	}
	planner := sprint.NewPlanner(tracker, store, cfg.Sprint.TrackerProject, cfg.Sprint.TrackerComponent,
		cfg.Sprint.LocalUser, weights, cfg.Sprint.ActionableStatuses, actionablePolicy, malLoggerFor(cfg))

	agentBinary := os.Getenv(envAgentBinary)
	if agentBinary == "" {
		agentBinary = "headless-agent"
	}
	invoker := agent.NewInvoker(agentBinary)

	// No UI chat peer has registered over this bus yet (spec §6): the
	// daemon and the IPC surface's open_in_cursor share the same
	// Unavailable{} stub until one dials in.
	var chatPeer chatpeer.Peer = chatpeer.Unavailable{}

	executor := sprint.NewExecutor(store, history, stateRoot, tracker, chatPeer, invoker, planner,
		cfg.Sprint.BackgroundAgentTimeout, zlog)

	reviewer := sprint.NewReviewChecker(store, tracker, invoker, cfg.Sprint.ReviewStatuses, mergePolicy, zlog)

	var notifier *notify.Notifier
	if cfg.Notify.SlackEnabled {
		notifier = notify.New(os.Getenv("SLACK_TOKEN"), cfg.Notify.SlackChannel, zlog)
	}

	daemon := sprint.NewDaemon(store, planner, executor, reviewer, notifier, cfg.Sprint.WorkingHours,
		time.Duration(cfg.Sprint.CheckIntervalSeconds)*time.Second,
		time.Duration(cfg.Sprint.TrackerRefreshIntervalSecs)*time.Second,
		time.Duration(cfg.Sprint.ReviewCheckIntervalSecs)*time.Second,
		zlog)
	daemon.SetMetrics(metricsReg)

	var mirror *database.Mirror
	if cfg.PostgresMirror.Enabled {
		m, err := database.Open(cfg.PostgresMirror.DSN)
		if err != nil {
			return nil, sharederrors.NewConfigError("open postgres mirror", err)
		}
		mirror = m
		daemon.SetMirror(mirror.Write)
	}

	return &sprintComponents{
		store: store, history: history, planner: planner, executor: executor,
		reviewer: reviewer, daemon: daemon, mirror: mirror, chatPeer: chatPeer,
	}, nil
}

func malLoggerFor(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// queryCommand makes one JSON POST against a running daemon's IPC
// surface and prints the response body, matching spec §6's --status /
// --stop / --list contract: nonzero exit if the daemon is unreachable.
func queryCommand(busAddr, method string, body interface{}) int {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequest(http.MethodPost, busAddr+"/"+method, bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon unreachable:", err)
		return 1
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintln(os.Stderr, "malformed daemon response:", err)
		return 1
	}
	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
	if ok, _ := out["success"].(bool); !ok {
		return 1
	}
	return 0
}
