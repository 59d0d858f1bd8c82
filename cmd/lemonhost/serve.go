package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/lemonhost/internal/config"
	"github.com/oriys/lemonhost/internal/discovery"
	"github.com/oriys/lemonhost/internal/hostcall"
	"github.com/oriys/lemonhost/internal/logging"
	"github.com/oriys/lemonhost/internal/metrics"
	"github.com/oriys/lemonhost/internal/observability"
	"github.com/oriys/lemonhost/internal/quota"
	"github.com/oriys/lemonhost/internal/sandbox"
	"github.com/oriys/lemonhost/internal/wire"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var paths []string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sidecar, speaking the wire protocol over stdio",
		Long:  "Loads every discovered tool, then reads hello/discover/invoke/host_call_result/shutdown requests from stdin and writes responses and host_call events to stdout, one JSON object per line, until shutdown or EOF.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if len(paths) > 0 {
				cfg.Discovery.Paths = paths
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			if cfg.Quota.Enabled {
				sandbox.SetQuotaLimiter(buildQuotaLimiter(cfg.Quota))
			}

			d := newDaemon(cfg)
			defer d.shutdown()

			if err := d.discoverAndRegister(context.Background()); err != nil {
				logging.Op().Warn("discovery completed with errors", "error", err)
			}

			var metricsServer *metricsHTTPServer
			if cfg.Daemon.MetricsAddr != "" {
				metricsServer = startMetricsServer(cfg.Daemon.MetricsAddr)
				defer metricsServer.shutdown()
			}

			logging.Op().Info("lemonhost serve started", "tools", len(d.toolNames()), "workspace_root", cfg.Daemon.WorkspaceRoot)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			done := make(chan struct{})
			go func() {
				d.run(context.Background())
				close(done)
			}()

			select {
			case <-sigCh:
				logging.Op().Info("shutdown signal received")
			case <-done:
				logging.Op().Info("stdin closed, shutting down")
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&paths, "paths", nil, "Directories to scan for .wasm tools (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

// buildQuotaLimiter wires the opt-in sliding-window extension over Redis
// when a URL is configured, falling back to an in-process-only limiter
// otherwise (still useful for sharing budget across concurrent invocations
// within this one sidecar).
func buildQuotaLimiter(cfg config.QuotaConfig) *quota.Limiter {
	if cfg.RedisURL == "" {
		return quota.New(quota.NewLocalBackend())
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logging.Op().Warn("invalid quota redis url, falling back to local", "error", err)
		return quota.New(quota.NewLocalBackend())
	}
	client := redis.NewClient(opts)
	return quota.New(quota.NewFallbackBackend(quota.NewRedisBackend(client)))
}

// daemon holds every piece of long-lived state a serve invocation wires
// together: the invocation engine, the host-call coordinator bridging
// delegated guest calls across the wire, and the stdio transport itself.
type daemon struct {
	cfg    *config.Config
	engine *sandbox.Engine
	coord  *hostcall.Coordinator
	out    *wire.Writer

	mu    sync.Mutex
	tools []discovery.Tool
}

func newDaemon(cfg *config.Config) *daemon {
	d := &daemon{
		cfg:    cfg,
		engine: sandbox.NewEngine(),
		out:    wire.NewWriter(os.Stdout),
	}
	d.coord = hostcall.New(func(ev hostcall.Event) {
		_ = d.out.Emit(wire.OutboundEvent{
			Type:       "event",
			Event:      "host_call",
			RequestID:  ev.RequestID,
			CallID:     ev.CallID,
			Tool:       ev.Tool,
			ParamsJSON: ev.ParamsJSON,
		})
	})
	return d
}

func (d *daemon) toolNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, len(d.tools))
	for i, t := range d.tools {
		names[i] = t.Name
	}
	return names
}

// discoverAndRegister runs the configured scan and registers every
// successfully loaded tool with the engine, sharing the engine's
// compilation cache with the metadata probe instantiation discovery does.
func (d *daemon) discoverAndRegister(ctx context.Context) error {
	if len(d.cfg.Discovery.Paths) == 0 {
		return nil
	}
	defaults := sandbox.Defaults{
		MemoryBytes:    d.cfg.Discovery.DefaultMemoryLimit,
		TimeoutMs:      d.cfg.Discovery.DefaultTimeoutMs,
		Fuel:           d.cfg.Discovery.DefaultFuelLimit,
		MaxInvokeDepth: d.cfg.Discovery.MaxToolInvokeDepth,
	}
	result := discovery.Scan(ctx, d.engine.Cache(), defaults, d.cfg.Discovery.Paths)

	d.mu.Lock()
	d.tools = result.Tools
	d.mu.Unlock()

	for _, t := range result.Tools {
		d.engine.Register(discovery.ToPrepared(t, defaults))
	}
	metrics.SetToolsLoaded(len(result.Tools))

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d artifact(s) failed to load", len(result.Errors))
	}
	return nil
}

// run is the main request loop: it reads requests until stdin closes,
// dispatching invoke requests onto their own goroutine so a suspended
// host-call delegation never blocks unrelated requests from being served.
func (d *daemon) run(ctx context.Context) {
	reqs := wire.StartReader(os.Stdin, logging.Op())

	var wg sync.WaitGroup
	defer wg.Wait()

	for req := range reqs {
		switch req.Type {
		case wire.TypeHello:
			d.handleHello(req)
		case wire.TypeDiscover:
			d.handleDiscover(ctx, req)
		case wire.TypeInvoke:
			wg.Add(1)
			go func(req wire.Request) {
				defer wg.Done()
				d.handleInvoke(ctx, req)
			}(req)
		case wire.TypeHostCallResult:
			d.handleHostCallResult(req)
		case wire.TypeShutdown:
			if resp, err := wire.NewResponse(req.ID, map[string]bool{"stopped": true}); err == nil {
				_ = d.out.Emit(resp)
			}
			return
		default:
			_ = d.out.Emit(wire.NewErrorResponse(req.ID, "unknown request type: "+req.Type))
		}
	}
}

func (d *daemon) handleHello(req wire.Request) {
	const protocolVersion = 1
	if req.Version != 0 && req.Version != protocolVersion {
		_ = d.out.Emit(wire.NewErrorResponse(req.ID, fmt.Sprintf("unsupported protocol version %d (host speaks %d)", req.Version, protocolVersion)))
		return
	}
	resp, _ := wire.NewResponse(req.ID, map[string]any{
		"version":      protocolVersion,
		"name":         "lemonhost",
		"tools_loaded": len(d.toolNames()),
	})
	_ = d.out.Emit(resp)
}

func (d *daemon) handleDiscover(ctx context.Context, req wire.Request) {
	defaults := sandbox.Defaults{
		MemoryBytes:    req.Defaults.DefaultMemoryLimit,
		TimeoutMs:      req.Defaults.DefaultTimeoutMs,
		Fuel:           req.Defaults.DefaultFuelLimit,
		MaxInvokeDepth: req.Defaults.MaxToolInvokeDepth,
	}
	if defaults.MemoryBytes == 0 {
		defaults = sandbox.DefaultDefaults()
	}
	paths := req.Paths
	if len(paths) == 0 {
		paths = d.cfg.Discovery.Paths
	}

	result := discovery.Scan(ctx, d.engine.Cache(), defaults, paths)

	d.mu.Lock()
	d.tools = result.Tools
	d.mu.Unlock()

	tools := make([]wire.DiscoveredTool, 0, len(result.Tools))
	for _, t := range result.Tools {
		d.engine.Register(discovery.ToPrepared(t, defaults))
		capsJSON, err := json.Marshal(t.Capabilities.Summarize())
		if err != nil {
			capsJSON = json.RawMessage("{}")
		}
		tools = append(tools, wire.DiscoveredTool{
			Name:         t.Name,
			Path:         t.Path,
			Description:  t.Description,
			SchemaJSON:   t.SchemaJSON,
			Capabilities: capsJSON,
			Auth:         t.Auth,
		})
	}
	metrics.SetToolsLoaded(len(result.Tools))

	resp, err := wire.NewResponse(req.ID, wire.DiscoverResult{
		Tools:    tools,
		Warnings: result.Warnings,
		Errors:   result.Errors,
	})
	if err != nil {
		_ = d.out.Emit(wire.NewErrorResponse(req.ID, err.Error()))
		return
	}
	_ = d.out.Emit(resp)
}

func (d *daemon) handleInvoke(ctx context.Context, req wire.Request) {
	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	delegate := &coordinatorDelegate{ctx: ctx, requestID: requestID, coord: d.coord}

	result, err := d.engine.Invoke(ctx, requestID, req.Tool, req.ParamsJSON, req.ContextJSON, 0, delegate, d.cfg.Daemon.WorkspaceRoot)
	if err != nil {
		_ = d.out.Emit(wire.NewErrorResponse(req.ID, err.Error()))
		return
	}

	logs := make([]wire.RuntimeLog, 0, len(result.Logs))
	now := time.Now().UnixMilli()
	for _, line := range result.Logs {
		logs = append(logs, wire.RuntimeLog{Level: "info", Message: line, TimestampMillis: now})
	}

	outputJSON := result.OutputJSON
	resp, err := wire.NewResponse(req.ID, wire.InvokeResult{
		OutputJSON: &outputJSON,
		Logs:       logs,
		Details:    result.Details,
	})
	if err != nil {
		_ = d.out.Emit(wire.NewErrorResponse(req.ID, err.Error()))
		return
	}
	_ = d.out.Emit(resp)
}

func (d *daemon) handleHostCallResult(req wire.Request) {
	d.coord.Deliver(req.CallID, hostcall.Result{OK: req.OK, OutputJSON: req.OutputJSON, Error: req.Error})
	if resp, err := wire.NewResponse(req.ID, map[string]bool{"accepted": true}); err == nil {
		_ = d.out.Emit(resp)
	}
}

func (d *daemon) shutdown() {
	d.coord.Close()
	_ = d.engine.Close(context.Background())
}

// coordinatorDelegate implements sandbox.Delegate by turning every secret
// lookup and nested tool invocation into a host-call round trip over the
// coordinator, reusing the same suspend/resume machinery tool_invoke
// delegation already relies on (see internal/hostcall's reserved secret
// targets).
type coordinatorDelegate struct {
	ctx       context.Context
	requestID string
	coord     *hostcall.Coordinator
}

func (c *coordinatorDelegate) SecretExists(name string) (bool, bool) {
	raw, err := c.coord.Delegate(c.ctx, c.requestID, hostcall.TargetSecretExists, fmt.Sprintf(`{"name":%q}`, name))
	if err != nil {
		return false, false
	}
	return hostcall.ParseSecretExistsReply(raw)
}

func (c *coordinatorDelegate) ResolveSecret(name string) (string, bool, error) {
	raw, err := c.coord.Delegate(c.ctx, c.requestID, hostcall.TargetSecretResolve, fmt.Sprintf(`{"name":%q}`, name))
	if err != nil {
		return "", false, err
	}
	value, ok := hostcall.ParseSecretValueReply(raw)
	return value, ok, nil
}

func (c *coordinatorDelegate) ToolInvoke(requestID, alias, paramsJSON string) (string, error) {
	return c.coord.Delegate(c.ctx, requestID, alias, paramsJSON)
}
