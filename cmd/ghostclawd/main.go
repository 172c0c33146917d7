// Command ghostclawd is the agent runtime daemon: it loads a YAML config,
// wires the agent engine, memory, executor, and gateway/WebSocket/RPC
// servers together, and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesmstone/ghostclaw-sub000/internal/agent"
	"github.com/jamesmstone/ghostclaw-sub000/internal/config"
	"github.com/jamesmstone/ghostclaw-sub000/internal/contextbuilder"
	"github.com/jamesmstone/ghostclaw-sub000/internal/embeddings"
	"github.com/jamesmstone/ghostclaw-sub000/internal/executor"
	"github.com/jamesmstone/ghostclaw-sub000/internal/gateway"
	"github.com/jamesmstone/ghostclaw-sub000/internal/httpclient"
	"github.com/jamesmstone/ghostclaw-sub000/internal/memory"
	"github.com/jamesmstone/ghostclaw-sub000/internal/observability"
	"github.com/jamesmstone/ghostclaw-sub000/internal/pairing"
	"github.com/jamesmstone/ghostclaw-sub000/internal/providers"
	"github.com/jamesmstone/ghostclaw-sub000/internal/reliable"
	"github.com/jamesmstone/ghostclaw-sub000/internal/rpc"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sandbox"
	"github.com/jamesmstone/ghostclaw-sub000/internal/security"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sendpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/internal/sessions"
	"github.com/jamesmstone/ghostclaw-sub000/internal/tools"
	"github.com/jamesmstone/ghostclaw-sub000/internal/toolpolicy"
	"github.com/jamesmstone/ghostclaw-sub000/internal/ws"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	observability.SetObserver(nil)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ghostclawd",
		Short:        "GhostClaw agent runtime daemon",
		Version:      fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd(), buildHealthCmd(), buildConfigCmd())
	return root
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ghostclaw.yaml"
	}
	return filepath.Join(home, ".ghostclaw", "config.yaml")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func pidFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ghostclaw.pid"
	}
	return filepath.Join(home, ".ghostclaw", "daemon.pid")
}

// acquirePIDFile refuses to start a second daemon instance: if the PID
// file names a process that's still alive, it returns an error.
func acquirePIDFile() (release func(), err error) {
	path := pidFilePath()
	if buf, readErr := os.ReadFile(path); readErr == nil {
		if pid, convErr := strconv.Atoi(string(buf)); convErr == nil && pid > 0 {
			if processAlive(pid) {
				return nil, fmt.Errorf("ghostclawd: daemon already running (pid %d)", pid)
			}
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0600); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(path) }, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func buildRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			release, err := acquirePIDFile()
			if err != nil {
				return err
			}
			defer release()
			return runDaemon(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func buildHealthCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print whether a local daemon's PID file looks alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := pidFilePath()
			buf, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "status: not_running")
				return nil
			}
			pid, _ := strconv.Atoi(string(buf))
			if processAlive(pid) {
				fmt.Fprintf(cmd.OutOrStdout(), "status: running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "status: stale_pid_file")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file (unused, kept for symmetry)")
	return cmd
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cmd.AddCommand(buildConfigShowCmd())
	return cmd
}

func buildConfigShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration (secrets redacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			redacted := *cfg
			if redacted.APIKey != "" {
				redacted.APIKey = "***redacted***"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "default_provider: %s\n", redacted.DefaultProvider)
			fmt.Fprintf(out, "default_model: %s\n", redacted.DefaultModel)
			fmt.Fprintf(out, "memory.backend: %s\n", redacted.Memory.Backend)
			fmt.Fprintf(out, "gateway.host: %s\n", redacted.Gateway.Host)
			fmt.Fprintf(out, "gateway.port: %d\n", redacted.Gateway.Port)
			fmt.Fprintf(out, "autonomy.level: %s\n", redacted.Autonomy.Level)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration file")
	return cmd
}

func parseAutonomyLevel(level string) security.AutonomyLevel {
	switch level {
	case "read_only":
		return security.ReadOnly
	case "full":
		return security.Full
	default:
		return security.Supervised
	}
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := httpclient.New(60 * time.Second)
	registry := providers.NewRegistry(httpClient)
	primary, err := registry.Build(cfg.DefaultProvider, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("build provider: %w", err)
	}
	reliableCfg := reliable.DefaultConfig()
	reliableCfg.MaxRetries = cfg.Reliability.MaxRetries
	reliableCfg.BackoffMs = time.Duration(cfg.Reliability.BackoffMs) * time.Millisecond
	provider := reliable.New(primary, nil, reliableCfg)

	embedder := embeddings.Provider(embeddings.NewHashEmbedder(cfg.Memory.Dimension))
	memStore, err := memory.Open(memory.Config{
		Path: cfg.Memory.Path, Dimension: cfg.Memory.Dimension, EmbeddingCacheSize: cfg.Memory.EmbeddingCacheSize,
	}, embedder)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer memStore.Close()

	policy := security.New(cfg.Autonomy.WorkspaceDir, cfg.Autonomy.AllowedCommands, parseAutonomyLevel(cfg.Autonomy.Level), cfg.Autonomy.MaxActionsPerHour, cfg.Autonomy.ForbiddenPaths)

	registryTools := tools.NewRegistry()
	registryTools.Register(tools.EchoTool{})
	registryTools.Register(tools.ReadFileTool{Policy: policy})
	registryTools.Register(tools.WriteFileTool{Policy: policy})
	registryTools.Register(tools.ExecTool{Policy: policy})
	registryTools.Register(tools.FileEditTool{Policy: policy})
	registryTools.Register(tools.WebFetchTool{})
	registryTools.Register(tools.MemoryStoreTool{Memory: memStore})
	registryTools.Register(tools.MemoryRecallTool{Memory: memStore})
	registryTools.Register(tools.MemoryForgetTool{Memory: memStore})

	toolPolicy := toolpolicy.NewBuilder().WithProfile(toolpolicy.ProfileFull).Build()
	approvals := toolpolicy.NewApprovalManager(2 * time.Minute)
	sb := sandbox.New(sandbox.Config{
		Mode:        sandbox.Mode(cfg.Sandbox.Mode),
		Scope:       sandbox.Scope(cfg.Sandbox.Scope),
		Root:        cfg.Sandbox.Root,
		DeniedTools: cfg.Sandbox.DeniedTools,
	})
	exec := executor.New(registryTools, toolPolicy, approvals, sb, executor.DefaultConfig())

	ctxBuilder := &contextbuilder.Builder{WorkspaceDir: cfg.Autonomy.WorkspaceDir, Version: version, Registry: registryTools}

	engine := &agent.Engine{
		Provider:       provider,
		Executor:       exec,
		ContextBuilder: ctxBuilder,
		Memory:         memStore,
		AutoSaveMemory: true,
		Logger:         logger,
	}

	sessionDir := filepath.Join(filepath.Dir(cfg.Memory.Path), "sessions")
	if cfg.Memory.Path == ":memory:" || cfg.Memory.Path == "" {
		home, _ := os.UserHomeDir()
		sessionDir = filepath.Join(home, ".ghostclaw", "sessions")
	}
	sessionStore, err := sessions.New(sessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	sendPolicy := sendpolicy.New(sendpolicy.Config{
		Enabled: cfg.Gateway.SessionSendPolicyOn, MaxPerWindow: cfg.Gateway.MaxPerWindow, Window: cfg.Gateway.WindowDuration(),
	})

	pairState, err := pairing.New(5, filepath.Join(filepath.Dir(pidFilePath()), "pairing.json"))
	if err != nil {
		return fmt.Errorf("init pairing: %w", err)
	}
	if cfg.Gateway.RequirePairing {
		logger.Info("pairing code", "code", pairState.Code())
	}

	lanes := gateway.NewLanes()

	wsHub := ws.NewServer()
	wsHub.RequireAuthorization = cfg.Gateway.RequireAuthorization
	wsHub.Auth = pairState.ValidateBearer

	rpcHandler := &rpc.Handler{
		Engine: engine, Sessions: sessionStore, Config: cfg, Lanes: lanes,
		ProviderName: cfg.DefaultProvider,
		MemoryHealth: func(ctx context.Context) (string, error) {
			if _, err := memStore.Count(ctx); err != nil {
				return "degraded", err
			}
			return "ok", nil
		},
	}
	wsHub.RPC = func(method, session string, params map[string]any) (any, error) {
		return rpcHandler.Dispatch(ctx, method, session, params)
	}

	gwServer := &gateway.Server{
		Config: gateway.Config{
			Host: cfg.Gateway.Host, Port: cfg.Gateway.Port,
			AllowPublicBind: cfg.Gateway.AllowPublicBind, RequirePairing: cfg.Gateway.RequirePairing,
			WebSocketPort: cfg.Gateway.WebSocketPort, Version: version, ProviderName: cfg.DefaultProvider,
			SandboxEnabled: cfg.Sandbox.Enabled, WorkspaceDir: cfg.Autonomy.WorkspaceDir,
		},
		Engine: engine, Sessions: sessionStore, SendPolicy: sendPolicy, Pairing: pairState,
		Lanes: lanes, Memory: memStore, Publisher: wsHub, Logger: logger,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- gwServer.ListenAndServe(ctx) }()
	if cfg.Gateway.WebSocketPort != 0 {
		go func() {
			errCh <- wsHub.ListenAndServe(ctx, ws.ListenConfig{
				Host: cfg.Gateway.Host, Port: cfg.Gateway.WebSocketPort,
				TLSCertFile: cfg.Gateway.TLSCertFile, TLSKeyFile: cfg.Gateway.TLSKeyFile,
			})
		}()
	}

	logger.Info("ghostclawd started", "host", cfg.Gateway.Host, "port", cfg.Gateway.Port)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
