package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/anvil/internal/api"
	"github.com/seantiz/anvil/internal/backend"
	"github.com/seantiz/anvil/internal/backend/process"
	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/manifest"
	"github.com/seantiz/anvil/internal/store"
)

type agentFlags struct {
	listenAddr    string
	dbPath        string
	runDir        string
	manifest      string
	logLevel      string
	logFormat     string
	commandBuffer int
}

func newAgentCmd() *cobra.Command {
	var flags agentFlags

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent: engine, HTTP API and optional manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runAgent(ctx, cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.listenAddr, "listen", "", "HTTP listen address (or ANVIL_LISTEN_ADDR)")
	f.StringVar(&flags.dbPath, "db", "", "SQLite database path (or ANVIL_DB_PATH)")
	f.StringVar(&flags.runDir, "run-dir", "", "Directory for control interfaces (or ANVIL_RUN_DIR)")
	f.StringVarP(&flags.manifest, "manifest", "f", "", "Desired-state manifest applied at startup (or ANVIL_MANIFEST)")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (or ANVIL_LOG_LEVEL)")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format: json, text (or ANVIL_LOG_FORMAT)")
	f.IntVar(&flags.commandBuffer, "command-buffer", 0, "Pending commands per workload (or ANVIL_COMMAND_BUFFER)")

	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (f agentFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("listen") {
		cfg.ListenAddr = f.listenAddr
	}
	if changed("db") {
		cfg.DBPath = f.dbPath
	}
	if changed("run-dir") {
		cfg.RunDir = f.runDir
	}
	if changed("manifest") {
		cfg.Manifest = f.manifest
	}
	if changed("log-level") {
		cfg.LogLevel = config.ParseLogLevel(f.logLevel)
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("command-buffer") && f.commandBuffer > 0 {
		cfg.CommandBuffer = f.commandBuffer
	}
}

// runAgent serves until ctx ends. The engine deletes every workload on the
// way out, so the store is closed only after both loops have returned.
func runAgent(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("anvil: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"run_dir", cfg.RunDir,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := backend.NewRegistry()
	reg.Register(process.Name, process.New(logger))

	eng := engine.NewEngine(db, reg, logger, engine.Options{
		RunDir:        cfg.RunDir,
		CommandBuffer: cfg.CommandBuffer,
	})
	srv := api.NewServer(cfg.ListenAddr, eng, logger)

	if cfg.Manifest != "" {
		ds, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return err
		}
		if err := eng.ApplyState(ctx, ds); err != nil {
			return fmt.Errorf("apply manifest: %w", err)
		}
		logger.Info("manifest applied", "path", cfg.Manifest, "workloads", len(ds.Workloads), "deleted", len(ds.Deleted))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("anvil: stopped")
	return nil
}
