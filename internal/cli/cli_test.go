package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/anvil/internal/config"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

const testManifest = `
workloads:
  - name: db
    runtime: process
    command: ["sleep", "60"]
  - name: app
    runtime: process
    command: ["sleep", "60"]
    dependencies:
      db: ADD_COND_RUNNING
      cache: ADD_COND_RUNNING
deleted:
  - name: legacy
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anvil.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := runCmd(t, "validate", writeManifest(t, testManifest))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	for _, want := range []string{
		"Workloads: 2 (1 ready, 1 waiting)",
		"- db: start",
		"- app: wait for cache=ADD_COND_RUNNING, db=ADD_COND_RUNNING",
		"Deleted:   1 (1 ready, 0 waiting)",
		"- legacy: delete",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateCmdRejectsBadManifest(t *testing.T) {
	path := writeManifest(t, `
workloads:
  - name: app
    runtime: process
    dependencies:
      db: ADD_COND_SOMEDAY
`)
	if _, err := runCmd(t, "validate", path); err == nil {
		t.Fatal("expected error for unknown condition")
	}
}

func TestValidateCmdRequiresArg(t *testing.T) {
	if _, err := runCmd(t, "validate"); err == nil {
		t.Fatal("expected error without a manifest argument")
	}
}

func TestAgentFlagsOverrideConfig(t *testing.T) {
	cmd := newAgentCmd()
	if err := cmd.ParseFlags([]string{"--listen", "127.0.0.1:9999", "--log-level", "debug", "--command-buffer", "8"}); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}

	var flags agentFlags
	flags.listenAddr, _ = cmd.Flags().GetString("listen")
	flags.logLevel, _ = cmd.Flags().GetString("log-level")
	flags.commandBuffer, _ = cmd.Flags().GetInt("command-buffer")

	cfg := config.Config{ListenAddr: ":8080", DBPath: "anvil.db", LogLevel: slog.LevelInfo, CommandBuffer: 5}
	flags.apply(cmd, &cfg)

	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q, want 127.0.0.1:9999", cfg.ListenAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.CommandBuffer != 8 {
		t.Errorf("CommandBuffer = %d, want 8", cfg.CommandBuffer)
	}
	if cfg.DBPath != "anvil.db" {
		t.Errorf("DBPath = %q, unset flag must keep the configured value", cfg.DBPath)
	}
}

func TestRunAgentAppliesManifestAndStops(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		ListenAddr:    "127.0.0.1:0",
		DBPath:        filepath.Join(dir, "anvil.db"),
		RunDir:        filepath.Join(dir, "run"),
		CommandBuffer: 5,
		Manifest:      writeManifest(t, "workloads:\n  - name: db\n    runtime: process\n    command: [\"sleep\", \"60\"]\n"),
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runAgent(ctx, cfg, logger) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runAgent: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("runAgent did not return after cancel")
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer db.Close()

	st, err := db.GetWorkloadState(context.Background(), "db")
	if err != nil {
		t.Fatalf("GetWorkloadState: %v", err)
	}
	if st.State != model.StateRemoved {
		t.Errorf("state = %q, want %q after shutdown", st.State, model.StateRemoved)
	}
}

func TestRunAgentBadManifest(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		ListenAddr: "127.0.0.1:0",
		DBPath:     filepath.Join(dir, "anvil.db"),
		RunDir:     dir,
		Manifest:   filepath.Join(dir, "missing.yaml"),
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	if err := runAgent(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected error for a missing manifest")
	}
}
