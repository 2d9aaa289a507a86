package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidahmann/licensetriage/internal/config"
)

func noEnv(string) string { return "" }

func closedListener(context.Context, *http.Server) error { return http.ErrServerClosed }

func TestNewServer(t *testing.T) {
	cfg := config.Config{
		ListenAddr: "127.0.0.1:9999",
		PolicyPath: "../../policies/escalation.yaml",
		Generation: config.GenerationConfig{Provider: "scripted", ScriptPath: "../../testdata/replay.yaml"},
		Review:     config.ReviewConfig{Enabled: true, WebhookURL: "http://127.0.0.1:1/reviews"},
	}
	srv, cleanup, err := newServer(context.Background(), cfg, noEnv)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer cleanup()
	if srv.Addr != cfg.ListenAddr || srv.Handler == nil {
		t.Fatalf("unexpected server %+v", srv)
	}
}

func TestNewServerLogsListenAddrThroughZap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	orig := newLogger
	newLogger = func(string, bool) (*zap.Logger, error) { return zap.New(core), nil }
	defer func() { newLogger = orig }()

	cfg := config.Config{
		ListenAddr: "127.0.0.1:9998",
		PolicyPath: "../../policies/escalation.yaml",
		Generation: config.GenerationConfig{Provider: "scripted", ScriptPath: "../../testdata/replay.yaml"},
	}
	_, cleanup, err := newServer(context.Background(), cfg, noEnv)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer cleanup()

	entries := logs.FilterMessage("triage-gateway listening").All()
	if len(entries) != 1 {
		t.Fatalf("expected one listening entry, got %d", len(entries))
	}
	if addr := entries[0].ContextMap()["addr"]; addr != cfg.ListenAddr {
		t.Fatalf("listening entry addr = %v", addr)
	}
}

func TestNewServerBadPolicy(t *testing.T) {
	cfg := config.Config{PolicyPath: "missing.yaml", Generation: config.GenerationConfig{Provider: "scripted", ScriptPath: "../../testdata/replay.yaml"}}
	if _, _, err := newServer(context.Background(), cfg, noEnv); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunDefaults(t *testing.T) {
	cleaned := false
	factory := func(_ context.Context, cfg config.Config, _ envFn) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":8080" {
			t.Fatalf("expected default addr, got %s", cfg.ListenAddr)
		}
		if cfg.PolicyPath != "policies/escalation.yaml" {
			t.Fatalf("expected default policy path, got %s", cfg.PolicyPath)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() { cleaned = true }, nil
	}

	if err := run(context.Background(), nil, noEnv, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cleaned {
		t.Fatalf("expected cleanup to run")
	}
}

func TestRunEnvOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	data := "listen_addr: \":9999\"\npolicy_path: \"./policies/escalation.yaml\"\ndb:\n  driver: sqlite\n  dsn: file:a.db\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	env := map[string]string{
		"TRIAGE_CONFIG_PATH": path,
		"TRIAGE_DB_DSN":      "file:b.db",
		"TRIAGE_LOG_LEVEL":   "debug",
	}
	factory := func(_ context.Context, cfg config.Config, _ envFn) (*http.Server, func(), error) {
		if cfg.ListenAddr != ":9999" || cfg.PolicyPath != "./policies/escalation.yaml" {
			t.Fatalf("expected values from config, got %s %s", cfg.ListenAddr, cfg.PolicyPath)
		}
		if cfg.DB.Driver != "sqlite" || cfg.DB.DSN != "file:b.db" || cfg.Logging.Level != "debug" {
			t.Fatalf("expected env overlay, got %+v %+v", cfg.DB, cfg.Logging)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}

	if err := run(context.Background(), nil, func(k string) string { return env[k] }, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	okFactory := func(_ context.Context, cfg config.Config, _ envFn) (*http.Server, func(), error) {
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}

	listenErr := errors.New("listen failed")
	failing := func(context.Context, *http.Server) error { return listenErr }
	if err := run(context.Background(), nil, noEnv, failing, okFactory); !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}

	badDB := func(k string) string {
		if k == "TRIAGE_DB_DRIVER" {
			return "mysql"
		}
		return ""
	}
	if err := run(context.Background(), nil, badDB, closedListener, okFactory); err == nil {
		t.Fatalf("expected config validation error")
	}

	factoryErr := errors.New("factory failed")
	failFactory := func(context.Context, config.Config, envFn) (*http.Server, func(), error) { return nil, nil, factoryErr }
	if err := run(context.Background(), nil, noEnv, closedListener, failFactory); !errors.Is(err, factoryErr) {
		t.Fatalf("expected factory error, got %v", err)
	}

	if err := run(context.Background(), []string{"-config", "missing.yaml"}, noEnv, closedListener, okFactory); err == nil {
		t.Fatalf("expected missing config error")
	}
	if err := run(context.Background(), []string{"-bogus"}, noEnv, closedListener, okFactory); err == nil {
		t.Fatalf("expected flag error")
	}
}

func TestListenAndServeInvalidAddr(t *testing.T) {
	if err := listenAndServe(context.Background(), &http.Server{Addr: "127.0.0.1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := listenAndServe(ctx, &http.Server{Addr: "127.0.0.1:0"}); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "a", "b"); got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}

func TestMainUsesRunFn(t *testing.T) {
	oldRun, oldFatal := runFn, fatalf
	defer func() { runFn, fatalf = oldRun, oldFatal }()

	for _, tc := range []struct {
		err       error
		wantFatal bool
	}{{nil, false}, {errors.New("boom"), true}} {
		runFn = func(context.Context, []string, envFn, listenFn, serverFactory) error { return tc.err }
		called := false
		fatalf = func(string, ...any) { called = true }
		main()
		if called != tc.wantFatal {
			t.Fatalf("fatal called=%v, want %v", called, tc.wantFatal)
		}
	}
}
