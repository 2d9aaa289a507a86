package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/api"
	"github.com/davidahmann/licensetriage/internal/app"
	"github.com/davidahmann/licensetriage/internal/auth"
	"github.com/davidahmann/licensetriage/internal/config"
	"github.com/davidahmann/licensetriage/internal/logging"
	"github.com/davidahmann/licensetriage/internal/notify"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runFn(ctx, os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("server error: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf
var newLogger = logging.New

const shutdownTimeout = 10 * time.Second

// newServer builds the gateway. The returned cleanup stops the review worker
// and closes the store.
func newServer(ctx context.Context, cfg config.Config, getenv envFn) (*http.Server, func(), error) {
	logger, err := newLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return nil, nil, err
	}

	svc, err := app.Build(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	if cfg.Review.Enabled {
		poster := notify.NewWebhookPoster(cfg.Review.WebhookURL, cfg.Review.WebhookToken)
		go func() {
			defer close(done)
			notify.RunOutboxWorker(workerCtx, svc.Store, poster, cfg.Review.PollInterval, logger)
		}()
	} else {
		close(done)
	}

	cleanup := func() {
		cancel()
		<-done
		if err := svc.Close(); err != nil {
			logger.Warn("close services", zap.Error(err))
		}
		_ = logger.Sync()
	}

	h := &api.Handler{
		Auth:      auth.NewAuthenticatorFromEnv(getenv),
		Processor: svc.Orchestrator,
		Corrector: svc.Writer,
		Store:     svc.Store,
		Batch: orchestrator.BatchOptions{
			Concurrency:     cfg.Batch.Concurrency,
			AbandonOnCancel: cfg.Batch.AbandonOnCancel,
		},
		Logger: logger,
	}
	logger.Info("triage-gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("config_digest", svc.Orchestrator.ConfigDigest()),
		zap.String("model", svc.Orchestrator.Model()),
		zap.String("policy_hash", svc.Policy.Hash),
	)
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}, cleanup, nil
}

type envFn func(string) string
type listenFn func(ctx context.Context, server *http.Server) error
type serverFactory func(ctx context.Context, cfg config.Config, getenv envFn) (*http.Server, func(), error)

func run(ctx context.Context, args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	fs := flag.NewFlagSet("triage-gateway", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to triage config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile := *configPath
	if cfgFile == "" {
		cfgFile = getenv("TRIAGE_CONFIG_PATH")
	}

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("TRIAGE_LISTEN_ADDR"), cfg.ListenAddr, config.DefaultListenAddr)
	cfg.PolicyPath = firstNonEmpty(getenv("TRIAGE_POLICY_PATH"), cfg.PolicyPath, config.DefaultPolicyPath)
	cfg.TemplatesPath = firstNonEmpty(getenv("TRIAGE_TEMPLATES_PATH"), cfg.TemplatesPath)
	cfg.DB.Driver = firstNonEmpty(getenv("TRIAGE_DB_DRIVER"), cfg.DB.Driver)
	cfg.DB.DSN = firstNonEmpty(getenv("TRIAGE_DB_DSN"), cfg.DB.DSN)
	cfg.SigningKey.KeyID = firstNonEmpty(getenv("TRIAGE_SIGNING_KEY_ID"), cfg.SigningKey.KeyID)
	cfg.SigningKey.PrivateKeyPath = firstNonEmpty(getenv("TRIAGE_SIGNING_KEY_PATH"), cfg.SigningKey.PrivateKeyPath)
	cfg.Generation.Provider = firstNonEmpty(getenv("TRIAGE_GENERATION_PROVIDER"), cfg.Generation.Provider)
	cfg.Generation.Model = firstNonEmpty(getenv("TRIAGE_GENERATION_MODEL"), cfg.Generation.Model)
	cfg.Generation.APIKey = firstNonEmpty(getenv("TRIAGE_GENERATION_API_KEY"), cfg.Generation.APIKey)
	cfg.Logging.Level = firstNonEmpty(getenv("TRIAGE_LOG_LEVEL"), cfg.Logging.Level)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	server, cleanup, err := factory(ctx, cfg, getenv)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := listen(ctx, server); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// listenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func listenAndServe(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
