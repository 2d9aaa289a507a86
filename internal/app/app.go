// Package app wires configuration into a running triage pipeline: store,
// signer, generator, event fan-out and the orchestrator itself.
package app

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/licensetriage/internal/config"
	"github.com/davidahmann/licensetriage/internal/crypto"
	"github.com/davidahmann/licensetriage/internal/events"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/ledger"
	"github.com/davidahmann/licensetriage/internal/ledger/pgstore"
	"github.com/davidahmann/licensetriage/internal/ledger/sqlstore"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
	"github.com/davidahmann/licensetriage/internal/policy"
	"github.com/davidahmann/licensetriage/internal/template"
)

// Options override pieces of the configured wiring.
type Options struct {
	// Generator replaces the configured provider.
	Generator generation.Generator
	// Store replaces the configured database.
	Store  ledger.Store
	Logger *zap.Logger
}

type Services struct {
	Config       config.Config
	Templates    *template.Registry
	Policy       policy.LoadedPolicy
	Store        ledger.Store
	Writer       *ledger.Writer
	Orchestrator *orchestrator.Orchestrator
	PublicKey    ed25519.PublicKey
	Logger       *zap.Logger

	closers []func() error
}

// Build assembles the pipeline described by cfg. Call Close when done.
func Build(ctx context.Context, cfg config.Config, opts Options) (*Services, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{Config: cfg, Logger: logger}

	if err := s.build(ctx, cfg, opts); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Services) build(ctx context.Context, cfg config.Config, opts Options) error {
	templates, err := LoadTemplates(cfg.TemplatesPath)
	if err != nil {
		return err
	}
	s.Templates = templates

	loaded, err := policy.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	s.Policy = loaded

	store := opts.Store
	if store == nil {
		var closeFn func() error
		store, closeFn, err = OpenStore(cfg.DB)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, closeFn)
	}
	s.Store = store

	signer, err := loadSigner(cfg.SigningKey, s.Logger)
	if err != nil {
		return err
	}
	s.PublicKey = signer.PublicKey()

	gen := opts.Generator
	if gen == nil {
		gen, err = NewGenerator(ctx, cfg.Generation)
		if err != nil {
			return err
		}
	}
	if cfg.Generation.RequestsPerSecond > 0 {
		gen = generation.NewRateLimited(gen, cfg.Generation.RequestsPerSecond, cfg.Generation.Burst)
	}
	retrier := generation.NewRetrier(gen)
	cfg.Generation.ConfigureRetrier(retrier)
	retrier.Logger = s.Logger

	emitter, err := s.newEmitter(ctx, cfg.Events)
	if err != nil {
		return err
	}

	s.Writer = &ledger.Writer{
		Store:        store,
		Signer:       signer,
		Emitter:      emitter,
		Logger:       s.Logger,
		QueueReviews: cfg.Review.Enabled,
	}
	if err := s.Writer.RegisterKey(signer.PublicKey()); err != nil {
		return fmt.Errorf("register signing key: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Templates:  templates,
		Budget:     cfg.Budget(),
		Policy:     loaded,
		Generator:  retrier,
		Steps:      cfg.Steps(),
		Parameters: cfg.Generation.Tasks,
		Recorder:   s.Writer,
		Logger:     s.Logger,
	})
	if err != nil {
		return err
	}
	s.Orchestrator = orch

	return s.Writer.RecordConfig(ledger.ConfigVersionRecord{
		ConfigDigest:  orch.ConfigDigest(),
		TemplatesHash: templates.Hash(),
		TemplatesYAML: string(templates.Source()),
		PolicyHash:    loaded.Hash,
		PolicyYAML:    string(loaded.Bytes),
		Model:         orch.Model(),
		SettingsJSON:  string(orch.Settings()),
	})
}

func (s *Services) newEmitter(ctx context.Context, cfg config.EventsConfig) (events.Emitter, error) {
	emitters := []events.Emitter{events.NewLogEmitter(s.Logger)}
	if cfg.PubSub.Enabled {
		ps, err := events.NewPubSubEmitter(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			return nil, fmt.Errorf("pubsub emitter: %w", err)
		}
		s.closers = append(s.closers, ps.Close)
		emitters = append(emitters, ps)
	}
	if len(emitters) == 1 {
		return emitters[0], nil
	}
	return events.NewMultiEmitter(emitters...), nil
}

// Close releases the store and event clients, last opened first.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// LoadTemplates reads a template file, or the built-in set when path is empty.
func LoadTemplates(path string) (*template.Registry, error) {
	if path == "" {
		return template.Defaults()
	}
	reg, err := template.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return reg, nil
}

// OpenStore opens and migrates the configured audit store.
func OpenStore(cfg config.DBConfig) (ledger.Store, func() error, error) {
	switch cfg.Driver {
	case "", "memory":
		return ledger.NewInMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		store, err := sqlstore.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := ledger.Migrate(store.DB(), ledger.DBSQLite); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return store, store.Close, nil
	case "postgres":
		store, err := pgstore.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := ledger.Migrate(store.DB(), ledger.DBPostgres); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

// NewGenerator builds the configured provider client. Gemini is the default.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig) (generation.Generator, error) {
	switch cfg.Provider {
	case "", "gemini":
		key := firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY"))
		client, err := generation.NewGenAIClient(ctx, key, cfg.Model)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		return generation.NewOpenAIClient(generation.OpenAIConfig{
			APIKey:  firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case "scripted":
		script, err := generation.LoadScript(cfg.ScriptPath)
		if err != nil {
			return nil, err
		}
		return script, nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}

func loadSigner(cfg config.SigningKeyConfig, logger *zap.Logger) (crypto.Signer, error) {
	if cfg.PrivateKeyPath != "" {
		priv, _, err := crypto.LoadEd25519PrivateKey(cfg.PrivateKeyPath)
		if err != nil {
			return crypto.Signer{}, fmt.Errorf("load signing key: %w", err)
		}
		return crypto.Signer{ID: cfg.KeyID, Priv: priv}, nil
	}

	priv, _, err := crypto.EphemeralKeyPair()
	if err != nil {
		return crypto.Signer{}, err
	}
	id := firstNonEmpty(cfg.KeyID, "ephemeral") + "-" + uuid.NewString()[:8]
	logger.Warn("no signing key configured, using an ephemeral key", zap.String("key_id", id))
	return crypto.Signer{ID: id, Priv: priv}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
