package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	triagectx "github.com/davidahmann/licensetriage/internal/context"
	"github.com/davidahmann/licensetriage/internal/generation"
	"github.com/davidahmann/licensetriage/internal/orchestrator"
	"github.com/davidahmann/licensetriage/internal/schema"
)

const (
	DefaultListenAddr = ":8080"
	DefaultPolicyPath = "policies/escalation.yaml"
)

type Config struct {
	ListenAddr    string              `yaml:"listen_addr"`
	TemplatesPath string              `yaml:"templates_path"`
	PolicyPath    string              `yaml:"policy_path"`
	DB            DBConfig            `yaml:"db"`
	SigningKey    SigningKeyConfig    `yaml:"signing_key"`
	Generation    GenerationConfig    `yaml:"generation"`
	Context       triagectx.Budget    `yaml:"context"`
	Pipeline      []orchestrator.Step `yaml:"pipeline"`
	Batch         BatchConfig         `yaml:"batch"`
	Logging       LoggingConfig       `yaml:"logging"`
	Events        EventsConfig        `yaml:"events"`
	Review        ReviewConfig        `yaml:"review"`
}

type DBConfig struct {
	Driver string `yaml:"driver"` // memory | sqlite | postgres
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type GenerationConfig struct {
	Provider          string                                    `yaml:"provider"` // gemini | openai | scripted
	Model             string                                    `yaml:"model"`
	APIKey            string                                    `yaml:"api_key"`
	BaseURL           string                                    `yaml:"base_url"`
	ScriptPath        string                                    `yaml:"script_path"`
	CallTimeout       time.Duration                             `yaml:"call_timeout"`
	MaxAttempts       int                                       `yaml:"max_attempts"`
	BackoffBase       time.Duration                             `yaml:"backoff_base"`
	BackoffMax        time.Duration                             `yaml:"backoff_max"`
	RequestsPerSecond float64                                   `yaml:"requests_per_second"`
	Burst             int                                       `yaml:"burst"`
	Tasks             map[schema.TaskType]generation.Parameters `yaml:"tasks"`
}

type BatchConfig struct {
	Concurrency     int  `yaml:"concurrency"`
	AbandonOnCancel bool `yaml:"abandon_on_cancel"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type EventsConfig struct {
	PubSub PubSubConfig `yaml:"pubsub"`
}

type PubSubConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

type ReviewConfig struct {
	Enabled      bool          `yaml:"enabled"`
	WebhookURL   string        `yaml:"webhook_url"`
	WebhookToken string        `yaml:"webhook_token"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(raw)
}

// Parse expands ${VAR} references before decoding, then validates.
func Parse(raw []byte) (Config, error) {
	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.PolicyPath == "" {
		return fmt.Errorf("policy_path is required")
	}

	switch c.DB.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.driver is set")
		}
	default:
		return fmt.Errorf("db.driver %q is not one of memory, sqlite, postgres", c.DB.Driver)
	}

	if c.SigningKey.PrivateKeyPath != "" && c.SigningKey.KeyID == "" {
		return fmt.Errorf("signing_key.key_id is required with signing_key.private_key_path")
	}

	if err := c.Generation.validate(); err != nil {
		return err
	}

	if c.Context.MaxTokens != 0 || len(c.Context.Categories) > 0 {
		if err := c.Budget().Validate(); err != nil {
			return err
		}
	}

	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch.concurrency must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	if c.Events.PubSub.Enabled && (c.Events.PubSub.ProjectID == "" || c.Events.PubSub.TopicID == "") {
		return fmt.Errorf("events.pubsub.project_id and topic_id are required when events.pubsub.enabled=true")
	}

	if c.Review.Enabled && c.Review.WebhookURL == "" {
		return fmt.Errorf("review.webhook_url is required when review.enabled=true")
	}

	return nil
}

func (g GenerationConfig) validate() error {
	switch g.Provider {
	case "", "gemini", "openai":
	case "scripted":
		if g.ScriptPath == "" {
			return fmt.Errorf("generation.script_path is required for the scripted provider")
		}
	default:
		return fmt.Errorf("generation.provider %q is not one of gemini, openai, scripted", g.Provider)
	}
	if g.MaxAttempts < 0 || g.CallTimeout < 0 || g.BackoffBase < 0 || g.BackoffMax < 0 {
		return fmt.Errorf("generation retry settings must not be negative")
	}
	if g.RequestsPerSecond < 0 || g.Burst < 0 {
		return fmt.Errorf("generation rate limit must not be negative")
	}
	for task, p := range g.Tasks {
		if p.Temperature < 0 || p.Temperature > 2 {
			return fmt.Errorf("generation.tasks.%s.temperature must be within [0,2]", task)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("generation.tasks.%s.max_tokens must not be negative", task)
		}
	}
	return nil
}

// Budget is the configured context budget. Without categories the default
// categories apply, scaled to max_tokens when that is set.
func (c Config) Budget() triagectx.Budget {
	b := triagectx.DefaultBudget()
	if c.Context.MaxTokens > 0 {
		b.MaxTokens = c.Context.MaxTokens
	}
	if len(c.Context.Categories) > 0 {
		b.Categories = c.Context.Categories
	}
	return b
}

// Steps is the configured pipeline, or the default three steps.
func (c Config) Steps() []orchestrator.Step {
	if len(c.Pipeline) == 0 {
		return orchestrator.DefaultSteps()
	}
	return c.Pipeline
}

// ConfigureRetrier copies the non-zero retry settings onto r.
func (g GenerationConfig) ConfigureRetrier(r *generation.Retrier) {
	if g.MaxAttempts > 0 {
		r.MaxAttempts = g.MaxAttempts
	}
	if g.CallTimeout > 0 {
		r.CallTimeout = g.CallTimeout
	}
	if g.BackoffBase > 0 {
		r.BackoffBase = g.BackoffBase
	}
	if g.BackoffMax > 0 {
		r.BackoffMax = g.BackoffMax
	}
}
