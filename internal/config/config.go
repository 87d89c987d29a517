// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	SessionHeader     string        `yaml:"session_header"`      // explicit client identity header
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"` // use first X-Forwarded-For hop
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type QueueConfig struct {
	MaxJobs            int           `yaml:"max_jobs"`
	ClientLimit        int           `yaml:"client_limit"`
	ClientWindow       time.Duration `yaml:"client_window"`
	JobTTL             time.Duration `yaml:"job_ttl"`
	ProcessingTimeout  time.Duration `yaml:"processing_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	MinProcessInterval time.Duration `yaml:"min_process_interval"`
	PerJobEstimate     time.Duration `yaml:"per_job_estimate"`
	BackgroundInterval time.Duration `yaml:"background_interval"` // 0 = poll-driven only
	EnforceOwnership   *bool         `yaml:"enforce_ownership"`
}

type RateLimitPolicy struct {
	Window time.Duration `yaml:"window"`
	Max    int           `yaml:"max"`
}

type RateLimitConfig struct {
	Backend      string          `yaml:"backend"` // cookie | redis
	Secret       string          `yaml:"secret"`
	CookieSecure bool            `yaml:"cookie_secure"`
	Submit       RateLimitPolicy `yaml:"submit"`
	Status       RateLimitPolicy `yaml:"status"`
}

type AIConfig struct {
	Order            []string      `yaml:"order"` // provider names, primary first
	GeminiKey        string        `yaml:"gemini_key"`
	GeminiURL        string        `yaml:"gemini_url"`
	GeminiModel      string        `yaml:"gemini_model"`
	OpenAIKey        string        `yaml:"openai_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	OpenAIModel      string        `yaml:"openai_model"`
	MaxOutputTokens  int           `yaml:"max_output_tokens"`
	MaxInputTokens   int           `yaml:"max_input_tokens"` // 0 disables the pre-flight budget
	ConcurrentLimit  int           `yaml:"concurrent_limit"` // per provider, counts calls still running for abandoned jobs
	CallTimeout      time.Duration `yaml:"call_timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	Noop             bool          `yaml:"noop"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Queue     QueueConfig     `yaml:"queue"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	AI        AIConfig        `yaml:"ai"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. ${VAR} references are expanded from
// the environment before parsing so secrets can stay out of the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse decodes raw YAML, applies defaults and validates.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 70 * time.Second
	}
	if cfg.Server.SessionHeader == "" {
		cfg.Server.SessionHeader = "X-Session-Token"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	q := &cfg.Queue
	if q.MaxJobs <= 0 {
		q.MaxJobs = 100
	}
	if q.ClientLimit <= 0 {
		q.ClientLimit = 5
	}
	if q.ClientWindow <= 0 {
		q.ClientWindow = time.Minute
	}
	if q.JobTTL <= 0 {
		q.JobTTL = 5 * time.Minute
	}
	if q.ProcessingTimeout <= 0 {
		q.ProcessingTimeout = time.Minute
	}
	if q.SweepInterval <= 0 {
		q.SweepInterval = 30 * time.Second
	}
	if q.MinProcessInterval <= 0 {
		q.MinProcessInterval = 2 * time.Second
	}
	if q.PerJobEstimate <= 0 {
		q.PerJobEstimate = 10 * time.Second
	}
	if q.EnforceOwnership == nil {
		on := true
		q.EnforceOwnership = &on
	}

	rl := &cfg.RateLimit
	rl.Backend = strings.ToLower(strings.TrimSpace(rl.Backend))
	if rl.Backend == "" {
		rl.Backend = "cookie"
	}
	if rl.Submit.Window <= 0 {
		rl.Submit.Window = time.Minute
	}
	if rl.Submit.Max == 0 {
		rl.Submit.Max = 10
	}
	if rl.Status.Window <= 0 {
		rl.Status.Window = time.Minute
	}
	if rl.Status.Max == 0 {
		rl.Status.Max = 120
	}

	ai := &cfg.AI
	if len(ai.Order) == 0 {
		ai.Order = []string{"gemini", "openai"}
	}
	for i := range ai.Order {
		ai.Order[i] = strings.ToLower(strings.TrimSpace(ai.Order[i]))
	}
	if ai.GeminiModel == "" {
		ai.GeminiModel = "gemini-2.0-flash"
	}
	if ai.OpenAIModel == "" {
		ai.OpenAIModel = "gpt-4o-mini"
	}
	if ai.MaxOutputTokens <= 0 {
		ai.MaxOutputTokens = 1024
	}
	if ai.ConcurrentLimit <= 0 {
		ai.ConcurrentLimit = 2
	}
	if ai.CallTimeout <= 0 {
		ai.CallTimeout = 45 * time.Second
	}
	if ai.FailureThreshold <= 0 {
		ai.FailureThreshold = 3
	}
	if ai.Cooldown <= 0 {
		ai.Cooldown = time.Minute
	}
	if ai.RetryAttempts <= 0 {
		ai.RetryAttempts = 3
	}
	if ai.RetryBaseDelay <= 0 {
		ai.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Runtime.Dev && ai.GeminiKey == "" && ai.OpenAIKey == "" {
		ai.Noop = true
	}
}

func validate(cfg *Config) error {
	switch cfg.RateLimit.Backend {
	case "cookie":
		if len(cfg.RateLimit.Secret) < 16 {
			return errors.New("rate_limit.secret must be at least 16 bytes for the cookie backend")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend %q is not supported", cfg.RateLimit.Backend)
	}
	if cfg.RateLimit.Submit.Max < 0 || cfg.RateLimit.Status.Max < 0 {
		return errors.New("rate_limit max must not be negative")
	}

	if !cfg.AI.Noop && cfg.AI.GeminiKey == "" && cfg.AI.OpenAIKey == "" {
		return errors.New("no AI provider configured: set ai.gemini_key or ai.openai_key")
	}
	for _, p := range cfg.AI.Order {
		if p != "gemini" && p != "openai" {
			return fmt.Errorf("ai.order: unknown provider %q", p)
		}
	}
	if cfg.Queue.ProcessingTimeout <= cfg.AI.CallTimeout {
		// a job must be able to finish one attempt before being declared stale
		return errors.New("queue.processing_timeout must exceed ai.call_timeout")
	}
	return nil
}
