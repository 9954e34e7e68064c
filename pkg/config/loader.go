// Package config loads the orchestrator's settings from a YAML file with
// environment-variable overrides, grounded on the builder pattern in
// _examples/BaSui01-agentflow/config/loader.go (NewLoader().WithConfigPath(...)
// .WithEnvPrefix(...).Load(), default -> file -> env precedence). Unlike
// agentflow's reflection-driven env walk, this config's shape is small and
// fixed, so overrides are mapped explicitly field by field.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// Settings is the orchestrator's full runtime configuration: turn-taking
// tuning (embeds orchestrator.Config), collaborator selection, and the
// server surface.
type Settings struct {
	Orchestrator orchestrator.Config `yaml:"orchestrator"`

	STTProvider string `yaml:"stt_provider"`
	LLMProvider string `yaml:"llm_provider"`

	GroqAPIKey       string `yaml:"-"`
	OpenAIAPIKey     string `yaml:"-"`
	AnthropicAPIKey  string `yaml:"-"`
	GoogleAPIKey     string `yaml:"-"`
	DeepgramAPIKey   string `yaml:"-"`
	AssemblyAIAPIKey string `yaml:"-"`
	LokutorAPIKey    string `yaml:"-"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogEnv      string `yaml:"log_env"`
}

// DefaultSettings returns the baseline configuration Load starts from before
// applying the file and environment overrides.
func DefaultSettings() *Settings {
	return &Settings{
		Orchestrator: orchestrator.DefaultConfig(),
		STTProvider:  "groq",
		LLMProvider:  "groq",
		HTTPAddr:     ":8080",
		MetricsAddr:  ":9090",
		LogEnv:       "development",
	}
}

// Loader builds a Settings value from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Settings) error
}

func NewLoader() *Loader {
	return &Loader{envPrefix: "LOKUTOR"}
}

func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

func (l *Loader) WithValidator(v func(*Settings) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load applies default -> YAML file (if present) -> .env file -> process
// environment, then runs every registered validator.
func (l *Loader) Load() (*Settings, error) {
	cfg := DefaultSettings()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	_ = godotenv.Load()
	l.loadFromEnv(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Settings) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Settings) {
	prefix := l.envPrefix

	if v := os.Getenv(prefix + "_STT_PROVIDER"); v != "" {
		cfg.STTProvider = v
	}
	if v := os.Getenv(prefix + "_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv(prefix + "_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv(prefix + "_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv(prefix + "_LOG_ENV"); v != "" {
		cfg.LogEnv = v
	}
	if v := os.Getenv("AGENT_LANGUAGE"); v != "" {
		cfg.Orchestrator.Language = orchestrator.Language(v)
	}
	if v := os.Getenv(prefix + "_SAMPLE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.SampleRate = n
		}
	}
	if v := os.Getenv(prefix + "_INTERRUPTION_THRESHOLD_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.InterruptionThresholdMS = n
		}
	}
	if v := os.Getenv(prefix + "_TICK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.TickIntervalMS = n
		}
	}

	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	cfg.AssemblyAIAPIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	cfg.LokutorAPIKey = os.Getenv("LOKUTOR_API_KEY")
}

// RequireLokutorKey is a ready-made validator for WithValidator: the
// orchestrator's only mandatory collaborator is the TTS vendor.
func RequireLokutorKey(cfg *Settings) error {
	if cfg.LokutorAPIKey == "" {
		return fmt.Errorf("LOKUTOR_API_KEY must be set")
	}
	return nil
}
