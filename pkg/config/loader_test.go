package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSettings(t *testing.T) {
	cfg := DefaultSettings()

	if cfg.STTProvider != "groq" {
		t.Errorf("expected default stt provider groq, got %q", cfg.STTProvider)
	}
	if cfg.Orchestrator.SampleRate != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.Orchestrator.SampleRate)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default http addr :8080, got %q", cfg.HTTPAddr)
	}
}

func TestLoaderLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMProvider != "groq" {
		t.Errorf("expected default llm provider groq, got %q", cfg.LLMProvider)
	}
}

func TestLoaderLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
stt_provider: deepgram
llm_provider: anthropic
http_addr: ":9000"
orchestrator:
  sample_rate: 16000
  channels: 1
  bytes_per_samp: 2
  max_context_messages: 40
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.STTProvider != "deepgram" {
		t.Errorf("expected stt_provider deepgram, got %q", cfg.STTProvider)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Errorf("expected llm_provider anthropic, got %q", cfg.LLMProvider)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("expected http_addr :9000, got %q", cfg.HTTPAddr)
	}
	if cfg.Orchestrator.MaxContextMessages != 40 {
		t.Errorf("expected max_context_messages 40, got %d", cfg.Orchestrator.MaxContextMessages)
	}
}

func TestLoaderEnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
stt_provider: deepgram
http_addr: ":9000"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	os.Setenv("LOKUTOR_STT_PROVIDER", "openai")
	defer os.Unsetenv("LOKUTOR_STT_PROVIDER")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.STTProvider != "openai" {
		t.Errorf("expected env override openai, got %q", cfg.STTProvider)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("expected yaml value :9000 preserved, got %q", cfg.HTTPAddr)
	}
}

func TestLoaderCustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_LLM_PROVIDER", "google")
	defer os.Unsetenv("MYAPP_LLM_PROVIDER")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLMProvider != "google" {
		t.Errorf("expected custom-prefix override google, got %q", cfg.LLMProvider)
	}
}

func TestLoaderNonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Orchestrator.SampleRate != 8000 {
		t.Errorf("expected defaults preserved, got sample rate %d", cfg.Orchestrator.SampleRate)
	}
}

func TestLoaderInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("stt_provider: [invalid\n"), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	_, err := NewLoader().WithConfigPath(configPath).Load()
	if err == nil {
		t.Fatal("expected an error for invalid yaml")
	}
}

func TestLoaderWithValidator(t *testing.T) {
	_, err := NewLoader().WithValidator(RequireLokutorKey).Load()
	if err == nil {
		t.Fatal("expected validation error when LOKUTOR_API_KEY is unset")
	}

	os.Setenv("LOKUTOR_API_KEY", "test-key")
	defer os.Unsetenv("LOKUTOR_API_KEY")

	cfg, err := NewLoader().WithValidator(RequireLokutorKey).Load()
	if err != nil {
		t.Fatalf("unexpected error with key set: %v", err)
	}
	if cfg.LokutorAPIKey != "test-key" {
		t.Errorf("expected key to be loaded, got %q", cfg.LokutorAPIKey)
	}
}
