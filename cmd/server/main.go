// Command server runs the conversation orchestrator as a WebSocket gateway:
// one /ws connection per conversation, plus a /metrics endpoint for
// Prometheus scraping. This is the telephony-facing counterpart to
// cmd/agent's local microphone-driven CLI client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/config"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/logging"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/metrics"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
	llmProvider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/llm"
	sttProvider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/stt"
	ttsProvider "github.com/lokutor-ai/lokutor-orchestrator/pkg/providers/tts"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/transport"
)

func main() {
	settings, err := config.NewLoader().
		WithConfigPath(os.Getenv("LOKUTOR_CONFIG_PATH")).
		WithValidator(config.RequireLokutorKey).
		Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(settings.LogEnv)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	collector := metrics.NewCollector("lokutor_orchestrator")

	stt, err := buildSTT(settings)
	if err != nil {
		logger.Error("failed to build stt provider", "error", err)
		os.Exit(1)
	}
	llm, err := buildLLM(settings)
	if err != nil {
		logger.Error("failed to build llm provider", "error", err)
		os.Exit(1)
	}
	tts := ttsProvider.NewStreamingTTS(settings.LokutorAPIKey, "")

	logger.Info("collaborators configured", "stt", settings.STTProvider, "llm", settings.LLMProvider, "tts", tts.Name())

	var activeMu sync.Mutex
	activeConversations := 0
	factory := func(conversationID string) (*orchestrator.Conversation, error) {
		conv, err := orchestrator.NewConversation(conversationID, stt, llm, tts, nil, settings.Orchestrator, logger)
		if err != nil {
			return nil, err
		}
		conv.SetMetrics(collector)
		activeMu.Lock()
		activeConversations++
		collector.SetActiveConversations(activeConversations)
		activeMu.Unlock()
		return conv, nil
	}

	gateway := transport.NewGateway(factory, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", gateway)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: settings.HTTPAddr, Handler: mux}
	metricsServer := &http.Server{Addr: settings.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("gateway listening", "addr", settings.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway server failed", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", settings.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
	metricsServer.Shutdown(ctx)
}

func buildSTT(settings *config.Settings) (orchestrator.STTProvider, error) {
	var stt orchestrator.STTProvider
	switch settings.STTProvider {
	case "openai":
		if settings.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai STT")
		}
		stt = sttProvider.NewOpenAISTT(settings.OpenAIAPIKey, "whisper-1")
	case "deepgram":
		if settings.DeepgramAPIKey == "" {
			return nil, fmt.Errorf("DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		stt = sttProvider.NewDeepgramSTT(settings.DeepgramAPIKey)
	case "assemblyai":
		if settings.AssemblyAIAPIKey == "" {
			return nil, fmt.Errorf("ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		stt = sttProvider.NewAssemblyAISTT(settings.AssemblyAIAPIKey)
	case "groq":
		fallthrough
	default:
		if settings.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq STT")
		}
		stt = sttProvider.NewGroqSTT(settings.GroqAPIKey, "whisper-large-v3-turbo")
	}

	if s, ok := stt.(interface{ SetSampleRate(int) }); ok {
		s.SetSampleRate(settings.Orchestrator.SampleRate)
	}
	return stt, nil
}

func buildLLM(settings *config.Settings) (orchestrator.LLMProvider, error) {
	switch settings.LLMProvider {
	case "openai":
		if settings.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAILLM(settings.OpenAIAPIKey, "gpt-4o"), nil
	case "anthropic":
		if settings.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(settings.AnthropicAPIKey, "claude-3-5-sonnet-20241022"), nil
	case "google":
		if settings.GoogleAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogleLLM(settings.GoogleAPIKey, "gemini-1.5-flash"), nil
	case "groq":
		fallthrough
	default:
		if settings.GroqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroqLLM(settings.GroqAPIKey, "llama-3.3-70b-versatile"), nil
	}
}
