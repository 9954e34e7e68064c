package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// GoogleLLM wraps the Gemini Developer API through google.golang.org/genai,
// used for both batch and streaming completion.
type GoogleLLM struct {
	client *genai.Client
	model  string
}

func NewGoogleLLM(apiKey string, model string) *GoogleLLM {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		// The client is lazily validated on first call; NewGoogleLLM keeps
		// the teacher's pattern of non-failing constructors, surfacing
		// configuration errors from Complete/Stream instead.
		client = nil
	}
	return &GoogleLLM{client: client, model: model}
}

func toGoogleContents(messages []orchestrator.Message) (system string, contents []*genai.Content) {
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
		})
	}
	return system, contents
}

func (l *GoogleLLM) genConfig(system string) *genai.GenerateContentConfig {
	if system == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(system)}},
	}
}

func (l *GoogleLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	if l.client == nil {
		return "", fmt.Errorf("google llm client not configured")
	}
	system, contents := toGoogleContents(messages)

	resp, err := l.client.Models.GenerateContent(ctx, l.model, contents, l.genConfig(system))
	if err != nil {
		return "", fmt.Errorf("google llm error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no response from google llm")
	}
	return text, nil
}

// Stream issues a streaming generate-content call and forwards each chunk's
// text as it arrives.
func (l *GoogleLLM) Stream(ctx context.Context, messages []orchestrator.Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errc := make(chan error, 1)

	if l.client == nil {
		errc <- fmt.Errorf("google llm client not configured")
		close(tokens)
		close(errc)
		return tokens, errc
	}

	system, contents := toGoogleContents(messages)

	go func() {
		defer close(tokens)
		defer close(errc)

		for resp, err := range l.client.Models.GenerateContentStream(ctx, l.model, contents, l.genConfig(system)) {
			if err != nil {
				select {
				case errc <- fmt.Errorf("google llm stream: %w", err):
				default:
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case tokens <- text:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errc
}

func (l *GoogleLLM) Name() string {
	return "google-llm"
}
