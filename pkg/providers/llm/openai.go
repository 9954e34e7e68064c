package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// OpenAILLM wraps the go-openai chat-completion client, used for both the
// batch Complete path and the token-streaming path the orchestrator loop
// needs for early TTS handoff.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func toOpenAIMessages(messages []orchestrator.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    l.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("openai llm error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream issues a streaming chat completion and forwards each delta as it
// arrives. Both channels are closed when the stream ends or ctx is
// cancelled.
func (l *OpenAILLM) Stream(ctx context.Context, messages []orchestrator.Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errc := make(chan error, 1)

	stream, err := l.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    l.model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	})
	if err != nil {
		errc <- fmt.Errorf("openai stream start: %w", err)
		close(tokens)
		close(errc)
		return tokens, errc
	}

	go func() {
		defer close(tokens)
		defer close(errc)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case errc <- fmt.Errorf("openai stream recv: %w", err):
				default:
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case tokens <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errc
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
