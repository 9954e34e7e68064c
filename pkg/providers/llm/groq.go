package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// GroqLLM talks to Groq's OpenAI-compatible chat-completions endpoint over
// raw HTTP, grounded on the pre-SDK shape of this package's OpenAI client.
type GroqLLM struct {
	apiKey string
	url    string
	model  string
}

func NewGroqLLM(apiKey string, model string) *GroqLLM {
	if model == "" {
		model = "llama3-70b-8192"
	}
	return &GroqLLM{
		apiKey: apiKey,
		url:    "https://api.groq.com/openai/v1/chat/completions",
		model:  model,
	}
}

func (l *GroqLLM) buildRequest(ctx context.Context, messages []orchestrator.Message, stream bool) (*http.Request, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   stream,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	return req, nil
}

func (l *GroqLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	req, err := l.buildRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("groq llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from groq")
	}

	return result.Choices[0].Message.Content, nil
}

// Stream issues a streaming chat completion against Groq's OpenAI-compatible
// SSE endpoint and forwards each delta as it arrives.
func (l *GroqLLM) Stream(ctx context.Context, messages []orchestrator.Message) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errc := make(chan error, 1)

	req, err := l.buildRequest(ctx, messages, true)
	if err != nil {
		errc <- err
		close(tokens)
		close(errc)
		return tokens, errc
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		errc <- err
		close(tokens)
		close(errc)
		return tokens, errc
	}
	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		resp.Body.Close()
		errc <- fmt.Errorf("groq stream error (status %d): %v", resp.StatusCode, errResp)
		close(tokens)
		close(errc)
		return tokens, errc
	}

	go func() {
		defer close(tokens)
		defer close(errc)
		defer resp.Body.Close()

		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}
			if data == "[DONE]" {
				return
			}
			chunk.Choices = nil
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case tokens <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errc <- fmt.Errorf("groq stream read: %w", err):
			default:
			}
		}
	}()

	return tokens, errc
}

func (l *GroqLLM) Name() string {
	return "groq-llm"
}
