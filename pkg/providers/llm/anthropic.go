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

type AnthropicLLM struct {
	apiKey string
	url    string
	model  string
}

func NewAnthropicLLM(apiKey string, model string) *AnthropicLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicLLM{
		apiKey: apiKey,
		url:    "https://api.anthropic.com/v1/messages",
		model:  model,
	}
}

func splitAnthropicMessages(messages []orchestrator.Message) (system string, anthropicMessages []map[string]string) {
	for _, msg := range messages {
		if msg.Role == "system" {
			system = msg.Content
		} else {
			anthropicMessages = append(anthropicMessages, map[string]string{
				"role":    msg.Role,
				"content": msg.Content,
			})
		}
	}
	return system, anthropicMessages
}

func (l *AnthropicLLM) buildRequest(ctx context.Context, messages []orchestrator.Message, stream bool) (*http.Request, error) {
	system, anthropicMessages := splitAnthropicMessages(messages)

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   anthropicMessages,
		"max_tokens": 1024,
		"stream":     stream,
	}
	if system != "" {
		payload["system"] = system
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
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

func (l *AnthropicLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
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
		return "", fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("no content returned from anthropic")
	}

	return result.Content[0].Text, nil
}

// Stream issues a server-sent-events completion request and forwards each
// content_block_delta's text as it arrives.
func (l *AnthropicLLM) Stream(ctx context.Context, messages []orchestrator.Message) (<-chan string, <-chan error) {
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
		errc <- fmt.Errorf("anthropic stream error (status %d): %v", resp.StatusCode, errResp)
		close(tokens)
		close(errc)
		return tokens, errc
	}

	go func() {
		defer close(tokens)
		defer close(errc)
		defer resp.Body.Close()

		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
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
			event.Type = ""
			event.Delta.Text = ""
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			if event.Type != "content_block_delta" || event.Delta.Text == "" {
				continue
			}
			select {
			case tokens <- event.Delta.Text:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errc <- fmt.Errorf("anthropic stream read: %w", err):
			default:
			}
		}
	}()

	return tokens, errc
}

func (l *AnthropicLLM) Name() string {
	return "anthropic-llm"
}
