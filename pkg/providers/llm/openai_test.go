package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

func newTestOpenAILLM(serverURL string) *OpenAILLM {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = serverURL
	return &OpenAILLM{client: openai.NewClientWithConfig(cfg), model: "gpt-4o"}
}

func TestOpenAILLMComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "hello from openai"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	l := newTestOpenAILLM(server.URL)
	messages := []orchestrator.Message{{Role: "user", Content: "hi"}}

	resp, err := l.Complete(context.Background(), messages)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from openai" {
		t.Errorf("expected 'hello from openai', got '%s'", resp)
	}
	if l.Name() != "openai-llm" {
		t.Errorf("expected openai-llm, got %s", l.Name())
	}
}

func TestOpenAILLMStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range []string{"hel", "lo"} {
			chunk := openai.ChatCompletionStreamResponse{
				Choices: []openai.ChatCompletionStreamChoice{
					{Delta: openai.ChatCompletionStreamChoiceDelta{Content: tok}},
				},
			}
			b, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer server.Close()

	l := newTestOpenAILLM(server.URL)
	tokens, errc := l.Stream(context.Background(), []orchestrator.Message{{Role: "user", Content: "hi"}})

	var got string
	for tok := range tokens {
		got += tok
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}
