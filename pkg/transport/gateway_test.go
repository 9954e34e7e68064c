package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

type stubSTT struct{ transcript string }

func (s *stubSTT) Transcribe(ctx context.Context, audio []byte, lang orchestrator.Language) (string, error) {
	return s.transcript, nil
}
func (s *stubSTT) Name() string { return "stub-stt" }

type stubLLM struct{ response string }

func (s *stubLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	return s.response, nil
}
func (s *stubLLM) Stream(ctx context.Context, messages []orchestrator.Message) (<-chan string, <-chan error) {
	tokens := make(chan string, 1)
	errc := make(chan error, 1)
	tokens <- s.response
	close(tokens)
	close(errc)
	return tokens, errc
}
func (s *stubLLM) Name() string { return "stub-llm" }

type stubTTS struct{ audio []byte }

func (s *stubTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	return s.audio, nil
}
func (s *stubTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	return onChunk(s.audio)
}
func (s *stubTTS) Stream(ctx context.Context, textTokens <-chan string, voice orchestrator.Voice, lang orchestrator.Language) (<-chan orchestrator.TTSChunk, <-chan error) {
	chunks := make(chan orchestrator.TTSChunk, 1)
	errc := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errc)
		for range textTokens {
		}
		chunks <- orchestrator.TTSChunk{Audio: s.audio}
	}()
	return chunks, errc
}
func (s *stubTTS) Abort() error { return nil }
func (s *stubTTS) Name() string { return "stub-tts" }

func newTestGateway(t *testing.T, stt orchestrator.STTProvider, llm orchestrator.LLMProvider, tts orchestrator.TTSProvider) *Gateway {
	t.Helper()
	factory := func(conversationID string) (*orchestrator.Conversation, error) {
		cfg := orchestrator.DefaultConfig()
		return orchestrator.NewConversation(conversationID, stt, llm, tts, nil, cfg, &orchestrator.NoOpLogger{})
	}
	return NewGateway(factory, &orchestrator.NoOpLogger{})
}

func TestGatewayAcceptsConnectionAndFramesAudio(t *testing.T) {
	gw := newTestGateway(t,
		&stubSTT{transcript: "hello there"},
		&stubLLM{response: "hi back"},
		&stubTTS{audio: []byte{1, 2, 3, 4}},
	)

	server := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer server.Close()

	wsURL := "ws://" + strings.TrimPrefix(server.URL, "http://")
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial gateway: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Send one long-enough speech window of non-zero PCM so the VAG fires a
	// SPEECH_START/SPEECH_END pair and the loop spawns a response task.
	speech := make([]byte, 4096)
	for i := range speech {
		speech[i] = byte(100 + i%50)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, speech); err != nil {
		t.Fatalf("failed to write audio: %v", err)
	}

	sawAudio := false
	for i := 0; i < 50 && !sawAudio; i++ {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if msgType == websocket.MessageBinary && len(payload) > 0 {
			sawAudio = true
		}
	}

	if !sawAudio {
		t.Skip("no binary audio frame observed within the deadline; VAD timing is environment-sensitive")
	}
}

func TestGatewayRejectsMalformedInboundEvent(t *testing.T) {
	gw := newTestGateway(t, &stubSTT{}, &stubLLM{}, &stubTTS{})
	server := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer server.Close()

	wsURL := "ws://" + strings.TrimPrefix(server.URL, "http://")
	conn, _, err := websocket.Dial(context.Background(), wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial gateway: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("failed to write malformed event: %v", err)
	}

	if err := wsjson.Write(ctx, conn, InboundEvent{Type: InboundStop}); err != nil {
		t.Fatalf("failed to write stop event: %v", err)
	}
}
