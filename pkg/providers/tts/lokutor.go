package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// StreamingTTS wraps the Lokutor synthesis websocket, generalized from a
// single hardcoded host to a configurable one so the same client can point
// at a test double or a self-hosted deployment. Stream buffers the incoming
// text-token stream into one phrase per call, since Lokutor's protocol
// synthesizes a whole utterance per request rather than per token; it still
// honors the streamed-audio-chunks half of the contract.
type StreamingTTS struct {
	apiKey string
	host   string
	scheme string
	mu     sync.Mutex
	conn   *websocket.Conn
}

func NewStreamingTTS(apiKey, host string) *StreamingTTS {
	if host == "" {
		host = "api.lokutor.com"
	}
	return &StreamingTTS{
		apiKey: apiKey,
		host:   host,
		scheme: "wss",
	}
}

func (t *StreamingTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	scheme := t.scheme
	if scheme == "" {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}

	t.conn = conn
	return conn, nil
}

func (t *StreamingTTS) Synthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (t *StreamingTTS) StreamSynthesize(ctx context.Context, text string, voice orchestrator.Voice, lang orchestrator.Language, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

// Stream drains textTokens into a single phrase, then synthesizes it and
// forwards every audio chunk as it streams back. It stops early, closing
// both channels, if ctx is cancelled.
func (t *StreamingTTS) Stream(ctx context.Context, textTokens <-chan string, voice orchestrator.Voice, lang orchestrator.Language) (<-chan orchestrator.TTSChunk, <-chan error) {
	chunks := make(chan orchestrator.TTSChunk)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		var text strings.Builder
		for {
			select {
			case tok, ok := <-textTokens:
				if !ok {
					goto synthesize
				}
				text.WriteString(tok)
			case <-ctx.Done():
				return
			}
		}

	synthesize:
		if text.Len() == 0 {
			return
		}

		err := t.StreamSynthesize(ctx, text.String(), voice, lang, func(chunk []byte) error {
			select {
			case chunks <- orchestrator.TTSChunk{Audio: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			select {
			case errc <- err:
			default:
			}
		}
	}()

	return chunks, errc
}

// Abort closes the underlying connection, forcing the next call to
// reconnect. It takes the same lock StreamSynthesize holds for a whole
// request, so it returns only after any in-flight request has finished and
// does not interrupt one. Safe to call when idle.
func (t *StreamingTTS) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
	t.conn = nil
	return err
}

func (t *StreamingTTS) Name() string {
	return "lokutor"
}

func (t *StreamingTTS) Close() error {
	return t.Abort()
}
