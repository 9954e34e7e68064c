// Package transport implements the WebSocket gateway (GW): one connection
// per conversation, framing the inbound/outbound event contract of
// SPEC_FULL §6 onto coder/websocket, matching the teacher's own TTS client's
// dependency choice for the wire protocol.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/lokutor-ai/lokutor-orchestrator/pkg/orchestrator"
)

// InboundEventType enumerates the frame kinds a client may send (SPEC_FULL
// §6's inbound event stream).
type InboundEventType string

const (
	InboundMedia InboundEventType = "media"
	InboundMark  InboundEventType = "mark"
	InboundStart InboundEventType = "start"
	InboundStop  InboundEventType = "stop"
)

// InboundEvent is the JSON envelope a client writes for one frame. Media
// carries base64-free raw bytes are not possible over wsjson's text frames,
// so media audio travels as its own binary websocket message instead; this
// envelope only carries the non-audio control frames (mark/start/stop).
type InboundEvent struct {
	Type InboundEventType `json:"type"`
	Name string           `json:"name,omitempty"`
}

// ConversationFactory builds a fresh Conversation for a newly accepted
// connection. The caller supplies this so the gateway stays decoupled from
// collaborator construction/config loading.
type ConversationFactory func(conversationID string) (*orchestrator.Conversation, error)

// Gateway is the WebSocket entry point. It accepts one connection per
// conversation, decodes inbound frames, and drives the resulting
// Conversation for the lifetime of the socket.
type Gateway struct {
	NewConversation ConversationFactory
	Logger          orchestrator.Logger

	// AcceptOptions lets callers relax/tighten origin checks; nil uses
	// coder/websocket's defaults.
	AcceptOptions *websocket.AcceptOptions
}

// NewGateway builds a Gateway. logger may be nil, in which case events are
// discarded.
func NewGateway(factory ConversationFactory, logger orchestrator.Logger) *Gateway {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Gateway{NewConversation: factory, Logger: logger}
}

// ServeHTTP upgrades the request to a WebSocket connection, spins up a
// Conversation, and blocks until the connection closes or the request
// context is cancelled.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, g.AcceptOptions)
	if err != nil {
		g.Logger.Error("websocket accept failed", "error", err)
		return
	}

	conversationID := uuid.NewString()
	conv, err := g.NewConversation(conversationID)
	if err != nil {
		g.Logger.Error("failed to create conversation", "error", err, "conversation_id", conversationID)
		conn.Close(websocket.StatusInternalError, "failed to start conversation")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conv.Start(ctx)
	defer conv.EndConversation()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.writeLoop(ctx, conn, conv)
	}()

	g.readLoop(ctx, conn, conv)
	cancel()
	<-done
}

// readLoop decodes inbound frames and dispatches them to the conversation's
// ingress handlers. These are bookkeeping-only calls per SPEC_FULL §5, so
// the read loop never blocks waiting on the core.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, conv *orchestrator.Conversation) {
	for {
		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				g.Logger.Info("gateway connection closed", "conversation_id", conv.GetSessionID(), "error", err)
			}
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			conv.AudioReceived(payload)
		case websocket.MessageText:
			var evt InboundEvent
			if err := json.Unmarshal(payload, &evt); err != nil {
				g.Logger.Warn("malformed inbound event", "conversation_id", conv.GetSessionID(), "error", err)
				continue
			}
			switch evt.Type {
			case InboundMark:
				conv.AgentSpeechMarked(evt.Name)
			case InboundStop:
				return
			case InboundStart:
				// no-op: the conversation is already running once accepted.
			default:
				g.Logger.Warn("unknown inbound event type", "conversation_id", conv.GetSessionID(), "type", evt.Type)
			}
		}
	}
}

// OutboundEvent is the JSON envelope written back for every non-audio
// orchestrator event. Audio (AudioChunkEvent) is written as its own binary
// message instead, mirroring the split used for inbound media.
type OutboundEvent struct {
	Type      orchestrator.EventType `json:"type"`
	SessionID string                 `json:"session_id"`
	Data      interface{}            `json:"data,omitempty"`
}

// writeLoop drains the conversation's outbound event channel and frames each
// event onto the connection in emission order. The gateway never reorders
// what the orchestrator hands it; ordering is the orchestrator's
// responsibility (SPEC_FULL §5), the gateway is a pure framing pass-through.
func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, conv *orchestrator.Conversation) {
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "conversation ended")
			return
		case evt, ok := <-conv.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "conversation ended")
				return
			}
			if err := g.writeEvent(ctx, conn, evt); err != nil {
				g.Logger.Warn("failed to write outbound event", "conversation_id", conv.GetSessionID(), "error", err)
				return
			}
		}
	}
}

func (g *Gateway) writeEvent(ctx context.Context, conn *websocket.Conn, evt orchestrator.OrchestratorEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if evt.Type == orchestrator.AudioChunkEvent {
		audio, ok := evt.Data.([]byte)
		if !ok {
			return fmt.Errorf("audio chunk event carried non-[]byte data %T", evt.Data)
		}
		return conn.Write(writeCtx, websocket.MessageBinary, audio)
	}

	out := OutboundEvent{Type: evt.Type, SessionID: evt.SessionID, Data: evt.Data}
	return wsjson.Write(writeCtx, conn, out)
}
