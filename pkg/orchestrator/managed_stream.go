package orchestrator

import (
	"context"
)

// ManagedStream adapts a full-duplex audio device (mic capture + speaker
// playback, as used by cmd/agent's malgo device) onto a Conversation. It is
// intentionally thin: all turn-taking (VAD, barge-in, restream) now lives in
// Conversation's VAG/HVB/AVL/TSM/ORC; ManagedStream's own job is purely the
// duplex-audio concern the teacher's original, much larger version of this
// file also owned — echo suppression between what was just played and what
// the microphone is currently picking up.
//
// Grounded on the teacher's own ManagedStream: its echo-suppression wiring
// (RecordPlayedOutput/EchoSuppressor) is kept, its inline VAD/barge-in state
// machine is removed because Conversation now owns that logic and
// duplicating it would let the CLI and the WebSocket gateway drift apart.
type ManagedStream struct {
	conv *Conversation
	echo *EchoSuppressor
}

// NewManagedStream wraps conv with an echo suppressor sized for conv's
// configured sample rate.
func NewManagedStream(conv *Conversation) *ManagedStream {
	return &ManagedStream{
		conv: conv,
		echo: NewEchoSuppressor(conv.GetConfig().SampleRate),
	}
}

// Write feeds one chunk of captured microphone PCM into the conversation,
// first stripping any audio that correlates with what was just played back
// (acoustic echo from the device's own speaker).
func (ms *ManagedStream) Write(chunk []byte) error {
	cleaned := ms.echo.RemoveEchoRealtime(chunk)
	ms.conv.AudioReceived(cleaned)
	return nil
}

// RecordPlayedOutput must be called with every chunk of agent audio as it is
// handed to the playback device, so the echo suppressor knows what to expect
// to see bleed back into the microphone.
func (ms *ManagedStream) RecordPlayedOutput(chunk []byte) {
	ms.echo.RecordPlayedAudio(chunk)
}

// Interrupt clears the echo suppressor's reference buffer; call this
// alongside any manual/local barge-in signal so stale playback history
// doesn't mask the next real echo.
func (ms *ManagedStream) Interrupt() {
	ms.echo.ClearEchoBuffer()
}

// Events proxies the underlying conversation's outbound event stream.
func (ms *ManagedStream) Events() <-chan OrchestratorEvent {
	return ms.conv.Events()
}

// Start begins the conversation's orchestrator loop.
func (ms *ManagedStream) Start(ctx context.Context) {
	ms.conv.Start(ctx)
}

// Close tears down the underlying conversation.
func (ms *ManagedStream) Close() {
	ms.conv.EndConversation()
}
