package orchestrator

import (
	"fmt"
)

// AgentSpeechChunk is one chunk of agent audio already recorded in the
// ledger, identified by its globally-unique, monotonic mark id.
type AgentSpeechChunk struct {
	Audio  []byte
	MarkID string
}

// AgentSpeech is one contiguous agent utterance: an ordered chunk list plus
// acknowledgement/stop bookkeeping. Grounded on
// original_source/vsdk/vsdk/conversation/base.py's AgentSpeech, refined per
// SPEC_FULL §3/§4.3 to track acknowledgement (not just "last mark sent") so
// is_speaking reflects what the client actually played.
type AgentSpeech struct {
	Index         int
	Chunks        []AgentSpeechChunk
	LastAckIndex  int
	StopSentIndex int
	stopped       bool
}

// AgentVoiceLedger records every chunk of agent audio sent to the client,
// tracks client acknowledgements, and answers "is the agent still speaking"
// and "what's left unplayed" for the restream path.
type AgentVoiceLedger struct {
	conversationID string
	logger         Logger

	speeches []*AgentSpeech
	current  *AgentSpeech
}

func NewAgentVoiceLedger(conversationID string, logger Logger) *AgentVoiceLedger {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &AgentVoiceLedger{conversationID: conversationID, logger: logger}
}

// BeginSpeech appends a fresh AgentSpeech and makes it current.
func (l *AgentVoiceLedger) BeginSpeech() *AgentSpeech {
	s := &AgentSpeech{Index: len(l.speeches)}
	l.speeches = append(l.speeches, s)
	l.current = s
	return s
}

// RecordChunk appends a chunk to the current speech and returns its mark id.
func (l *AgentVoiceLedger) RecordChunk(audio []byte) string {
	if l.current == nil {
		l.BeginSpeech()
	}
	idx := len(l.current.Chunks)
	markID := fmt.Sprintf("%s_%d_%d", l.conversationID, l.current.Index, idx)
	l.current.Chunks = append(l.current.Chunks, AgentSpeechChunk{Audio: audio, MarkID: markID})
	return markID
}

// AckMark records a client acknowledgement. Acks for a non-current speech
// index are logged and ignored (SPEC_FULL Open Question decision #2: never
// rewind LastAckIndex from a late ack).
func (l *AgentVoiceLedger) AckMark(speechIdx, chunkIdx int) {
	if l.current == nil || speechIdx != l.current.Index {
		l.logger.Warn("ignoring late mark ack", "speechIdx", speechIdx, "chunkIdx", chunkIdx)
		return
	}
	if chunkIdx > l.current.LastAckIndex {
		l.current.LastAckIndex = chunkIdx
	}
}

// StopCurrent freezes the current speech's stop point just past its last
// acknowledged chunk, so the unspoken tail starts at the first chunk the
// client has not confirmed playing. Idempotent by design per spec invariant: calling it
// twice logs and does not overwrite the first stop point.
func (l *AgentVoiceLedger) StopCurrent() {
	if l.current == nil {
		return
	}
	if l.current.stopped {
		l.logger.Error("stop_current called more than once for current speech", "speechIdx", l.current.Index)
		return
	}
	l.current.StopSentIndex = l.current.LastAckIndex + 1
	l.current.stopped = true
}

// UnspokenTail returns the chunks of the current speech from its stop point
// to the end — the audio the client never got to play.
func (l *AgentVoiceLedger) UnspokenTail() []AgentSpeechChunk {
	if l.current == nil || !l.current.stopped {
		return nil
	}
	start := l.current.StopSentIndex
	if start >= len(l.current.Chunks) {
		return nil
	}
	tail := make([]AgentSpeechChunk, len(l.current.Chunks)-start)
	copy(tail, l.current.Chunks[start:])
	return tail
}

// IsSpeaking reports whether the agent is still mid-utterance: there is a
// current speech and the client has not yet acknowledged its final chunk.
func (l *AgentVoiceLedger) IsSpeaking() bool {
	if l.current == nil || len(l.current.Chunks) == 0 {
		return false
	}
	return l.current.LastAckIndex < len(l.current.Chunks)-1
}

// WasInterrupted reports whether the current speech was ever stopped.
func (l *AgentVoiceLedger) WasInterrupted() bool {
	return l.current != nil && l.current.stopped
}

// Current returns the current AgentSpeech (nil before the first BeginSpeech).
func (l *AgentVoiceLedger) Current() *AgentSpeech {
	return l.current
}
