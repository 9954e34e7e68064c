package orchestrator

import "bytes"

// silencePadSamples is inserted between concatenated cancelled-task inputs
// (and before the final live segment) so the STT collaborator sees a clear
// gap rather than one utterance smearing into the next. 80 samples at 8kHz
// is 10ms, matching SPEC_FULL §4.2.
const silencePadSamples = 80

// HumanVoiceBuffer accumulates inbound PCM, hands the VAG window-aligned
// frames, and recovers the exact audio belonging to the most recent speech
// segment. Grounded on original_source/vsdk/vsdk/conversation/base.py's
// HumanVoiceBuffer and the teacher's ManagedStream.Write buffering.
type HumanVoiceBuffer struct {
	bytesPerSample int

	all      []byte // ingress since the last on_speech_ended slice
	pending  []byte // not-yet-handed-to-the-VAG tail of `all`
	allStart int64  // cumulative sample offset (as the VAG counts) of all[0]

	lastHumanSpeech []byte
}

func NewHumanVoiceBuffer(cfg Config) *HumanVoiceBuffer {
	return &HumanVoiceBuffer{bytesPerSample: cfg.BytesPerSamp}
}

// Append adds newly arrived PCM to the buffer.
func (b *HumanVoiceBuffer) Append(pcm []byte) {
	b.all = append(b.all, pcm...)
	b.pending = append(b.pending, pcm...)
}

// ReadyToProcess reports whether there is at least one VAD-window worth of
// unprocessed audio waiting.
func (b *HumanVoiceBuffer) ReadyToProcess(windowBytes int) bool {
	return len(b.pending) >= windowBytes
}

// TakeAligned returns the oldest pending window and advances past exactly
// that many bytes, leaving the rest (including any further whole windows)
// pending for subsequent calls. Callers must drain with ReadyToProcess/
// TakeAligned in a loop when a burst of ingress has queued up more than one
// window, so every aligned window reaches the VAG in order.
func (b *HumanVoiceBuffer) TakeAligned(windowBytes int) []byte {
	if windowBytes <= 0 || len(b.pending) < windowBytes {
		return nil
	}
	chunk := make([]byte, windowBytes)
	copy(chunk, b.pending[:windowBytes])
	b.pending = b.pending[windowBytes:]
	return chunk
}

// OnSpeechEnded slices `last_human_speech` out of the cumulative buffer using
// the segment's cumulative sample offsets, then drops every sample the VAG
// has already processed. Processed samples before the segment's start are
// discarded; the not-yet-processed tail is kept, and allStart advances so
// the next segment's offsets still index the buffer correctly.
func (b *HumanVoiceBuffer) OnSpeechEnded(seg SpeechSegment) {
	startByte := (seg.StartSample - b.allStart) * int64(b.bytesPerSample)
	endByte := (seg.EndSample - b.allStart) * int64(b.bytesPerSample)
	if startByte < 0 {
		startByte = 0
	}
	if endByte > int64(len(b.all)) {
		endByte = int64(len(b.all))
	}
	if startByte >= endByte {
		b.lastHumanSpeech = nil
	} else {
		b.lastHumanSpeech = append([]byte(nil), b.all[startByte:endByte]...)
	}
	if b.bytesPerSample > 0 {
		b.allStart += int64((len(b.all) - len(b.pending)) / b.bytesPerSample)
	}
	b.all = append(b.all[:0], b.pending...)
}

// LastHumanSpeech returns the most recently sliced speech segment's audio.
func (b *HumanVoiceBuffer) LastHumanSpeech() []byte {
	return b.lastHumanSpeech
}

// AssembleUnanswered concatenates the inputs of cancelled response tasks
// with the current last_human_speech, separated by short silence padding, so
// the next response task's STT call sees the full unanswered context.
func (b *HumanVoiceBuffer) AssembleUnanswered(cancelledInputs [][]byte) []byte {
	pad := bytes.Repeat([]byte{0, 0}, silencePadSamples)
	var out []byte
	for _, seg := range cancelledInputs {
		if len(seg) == 0 {
			continue
		}
		out = append(out, seg...)
		out = append(out, pad...)
	}
	out = append(out, b.lastHumanSpeech...)
	return out
}

// ClearLastSpeech discards last_human_speech without feeding it to a
// response task — used when a short interruption is classified as a
// back-channel and dropped (TSM SHORT_INTERRUPTION).
func (b *HumanVoiceBuffer) ClearLastSpeech() {
	b.lastHumanSpeech = nil
}
