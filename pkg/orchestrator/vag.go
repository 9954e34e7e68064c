package orchestrator

import "time"

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// SpeechSegment is the VAG's output: a human speech interval expressed in
// cumulative sample offsets since the gate was created. EndSample and Ended
// are only meaningful once the segment has closed.
type SpeechSegment struct {
	StartSample int64
	EndSample   int64
	Ended       bool

	SampleRate              int
	InterruptionThresholdMS int
}

// DurationMS returns the total duration of an ended segment; it is 0 while
// the segment is still in progress.
func (s SpeechSegment) DurationMS() int64 {
	if s.SampleRate <= 0 {
		return 0
	}
	samples := s.EndSample - s.StartSample
	if !s.Ended {
		// EndSample is unset for in-progress segments; callers that need a
		// live duration should track it themselves from StartSample.
		return 0
	}
	return samples * 1000 / int64(s.SampleRate)
}

// IsShort reports whether this (ended) segment is shorter than the
// configured interruption threshold. IsLong is its complement — the
// boundary case (exactly equal) classifies as long, matching
// original_source/vsdk/vsdk/vad/vad.py's VADResult.is_short (strict "<").
func (s SpeechSegment) IsShort() bool {
	return s.DurationMS() < int64(s.InterruptionThresholdMS)
}

func (s SpeechSegment) IsLong() bool {
	return !s.IsShort()
}

// VoiceActivityGate wraps a VADProvider, enforcing window-aligned input and
// translating its start/end events into sample-offset SpeechSegments. It is
// the sole owner of "how many samples have we seen" bookkeeping; the
// underlying VADProvider only ever sees window-sized frames.
type VoiceActivityGate struct {
	vad                     VADProvider
	windowSamples           int
	bytesPerSample          int
	sampleRate              int
	interruptionThresholdMS int

	samplesSeen int64
	speechStart int64
	inSpeech    bool
}

func NewVoiceActivityGate(vad VADProvider, cfg Config) *VoiceActivityGate {
	return &VoiceActivityGate{
		vad:                     vad,
		windowSamples:           cfg.VADWindowSamples,
		bytesPerSample:          cfg.BytesPerSamp,
		sampleRate:              cfg.SampleRate,
		interruptionThresholdMS: cfg.InterruptionThresholdMS,
	}
}

// WindowBytes is the frame size Step requires, in bytes.
func (g *VoiceActivityGate) WindowBytes() int {
	return g.windowSamples * g.bytesPerSample
}

// Step feeds one window-aligned chunk through the detector. chunk MUST be
// exactly WindowBytes() long; HumanVoiceBuffer guarantees this upstream.
func (g *VoiceActivityGate) Step(chunk []byte) (*SpeechSegment, error) {
	if len(chunk)%g.bytesPerSample != 0 || len(chunk) != g.WindowBytes() {
		return nil, ErrAlignment
	}

	windowSamples := int64(len(chunk) / g.bytesPerSample)
	event, err := g.vad.Process(chunk)
	if err != nil {
		return nil, ErrVADModel
	}
	startOffset := g.samplesSeen
	g.samplesSeen += windowSamples

	if event == nil {
		return nil, nil
	}

	switch event.Type {
	case VADSpeechStart:
		g.inSpeech = true
		g.speechStart = startOffset
		return &SpeechSegment{
			StartSample:             g.speechStart,
			Ended:                   false,
			SampleRate:              g.sampleRate,
			InterruptionThresholdMS: g.interruptionThresholdMS,
		}, nil
	case VADSpeechEnd:
		seg := &SpeechSegment{
			StartSample:             g.speechStart,
			EndSample:               g.samplesSeen,
			Ended:                   true,
			SampleRate:              g.sampleRate,
			InterruptionThresholdMS: g.interruptionThresholdMS,
		}
		g.inSpeech = false
		// Mirrors vad.py: once an "end" is observed, reset internal VAD
		// state so the next "start" begins a clean new segment.
		g.vad.Reset()
		return seg, nil
	default: // VADSilence
		return nil, nil
	}
}

// InSpeech reports whether the gate currently believes speech is ongoing.
func (g *VoiceActivityGate) InSpeech() bool {
	return g.inSpeech
}

// Reset clears all gate state, including the underlying detector. Used on
// conversation teardown/reuse.
func (g *VoiceActivityGate) Reset() {
	g.vad.Reset()
	g.samplesSeen = 0
	g.speechStart = 0
	g.inSpeech = false
}
