package orchestrator

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoSuppressor detects and filters out speaker echo from microphone input.
// It uses correlation-based analysis to detect when input audio matches
// recently played audio. Used only by the cmd/agent duplex debug client
// (SPEC_FULL §2, item 10): a telephony gateway connection has no local
// speaker, so the WebSocket path never needs this.
type EchoSuppressor struct {
	mu             sync.Mutex
	playedAudioBuf *bytes.Buffer // rolling buffer of recently played audio
	maxBufSize     int           // bound on playedAudioBuf, in bytes
	echoThreshold  float64       // correlation above which input is classified as echo
	echoSilenceMS  int           // stop suppressing this long after the last played chunk
	lastTTSTime    time.Time
}

// NewEchoSuppressor creates a new echo suppressor sized for sampleRate
// (SPEC_FULL's telephony profile uses 8kHz; the teacher's original default
// was 44.1kHz for local mic/speaker use — both are supported by scaling the
// rolling buffer to ~2 seconds of audio at whatever rate is passed in).
func NewEchoSuppressor(sampleRate int) *EchoSuppressor {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	return &EchoSuppressor{
		playedAudioBuf: new(bytes.Buffer),
		maxBufSize:     sampleRate * 2 * 2, // ~2 seconds, 16-bit mono
		echoThreshold:  0.55,
		echoSilenceMS:  1200, // cover longer playback->mic delays
	}
}

// RecordPlayedAudio records audio that was just sent to speakers.
func (es *EchoSuppressor) RecordPlayedAudio(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	es.playedAudioBuf.Write(chunk)
	es.lastTTSTime = time.Now()

	if es.playedAudioBuf.Len() > es.maxBufSize {
		data := es.playedAudioBuf.Bytes()
		trim := data[len(data)-es.maxBufSize:]
		es.playedAudioBuf.Reset()
		es.playedAudioBuf.Write(trim)
	}
}

// ClearEchoBuffer clears the played audio buffer (call when stopping TTS or
// interrupting).
func (es *EchoSuppressor) ClearEchoBuffer() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.playedAudioBuf.Reset()
}

// RemoveEchoRealtime attempts to detect a segment of recently-played audio
// within the incoming `input` chunk in real time. If a good match is found
// (correlation > threshold) the matching segment is muted and the cleaned
// copy returned; otherwise the original input is returned unchanged. This is
// a lightweight time-domain detector, not a full acoustic echo canceller.
func (es *EchoSuppressor) RemoveEchoRealtime(input []byte) []byte {
	out := make([]byte, len(input))
	copy(out, input)
	if len(input) == 0 {
		return out
	}

	es.mu.Lock()
	if time.Since(es.lastTTSTime) > time.Duration(es.echoSilenceMS)*time.Millisecond {
		es.mu.Unlock()
		return out
	}
	ref := make([]byte, es.playedAudioBuf.Len())
	copy(ref, es.playedAudioBuf.Bytes())
	threshold := es.echoThreshold
	es.mu.Unlock()

	if len(ref) == 0 {
		return out
	}

	inSamples := bytesToSamples(input)
	refSamples := bytesToSamples(ref)
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return out
	}

	compareLen := len(inSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}

	inSeg := inSamples[:compareLen]
	inEnergy := calculateEnergy(inSeg)
	if inEnergy == 0 {
		return out
	}

	// Bounded sliding search for the best alignment within the reference.
	// A coarse stride keeps this cheap enough for the realtime audio thread.
	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}

	searchRange := len(refSamples) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		seg := refSamples[pos : pos+compareLen]
		segEnergy := calculateEnergy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < compareLen; i++ {
			dot += inSeg[i] * seg[i]
		}
		corr := dot / math.Sqrt(inEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				break
			}
		}
	}

	if maxCorr < threshold {
		// Fall back to envelope correlation to catch phase-shifted sounds
		// (e.g. sibilants) room reflections otherwise scramble.
		envCorr := maxEnvelopeCorrelation(inSeg, refSamples, 8)
		if envCorr < threshold+0.05 {
			return out
		}
	}

	// Mute the matched segment entirely rather than subtracting it.
	muted := make([]byte, len(input))
	if len(muted) > compareLen*2 {
		copy(muted[compareLen*2:], input[compareLen*2:])
	}
	return muted
}

// bytesToSamples converts a 16-bit little-endian PCM byte slice to float64
// samples in [-1, 1].
func bytesToSamples(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}

// calculateEnergy computes the sum of squared samples.
func calculateEnergy(samples []float64) float64 {
	energy := 0.0
	for _, s := range samples {
		energy += s * s
	}
	return energy
}

// maxEnvelopeCorrelation finds the maximum correlation by comparing the
// absolute-value energy envelope (downsampled) of the signals. This matches
// sibilants and other high frequencies that room phase shifts otherwise
// scramble for a plain sample-by-sample correlation.
func maxEnvelopeCorrelation(inSamples, refSamples []float64, decimation int) float64 {
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return 0
	}
	inEnv := make([]float64, len(inSamples)/decimation)
	for i := range inEnv {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(inSamples[i*decimation+j])
		}
		inEnv[i] = sum
	}

	refEnv := make([]float64, len(refSamples)/decimation)
	for i := range refEnv {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(refSamples[i*decimation+j])
		}
		refEnv[i] = sum
	}

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := 0.0
	for i := 0; i < compareLen; i++ {
		inMean += inEnv[i]
	}
	inMean /= float64(compareLen)

	inVar := 0.0
	for i := 0; i < compareLen; i++ {
		inEnv[i] -= inMean
		inVar += inEnv[i] * inEnv[i]
	}
	if inVar <= 0 {
		return 0
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}

	searchRange := len(refEnv) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		refMean := 0.0
		for i := 0; i < compareLen; i++ {
			refMean += refEnv[pos+i]
		}
		refMean /= float64(compareLen)

		dot := 0.0
		refVar := 0.0
		for i := 0; i < compareLen; i++ {
			r := refEnv[pos+i] - refMean
			dot += inEnv[i] * r
			refVar += r * r
		}

		if refVar > 0 {
			corr := dot / math.Sqrt(inVar*refVar)
			if corr > maxCorr {
				maxCorr = corr
			}
		}
	}

	return maxCorr
}
