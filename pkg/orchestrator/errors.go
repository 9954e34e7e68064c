package orchestrator

import "errors"

var (
	// ErrEmptyTranscription is returned when STT succeeds but yields no text.
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrTranscriptionFailed wraps a failed STT call.
	ErrTranscriptionFailed = errors.New("speech-to-text transcription failed")

	// ErrLLMFailed wraps a failed LLM call.
	ErrLLMFailed = errors.New("language model generation failed")

	// ErrTTSFailed wraps a failed TTS call.
	ErrTTSFailed = errors.New("text-to-speech synthesis failed")

	// ErrNilProvider is returned when a required collaborator was not configured.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrContextCancelled marks a cooperative cancellation at a suspension point.
	ErrContextCancelled = errors.New("operation cancelled by context")

	// ErrAlignment is returned by the VAG when fed audio that is not a whole
	// multiple of the VAD window size. Fatal to the conversation: it
	// indicates a caller bug upstream of the gate, not a transient failure.
	ErrAlignment = errors.New("audio chunk is not VAD-window aligned")

	// ErrVADModel marks a fatal failure of the underlying VAD detector.
	ErrVADModel = errors.New("voice activity detector failed")

	// ErrCollaboratorStream marks a recoverable failure of an STT/LLM/TTS
	// call during a response task; the task ends, the loop continues.
	ErrCollaboratorStream = errors.New("collaborator stream failed")
)
