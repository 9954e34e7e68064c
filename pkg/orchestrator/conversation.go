package orchestrator

import (
	"context"
	"fmt"
	"sync"
)

// Conversation is the aggregate root of one spoken session: it owns the
// HVB, AVL, VAG, and the list of outstanding response tasks (SPEC_FULL §3),
// and drives the Orchestrator Loop for as long as the session is open.
//
// This supersedes the teacher's two divergent `Conversation` wrappers (a
// root-level one using unguarded fields and log.Printf, and this package's
// own mutex-guarded one) by keeping the latter's concurrency discipline and
// folding in the former's convenience methods (Chat, TextOnly, the
// SetXByString helpers) so callers keep one simple entry point.
type Conversation struct {
	mu      sync.Mutex
	id      string
	config  Config
	logger  Logger
	metrics MetricsRecorder

	stt STTProvider
	llm LLMProvider
	tts TTSProvider

	vag *VoiceActivityGate
	hvb *HumanVoiceBuffer
	avl *AgentVoiceLedger
	tsm *TurnStateMachine

	session *ConversationSession
	tasks   []*responseTask
	events  chan OrchestratorEvent

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewConversation creates a conversation with the given id and collaborator
// set, wiring a VAG around vad (falling back to the default RMSVAD). It does
// not start the orchestrator loop; call Start for that.
func NewConversation(id string, stt STTProvider, llm LLMProvider, tts TTSProvider, vad VADProvider, cfg Config, logger Logger) (*Conversation, error) {
	if stt == nil || llm == nil || tts == nil {
		return nil, ErrNilProvider
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if vad == nil {
		vad = NewRMSVAD(cfg.VADThreshold, msDuration(cfg.VADMinSilenceMS))
	}

	session := NewConversationSession(id)
	session.MaxMessages = cfg.MaxContextMessages
	session.CurrentVoice = cfg.VoiceStyle
	session.CurrentLanguage = cfg.Language

	return &Conversation{
		id:      id,
		config:  cfg,
		logger:  logger,
		metrics: NoOpMetrics{},
		stt:     stt,
		llm:     llm,
		tts:     tts,
		vag:     NewVoiceActivityGate(vad, cfg),
		hvb:     NewHumanVoiceBuffer(cfg),
		avl:     NewAgentVoiceLedger(id, logger),
		tsm:     NewTurnStateMachine(),
		session: session,
		events:  make(chan OrchestratorEvent, eventBufferSize),
	}, nil
}

// SetMetrics attaches a MetricsRecorder for the Orchestrator Loop to report
// turn/barge-in/collaborator-call observations against. Safe to call before
// or after Start; nil resets to a no-op recorder.
func (c *Conversation) SetMetrics(m MetricsRecorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m == nil {
		m = NoOpMetrics{}
	}
	c.metrics = m
}

// Start launches the orchestrator loop bound to ctx; cancelling ctx or
// calling EndConversation tears it down.
func (c *Conversation) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCtx = loopCtx
	c.cancelLoop = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runLoop(loopCtx)
	}()
}

// AudioReceived is the ingress handler: bookkeeping-only, never blocks.
func (c *Conversation) AudioReceived(pcm []byte) {
	c.mu.Lock()
	c.hvb.Append(pcm)
	c.mu.Unlock()
}

// AgentSpeechMarked is the ingress handler for a client ack of a previously
// sent `media` chunk.
func (c *Conversation) AgentSpeechMarked(markID string) {
	speechIdx, chunkIdx, ok := parseMarkID(markID)
	if !ok {
		c.logger.Warn("received malformed mark id", "markID", markID)
		return
	}
	c.mu.Lock()
	c.avl.AckMark(speechIdx, chunkIdx)
	c.mu.Unlock()
}

// EndConversation tears down the loop and cancels every outstanding
// response task. No event is emitted after this returns. Idempotent.
func (c *Conversation) EndConversation() {
	c.closeOnce.Do(func() {
		if c.cancelLoop != nil {
			c.cancelLoop()
		}
		c.mu.Lock()
		for _, t := range c.tasks {
			t.cancel()
		}
		c.mu.Unlock()
		c.wg.Wait()
		close(c.events)
	})
}

// Events exposes the outbound event stream (SPEC_FULL §6).
func (c *Conversation) Events() <-chan OrchestratorEvent {
	return c.events
}

// GetSessionID returns the conversation id.
func (c *Conversation) GetSessionID() string {
	return c.id
}

// GetConfig returns the conversation's configuration.
func (c *Conversation) GetConfig() Config {
	return c.config
}

// GetProviders reports which collaborator implementation backs each slot.
func (c *Conversation) GetProviders() map[string]string {
	return map[string]string{
		"stt": c.stt.Name(),
		"llm": c.llm.Name(),
		"tts": c.tts.Name(),
	}
}

// SetSystemPrompt seeds the dialogue history with a system message.
func (c *Conversation) SetSystemPrompt(prompt string) {
	c.session.AddMessage("system", prompt)
}

// SetVoice changes the voice used for subsequent synthesis.
func (c *Conversation) SetVoice(voice Voice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.CurrentVoice = voice
}

// SetVoiceByString is a convenience wrapper accepting a raw string, useful
// for config/CLI plumbing. Unknown values are rejected.
func (c *Conversation) SetVoiceByString(voice string) error {
	v := Voice(voice)
	switch v {
	case VoiceF1, VoiceF2, VoiceF3, VoiceF4, VoiceF5, VoiceM1, VoiceM2, VoiceM3, VoiceM4, VoiceM5:
		c.SetVoice(v)
		return nil
	default:
		return fmt.Errorf("unknown voice %q", voice)
	}
}

// SetLanguage changes the language used for STT/LLM/TTS.
func (c *Conversation) SetLanguage(lang Language) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.CurrentLanguage = lang
}

// SetLanguageByString is SetLanguage's string-keyed counterpart.
func (c *Conversation) SetLanguageByString(lang string) error {
	l := Language(lang)
	switch l {
	case LanguageEn, LanguageEs, LanguageFr, LanguageDe, LanguageIt, LanguagePt, LanguageJa, LanguageZh:
		c.SetLanguage(l)
		return nil
	default:
		return fmt.Errorf("unknown language %q", lang)
	}
}

// GetContext returns a copy of the dialogue history.
func (c *Conversation) GetContext() []Message {
	return c.session.GetContextCopy()
}

// GetLastUserMessage returns the most recent transcript, if any.
func (c *Conversation) GetLastUserMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.LastUser
}

// GetLastAssistantMessage returns the most recent agent response, if any.
func (c *Conversation) GetLastAssistantMessage() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.LastAssistant
}

// ClearContext drops dialogue history, preserving system messages.
func (c *Conversation) ClearContext() {
	c.session.ClearContext()
}

// Reset wipes dialogue history (including any system prompt) and VAG/HVB/AVL
// state, for reuse of the Conversation object across unrelated calls. Unlike
// ClearContext, system messages are not preserved.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := NewConversationSession(c.id)
	session.MaxMessages = c.config.MaxContextMessages
	session.CurrentVoice = c.config.VoiceStyle
	session.CurrentLanguage = c.config.Language
	c.session = session
	c.vag.Reset()
	c.hvb = NewHumanVoiceBuffer(c.config)
	c.avl = NewAgentVoiceLedger(c.id, c.logger)
}

// Chat runs one batch (non-streaming) turn directly against the
// collaborators, bypassing the VAG/TSM/ORC — useful for text-only or
// offline testing paths that don't need turn-taking.
func (c *Conversation) Chat(ctx context.Context, humanSpeech []byte) (transcript, response string, audio []byte, err error) {
	transcript, err = c.stt.Transcribe(ctx, humanSpeech, c.session.GetCurrentLanguage())
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if transcript == "" {
		return "", "", nil, ErrEmptyTranscription
	}
	c.session.AddMessage("user", transcript)

	response, err = c.llm.Complete(ctx, c.session.GetContextCopy())
	if err != nil {
		return transcript, "", nil, fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	c.session.AddMessage("assistant", response)

	audio, err = c.tts.Synthesize(ctx, response, c.session.GetCurrentVoice(), c.session.GetCurrentLanguage())
	if err != nil {
		return transcript, response, nil, fmt.Errorf("%w: %v", ErrTTSFailed, err)
	}
	return transcript, response, audio, nil
}

// TextOnly runs one LLM-only turn, with no STT/TTS involved.
func (c *Conversation) TextOnly(ctx context.Context, text string) (string, error) {
	c.session.AddMessage("user", text)
	response, err := c.llm.Complete(ctx, c.session.GetContextCopy())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMFailed, err)
	}
	c.session.AddMessage("assistant", response)
	return response, nil
}
