package orchestrator

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// responseTask is one in-flight or cancelled STT->LLM->TTS pipeline run,
// tied to the exact human speech snapshot it was invoked with. Grounded on
// original_source/vsdk/vsdk/conversation_orchestrator.py's response-task
// bookkeeping, expressed with context.Context per SPEC_FULL §5/§9.
type responseTask struct {
	ctx               context.Context
	cancel            context.CancelFunc
	invokedWithSpeech []byte
	done              chan struct{}
	finished          bool
}

// ResultPayload is the `result` event's body (SPEC_FULL §6), shaped after
// the teacher's ManagedStream.LatencyBreakdown instrumentation.
type ResultPayload struct {
	Transcript      string
	Response        string
	STTDurationMS   int64
	LLMDurationMS   int64
	TTSDurationMS   int64
	TotalDurationMS int64
	FirstChunkMS    int64
	Err             string
}

const eventBufferSize = 64

// runLoop is the Orchestrator Loop (ORC): it ticks every TickIntervalMS,
// feeds newly arrived audio through the VAG, classifies the result with the
// TSM, and dispatches the resulting action. Exceptions from any step are
// logged and swallowed, mirroring conversation_orchestrator.py's main loop.
func (c *Conversation) runLoop(ctx context.Context) {
	tick := time.Duration(c.config.TickIntervalMS) * time.Millisecond
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.safeTick()
		}
	}
}

func (c *Conversation) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("orchestrator tick panicked", "recover", r)
		}
	}()
	c.tick()
}

// tick drains every window-aligned chunk that has queued up since the last
// tick — a bursty transport read can call AudioReceived several times
// between ticks — feeding each one through the VAG/TSM in order so no window
// is ever dropped and the VAG's sample offsets stay in sync with HVB.all.
// When nothing is ready, it still classifies once against no new audio
// (always HUMAN_SILENT, which takes no action) so every tick reports a turn
// observation.
func (c *Conversation) tick() {
	windowBytes := c.vag.WindowBytes()
	processed := false

	for {
		c.mu.Lock()
		if !c.hvb.ReadyToProcess(windowBytes) {
			c.mu.Unlock()
			break
		}
		chunk := c.hvb.TakeAligned(windowBytes)
		c.mu.Unlock()

		if chunk == nil {
			break
		}
		processed = true

		seg, err := c.vag.Step(chunk)
		if err != nil {
			if err == ErrVADModel {
				c.logger.Error("vad model failed, tearing down conversation", "error", err)
				go c.EndConversation()
			} else {
				c.logger.Error("vag step failed", "error", err)
			}
			return
		}

		c.mu.Lock()
		if seg != nil && seg.Ended {
			c.hvb.OnSpeechEnded(*seg)
		}
		isSpeaking := c.avl.IsSpeaking()
		wasInterrupted := c.avl.WasInterrupted()
		c.mu.Unlock()

		c.dispatch(c.tsm.Classify(seg, isSpeaking, wasInterrupted))
	}

	if !processed {
		c.dispatch(c.tsm.Classify(nil, c.avl.IsSpeaking(), c.avl.WasInterrupted()))
	}
}

func (c *Conversation) dispatch(state ConversationState) {
	action := c.tsm.Action(state)
	c.metrics.ObserveTurn(string(state), string(action))

	switch action {
	case ActionNone:
		return
	case ActionStopAgent:
		c.mu.Lock()
		c.avl.StopCurrent()
		c.mu.Unlock()
		c.emit(StopSpeakingEvent, nil)
	case ActionRestreamTail:
		c.metrics.ObserveBargeIn("short")
		c.restreamUnspokenTail()
	case ActionSpawnResponse:
		if state == LongInterruption {
			c.metrics.ObserveBargeIn("long")
		}
		c.spawnResponse()
	}
}

// restreamUnspokenTail implements SHORT_INTERRUPTION: the short human
// utterance is treated as a back-channel and dropped (never sent to STT);
// whatever the agent hadn't finished playing is replayed as a fresh
// AgentSpeech.
func (c *Conversation) restreamUnspokenTail() {
	c.emit(StartRestreamEv, nil)

	c.mu.Lock()
	tail := c.avl.UnspokenTail()
	c.avl.BeginSpeech()
	c.mu.Unlock()

	for _, chunk := range tail {
		c.mu.Lock()
		markID := c.avl.RecordChunk(chunk.Audio)
		c.mu.Unlock()
		c.emit(AudioChunkEvent, chunk.Audio)
		c.emit(MarkEvent, markID)
	}

	c.mu.Lock()
	c.hvb.ClearLastSpeech()
	c.mu.Unlock()
}

// spawnResponse implements LONG_INTERRUPTION/SHORT_SPEECH/LONG_SPEECH: any
// in-flight response task is cancelled, its input is folded into the new
// task's input alongside the freshly ended human speech, and a new response
// task is launched.
func (c *Conversation) spawnResponse() {
	c.mu.Lock()
	cancelledInputs := c.cancelActiveTasksLocked()
	humanSpeech := c.hvb.AssembleUnanswered(cancelledInputs)
	c.hvb.ClearLastSpeech()
	c.mu.Unlock()

	if len(humanSpeech) == 0 {
		return
	}

	taskCtx, cancel := context.WithCancel(c.loopCtx)
	task := &responseTask{ctx: taskCtx, cancel: cancel, invokedWithSpeech: humanSpeech, done: make(chan struct{})}

	c.mu.Lock()
	c.tasks = append(c.tasks, task)
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runResponseTask(task, humanSpeech)
	}()
}

// cancelActiveTasksLocked cancels every not-yet-finished task and returns
// their original inputs. Callers must hold c.mu.
func (c *Conversation) cancelActiveTasksLocked() [][]byte {
	var inputs [][]byte
	for _, t := range c.tasks {
		if t.finished {
			continue
		}
		select {
		case <-t.done:
			continue
		default:
		}
		t.cancel()
		inputs = append(inputs, t.invokedWithSpeech)
	}
	// Unfinished tasks were cancelled above and finished ones need no
	// cancelling (a new response supersedes them all); none are retained.
	c.tasks = nil
	return inputs
}

func (c *Conversation) runResponseTask(task *responseTask, humanSpeech []byte) {
	defer close(task.done)
	started := time.Now()

	c.emit(StartRespondingEv, nil)
	c.mu.Lock()
	c.avl.BeginSpeech()
	voice := c.session.GetCurrentVoice()
	lang := c.session.GetCurrentLanguage()
	c.mu.Unlock()

	result := ResultPayload{}

	sttStart := time.Now()
	transcript, err := c.stt.Transcribe(task.ctx, humanSpeech, lang)
	result.STTDurationMS = time.Since(sttStart).Milliseconds()
	c.metrics.ObserveCollaboratorCall("stt", time.Since(sttStart).Seconds())
	if task.ctx.Err() != nil {
		return
	}
	if err != nil {
		c.logger.Error("stt failed", "error", err)
		c.metrics.ObserveCollaboratorError("stt")
		result.Err = err.Error()
		c.emit(ResultEvent, result)
		c.metrics.ObserveResponseTask("error", time.Since(started).Seconds())
		return
	}
	if strings.TrimSpace(transcript) == "" {
		c.emit(ResultEvent, result)
		c.metrics.ObserveResponseTask("empty_transcript", time.Since(started).Seconds())
		return
	}
	result.Transcript = transcript
	c.session.AddMessage("user", transcript)

	llmStart := time.Now()
	tokens, llmErrc := c.llm.Stream(task.ctx, c.session.GetContextCopy())

	textOut := make(chan string)
	var responseBuilder strings.Builder
	firstTokenSeen := false
	go func() {
		defer close(textOut)
		for {
			select {
			case <-task.ctx.Done():
				return
			case tok, ok := <-tokens:
				if !ok {
					return
				}
				if !firstTokenSeen {
					firstTokenSeen = true
					result.LLMDurationMS = time.Since(llmStart).Milliseconds()
					c.metrics.ObserveCollaboratorCall("llm", time.Since(llmStart).Seconds())
				}
				responseBuilder.WriteString(tok)
				select {
				case textOut <- tok:
				case <-task.ctx.Done():
					return
				}
			case err, ok := <-llmErrc:
				if !ok {
					// A closed error channel is not the end of the tokens.
					llmErrc = nil
					continue
				}
				if err != nil {
					c.logger.Error("llm stream failed", "error", err)
					c.metrics.ObserveCollaboratorError("llm")
				}
				return
			}
		}
	}()

	ttsStart := time.Now()
	chunks, ttsErrc := c.tts.Stream(task.ctx, textOut, voice, lang)

	firstChunkSeen := false
drain:
	for {
		select {
		case <-task.ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				break drain
			}
			if !firstChunkSeen {
				firstChunkSeen = true
				result.FirstChunkMS = time.Since(ttsStart).Milliseconds()
				c.metrics.ObserveCollaboratorCall("tts", time.Since(ttsStart).Seconds())
			}
			c.mu.Lock()
			markID := c.avl.RecordChunk(chunk.Audio)
			c.mu.Unlock()
			c.emit(AudioChunkEvent, chunk.Audio)
			c.emit(MarkEvent, markID)
		case err, ok := <-ttsErrc:
			if !ok {
				// A closed error channel is not the end of the chunks.
				ttsErrc = nil
				continue
			}
			if err != nil {
				c.logger.Error("tts stream failed", "error", err)
				c.metrics.ObserveCollaboratorError("tts")
			}
			break drain
		}
	}

	result.TTSDurationMS = time.Since(ttsStart).Milliseconds()
	result.Response = responseBuilder.String()
	if result.Response != "" {
		c.session.AddMessage("assistant", result.Response)
	}
	result.TotalDurationMS = time.Since(started).Milliseconds()

	if task.ctx.Err() != nil {
		c.metrics.ObserveResponseTask("cancelled", time.Since(started).Seconds())
		return
	}
	task.finished = true
	c.emit(ResultEvent, result)
	c.metrics.ObserveResponseTask("ok", time.Since(started).Seconds())
}

// emit pushes an event onto the conversation's outbound channel, dropping
// the oldest queued event on overflow rather than blocking the loop — a
// slow client must never stall turn-taking.
func (c *Conversation) emit(eventType EventType, data interface{}) {
	evt := OrchestratorEvent{Type: eventType, SessionID: c.id, Data: data}
	select {
	case c.events <- evt:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- evt:
		default:
		}
	}
}

// parseMarkID splits "<conversation_id>_<speech_index>_<chunk_index>" from
// the tail, tolerating underscores inside the conversation id itself.
func parseMarkID(markID string) (speechIdx, chunkIdx int, ok bool) {
	parts := strings.Split(markID, "_")
	if len(parts) < 3 {
		return 0, 0, false
	}
	chunkPart := parts[len(parts)-1]
	speechPart := parts[len(parts)-2]
	si, err1 := strconv.Atoi(speechPart)
	ci, err2 := strconv.Atoi(chunkPart)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return si, ci, true
}
