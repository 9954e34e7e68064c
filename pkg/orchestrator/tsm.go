package orchestrator

// ConversationState is the TSM's classification of one tick, per
// SPEC_FULL §4.4's table (grounded on
// original_source/vsdk/vsdk/conversation_orchestrator.py's `match
// conversation_state` dispatch).
type ConversationState string

const (
	HumanSilent          ConversationState = "HUMAN_SILENT"
	BothSpeaking         ConversationState = "BOTH_SPEAKING"
	HumanStartedSpeaking ConversationState = "HUMAN_STARTED_SPEAKING"
	ShortInterruption    ConversationState = "SHORT_INTERRUPTION"
	LongInterruption     ConversationState = "LONG_INTERRUPTION"
	ShortSpeech          ConversationState = "SHORT_SPEECH"
	LongSpeech           ConversationState = "LONG_SPEECH"
)

// TurnAction is what the orchestrator loop must do in response to a
// classified state.
type TurnAction string

const (
	ActionNone            TurnAction = "NONE"
	ActionStopAgent       TurnAction = "STOP_AGENT"
	ActionRestreamTail    TurnAction = "RESTREAM_TAIL"
	ActionSpawnResponse   TurnAction = "SPAWN_RESPONSE"
)

// TurnStateMachine is a pure function of (VAG output, AVL speaking/
// interrupted bits). It holds no state of its own.
type TurnStateMachine struct{}

func NewTurnStateMachine() *TurnStateMachine {
	return &TurnStateMachine{}
}

// Classify returns the conversation state for one tick. seg is nil when the
// VAG produced no event this tick.
func (t *TurnStateMachine) Classify(seg *SpeechSegment, isSpeaking, wasInterrupted bool) ConversationState {
	if seg == nil {
		return HumanSilent
	}
	if !seg.Ended {
		if isSpeaking {
			return BothSpeaking
		}
		return HumanStartedSpeaking
	}
	short := seg.IsShort()
	switch {
	case wasInterrupted && short:
		return ShortInterruption
	case wasInterrupted && !short:
		return LongInterruption
	case !wasInterrupted && short:
		return ShortSpeech
	default:
		return LongSpeech
	}
}

// Action maps a classified state to the orchestrator's required action.
func (t *TurnStateMachine) Action(state ConversationState) TurnAction {
	switch state {
	case HumanSilent, HumanStartedSpeaking:
		return ActionNone
	case BothSpeaking:
		return ActionStopAgent
	case ShortInterruption:
		return ActionRestreamTail
	case LongInterruption, ShortSpeech, LongSpeech:
		return ActionSpawnResponse
	default:
		return ActionNone
	}
}
