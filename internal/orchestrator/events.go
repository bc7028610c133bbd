package orchestrator

// EventKind discriminates a TurnEvent's payload, mirroring spec §4.1's
// askStream wire vocabulary one-for-one.
type EventKind string

const (
	EventThinking         EventKind = "thinking"
	EventThinkingFinished EventKind = "thinking_finished"
	EventStream           EventKind = "stream"
	EventJSONContent      EventKind = "json_content"
	EventActionDetected   EventKind = "action_detected"
	EventActionLoop       EventKind = "action_loop"
	EventActionOutput     EventKind = "action_output"
	EventActionUpdate     EventKind = "action_update"
	EventPermissionNeeded EventKind = "permission_required"
	EventRequestKey       EventKind = "request_key"
	EventError            EventKind = "error"
)

// TurnEvent is one unit of the lazy sequence askStream produces (spec
// §4.1). Only the fields relevant to Kind are populated; the rest are
// left zero.
type TurnEvent struct {
	Kind EventKind

	Chunk string // EventThinking, EventStream
	Trace string // EventThinkingFinished

	Message string // EventJSONContent, EventRequestKey
	JSON    any    // EventJSONContent

	ActionNames []string // EventActionDetected

	Loop     int // EventActionLoop
	MaxLoops int // EventActionLoop

	ActionName string         // EventActionOutput, EventActionUpdate, EventPermissionNeeded
	Status     string         // EventActionOutput ("success" | "error")
	Output     string         // EventActionOutput

	UpdateType string         // EventActionUpdate
	UpdateData map[string]any // EventActionUpdate

	ActionArgs map[string]any // EventPermissionNeeded

	Provider string // EventRequestKey

	Err error // EventError
}
