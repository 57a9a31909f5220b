package coachdto

type EventType string

const (
	EventBasic      EventType = "basic"
	EventExtended   EventType = "extended"
	EventEngineMove EventType = "engine_move"
	EventError      EventType = "error"
)

// StreamEvent is one element of the ordered per-submission event sequence:
// basic precedes extended, engine_move (play mode only) follows extended,
// error terminates the stream.
type StreamEvent struct {
	Type       EventType     `json:"type"`
	Feedback   *MoveFeedback `json:"feedback,omitempty"`
	EngineMove *MoveFeedback `json:"engine_move,omitempty"`
	Error      string        `json:"error,omitempty"`
}
