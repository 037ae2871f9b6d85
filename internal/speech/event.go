package speech

// EventType mirrors the recognition engine callbacks.
type EventType string

const (
	EventStart  EventType = "start"
	EventResult EventType = "result"
	EventError  EventType = "error"
	EventEnd    EventType = "end"
)

// Result is one recognition hypothesis.
type Result struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

type Event struct {
	Type    EventType `json:"type"`
	Results []Result  `json:"results,omitempty"`
	Error   string    `json:"error,omitempty"`
}
