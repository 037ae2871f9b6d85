package playback

import (
	"context"
	"time"
)

// EventType follows the audio element events the player listens to.
type EventType string

const (
	EventCanPlay        EventType = "canplay"
	EventLoadedMetadata EventType = "loadedmetadata"
	EventTimeUpdate     EventType = "timeupdate"
	EventPlay           EventType = "play"
	EventPause          EventType = "pause"
	EventEnded          EventType = "ended"
	EventError          EventType = "error"
)

type MediaEvent struct {
	Type        EventType
	CurrentTime time.Duration
	Duration    time.Duration
	Err         error
}

// Media is a single audio source. Load returns once loading has started;
// progress arrives on Events. After Close no further events are delivered.
type Media interface {
	Load(ctx context.Context, url string) error
	Play() error
	Pause() error
	Seek(pos time.Duration) error
	Events() <-chan MediaEvent
	Close() error
}
