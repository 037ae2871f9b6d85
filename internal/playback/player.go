package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashahealth/mediwagon/internal/observability"
)

const (
	msgInvalidURL = "Invalid audio URL"
	msgLoadFailed = "Could not load audio file"
)

type Snapshot struct {
	URL         string        `json:"url"`
	Loading     bool          `json:"loading"`
	Playing     bool          `json:"playing"`
	CurrentTime time.Duration `json:"current_time"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Progress renders "m:ss / m:ss".
func (s Snapshot) Progress() string {
	return FormatClock(s.CurrentTime) + " / " + FormatClock(s.Duration)
}

// FormatClock renders d as minutes and zero-padded seconds.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

type PlayerConfig struct {
	// Origin qualifies relative audio references.
	Origin   string
	NewMedia func() Media
	AutoPlay bool
	// OnChange receives every state change. It runs on the player's event
	// goroutine and must not call back into the Player.
	OnChange func(Snapshot)
}

// Player owns at most one Media at a time and keeps its state.
type Player struct {
	cfg PlayerConfig

	mu     sync.Mutex
	media  Media
	cancel context.CancelFunc
	done   chan struct{}
	snap   Snapshot
}

func NewPlayer(cfg PlayerConfig) *Player {
	return &Player{cfg: cfg}
}

// Open releases the current source and starts loading audioURL.
func (p *Player) Open(ctx context.Context, audioURL string) {
	p.release()

	p.mu.Lock()
	p.snap = Snapshot{Loading: true}
	p.mu.Unlock()

	resolved, err := ResolveURL(p.cfg.Origin, audioURL)
	if err != nil {
		p.fail(msgInvalidURL)
		return
	}

	media := p.cfg.NewMedia()
	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.media = media
	p.cancel = cancel
	p.done = done
	p.snap.URL = resolved
	snap := p.snap
	p.mu.Unlock()
	p.notify(snap)

	go p.pump(pumpCtx, media, done)

	if err := media.Load(pumpCtx, resolved); err != nil {
		observability.LoggerFromContext(ctx).Warn("audio load failed", "url", resolved, "error", err)
		p.fail(msgLoadFailed)
	}
}

// Toggle flips between play and pause. It does nothing while loading or
// after an error.
func (p *Player) Toggle() error {
	p.mu.Lock()
	media, snap := p.media, p.snap
	p.mu.Unlock()
	if media == nil || snap.Loading || snap.Error != "" {
		return nil
	}
	if snap.Playing {
		return media.Pause()
	}
	return media.Play()
}

// Restart seeks to zero and plays.
func (p *Player) Restart() error {
	p.mu.Lock()
	media, snap := p.media, p.snap
	p.mu.Unlock()
	if media == nil || snap.Loading || snap.Error != "" {
		return nil
	}
	if err := media.Seek(0); err != nil {
		return err
	}
	return media.Play()
}

func (p *Player) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Close stops playback and detaches the source. It is safe to call twice.
func (p *Player) Close() {
	p.release()
	p.mu.Lock()
	p.snap.Playing = false
	p.mu.Unlock()
}

func (p *Player) release() {
	p.mu.Lock()
	media, cancel, done := p.media, p.cancel, p.done
	p.media, p.cancel, p.done = nil, nil, nil
	p.mu.Unlock()

	if media == nil {
		return
	}
	cancel()
	<-done
	_ = media.Pause()
	_ = media.Close()
}

func (p *Player) fail(msg string) {
	p.mu.Lock()
	p.snap.Loading = false
	p.snap.Playing = false
	p.snap.Error = msg
	snap := p.snap
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Player) pump(ctx context.Context, media Media, done chan struct{}) {
	defer close(done)
	events := media.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.apply(media, ev)
		}
	}
}

func (p *Player) apply(media Media, ev MediaEvent) {
	p.mu.Lock()
	if p.media != media {
		p.mu.Unlock()
		return
	}
	autoplay := false
	switch ev.Type {
	case EventLoadedMetadata:
		p.snap.Duration = ev.Duration
	case EventCanPlay:
		autoplay = p.snap.Loading && p.cfg.AutoPlay
		p.snap.Loading = false
	case EventTimeUpdate:
		p.snap.CurrentTime = ev.CurrentTime
	case EventPlay:
		p.snap.Playing = true
	case EventPause, EventEnded:
		p.snap.Playing = false
	case EventError:
		p.snap.Loading = false
		p.snap.Playing = false
		p.snap.Error = msgLoadFailed
		observability.Logger().Warn("audio playback error", "url", p.snap.URL, "error", ev.Err)
	}
	snap := p.snap
	p.mu.Unlock()

	p.notify(snap)
	if autoplay {
		if err := media.Play(); err != nil {
			observability.Logger().Debug("autoplay failed", "url", snap.URL, "error", err)
		}
	}
}

func (p *Player) notify(s Snapshot) {
	if p.cfg.OnChange != nil {
		p.cfg.OnChange(s)
	}
}
