package playback

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ashahealth/mediwagon/internal/audio"
)

const (
	maxClipBytes = 32 << 20
	// assumed bitrate when a clip is not WAV and carries no readable header
	fallbackBitsPerSec = 128_000
	defaultTick        = 250 * time.Millisecond
)

var ErrNotLoaded = errors.New("playback: media not loaded")

// ClipMedia fetches a clip and plays it against a wall clock. It produces
// the element events a terminal UI needs without an audio device.
type ClipMedia struct {
	client *http.Client
	tick   time.Duration

	out     chan MediaEvent
	wake    chan struct{}
	closing chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu        sync.Mutex
	queue     []MediaEvent
	loaded    bool
	duration  time.Duration
	position  time.Duration
	playing   bool
	stopClock chan struct{}
}

func NewClipMedia(client *http.Client, tick time.Duration) *ClipMedia {
	if client == nil {
		client = http.DefaultClient
	}
	if tick <= 0 {
		tick = defaultTick
	}
	m := &ClipMedia{
		client:  client,
		tick:    tick,
		out:     make(chan MediaEvent),
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
	m.wg.Add(1)
	go m.forward()
	return m
}

func (m *ClipMedia) Events() <-chan MediaEvent { return m.out }

func (m *ClipMedia) Load(ctx context.Context, url string) error {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		clip, err := m.fetch(ctx, url)
		if err != nil {
			m.emit(MediaEvent{Type: EventError, Err: err})
			return
		}
		d := clipDuration(clip)
		m.mu.Lock()
		m.loaded = true
		m.duration = d
		m.position = 0
		m.mu.Unlock()
		m.emit(MediaEvent{Type: EventLoadedMetadata, Duration: d})
		m.emit(MediaEvent{Type: EventCanPlay, Duration: d})
	}()
	return nil
}

func (m *ClipMedia) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}
	if m.playing {
		return nil
	}
	if m.position >= m.duration {
		m.position = 0
	}
	m.playing = true
	m.stopClock = make(chan struct{})
	m.wg.Add(1)
	go m.clock(m.stopClock)
	m.emitLocked(MediaEvent{Type: EventPlay, CurrentTime: m.position, Duration: m.duration})
	return nil
}

func (m *ClipMedia) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.playing {
		return nil
	}
	m.haltLocked()
	m.emitLocked(MediaEvent{Type: EventPause, CurrentTime: m.position, Duration: m.duration})
	return nil
}

func (m *ClipMedia) Seek(pos time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return ErrNotLoaded
	}
	m.position = min(max(pos, 0), m.duration)
	m.emitLocked(MediaEvent{Type: EventTimeUpdate, CurrentTime: m.position, Duration: m.duration})
	return nil
}

func (m *ClipMedia) Close() error {
	m.once.Do(func() {
		m.mu.Lock()
		if m.playing {
			m.haltLocked()
		}
		m.mu.Unlock()
		close(m.closing)
	})
	m.wg.Wait()
	return nil
}

func (m *ClipMedia) clock(stop chan struct{}) {
	defer m.wg.Done()
	t := time.NewTicker(m.tick)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-m.closing:
			return
		case now := <-t.C:
			m.mu.Lock()
			if !m.playing {
				m.mu.Unlock()
				return
			}
			m.position += now.Sub(last)
			last = now
			if m.position >= m.duration {
				m.position = m.duration
				m.playing = false
				m.emitLocked(MediaEvent{Type: EventTimeUpdate, CurrentTime: m.position, Duration: m.duration})
				m.emitLocked(MediaEvent{Type: EventPause, CurrentTime: m.position, Duration: m.duration})
				m.emitLocked(MediaEvent{Type: EventEnded, CurrentTime: m.position, Duration: m.duration})
				m.mu.Unlock()
				return
			}
			m.emitLocked(MediaEvent{Type: EventTimeUpdate, CurrentTime: m.position, Duration: m.duration})
			m.mu.Unlock()
		}
	}
}

func (m *ClipMedia) haltLocked() {
	m.playing = false
	if m.stopClock != nil {
		close(m.stopClock)
		m.stopClock = nil
	}
}

func (m *ClipMedia) emit(ev MediaEvent) {
	m.mu.Lock()
	m.emitLocked(ev)
	m.mu.Unlock()
}

// emitLocked queues ev; forward delivers in order so producers never block
// on a slow consumer.
func (m *ClipMedia) emitLocked(ev MediaEvent) {
	m.queue = append(m.queue, ev)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *ClipMedia) forward() {
	defer m.wg.Done()
	for {
		m.mu.Lock()
		pending := m.queue
		m.queue = nil
		m.mu.Unlock()

		for _, ev := range pending {
			select {
			case m.out <- ev:
			case <-m.closing:
				return
			}
		}
		select {
		case <-m.wake:
		case <-m.closing:
			return
		}
	}
}

func (m *ClipMedia) fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.HasPrefix(strings.ToLower(url), "data:") {
		return decodeDataURL(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	res, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch audio: status %d", res.StatusCode)
	}
	clip, err := io.ReadAll(io.LimitReader(res.Body, maxClipBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, errors.New("fetch audio: empty body")
	}
	return clip, nil
}

func decodeDataURL(raw string) ([]byte, error) {
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return nil, errors.New("malformed data URL")
	}
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return []byte(payload), nil
	}
	return base64.StdEncoding.DecodeString(payload)
}

func clipDuration(clip []byte) time.Duration {
	if bytes.HasPrefix(clip, []byte("RIFF")) {
		if d, err := audio.ParseDuration(clip); err == nil {
			return d
		}
	}
	return time.Duration(float64(len(clip)*8) / fallbackBitsPerSec * float64(time.Second))
}
