package device

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kioskworks/boothd/internal/debug"
)

// SimConfig tunes the simulated device.
type SimConfig struct {
	PhotoDir    string        // where artifacts are written
	Latency     time.Duration // delay between accepted request and captured event
	EventBuffer int           // event queue size
}

// Sim is a simulated capture device for development and tests.
// It honors the full Device contract: busy gating, out-of-band
// captured events on a bounded queue, Release acknowledgment, and
// a native trigger button. Fault injection knobs let tests exercise
// the busy/timeout recovery paths.
type Sim struct {
	cfg SimConfig

	mu           sync.Mutex
	busy         bool
	preview      bool
	closed       bool
	shot         int // artifacts produced, for filenames
	pendingBusy  int // next N capture requests report ErrBusy
	silentNext   bool
	transientMsg string // next capture returns this transient code, but still delivers

	events chan Event
}

// NewSim creates a simulated device. Artifacts are real (tiny) JPEG
// files so downstream composition is exercisable end to end.
func NewSim(cfg SimConfig) *Sim {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	if cfg.Latency <= 0 {
		cfg.Latency = 400 * time.Millisecond
	}
	return &Sim{
		cfg:    cfg,
		events: make(chan Event, cfg.EventBuffer),
	}
}

func (s *Sim) IsBusy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Sim) SetBusy(busy bool) {
	debug.Device("SetBusy", busy)
	s.mu.Lock()
	s.busy = busy
	s.mu.Unlock()
}

func (s *Sim) StartPreview() error {
	debug.Device("StartPreview", nil)
	s.mu.Lock()
	s.preview = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) StopPreview() error {
	debug.Device("StopPreview", nil)
	s.mu.Lock()
	s.preview = false
	s.mu.Unlock()
	return nil
}

// PreviewRunning reports the preview state (test observability).
func (s *Sim) PreviewRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

func (s *Sim) CaptureAsync(token string) error {
	s.mu.Lock()

	if s.pendingBusy > 0 {
		s.pendingBusy--
		s.mu.Unlock()
		debug.Device("CaptureAsync", "busy (injected)")
		return ErrBusy
	}
	if s.busy {
		s.mu.Unlock()
		debug.Device("CaptureAsync", "busy")
		return ErrBusy
	}

	s.busy = true
	silent := s.silentNext
	s.silentNext = false
	transient := s.transientMsg
	s.transientMsg = ""
	s.shot++
	shot := s.shot
	s.mu.Unlock()

	debug.Device("CaptureAsync", fmt.Sprintf("accepted shot=%d silent=%v", shot, silent))

	if !silent {
		time.AfterFunc(s.cfg.Latency, func() { s.deliver(shot, token) })
	}

	if transient != "" {
		return &TransientError{Code: transient}
	}
	return nil
}

// deliver writes the artifact and emits the captured event.
// Runs on the timer goroutine, never on the caller's.
func (s *Sim) deliver(shot int, token string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	path, err := s.writeArtifact(shot)
	if err != nil {
		debug.Error(err)
		// Artifact materialization failed: report a capture with an
		// empty path so the consumer can surface the error and still
		// release the device.
		path = ""
	}
	s.emit(Event{Kind: EventCaptured, Path: path, Token: token})
}

func (s *Sim) writeArtifact(shot int) (string, error) {
	if err := os.MkdirAll(s.cfg.PhotoDir, 0o755); err != nil {
		return "", fmt.Errorf("sim: create photo dir: %w", err)
	}
	name := fmt.Sprintf("sim-%03d-%s.jpg", shot, uuid.NewString()[:8])
	path := filepath.Join(s.cfg.PhotoDir, name)

	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	// Vary the fill per shot so composed outputs are distinguishable.
	c := color.RGBA{R: uint8(40 * shot), G: uint8(90 + 20*shot), B: 200, A: 255}
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("sim: create artifact: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("sim: encode artifact: %w", err)
	}
	return path, nil
}

func (s *Sim) Release() {
	debug.Device("Release", nil)
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Sim) Capability(c Capability) bool {
	switch c {
	case CapPreview, CapPhysicalTrigger:
		return true
	default:
		return false
	}
}

func (s *Sim) Events() <-chan Event {
	return s.events
}

func (s *Sim) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.events)
	return nil
}

// emit posts an event without blocking; a full queue drops the event,
// matching the bounded-queue contract.
func (s *Sim) emit(ev Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		debug.Device("emit", "event queue full, dropped "+ev.Kind.String())
	}
}

// --- fault injection (tests and bench rigs) ---

// InjectBusy makes the next n capture requests report ErrBusy.
func (s *Sim) InjectBusy(n int) {
	s.mu.Lock()
	s.pendingBusy = n
	s.mu.Unlock()
}

// InjectSilence makes the next accepted capture never deliver its
// event, exercising the completion-timeout path.
func (s *Sim) InjectSilence() {
	s.mu.Lock()
	s.silentNext = true
	s.mu.Unlock()
}

// InjectTransient makes the next capture return a transient error
// code while still delivering the captured event.
func (s *Sim) InjectTransient(code string) {
	s.mu.Lock()
	s.transientMsg = code
	s.mu.Unlock()
}

// PressTrigger simulates the device's native shutter button.
func (s *Sim) PressTrigger() {
	s.emit(Event{Kind: EventTriggerPressed})
}

// Disconnect simulates losing the device.
func (s *Sim) Disconnect() {
	s.emit(Event{Kind: EventDisconnected, Err: ErrDisconnected})
}
