package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kioskworks/boothd/internal/config"
	"github.com/kioskworks/boothd/internal/device"
	"github.com/kioskworks/boothd/internal/template"
)

// testDevice is a controllable capture device: real artifact files,
// injectable busy streaks, silence and transient errors.
type testDevice struct {
	mu        sync.Mutex
	photoDir  string
	latency   time.Duration
	busy      bool
	preview   bool
	busyErrs  int
	silent    bool
	transient string
	accepts   []time.Time
	tokens    []string
	releases  int
	shots     int
	events    chan device.Event
}

func newTestDevice(dir string) *testDevice {
	return &testDevice{
		photoDir: dir,
		latency:  2 * time.Millisecond,
		events:   make(chan device.Event, 16),
	}
}

func (d *testDevice) IsBusy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func (d *testDevice) SetBusy(busy bool) {
	d.mu.Lock()
	d.busy = busy
	d.mu.Unlock()
}

func (d *testDevice) StartPreview() error {
	d.mu.Lock()
	d.preview = true
	d.mu.Unlock()
	return nil
}

func (d *testDevice) StopPreview() error {
	d.mu.Lock()
	d.preview = false
	d.mu.Unlock()
	return nil
}

func (d *testDevice) previewRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.preview
}

func (d *testDevice) CaptureAsync(token string) error {
	d.mu.Lock()
	if d.busyErrs > 0 {
		d.busyErrs--
		d.mu.Unlock()
		return device.ErrBusy
	}
	if d.busy {
		d.mu.Unlock()
		return device.ErrBusy
	}
	d.busy = true
	d.accepts = append(d.accepts, time.Now())
	d.tokens = append(d.tokens, token)
	silent := d.silent
	d.silent = false
	transient := d.transient
	d.transient = ""
	d.shots++
	shot := d.shots
	latency := d.latency
	d.mu.Unlock()

	if !silent {
		time.AfterFunc(latency, func() {
			path := filepath.Join(d.photoDir, fmt.Sprintf("shot-%03d.jpg", shot))
			os.WriteFile(path, []byte("jpeg-bytes"), 0o644)
			d.events <- device.Event{Kind: device.EventCaptured, Path: path, Token: token}
		})
	}
	if transient != "" {
		return &device.TransientError{Code: transient}
	}
	return nil
}

func (d *testDevice) Release() {
	d.mu.Lock()
	d.busy = false
	d.releases++
	d.mu.Unlock()
}

func (d *testDevice) releaseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

func (d *testDevice) acceptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Time, len(d.accepts))
	copy(out, d.accepts)
	return out
}

func (d *testDevice) lastToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		return ""
	}
	return d.tokens[len(d.tokens)-1]
}

func (d *testDevice) Capability(c device.Capability) bool { return true }
func (d *testDevice) Events() <-chan device.Event         { return d.events }
func (d *testDevice) Close() error                        { return nil }

// fakeComposer returns a fixed output path, optionally failing.
type fakeComposer struct {
	mu    sync.Mutex
	fail  bool
	calls int
	paths []string
}

func (f *fakeComposer) Compose(t *template.Template, photoPaths []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.paths = append([]string(nil), photoPaths...)
	if f.fail {
		return "", errors.New("render failed")
	}
	return "composed-output.jpg", nil
}

func (f *fakeComposer) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeComposer) lastPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

// fakeStore records persistence calls.
type fakeStore struct {
	mu       sync.Mutex
	sessions []string
	photos   []struct {
		Session string
		Slot    uint
		Path    string
	}
}

func (f *fakeStore) CreateSession(id, templateID, eventID string, slotsRequired uint, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, id)
	return nil
}

func (f *fakeStore) SavePhoto(sessionID string, slot uint, path string, capturedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photos = append(f.photos, struct {
		Session string
		Slot    uint
		Path    string
	}{sessionID, slot, path})
	return nil
}

func (f *fakeStore) SaveOutput(sessionID, path string, composedAt time.Time) error { return nil }

func (f *fakeStore) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// rig wires an orchestrator with millisecond ticks against the fakes.
type rig struct {
	orch     *Orchestrator
	dev      *testDevice
	composer *fakeComposer
	store    *fakeStore

	mu    sync.Mutex
	views []View
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Timing = config.TimingConfig{
		CountdownSeconds:  3,
		ReviewSeconds:     600, // long enough that review never auto-expires mid-test
		SlotPauseMs:       2,
		AutoClearSeconds:  600,
		TriggerSpacingMs:  1,
		CaptureTimeoutMs:  400,
		BusyRetryBaseMs:   1,
		BusyRetryCapMs:    2,
		BusyRetryLimit:    20,
		DeviceEventBuffer: 16,
	}
	return cfg
}

func newRig(t *testing.T, slots int, mutate func(*config.Config)) *rig {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	rects := make([]template.SlotRect, slots)
	for i := range rects {
		rects[i] = template.SlotRect{X: 0, Y: i * 10, Width: 10, Height: 10}
	}
	lib, err := template.NewLibrary(template.Template{
		ID: "t1", Name: "Test", CanvasWidth: 10, CanvasHeight: 10 * slots, Slots: rects,
	})
	if err != nil {
		t.Fatal(err)
	}

	r := &rig{
		dev:      newTestDevice(t.TempDir()),
		composer: &fakeComposer{},
		store:    &fakeStore{},
	}
	r.orch = New(cfg, Deps{
		Device:    r.dev,
		Templates: lib,
		Store:     r.store,
		Composer:  r.composer,
	})
	r.orch.tick = time.Millisecond
	r.orch.SetViewListener(func(v View) {
		r.mu.Lock()
		r.views = append(r.views, v)
		r.mu.Unlock()
		if v.SlotsRequired > 0 && v.SlotsFilled > v.SlotsRequired {
			t.Errorf("invariant violated: slots_filled %d > slots_required %d", v.SlotsFilled, v.SlotsRequired)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go r.orch.Run(ctx)
	t.Cleanup(cancel)
	return r
}

func (r *rig) waitState(t *testing.T, want State) {
	t.Helper()
	r.wait(t, fmt.Sprintf("state %s", want), func(v View) bool {
		return v.State == want.String()
	})
}

func (r *rig) wait(t *testing.T, what string, cond func(View) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond(r.orch.View()) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s (state=%s, err=%q)", what, r.orch.View().State, r.orch.View().LastError)
}

func (r *rig) sawView(cond func(View) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.views {
		if cond(v) {
			return true
		}
	}
	return false
}

func (r *rig) maxRetry() uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var max uint
	for _, v := range r.views {
		if v.RetryCount > max {
			max = v.RetryCount
		}
	}
	return max
}

// Scenario: three successful captures reach review with three ordered
// records.
func TestNormalSequence_ThreeSlots(t *testing.T) {
	r := newRig(t, 3, nil)
	r.orch.Start(Context{})

	r.waitState(t, StateRetakeReview)

	v := r.orch.View()
	if v.SlotsFilled != 3 {
		t.Errorf("slots_filled = %d, want 3", v.SlotsFilled)
	}
	if len(v.Photos) != 3 {
		t.Fatalf("photos = %d, want 3", len(v.Photos))
	}
	for i, p := range v.Photos {
		if p.Slot != uint(i) {
			t.Errorf("photo %d has slot %d, want %d", i, p.Slot, i)
		}
	}
	if got := r.dev.releaseCount(); got != 3 {
		t.Errorf("device releases = %d, want 3", got)
	}
	if got := len(r.dev.acceptTimes()); got != 3 {
		t.Errorf("accepted captures = %d, want 3", got)
	}
}

// Scenario: two busy rejections then success yields one record and an
// observed retry count of 2.
func TestBusyRetries_SingleRecord(t *testing.T) {
	r := newRig(t, 1, nil)
	r.dev.busyErrs = 2
	r.orch.Start(Context{})

	r.waitState(t, StateRetakeReview)

	v := r.orch.View()
	if len(v.Photos) != 1 {
		t.Fatalf("photos = %d, want 1", len(v.Photos))
	}
	if got := len(r.dev.acceptTimes()); got != 1 {
		t.Errorf("accepted captures = %d, want 1 (no duplicates)", got)
	}
	if got := r.maxRetry(); got != 2 {
		t.Errorf("max observed retry_count = %d, want 2", got)
	}
	if !r.sawView(func(v View) bool { return v.State == StateRecovering.String() }) {
		t.Error("never observed recovering state during busy retries")
	}
}

// Scenario: the busy streak outlasts the retry budget. The attempt
// fails with a surfaced error and the slot restarts instead of the
// session dying.
func TestBusyRetryExhaustion_RestartsSlot(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.BusyRetryLimit = 3
		cfg.Timing.CountdownSeconds = 10 // widen the post-exhaustion restart window
	})
	r.dev.busyErrs = 4 // one more rejection than the budget allows
	r.orch.Start(Context{})

	r.wait(t, "exhaustion surfaced", func(v View) bool {
		return strings.Contains(v.LastError, "retries exhausted")
	})
	if !r.sawView(func(v View) bool {
		return v.State == StateCountingDown.String() && strings.Contains(v.LastError, "retries exhausted")
	}) {
		t.Error("never observed countdown restart after retry exhaustion")
	}

	// The streak is spent, so the restarted slot goes through.
	r.waitState(t, StateRetakeReview)
	v := r.orch.View()
	if v.SlotsFilled != 1 || len(v.Photos) != 1 {
		t.Errorf("slots_filled = %d, photos = %d, want 1/1", v.SlotsFilled, len(v.Photos))
	}
	if got := len(r.dev.acceptTimes()); got != 1 {
		t.Errorf("accepted captures = %d, want 1 (rejections must not count)", got)
	}
}

// Scenario: a silent device attempt hits the completion ceiling, the
// busy flag is force-cleared, and the same slot restarts.
func TestCaptureTimeout_RestartsSlot(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.CaptureTimeoutMs = 30
		cfg.Timing.CountdownSeconds = 10 // widen the post-timeout countdown window
	})
	r.dev.silent = true
	r.orch.Start(Context{})

	r.wait(t, "timeout surfaced", func(v View) bool {
		return strings.Contains(v.LastError, "timed out")
	})
	if r.dev.IsBusy() {
		t.Error("busy flag not force-cleared after timeout")
	}

	// The slot restarts and, with silence consumed, now succeeds.
	r.waitState(t, StateRetakeReview)
	v := r.orch.View()
	if v.SlotsFilled != 1 || len(v.Photos) != 1 {
		t.Errorf("slots_filled = %d, photos = %d, want 1/1", v.SlotsFilled, len(v.Photos))
	}
	if !r.sawView(func(v View) bool {
		return v.State == StateCountingDown.String() && strings.Contains(v.LastError, "timed out")
	}) {
		t.Error("never observed countdown restart after timeout")
	}
}

// Scenario: the device reports a completed capture but the artifact
// never landed on disk. The device is released, the error surfaces,
// and the slot restarts without being counted.
func TestCapturedEventMissingArtifact_RestartsSlot(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.CountdownSeconds = 10 // widen the post-failure restart window
	})
	r.dev.silent = true // the injected event below is the only completion
	r.orch.Start(Context{})

	r.waitState(t, StateCapturing)
	r.dev.events <- device.Event{
		Kind:  device.EventCaptured,
		Path:  filepath.Join(r.dev.photoDir, "vanished.jpg"),
		Token: r.dev.lastToken(),
	}

	r.wait(t, "missing artifact surfaced", func(v View) bool {
		return strings.Contains(v.LastError, "missing")
	})
	if got := r.dev.releaseCount(); got != 1 {
		t.Errorf("device releases = %d, want 1 (failed completion must still release)", got)
	}
	if !r.sawView(func(v View) bool {
		return v.State == StateCountingDown.String() && v.SlotsFilled == 0 &&
			strings.Contains(v.LastError, "missing")
	}) {
		t.Error("never observed slot restart with zero slots after missing artifact")
	}

	// Silence was one-shot, so the restarted slot materializes a real
	// file and completes.
	r.waitState(t, StateRetakeReview)
	v := r.orch.View()
	if v.SlotsFilled != 1 || len(v.Photos) != 1 {
		t.Errorf("slots_filled = %d, photos = %d, want 1/1", v.SlotsFilled, len(v.Photos))
	}
}

// Scenario: stop before any capture discards the session entirely and
// nothing is persisted.
func TestStopBeforeFirstCapture_DiscardsSession(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.CountdownSeconds = 10 // keep the first capture comfortably away
	})
	r.orch.Start(Context{})
	r.waitState(t, StateCountingDown)

	r.orch.Stop()

	r.wait(t, "session discarded", func(v View) bool {
		return v.State == StateIdle.String() && v.SessionID == ""
	})
	if got := r.store.sessionCount(); got != 0 {
		t.Errorf("persisted sessions = %d, want 0", got)
	}
}

// Scenario: the review timer expires and composition runs with the
// slot photos unmodified.
func TestReviewTimeout_AutoComposes(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.ReviewSeconds = 5
	})
	r.orch.Start(Context{})

	r.waitState(t, StateComplete)

	v := r.orch.View()
	if !v.PrintReady {
		t.Error("print not ready after completion")
	}
	if v.OutputPath != "composed-output.jpg" {
		t.Errorf("output = %q", v.OutputPath)
	}
	if paths := r.composer.lastPaths(); len(paths) != 1 {
		t.Errorf("composer received %d paths, want 1", len(paths))
	}
}

// Retaking slot 0 replaces only slot 0 and leaves the fill count
// untouched.
func TestRetake_Isolation(t *testing.T) {
	r := newRig(t, 2, nil)
	r.orch.Start(Context{})
	r.waitState(t, StateRetakeReview)

	before := r.orch.View().Photos
	if len(before) != 2 {
		t.Fatalf("photos = %d, want 2", len(before))
	}

	r.orch.Retake(0)
	r.wait(t, "retake completed", func(v View) bool {
		return v.State == StateRetakeReview.String() &&
			len(v.Photos) == 2 && v.Photos[0].Path != before[0].Path
	})

	after := r.orch.View()
	if after.SlotsFilled != 2 {
		t.Errorf("slots_filled = %d, want 2 (unchanged)", after.SlotsFilled)
	}
	if after.Photos[1].Path != before[1].Path {
		t.Errorf("slot 1 mutated by retake of slot 0: %q -> %q", before[1].Path, after.Photos[1].Path)
	}
	if after.Photos[0].Slot != 0 || after.Photos[1].Slot != 1 {
		t.Error("slot order changed by retake")
	}
}

// Stop mid-sequence restarts the current slot instead of clearing the
// session.
func TestStopMidSequence_RestartsCurrentSlot(t *testing.T) {
	r := newRig(t, 2, func(cfg *config.Config) {
		cfg.Timing.CountdownSeconds = 10 // slow second countdown down
	})
	r.orch.Start(Context{})

	r.wait(t, "second slot countdown", func(v View) bool {
		return v.SlotsFilled == 1 && v.State == StateCountingDown.String()
	})
	sessID := r.orch.View().SessionID

	r.orch.Stop()
	time.Sleep(5 * time.Millisecond)

	r.wait(t, "slot restarted", func(v View) bool {
		return v.State == StateCountingDown.String() && v.SessionID == sessID && v.SlotsFilled == 1
	})
	r.wait(t, "session survived to review", func(v View) bool {
		return v.State == StateRetakeReview.String() && v.SessionID == sessID && v.SlotsFilled == 2
	})
}

// Consecutive shutter triggers respect the minimum spacing; the
// deferred request is not dropped.
func TestTriggerSpacing_Enforced(t *testing.T) {
	r := newRig(t, 2, func(cfg *config.Config) {
		cfg.Timing.TriggerSpacingMs = 150
	})
	r.orch.Start(Context{})
	r.waitState(t, StateRetakeReview)

	accepts := r.dev.acceptTimes()
	if len(accepts) != 2 {
		t.Fatalf("accepted captures = %d, want 2", len(accepts))
	}
	gap := accepts[1].Sub(accepts[0])
	if gap < 145*time.Millisecond {
		t.Errorf("trigger gap = %v, want >= 150ms", gap)
	}
}

// Photographer mode: no countdown, preview stopped, device trigger
// drives each slot.
func TestPhotographerMode(t *testing.T) {
	r := newRig(t, 2, nil)
	r.orch.Start(Context{Mode: ModePhotographer})

	r.waitState(t, StatePhotographerWaiting)
	if r.dev.previewRunning() {
		t.Error("preview still running while waiting for physical trigger")
	}

	r.orch.Trigger()
	r.wait(t, "first slot", func(v View) bool {
		return v.SlotsFilled == 1 && v.State == StatePhotographerWaiting.String()
	})

	r.orch.Trigger()
	r.waitState(t, StateRetakeReview)
}

// More than one candidate template requires explicit selection before
// the first countdown.
func TestTemplateSelection_Required(t *testing.T) {
	lib, err := template.NewLibrary(
		template.Template{ID: "a", CanvasWidth: 10, CanvasHeight: 10,
			Slots: []template.SlotRect{{Width: 10, Height: 10}}},
		template.Template{ID: "b", CanvasWidth: 10, CanvasHeight: 10,
			Slots: []template.SlotRect{{Width: 10, Height: 10}}},
	)
	if err != nil {
		t.Fatal(err)
	}

	r := &rig{dev: newTestDevice(t.TempDir()), composer: &fakeComposer{}, store: &fakeStore{}}
	r.orch = New(testConfig(), Deps{Device: r.dev, Templates: lib, Composer: r.composer})
	r.orch.tick = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go r.orch.Run(ctx)
	t.Cleanup(cancel)

	r.orch.Start(Context{})
	r.waitState(t, StateTemplatePending)

	v := r.orch.View()
	if len(v.Candidates) != 2 {
		t.Fatalf("candidates = %v, want 2", v.Candidates)
	}

	r.orch.SelectTemplate("b")
	r.waitState(t, StateCountingDown)
	if got := r.orch.View().TemplateID; got != "b" {
		t.Errorf("template = %q, want b", got)
	}
}

// Zero candidate templates is an error state, not a session.
func TestTemplateSelection_NoCandidates(t *testing.T) {
	lib, err := template.NewLibrary(template.Template{
		ID: "gala-only", CanvasWidth: 10, CanvasHeight: 10,
		Events: []string{"gala"},
		Slots:  []template.SlotRect{{Width: 10, Height: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := &rig{dev: newTestDevice(t.TempDir()), composer: &fakeComposer{}}
	r.orch = New(testConfig(), Deps{Device: r.dev, Templates: lib, Composer: r.composer})
	r.orch.tick = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go r.orch.Run(ctx)
	t.Cleanup(cancel)

	r.orch.Start(Context{EventID: "other"})
	r.wait(t, "error surfaced", func(v View) bool {
		return v.State == StateIdle.String() && v.LastError != ""
	})
}

// Composition failure keeps the session retry-eligible; slots are
// preserved for the retry.
func TestComposeFailure_Retryable(t *testing.T) {
	r := newRig(t, 1, nil)
	r.composer.setFail(true)
	r.orch.Start(Context{})

	r.waitState(t, StateRetakeReview)
	r.orch.ReviewContinue()

	r.wait(t, "compose failure surfaced", func(v View) bool {
		return v.State == StateComposing.String() && strings.Contains(v.LastError, "composition failed")
	})
	if got := r.orch.View().SlotsFilled; got != 1 {
		t.Errorf("slots_filled = %d after compose failure, want 1", got)
	}

	r.composer.setFail(false)
	r.orch.RetryCompose()
	r.waitState(t, StateComplete)
}

// Transient device errors (autofocus) are non-fatal: the captured
// event is still honored.
func TestTransientError_NonFatal(t *testing.T) {
	r := newRig(t, 1, nil)
	r.dev.transient = "autofocus"
	r.orch.Start(Context{})

	r.waitState(t, StateRetakeReview)
	if got := len(r.orch.View().Photos); got != 1 {
		t.Errorf("photos = %d, want 1", got)
	}
}

// Device disconnect aborts the session but preserves captured slots.
func TestDisconnect_AbortsPreservingSlots(t *testing.T) {
	r := newRig(t, 3, func(cfg *config.Config) {
		cfg.Timing.CountdownSeconds = 10
	})
	r.orch.Start(Context{})
	r.wait(t, "first slot", func(v View) bool { return v.SlotsFilled == 1 })

	r.dev.events <- device.Event{Kind: device.EventDisconnected, Err: device.ErrDisconnected}

	r.waitState(t, StateAborted)
	v := r.orch.View()
	if len(v.Photos) != 1 {
		t.Errorf("photos = %d after disconnect, want 1 preserved", len(v.Photos))
	}

	r.orch.Clear()
	r.waitState(t, StateIdle)
}

// A completion arriving after the session stopped is discarded but
// still releases the device.
func TestStaleCompletion_DiscardedAndReleased(t *testing.T) {
	r := newRig(t, 1, nil)
	r.dev.latency = 50 * time.Millisecond
	r.orch.Start(Context{})

	r.waitState(t, StateCapturing)
	r.orch.Stop() // zero slots: discards the session

	r.wait(t, "session discarded", func(v View) bool {
		return v.State == StateIdle.String() && v.SessionID == ""
	})

	// The in-flight completion lands against no attempt.
	r.wait(t, "stale completion released", func(View) bool {
		return r.dev.releaseCount() == 1
	})
	if got := len(r.orch.View().Photos); got != 0 {
		t.Errorf("photos = %d from stale completion, want 0", got)
	}
}

// A completion carrying a superseded attempt's token is released and
// discarded, never credited to the live attempt.
func TestStaleTokenCompletion_NotCredited(t *testing.T) {
	r := newRig(t, 1, nil)
	r.dev.silent = true // keep the live attempt waiting
	r.orch.Start(Context{})

	r.waitState(t, StateCapturing)

	// A real file, so only the token check can reject it.
	strayPath := filepath.Join(r.dev.photoDir, "stray.jpg")
	if err := os.WriteFile(strayPath, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.dev.events <- device.Event{
		Kind:  device.EventCaptured,
		Path:  strayPath,
		Token: "superseded-attempt",
	}

	r.wait(t, "stale completion released", func(View) bool {
		return r.dev.releaseCount() == 1
	})
	v := r.orch.View()
	if v.State != StateCapturing.String() {
		t.Errorf("state = %s after stale completion, want capturing", v.State)
	}
	if v.SlotsFilled != 0 || len(v.Photos) != 0 {
		t.Errorf("slots_filled = %d, photos = %d after stale completion, want 0/0", v.SlotsFilled, len(v.Photos))
	}

	// The matching token completes the attempt.
	goodPath := filepath.Join(r.dev.photoDir, "good.jpg")
	if err := os.WriteFile(goodPath, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	r.dev.events <- device.Event{
		Kind:  device.EventCaptured,
		Path:  goodPath,
		Token: r.dev.lastToken(),
	}

	r.waitState(t, StateRetakeReview)
	photos := r.orch.View().Photos
	if len(photos) != 1 || photos[0].Path != goodPath {
		t.Errorf("photos = %+v, want the matching-token capture only", photos)
	}
}

// Retakes overwrite the persisted slot row rather than appending.
func TestPersistence_RetakeUpserts(t *testing.T) {
	r := newRig(t, 1, nil)
	r.orch.Start(Context{})
	r.waitState(t, StateRetakeReview)

	r.orch.Retake(0)
	r.wait(t, "retake persisted", func(View) bool {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
		return len(r.store.photos) == 2
	})

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if len(r.store.sessions) != 1 {
		t.Errorf("persisted sessions = %d, want 1", len(r.store.sessions))
	}
	if r.store.photos[0].Slot != 0 || r.store.photos[1].Slot != 0 {
		t.Errorf("persisted slots = %d,%d, want 0,0 (same row upserted)",
			r.store.photos[0].Slot, r.store.photos[1].Slot)
	}
}

// After completion the auto-clear timer returns the kiosk to idle.
func TestAutoClear_AfterComplete(t *testing.T) {
	r := newRig(t, 1, func(cfg *config.Config) {
		cfg.Timing.ReviewSeconds = 5
		cfg.Timing.AutoClearSeconds = 1
	})
	r.orch.Start(Context{})

	r.waitState(t, StateComplete)
	r.wait(t, "auto-clear", func(v View) bool {
		return v.State == StateIdle.String() && v.SessionID == ""
	})
}
