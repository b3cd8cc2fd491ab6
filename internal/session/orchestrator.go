package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kioskworks/boothd/internal/config"
	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/device"
	"github.com/kioskworks/boothd/internal/template"
)

// Scheduler task names. One cooperative scheduler multiplexes every
// wait the orchestrator performs; nothing here sleeps.
const (
	taskCountdown      = "countdown"
	taskSlotPause      = "slot-pause"
	taskReview         = "review"
	taskCaptureTimeout = "capture-timeout"
	taskBackoff        = "busy-backoff"
	taskSpacing        = "trigger-spacing"
	taskAutoClear      = "auto-clear"
)

// Composer renders the session's ordered slot photos into the
// template's output artifact.
type Composer interface {
	Compose(t *template.Template, photoPaths []string) (string, error)
}

// Printer receives the composed output once the operator asks for a
// print.
type Printer interface {
	Print(sessionID, path string) error
}

// Uploader queues post-session artifacts for asynchronous delivery.
type Uploader interface {
	Enqueue(sessionID string, paths []string, eventName string) error
}

// Store persists sessions and slot photos. Implementations must
// tolerate per-slot upserts (a retake overwrites its slot row).
type Store interface {
	CreateSession(id, templateID, eventID string, slotsRequired uint, startedAt time.Time) error
	SavePhoto(sessionID string, slot uint, path string, capturedAt time.Time) error
	SaveOutput(sessionID, path string, composedAt time.Time) error
}

// Deps bundles the orchestrator's collaborators. Store, Composer,
// Printer and Uploader may be nil; the corresponding handoffs are
// then skipped.
type Deps struct {
	Device    device.Device
	Templates *template.Library
	Store     Store
	Composer  Composer
	Printer   Printer
	Uploader  Uploader
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdSelectTemplate
	cmdStop
	cmdRetakeSlot
	cmdReviewContinue
	cmdReviewSkip
	cmdPrint
	cmdRetryCompose
	cmdClear
	cmdTrigger
)

type command struct {
	kind       cmdKind
	sctx       Context
	templateID string
	slot       uint
}

type resultKind int

const (
	resultCompose resultKind = iota
	resultPrint
)

type asyncResult struct {
	kind      resultKind
	sessionID string
	path      string
	err       error
}

// Orchestrator drives one capture session at a time through
// countdown, capture, busy/timeout recovery, multi-slot progression,
// retake review and the composition/print/upload handoffs.
//
// It owns the capture device exclusively and runs a single
// coordination goroutine: operator commands, device events, timer
// fires and async handoff results are all marshaled onto its loop
// before any session state is touched.
type Orchestrator struct {
	cfg  *config.Config
	deps Deps

	timers *Timers
	tick   time.Duration // countdown/review tick interval

	cmds      chan command
	results   chan asyncResult
	devEvents <-chan device.Event

	// Loop-owned state; only the Run goroutine touches these.
	sctx               Context
	sess               *Session
	tmpl               *template.Template
	candidates         []template.Template
	attempt            *CaptureAttempt
	retakeSlot         *uint
	countdownRemaining int
	reviewRemaining    int
	deferUntil         time.Time
	lastTrigger        time.Time
	composing          bool
	outputPath         string
	lastErr            string

	viewMu sync.RWMutex
	view   View
	onView func(View)
}

// New creates an orchestrator. Run must be called before any command
// has an effect.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		deps:      deps,
		timers:    NewTimers(64),
		tick:      time.Second,
		cmds:      make(chan command, 32),
		results:   make(chan asyncResult, 8),
		devEvents: deps.Device.Events(),
	}
}

// SetViewListener registers a callback invoked with every projection
// snapshot. Must be set before Run.
func (o *Orchestrator) SetViewListener(fn func(View)) {
	o.onView = fn
}

// View returns the latest projection snapshot.
func (o *Orchestrator) View() View {
	o.viewMu.RLock()
	defer o.viewMu.RUnlock()
	return o.view
}

// --- operator surface (safe from any goroutine) ---

// Start begins a session from the given selection context.
func (o *Orchestrator) Start(sctx Context) { o.post(command{kind: cmdStart, sctx: sctx}) }

// SelectTemplate resolves a pending multi-candidate template choice.
func (o *Orchestrator) SelectTemplate(id string) {
	o.post(command{kind: cmdSelectTemplate, templateID: id})
}

// Stop aborts the in-progress slot, or the whole session if nothing
// was captured yet.
func (o *Orchestrator) Stop() { o.post(command{kind: cmdStop}) }

// Retake pins one slot for recapture during review.
func (o *Orchestrator) Retake(slot uint) { o.post(command{kind: cmdRetakeSlot, slot: slot}) }

// ReviewContinue ends the review window and starts composition.
func (o *Orchestrator) ReviewContinue() { o.post(command{kind: cmdReviewContinue}) }

// ReviewSkip skips the review window.
func (o *Orchestrator) ReviewSkip() { o.post(command{kind: cmdReviewSkip}) }

// Print submits the composed output to the print handoff.
func (o *Orchestrator) Print() { o.post(command{kind: cmdPrint}) }

// RetryCompose retries a failed composition without recapturing.
func (o *Orchestrator) RetryCompose() { o.post(command{kind: cmdRetryCompose}) }

// Clear ends a completed or aborted session.
func (o *Orchestrator) Clear() { o.post(command{kind: cmdClear}) }

// Trigger reports an external physical trigger (GPIO button).
func (o *Orchestrator) Trigger() { o.post(command{kind: cmdTrigger}) }

func (o *Orchestrator) post(c command) {
	select {
	case o.cmds <- c:
	default:
		debug.Verbose("Command queue full, dropping command %d", c.kind)
	}
}

// Run executes the coordination loop until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	debug.Info("Orchestrator: running (countdown=%ds, spacing=%v, timeout=%v)",
		o.cfg.Countdown(), o.cfg.TriggerSpacing(), o.cfg.CaptureTimeout())
	o.publish()

	for {
		select {
		case <-ctx.Done():
			o.timers.CancelAll()
			return ctx.Err()

		case cmd := <-o.cmds:
			o.handleCommand(cmd)

		case ev, ok := <-o.devEvents:
			if !ok {
				o.devEvents = nil
				o.abortSession("device connection closed")
				break
			}
			o.handleDeviceEvent(ev)

		case f := <-o.timers.Fires():
			if o.timers.Valid(f) {
				o.handleFire(f)
			}

		case r := <-o.results:
			o.handleResult(r)
		}

		o.publish()
	}
}

// --- command handling ---

func (o *Orchestrator) handleCommand(c command) {
	debug.Verbose("Command %d (state=%s)", c.kind, o.stateName())

	switch c.kind {
	case cmdStart:
		o.handleStart(c.sctx)
	case cmdSelectTemplate:
		o.handleSelectTemplate(c.templateID)
	case cmdStop:
		o.handleStop()
	case cmdRetakeSlot:
		o.handleRetake(c.slot)
	case cmdReviewContinue, cmdReviewSkip:
		if o.inState(StateRetakeReview) {
			o.timers.Cancel(taskReview)
			o.startCompose()
		}
	case cmdPrint:
		o.handlePrint()
	case cmdRetryCompose:
		if o.inState(StateComposing) && !o.composing {
			o.startCompose()
		}
	case cmdClear:
		if o.sess != nil && o.sess.State.Terminal() {
			o.clearSession()
		}
	case cmdTrigger:
		if o.inState(StatePhotographerWaiting) {
			o.requestCapture()
		}
	}
}

func (o *Orchestrator) handleStart(sctx Context) {
	if o.sess != nil && !o.sess.State.Terminal() {
		o.lastErr = "a session is already active"
		return
	}
	o.clearSession()
	o.sctx = sctx

	candidates := o.deps.Templates.CandidatesFor(sctx.EventID)
	res, err := ResolveTemplates(candidates)
	if err != nil {
		o.lastErr = err.Error()
		debug.Error(err)
		return
	}
	if res.NeedsSelection {
		o.candidates = candidates
		o.sess = newSession(sctx, "", 0, time.Now())
		o.setState(StateTemplatePending)
		return
	}
	o.beginSession(res.Template)
}

func (o *Orchestrator) handleSelectTemplate(id string) {
	if !o.inState(StateTemplatePending) {
		return
	}
	for i := range o.candidates {
		if o.candidates[i].ID == id {
			t := o.candidates[i]
			o.beginSession(&t)
			return
		}
	}
	o.lastErr = fmt.Sprintf("template %q is not a candidate", id)
}

// beginSession resets slot progress and starts the first capture
// cycle for the resolved template.
func (o *Orchestrator) beginSession(t *template.Template) {
	s := newSession(o.sctx, t.ID, t.SlotsRequired(), time.Now())
	if s.Mode == ModePhotographer && !o.deps.Device.Capability(device.CapPhysicalTrigger) {
		debug.Info("Photographer mode unsupported by device, falling back to countdown")
		s.Mode = ModeNormal
	}
	o.sess = s
	o.tmpl = t
	o.candidates = nil
	o.lastErr = ""
	debug.Session(s.ID, "started template="+t.ID+" mode="+s.Mode.String())

	if s.Mode == ModePhotographer {
		o.enterPhotographerWait()
		return
	}
	if err := o.deps.Device.StartPreview(); err != nil {
		debug.Error(err)
	}
	o.startCountdown()
}

func (o *Orchestrator) handleStop() {
	if o.sess == nil {
		return
	}
	if o.sess.State.CaptureActive() {
		o.clearAttempt()
		o.restartOrDiscard()
		return
	}
	// Review, composing, complete, aborted, template-pending: the
	// stop means "done", so the session clears. Captured artifacts
	// stay on disk and in the store.
	o.clearSession()
}

func (o *Orchestrator) handleRetake(slot uint) {
	if !o.inState(StateRetakeReview) {
		return
	}
	if slot >= o.sess.SlotsRequired {
		o.lastErr = fmt.Sprintf("slot %d out of range", slot)
		return
	}
	o.timers.Cancel(taskReview)
	s := slot
	o.retakeSlot = &s
	debug.Session(o.sess.ID, fmt.Sprintf("retaking slot %d", slot))

	if o.sess.Mode == ModePhotographer {
		o.enterPhotographerWait()
		return
	}
	o.startCountdown()
}

func (o *Orchestrator) handlePrint() {
	if o.sess == nil || o.sess.State != StateComplete || o.outputPath == "" {
		return
	}
	if o.deps.Printer == nil {
		o.lastErr = "printing is not configured"
		return
	}
	sessID, path := o.sess.ID, o.outputPath
	go func() {
		err := o.deps.Printer.Print(sessID, path)
		o.results <- asyncResult{kind: resultPrint, sessionID: sessID, path: path, err: err}
	}()
}

// --- capture cycle ---

// startCountdown arms the per-slot countdown. A countdown must be
// fully stopped before restarting; a still-running one here is a
// duplicate-capture hazard, so it is canceled and logged.
func (o *Orchestrator) startCountdown() {
	if o.timers.Active(taskCountdown) {
		debug.Error(errors.New("countdown restarted while running"))
		o.timers.Cancel(taskCountdown)
	}
	o.countdownRemaining = o.cfg.Countdown()
	o.setState(StateCountingDown)
	o.timers.Every(taskCountdown, o.tick)
}

func (o *Orchestrator) enterPhotographerWait() {
	// The device's native trigger substitutes for the countdown; the
	// preview stream is stopped to free the trigger path.
	if err := o.deps.Device.StopPreview(); err != nil {
		debug.Error(err)
	}
	o.setState(StatePhotographerWaiting)
}

// requestCapture asks for a capture, deferring if the minimum
// inter-trigger spacing has not elapsed. Deferral is visible: the
// projection shows the remaining wait.
func (o *Orchestrator) requestCapture() {
	if o.attempt != nil {
		debug.Verbose("Capture request ignored: attempt already outstanding")
		return
	}
	if !o.deferUntil.IsZero() {
		return // already deferred; the queued request stands
	}
	if wait := o.cfg.TriggerSpacing() - time.Since(o.lastTrigger); wait > 0 {
		o.deferUntil = time.Now().Add(wait)
		debug.Live("Trigger deferred %v (shutter spacing)", wait.Round(time.Millisecond))
		o.timers.After(taskSpacing, wait)
		return
	}
	o.beginAttempt()
}

func (o *Orchestrator) beginAttempt() {
	slot := o.targetSlot()
	if o.retakeSlot == nil && slot >= o.sess.SlotsRequired {
		debug.Error(fmt.Errorf("attempt for slot %d beyond required %d", slot, o.sess.SlotsRequired))
		return
	}
	o.attempt = newAttempt(slot, time.Now())
	o.setState(StateCapturing)
	o.timers.After(taskCaptureTimeout, o.cfg.CaptureTimeout())
	o.submitCapture()
}

func (o *Orchestrator) submitCapture() {
	a := o.attempt
	if a == nil {
		return
	}

	err := o.deps.Device.CaptureAsync(a.Token)
	switch {
	case err == nil:
		a.inFlight = true
		o.lastTrigger = time.Now()
		o.setState(StateCapturing)

	case errors.Is(err, device.ErrBusy):
		a.RetryCount++
		if o.policy().Exhausted(a.RetryCount) {
			o.failAttempt("device busy: retries exhausted")
			return
		}
		o.setState(StateRecovering)
		d := o.policy().Backoff(a.RetryCount)
		debug.Recovery(a.RetryCount, "device busy, backing off "+d.String())
		o.timers.After(taskBackoff, d)

	case device.IsTransient(err):
		// Transient device codes (e.g., autofocus failure) don't
		// invalidate the shot; the captured event is still expected.
		a.inFlight = true
		o.lastTrigger = time.Now()
		debug.Verbose("Transient device error ignored: %v", err)

	case errors.Is(err, device.ErrDisconnected):
		o.abortSession("device disconnected; reconnect the camera")

	default:
		o.failAttempt("capture request failed: " + err.Error())
	}
}

// failAttempt resolves the current attempt as failed: the error is
// surfaced and the same slot's capture cycle restarts. Failure never
// discards the session; only the operator's stop does that.
func (o *Orchestrator) failAttempt(msg string) {
	o.clearAttempt()
	o.lastErr = msg
	debug.Error(errors.New(msg))
	o.restartCurrentSlot()
}

func (o *Orchestrator) clearAttempt() {
	o.attempt = nil
	o.deferUntil = time.Time{}
	o.timers.Cancel(taskCaptureTimeout)
	o.timers.Cancel(taskBackoff)
	o.timers.Cancel(taskSpacing)
	o.timers.Cancel(taskCountdown)
	o.timers.Cancel(taskSlotPause)
}

// restartOrDiscard implements the deliberate stop asymmetry: with
// nothing captured yet the whole session is discarded (and never
// persisted); mid-sequence only the current slot restarts.
func (o *Orchestrator) restartOrDiscard() {
	if o.sess == nil {
		return
	}
	if o.sess.SlotsFilled == 0 && o.retakeSlot == nil {
		debug.Session(o.sess.ID, "discarded (no slots filled)")
		o.sess.State = StateAborted
		o.clearSession()
		return
	}
	o.restartCurrentSlot()
}

func (o *Orchestrator) restartCurrentSlot() {
	if o.retakeSlot == nil && o.sess.SlotsFilled >= o.sess.SlotsRequired {
		o.enterReview()
		return
	}
	if o.sess.Mode == ModePhotographer {
		o.enterPhotographerWait()
		return
	}
	o.startCountdown()
}

// --- device events ---

func (o *Orchestrator) handleDeviceEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventCaptured:
		o.handleCaptured(ev)
	case device.EventTriggerPressed:
		if o.inState(StatePhotographerWaiting) {
			o.requestCapture()
		}
	case device.EventDisconnected:
		o.abortSession("device disconnected; reconnect the camera")
	}
}

func (o *Orchestrator) handleCaptured(ev device.Event) {
	// Release unconditionally, even for stale or failed completions:
	// holding the device would leak the exclusive resource.
	o.deps.Device.Release()

	// The completion must carry the live attempt's token; a late
	// completion from a timed-out predecessor would otherwise be
	// credited to its successor.
	a := o.attempt
	if a == nil || !a.inFlight || ev.Token != a.Token {
		debug.Verbose("Discarding captured event against stale attempt")
		return
	}
	o.attempt = nil
	o.timers.Cancel(taskCaptureTimeout)

	if ev.Path == "" {
		o.failSlot("capture completed but produced no file")
		return
	}
	if _, err := os.Stat(ev.Path); err != nil {
		o.failSlot("captured photo missing on disk: " + ev.Path)
		return
	}
	o.saveSlot(a.SlotIndex, ev.Path)
}

// failSlot surfaces a materialization failure; the device was already
// released by the caller.
func (o *Orchestrator) failSlot(msg string) {
	o.lastErr = msg
	debug.Error(errors.New(msg))
	o.restartCurrentSlot()
}

func (o *Orchestrator) saveSlot(slot uint, path string) {
	s := o.sess
	rec := PhotoRecord{
		SlotIndex:  slot,
		FilePath:   path,
		CapturedAt: time.Now(),
		Kind:       KindPhoto,
	}

	if o.retakeSlot != nil && *o.retakeSlot == slot {
		// In-place replacement: SlotsFilled and every other slot
		// stay untouched.
		s.SlotPhotos[slot] = rec
	} else {
		s.SlotPhotos = append(s.SlotPhotos, rec)
		s.SlotsFilled++
	}
	debug.Slot(slot, s.SlotsRequired)
	o.persistSlot(rec)

	o.lastErr = ""
	o.setState(StateSlotSaved)
	o.timers.After(taskSlotPause, o.cfg.SlotPause())
}

func (o *Orchestrator) persistSlot(rec PhotoRecord) {
	if o.deps.Store == nil {
		return
	}
	s := o.sess
	if !s.persisted {
		if err := o.deps.Store.CreateSession(s.ID, s.TemplateID, s.EventID, s.SlotsRequired, s.StartedAt); err != nil {
			debug.Error(fmt.Errorf("persist session: %w", err))
			return
		}
		s.persisted = true
	}
	if err := o.deps.Store.SavePhoto(s.ID, rec.SlotIndex, rec.FilePath, rec.CapturedAt); err != nil {
		debug.Error(fmt.Errorf("persist photo: %w", err))
	}
}

// --- timer fires ---

func (o *Orchestrator) handleFire(f Fire) {
	switch f.Name {
	case taskCountdown:
		o.fireCountdown()
	case taskSpacing:
		o.deferUntil = time.Time{}
		if o.attempt == nil && o.sess != nil && !o.sess.State.Terminal() {
			o.beginAttempt()
		}
	case taskCaptureTimeout:
		o.fireCaptureTimeout()
	case taskBackoff:
		if o.attempt != nil && !o.attempt.inFlight {
			o.submitCapture()
		}
	case taskSlotPause:
		o.fireSlotPause()
	case taskReview:
		o.fireReview()
	case taskAutoClear:
		if o.sess != nil && o.sess.State == StateComplete {
			o.clearSession()
		}
	}
}

func (o *Orchestrator) fireCountdown() {
	if !o.inState(StateCountingDown) {
		o.timers.Cancel(taskCountdown)
		return
	}
	o.countdownRemaining--
	debug.Countdown(o.countdownRemaining)
	if o.countdownRemaining <= 0 {
		o.timers.Cancel(taskCountdown)
		o.requestCapture()
	}
}

func (o *Orchestrator) fireCaptureTimeout() {
	if o.attempt == nil {
		return
	}
	debug.Recovery(o.attempt.RetryCount, "attempt exceeded completion ceiling, forcing device reset")
	o.setState(StateRecovering)
	Quiesce(o.deps.Device)
	o.failAttempt("capture timed out")
}

func (o *Orchestrator) fireSlotPause() {
	if o.sess == nil || o.sess.State != StateSlotSaved {
		return
	}
	if o.retakeSlot != nil {
		// Single-slot recapture done: return to review, not onward.
		o.retakeSlot = nil
		o.enterReview()
		return
	}
	switch Decide(o.sess.SlotsFilled, o.sess.SlotsRequired) {
	case NeedMoreSlots:
		if o.sess.Mode == ModePhotographer {
			o.enterPhotographerWait()
			return
		}
		// Quiesce the device between slots.
		if err := o.deps.Device.StopPreview(); err != nil {
			debug.Error(err)
		}
		if err := o.deps.Device.StartPreview(); err != nil {
			debug.Error(err)
		}
		o.startCountdown()
	case AllSlotsComplete:
		o.enterReview()
	}
}

func (o *Orchestrator) enterReview() {
	o.retakeSlot = nil
	o.reviewRemaining = o.cfg.Timing.ReviewSeconds
	o.setState(StateRetakeReview)
	o.timers.Every(taskReview, o.tick)
}

func (o *Orchestrator) fireReview() {
	if !o.inState(StateRetakeReview) {
		o.timers.Cancel(taskReview)
		return
	}
	o.reviewRemaining--
	if o.reviewRemaining <= 0 {
		o.timers.Cancel(taskReview)
		o.startCompose()
	}
}

// --- composition and handoffs ---

func (o *Orchestrator) startCompose() {
	if o.deps.Composer == nil {
		o.abortSession("composition is not configured")
		return
	}
	o.setState(StateComposing)
	o.lastErr = ""
	o.composing = true

	t := o.tmpl
	sessID := o.sess.ID
	paths := o.sess.PhotoPaths()
	go func() {
		out, err := o.deps.Composer.Compose(t, paths)
		o.results <- asyncResult{kind: resultCompose, sessionID: sessID, path: out, err: err}
	}()
}

func (o *Orchestrator) handleResult(r asyncResult) {
	switch r.kind {
	case resultCompose:
		o.handleComposeResult(r)
	case resultPrint:
		if r.err != nil {
			o.lastErr = "print failed: " + r.err.Error()
			debug.Error(r.err)
		} else {
			debug.Info("Print job submitted: %s", r.path)
		}
	}
}

func (o *Orchestrator) handleComposeResult(r asyncResult) {
	o.composing = false
	if o.sess == nil || o.sess.ID != r.sessionID || o.sess.State != StateComposing {
		return // session moved on; stale result
	}
	if r.err != nil {
		// Slots are preserved; the operator can retry composition
		// without recapturing.
		o.lastErr = "composition failed: " + r.err.Error()
		debug.Error(r.err)
		return
	}

	o.outputPath = r.path
	o.setState(StateComplete)
	debug.Session(o.sess.ID, "composed -> "+r.path)

	if o.deps.Store != nil && o.sess.persisted {
		if err := o.deps.Store.SaveOutput(o.sess.ID, r.path, time.Now()); err != nil {
			debug.Error(fmt.Errorf("persist output: %w", err))
		}
	}
	if o.deps.Uploader != nil {
		sessID := o.sess.ID
		eventName := o.sess.EventName
		artifacts := append(o.sess.PhotoPaths(), r.path)
		go func() {
			if err := o.deps.Uploader.Enqueue(sessID, artifacts, eventName); err != nil {
				debug.Error(fmt.Errorf("queue upload: %w", err))
			}
		}()
	}
	o.timers.After(taskAutoClear, o.cfg.AutoClear())
}

// --- session teardown ---

// abortSession is the fatal path: the session sticks in Aborted with
// its artifacts intact until the operator clears it.
func (o *Orchestrator) abortSession(msg string) {
	o.lastErr = msg
	o.timers.CancelAll()
	o.attempt = nil
	o.deferUntil = time.Time{}
	o.composing = false
	if o.sess != nil {
		debug.Session(o.sess.ID, "aborted: "+msg)
		o.setState(StateAborted)
	} else {
		debug.Error(errors.New(msg))
	}
}

func (o *Orchestrator) clearSession() {
	if o.sess != nil {
		debug.Session(o.sess.ID, "cleared")
	}
	o.timers.CancelAll()
	o.sess = nil
	o.tmpl = nil
	o.candidates = nil
	o.attempt = nil
	o.retakeSlot = nil
	o.deferUntil = time.Time{}
	o.composing = false
	o.outputPath = ""
	o.countdownRemaining = 0
	o.reviewRemaining = 0
}

// --- helpers ---

func (o *Orchestrator) policy() RecoveryPolicy {
	return RecoveryPolicy{
		Base:  o.cfg.BusyRetryBase(),
		Cap:   o.cfg.BusyRetryCap(),
		Limit: uint(o.cfg.Timing.BusyRetryLimit),
	}
}

func (o *Orchestrator) targetSlot() uint {
	if o.retakeSlot != nil {
		return *o.retakeSlot
	}
	if o.sess == nil {
		return 0
	}
	return o.sess.SlotsFilled
}

func (o *Orchestrator) inState(s State) bool {
	return o.sess != nil && o.sess.State == s
}

func (o *Orchestrator) stateName() string {
	if o.sess == nil {
		return StateIdle.String()
	}
	return o.sess.State.String()
}

func (o *Orchestrator) setState(s State) {
	if o.sess == nil {
		return
	}
	if o.sess.State != s {
		debug.State(o.sess.State.String(), s.String())
	}
	o.sess.State = s
}

// --- projection ---

func (o *Orchestrator) publish() {
	v := o.buildView()
	o.viewMu.Lock()
	o.view = v
	o.viewMu.Unlock()
	if o.onView != nil {
		o.onView(v)
	}
}

func (o *Orchestrator) buildView() View {
	v := View{State: StateIdle.String(), LastError: o.lastErr}
	if o.sess == nil {
		return v
	}
	s := o.sess

	v.SessionID = s.ID
	v.State = s.State.String()
	v.Mode = s.Mode.String()
	v.TemplateID = s.TemplateID
	v.EventID = s.EventID
	v.SlotsRequired = s.SlotsRequired
	v.SlotsFilled = s.SlotsFilled
	v.CurrentSlot = o.targetSlot()

	if o.retakeSlot != nil {
		rs := *o.retakeSlot
		v.RetakeSlot = &rs
	}
	if s.State == StateCountingDown {
		v.Countdown = o.countdownRemaining
	}
	if s.State == StateRetakeReview {
		v.ReviewRemaining = o.reviewRemaining
	}
	if !o.deferUntil.IsZero() {
		if rem := time.Until(o.deferUntil); rem > 0 {
			v.DeferRemaining = int(rem/time.Second) + 1
		}
	}
	if o.attempt != nil {
		v.RetryCount = o.attempt.RetryCount
	}
	for _, p := range s.SlotPhotos {
		v.Photos = append(v.Photos, SlotView{
			Slot:       p.SlotIndex,
			Path:       p.FilePath,
			CapturedAt: p.CapturedAt.Format(time.RFC3339),
		})
	}
	v.OutputPath = o.outputPath
	v.PrintReady = s.State == StateComplete && o.outputPath != ""
	if s.State == StateTemplatePending {
		for _, t := range o.candidates {
			v.Candidates = append(v.Candidates, t.ID)
		}
	}
	return v
}
