package session

import (
	"sync"
	"time"

	"github.com/kioskworks/boothd/internal/debug"
)

// Fire is a scheduler task firing, delivered on the Timers channel so
// the orchestrator handles it inside its single coordination loop.
type Fire struct {
	Name string
	gen  uint64
}

// Timers multiplexes the orchestrator's named, cancelable delayed and
// periodic tasks over one message channel. It replaces the usual
// sprawl of independent UI timers with one auditable scheduler: every
// wait (countdown tick, backoff delay, attempt timeout, display
// pause, review tick, auto-clear) is a named task, and cancellation
// invalidates queued fires via a per-name generation counter.
type Timers struct {
	mu    sync.Mutex
	gens  map[string]uint64
	tasks map[string]*timerTask
	fires chan Fire
}

type timerTask struct {
	gen      uint64
	timer    *time.Timer
	periodic bool
	interval time.Duration
}

// NewTimers creates a scheduler with a bounded fire queue.
func NewTimers(buffer int) *Timers {
	if buffer <= 0 {
		buffer = 64
	}
	return &Timers{
		gens:  make(map[string]uint64),
		tasks: make(map[string]*timerTask),
		fires: make(chan Fire, buffer),
	}
}

// Fires returns the channel the coordination loop drains.
func (t *Timers) Fires() <-chan Fire {
	return t.fires
}

// After schedules (or reschedules) a one-shot task.
func (t *Timers) After(name string, d time.Duration) {
	t.schedule(name, d, false)
}

// Every schedules (or reschedules) a periodic task.
func (t *Timers) Every(name string, interval time.Duration) {
	t.schedule(name, interval, true)
}

func (t *Timers) schedule(name string, d time.Duration, periodic bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old := t.tasks[name]; old != nil {
		old.timer.Stop()
	}
	t.gens[name]++
	gen := t.gens[name]

	task := &timerTask{gen: gen, periodic: periodic, interval: d}
	task.timer = time.AfterFunc(d, func() { t.fired(name, gen) })
	t.tasks[name] = task
	debug.Timer(name, "scheduled")
}

func (t *Timers) fired(name string, gen uint64) {
	t.mu.Lock()
	task := t.tasks[name]
	if task == nil || task.gen != gen {
		t.mu.Unlock()
		return
	}
	if task.periodic {
		task.timer = time.AfterFunc(task.interval, func() { t.fired(name, gen) })
	} else {
		delete(t.tasks, name)
	}
	t.mu.Unlock()

	select {
	case t.fires <- Fire{Name: name, gen: gen}:
	default:
		// The loop is not draining; dropping is safer than blocking
		// a timer goroutine. Periodic tasks will fire again.
		debug.Timer(name, "fire dropped, queue full")
	}
}

// Cancel stops a task and invalidates any of its queued fires.
func (t *Timers) Cancel(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if task := t.tasks[name]; task != nil {
		task.timer.Stop()
		delete(t.tasks, name)
	}
	t.gens[name]++
	debug.Timer(name, "canceled")
}

// CancelAll stops every task.
func (t *Timers) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, task := range t.tasks {
		task.timer.Stop()
		delete(t.tasks, name)
		t.gens[name]++
	}
}

// Active reports whether a task is currently scheduled.
func (t *Timers) Active(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tasks[name] != nil
}

// Valid reports whether a received fire is still current, i.e. its
// task was not canceled or rescheduled after the fire was queued.
func (t *Timers) Valid(f Fire) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gens[f.Name] == f.gen
}
