package session

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects the trigger source for a session.
type Mode int

const (
	// ModeNormal runs a visible countdown per slot.
	ModeNormal Mode = iota
	// ModePhotographer waits for the device's native shutter button
	// instead of a countdown.
	ModePhotographer
)

func (m Mode) String() string {
	if m == ModePhotographer {
		return "photographer"
	}
	return "normal"
}

// PhotoKind discriminates captured artifacts.
type PhotoKind int

const (
	KindPhoto PhotoKind = iota
	KindVideo
)

// PhotoRecord is one captured artifact, owned by its Session and
// replaced wholesale when its slot is retaken.
type PhotoRecord struct {
	SlotIndex  uint
	FilePath   string
	CapturedAt time.Time
	Kind       PhotoKind
}

// CaptureAttempt is one request/response cycle against the device.
// Ephemeral: at most one exists per session at any time, and a new
// one may only start once the previous resolved.
type CaptureAttempt struct {
	// Token travels with the capture request and is echoed in the
	// completion event; completions whose token does not match the
	// live attempt are stale and discarded.
	Token      string
	SlotIndex  uint
	RetryCount uint
	StartedAt  time.Time

	// inFlight is set once the device accepted the request; captured
	// events are only credited to in-flight attempts, so completions
	// against canceled or unsubmitted attempts are discarded.
	inFlight bool
}

func newAttempt(slot uint, now time.Time) *CaptureAttempt {
	return &CaptureAttempt{
		Token:     uuid.NewString(),
		SlotIndex: slot,
		StartedAt: now,
	}
}

// RetakeWindow is the ephemeral review state between "all slots
// filled" and composition.
type RetakeWindow struct {
	RemainingSeconds int
	SelectedSlot     *uint
}

// Context carries the selection state a session starts from. It is an
// explicit value handed to the orchestrator at start; there is no
// ambient process-wide "current event/template".
type Context struct {
	EventID   string
	EventName string
	Mode      Mode
}

// Session is one end-to-end multi-photo capture run for a template.
type Session struct {
	ID            string
	TemplateID    string
	EventID       string
	EventName     string
	SlotsRequired uint
	SlotsFilled   uint
	SlotPhotos    []PhotoRecord
	Mode          Mode
	State         State
	StartedAt     time.Time

	// persisted is set once the first slot saved; zero-slot aborts
	// never reach storage.
	persisted bool
}

func newSession(ctx Context, templateID string, slotsRequired uint, now time.Time) *Session {
	return &Session{
		ID:            uuid.NewString(),
		TemplateID:    templateID,
		EventID:       ctx.EventID,
		EventName:     ctx.EventName,
		SlotsRequired: slotsRequired,
		Mode:          ctx.Mode,
		State:         StateIdle,
		StartedAt:     now,
	}
}

// PhotoPaths returns the ordered slot photo paths.
func (s *Session) PhotoPaths() []string {
	paths := make([]string, 0, len(s.SlotPhotos))
	for _, p := range s.SlotPhotos {
		paths = append(paths, p.FilePath)
	}
	return paths
}

// SlotView is one slot's projection entry.
type SlotView struct {
	Slot       uint   `json:"slot"`
	Path       string `json:"path"`
	CapturedAt string `json:"captured_at"`
}

// View is the pure projection of the orchestrator state consumed by
// the operator surface. UI visibility derives from this snapshot,
// never the other way around.
type View struct {
	SessionID     string `json:"session_id,omitempty"`
	State         string `json:"state"`
	Mode          string `json:"mode,omitempty"`
	TemplateID    string `json:"template_id,omitempty"`
	EventID       string `json:"event_id,omitempty"`
	SlotsRequired uint   `json:"slots_required"`
	SlotsFilled   uint   `json:"slots_filled"`
	CurrentSlot   uint   `json:"current_slot"`
	RetakeSlot    *uint  `json:"retake_slot,omitempty"`

	Countdown       int  `json:"countdown,omitempty"`        // remaining seconds while counting down
	ReviewRemaining int  `json:"review_remaining,omitempty"` // remaining review seconds
	DeferRemaining  int  `json:"defer_remaining,omitempty"`  // trigger-spacing deferral, visible countdown
	RetryCount      uint `json:"retry_count,omitempty"`

	Photos     []SlotView `json:"photos,omitempty"`
	OutputPath string     `json:"output_path,omitempty"`
	PrintReady bool       `json:"print_ready"`

	Candidates []string `json:"candidate_templates,omitempty"`
	LastError  string   `json:"last_error,omitempty"`
}
