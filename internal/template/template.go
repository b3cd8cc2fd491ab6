package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kioskworks/boothd/internal/debug"
)

// SlotRect places one captured photo on the composed canvas.
type SlotRect struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Template describes one print layout: how many photos the session
// must capture and where each lands on the canvas.
type Template struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Events []string `yaml:"events,omitempty"` // restrict to these event IDs; empty = any

	CanvasWidth     int    `yaml:"canvas_width"`
	CanvasHeight    int    `yaml:"canvas_height"`
	Background      string `yaml:"background"`                 // hex color, e.g. "#ffffff"
	BackgroundImage string `yaml:"background_image,omitempty"` // optional, drawn over the fill
	OverlayImage    string `yaml:"overlay_image,omitempty"`    // optional, drawn over the photos

	Slots []SlotRect `yaml:"slots"`
}

// SlotsRequired returns the number of photos the template needs.
func (t *Template) SlotsRequired() uint {
	return uint(len(t.Slots))
}

// Validate checks structural requirements.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("template: id is required")
	}
	if len(t.Slots) == 0 {
		return fmt.Errorf("template %s: at least one slot is required", t.ID)
	}
	if t.CanvasWidth <= 0 || t.CanvasHeight <= 0 {
		return fmt.Errorf("template %s: canvas dimensions must be > 0", t.ID)
	}
	for i, s := range t.Slots {
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("template %s: slot %d has non-positive size", t.ID, i)
		}
	}
	return nil
}

// AllowsEvent reports whether the template may be used for the event.
// Templates without an event restriction are valid for any event.
func (t *Template) AllowsEvent(eventID string) bool {
	if len(t.Events) == 0 {
		return true
	}
	for _, e := range t.Events {
		if e == eventID {
			return true
		}
	}
	return false
}

// Library holds the loaded template set.
type Library struct {
	templates []Template
	byID      map[string]*Template
}

// NewLibrary builds a library from in-memory templates (embedding,
// tests). Templates must already validate.
func NewLibrary(templates ...Template) (*Library, error) {
	lib := &Library{byID: make(map[string]*Template)}
	for _, t := range templates {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := lib.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q", t.ID)
		}
		lib.templates = append(lib.templates, t)
	}
	sort.Slice(lib.templates, func(i, j int) bool {
		return lib.templates[i].ID < lib.templates[j].ID
	})
	for i := range lib.templates {
		lib.byID[lib.templates[i].ID] = &lib.templates[i]
	}
	return lib, nil
}

// LoadDir reads every *.yaml file in dir as one template definition.
func LoadDir(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read templates dir: %w", err)
	}

	lib := &Library{byID: make(map[string]*Template)}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("unmarshal template %s: %w", entry.Name(), err)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := lib.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate template id %q (%s)", t.ID, entry.Name())
		}
		lib.templates = append(lib.templates, t)
		debug.Verbose("Loaded template %s (%d slots)", t.ID, len(t.Slots))
	}

	sort.Slice(lib.templates, func(i, j int) bool {
		return lib.templates[i].ID < lib.templates[j].ID
	})
	for i := range lib.templates {
		lib.byID[lib.templates[i].ID] = &lib.templates[i]
	}

	debug.Info("Template library: %d templates from %s", len(lib.templates), dir)
	return lib, nil
}

// All returns every loaded template.
func (l *Library) All() []Template {
	return l.templates
}

// Get returns the template with the given id, or nil.
func (l *Library) Get(id string) *Template {
	return l.byID[id]
}

// CandidatesFor returns the templates usable for an event.
func (l *Library) CandidatesFor(eventID string) []Template {
	var out []Template
	for _, t := range l.templates {
		if t.AllowsEvent(eventID) {
			out = append(out, t)
		}
	}
	return out
}
