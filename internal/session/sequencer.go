package session

import (
	"fmt"

	"github.com/kioskworks/boothd/internal/template"
)

// Decision is the sequencer's verdict after a slot saves.
type Decision int

const (
	NeedMoreSlots Decision = iota
	AllSlotsComplete
)

// Decide is pure slot-progression logic: given the fill state, it
// reports whether the session needs another capture cycle.
func Decide(filled, required uint) Decision {
	if filled < required {
		return NeedMoreSlots
	}
	return AllSlotsComplete
}

// Resolution is the outcome of template-candidate resolution.
type Resolution struct {
	// Template is the auto-selected template when exactly one
	// candidate exists; nil otherwise.
	Template *template.Template
	// NeedsSelection is true when more than one candidate exists and
	// the operator must pick before the first countdown may start.
	NeedsSelection bool
}

// ResolveTemplates applies the candidate rules: zero candidates is an
// error, one auto-selects, more than one requires explicit selection.
func ResolveTemplates(candidates []template.Template) (Resolution, error) {
	switch len(candidates) {
	case 0:
		return Resolution{}, fmt.Errorf("no templates available for this event")
	case 1:
		t := candidates[0]
		return Resolution{Template: &t}, nil
	default:
		return Resolution{NeedsSelection: true}, nil
	}
}
