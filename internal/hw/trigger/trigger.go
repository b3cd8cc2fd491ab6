package trigger

import (
	"context"
	"time"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/hw/gpio"
)

// Button watches a GPIO pin wired to a physical shutter button
// (photographer mode). The pin uses the internal pull-up, so the
// line reads High released and Low pressed.
type Button struct {
	gpio     gpio.Driver
	pin      int
	poll     time.Duration
	debounce time.Duration
	onPress  func()
}

// NewButton configures the button pin and returns a watcher that
// invokes onPress on each debounced press.
func NewButton(g gpio.Driver, pin int, poll, debounce time.Duration, onPress func()) (*Button, error) {
	if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
		return nil, err
	}
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	if debounce <= 0 {
		debounce = 80 * time.Millisecond
	}
	return &Button{
		gpio:     g,
		pin:      pin,
		poll:     poll,
		debounce: debounce,
		onPress:  onPress,
	}, nil
}

// Run polls the pin until ctx is canceled. Only the High->Low edge
// fires; the line must release before the next press counts.
func (b *Button) Run(ctx context.Context) error {
	debug.Info("Trigger button: watching pin %d", b.pin)
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	wasPressed := false
	var lastPress time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			level, err := b.gpio.ReadPin(b.pin)
			if err != nil {
				debug.Error(err)
				continue
			}
			pressed := level == gpio.Low
			if pressed && !wasPressed && time.Since(lastPress) >= b.debounce {
				lastPress = time.Now()
				debug.Live("Trigger button pressed (pin %d)", b.pin)
				b.onPress()
			}
			wasPressed = pressed
		}
	}
}

// Lamp drives an indicator output pin (e.g., the print-ready light).
type Lamp struct {
	gpio gpio.Driver
	pin  int
}

// NewLamp configures the lamp pin as an output, initially off.
func NewLamp(g gpio.Driver, pin int) (*Lamp, error) {
	if err := g.SetupPin(pin, gpio.Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, gpio.Low); err != nil {
		return nil, err
	}
	return &Lamp{gpio: g, pin: pin}, nil
}

func (l *Lamp) On() {
	if err := l.gpio.WritePin(l.pin, gpio.High); err != nil {
		debug.Error(err)
	}
}

func (l *Lamp) Off() {
	if err := l.gpio.WritePin(l.pin, gpio.Low); err != nil {
		debug.Error(err)
	}
}
