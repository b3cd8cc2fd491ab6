package session

import (
	"time"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/device"
)

// RecoveryPolicy bounds how hard the orchestrator leans on a busy or
// silent device before giving up on the attempt.
type RecoveryPolicy struct {
	Base  time.Duration // backoff base delay
	Cap   time.Duration // backoff delay ceiling
	Limit uint          // busy retries before terminal failure
}

// Backoff returns the delay before retry number retryCount:
// min(base*retryCount, cap).
func (p RecoveryPolicy) Backoff(retryCount uint) time.Duration {
	d := p.Base * time.Duration(retryCount)
	if d > p.Cap {
		d = p.Cap
	}
	if d < p.Base {
		d = p.Base
	}
	return d
}

// Exhausted reports whether the retry budget is spent.
func (p RecoveryPolicy) Exhausted(retryCount uint) bool {
	return retryCount > p.Limit
}

// Quiesce force-resets the device after a silent attempt: clear the
// busy indicator and bounce the preview stream. Every step is
// idempotent, so calling it against a device that is not actually
// stuck is a no-op beyond the preview restart.
func Quiesce(dev device.Device) {
	debug.Verbose("Recovery: quiescing device")
	dev.SetBusy(false)
	if dev.Capability(device.CapPreview) {
		if err := dev.StopPreview(); err != nil {
			debug.Error(err)
		}
		if err := dev.StartPreview(); err != nil {
			debug.Error(err)
		}
	}
}
