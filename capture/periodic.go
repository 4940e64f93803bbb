package capture

import (
	"errors"
	"time"
)

var (
	// ErrPeriodicRunning is returned when the periodic timer is already armed.
	ErrPeriodicRunning = errors.New("capture: periodic capture already running")
	// ErrNoCurrentContext is returned when no CurrentContext derivation was configured.
	ErrNoCurrentContext = errors.New("capture: no current context provider configured")
)

// StartPeriodicCapture arms a repeating timer that re-captures the current
// context on a fixed interval, independent of any prompt/response activity.
// This keeps the store warm across idle periods within a long-running
// process. Interleaving with hook-triggered captures for the same session
// resolves as last-write-wins.
func (c *StateCapture) StartPeriodicCapture(interval time.Duration) error {
	if c.current == nil {
		return ErrNoCurrentContext
	}
	if interval <= 0 {
		return errors.New("capture: interval must be positive")
	}

	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.done != nil {
		return ErrPeriodicRunning
	}
	done := make(chan struct{})
	c.done = done

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sessionID, ctx := c.current()
				if sessionID == "" {
					continue
				}
				c.Capture(sessionID, ctx)
			}
		}
	}()

	c.logger.Info("periodic capture started", "interval", interval.String())
	return nil
}

// StopPeriodicCapture disarms the timer. Safe to call when not running.
func (c *StateCapture) StopPeriodicCapture() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.done == nil {
		return
	}
	close(c.done)
	c.done = nil
	c.logger.Info("periodic capture stopped")
}
