package schedule

import "time"

// Clock supplies the reference instant for every time comparison in the
// engine. Injected so grace periods, reminder filtering and the no-show
// cutoff are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }
