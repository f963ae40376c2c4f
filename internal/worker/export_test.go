package worker

import "time"

// SetClock replaces the processor clock in tests.
func (p *EmailProcessor) SetClock(now func() time.Time) { p.now = now }
