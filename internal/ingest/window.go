package ingest

import "time"

// Window is the active-call horizon counted back from the run start.
type Window struct {
	Start   time.Time
	Horizon time.Duration
}

// Cutoff returns the oldest receive time still inside the window.
func (w Window) Cutoff() time.Time {
	return w.Start.Add(-w.Horizon)
}

// Contains reports whether t falls inside the window. The lower bound is
// inclusive; calls stamped after the run start are kept.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Cutoff())
}
