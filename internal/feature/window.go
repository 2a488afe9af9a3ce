package feature

import "time"

type samplePoint struct {
	at  time.Time
	val float64
}

// rollingWindow keeps samples no older than span behind the newest sample.
// Eviction is driven by sample timestamps, not wall clock, so replaying the
// same update history always yields the same window contents.
type rollingWindow struct {
	span    time.Duration
	samples []samplePoint
}

func newRollingWindow(span time.Duration) *rollingWindow {
	return &rollingWindow{span: span}
}

func (w *rollingWindow) push(at time.Time, val float64) {
	w.samples = append(w.samples, samplePoint{at: at, val: val})
	cutoff := at.Add(-w.span)
	i := 0
	for i < len(w.samples) && w.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

func (w *rollingWindow) sum() float64 {
	total := 0.0
	for _, s := range w.samples {
		total += s.val
	}
	return total
}

func (w *rollingWindow) first() (samplePoint, bool) {
	if len(w.samples) == 0 {
		return samplePoint{}, false
	}
	return w.samples[0], true
}
