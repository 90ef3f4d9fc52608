package download

import "sync"

// Progress is a snapshot of a batch's aggregate progress. Units are bytes;
// a task with unknown size counts as a single unit.
type Progress struct {
	CompletedUnits   int64
	TotalUnits       int64
	CurrentItemLabel string
}

// Fraction returns completion in the range 0..1
func (p Progress) Fraction() float64 {
	if p.TotalUnits <= 0 {
		return 0
	}
	f := float64(p.CompletedUnits) / float64(p.TotalUnits)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Observer receives progress snapshots. It is called from a single goroutine.
type Observer func(Progress)

type progressEvent struct {
	completed int64
	total     int64
	label     string
}

// aggregator owns the batch Progress. Workers send events; only loop writes.
type aggregator struct {
	events   chan progressEvent
	observer Observer
	done     chan struct{}

	mu      sync.Mutex
	current Progress
}

func newAggregator(observer Observer) *aggregator {
	return &aggregator{
		events:   make(chan progressEvent, 256),
		observer: observer,
		done:     make(chan struct{}),
	}
}

func (a *aggregator) loop() {
	defer close(a.done)
	for ev := range a.events {
		a.mu.Lock()
		a.current.CompletedUnits += ev.completed
		a.current.TotalUnits += ev.total
		if ev.label != "" {
			a.current.CurrentItemLabel = ev.label
		}
		snap := a.current
		a.mu.Unlock()

		if a.observer != nil {
			a.observer(snap)
		}
	}
}

func (a *aggregator) send(ev progressEvent) {
	a.events <- ev
}

func (a *aggregator) addTotal(units int64) {
	if units != 0 {
		a.send(progressEvent{total: units})
	}
}

func (a *aggregator) addCompleted(units int64) {
	if units != 0 {
		a.send(progressEvent{completed: units})
	}
}

func (a *aggregator) setLabel(label string) {
	a.send(progressEvent{label: label})
}

// close stops the loop once every queued event has been applied
func (a *aggregator) close() {
	close(a.events)
	<-a.done
}

func (a *aggregator) snapshot() Progress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
