package watcher

import (
	"context"
	"time"
)

// Debouncer groups rapid file changes together. Within one batch only the
// latest event per path is kept, in first-seen order.
type Debouncer struct {
	delay time.Duration
}

// NewDebouncer creates a Debouncer. A zero delay forwards every event as
// its own batch.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Run reads events from in and writes batches to out until ctx is done.
func (d *Debouncer) Run(ctx context.Context, in <-chan ChangeEvent, out chan<- []ChangeEvent) {
	pending := make(map[string]ChangeEvent)
	var order []string
	var timer *time.Timer
	var fire <-chan time.Time

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event := <-in:
			if d.delay <= 0 {
				select {
				case out <- []ChangeEvent{event}:
				case <-ctx.Done():
					return
				}
				continue
			}

			if _, seen := pending[event.Path]; !seen {
				order = append(order, event.Path)
			}
			pending[event.Path] = event

			if timer == nil {
				timer = time.NewTimer(d.delay)
			} else {
				timer.Reset(d.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			batch := make([]ChangeEvent, 0, len(order))
			for _, path := range order {
				batch = append(batch, pending[path])
			}
			pending = make(map[string]ChangeEvent)
			order = nil

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}
