package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-sales-guard/internal/events"
	"github.com/tbourn/go-sales-guard/internal/repo"
)

// maxAttempts bounds the re-read and re-evaluate loop of a versioned write.
const maxAttempts = 5

// Recorder receives domain measurements. *observability.Metrics satisfies it.
type Recorder interface {
	Decision(scope, outcome string)
	Flood(severity string)
	Ceilings(minute, hour int)
	StageTransition(from, to string)
}

type nopRecorder struct{}

func (nopRecorder) Decision(string, string)        {}
func (nopRecorder) Flood(string)                   {}
func (nopRecorder) Ceilings(int, int)              {}
func (nopRecorder) StageTransition(string, string) {}

func recorderOr(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

func clockOr(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}

// publish is a no-op without a publisher. Event delivery never fails the
// operation that produced it.
func publish(ctx context.Context, p events.Publisher, name string, data any) {
	if p == nil {
		return
	}
	_ = p.Publish(ctx, events.Event{Name: name, Data: data})
}

// versioned runs fn until it returns something other than repo.ErrConflict.
// Storage faults are wrapped in ErrStorage.
func versioned(op string, fn func() error) error {
	for i := 0; i < maxAttempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, repo.ErrConflict) {
			return storageErr(op, err)
		}
	}
	return fmt.Errorf("%w: %s: %d concurrent updates", ErrStorage, op, maxAttempts)
}

// rollWindow resets count when its window of length d has elapsed.
func rollWindow(count *int, start *time.Time, now time.Time, d time.Duration) {
	if now.Sub(*start) >= d {
		*count = 0
		*start = now
	}
}

// ceilMinutes returns d in whole minutes rounded up, at least 1.
func ceilMinutes(d time.Duration) int {
	m := int((d + time.Minute - 1) / time.Minute)
	return max(m, 1)
}

// ceilSeconds returns d in whole seconds rounded up, at least 1.
func ceilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	return max(s, 1)
}
