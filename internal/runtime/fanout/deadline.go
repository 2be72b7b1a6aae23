package fanout

import (
	"context"
	"time"

	errspkg "github.com/drblury/relayflow/internal/runtime/errors"
)

// Collect drains stream until it is closed or timeout elapses, whichever is
// first. The timer starts when Collect is called.
//
// A closed stream yields every item and a nil error. On timeout the items read
// so far are returned with errors.ErrDeadlineExceeded. When ctx is cancelled
// first, ctx.Err() is returned instead.
func Collect(ctx context.Context, stream <-chan string, timeout time.Duration) ([]string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var items []string
	for {
		select {
		case item, ok := <-stream:
			if !ok {
				return items, nil
			}
			items = append(items, item)
		case <-timer.C:
			return items, errspkg.ErrDeadlineExceeded
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return items, errspkg.ErrDeadlineExceeded
			}
			return items, ctx.Err()
		}
	}
}
