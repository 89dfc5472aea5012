// Package poll repeats a check at a fixed interval until it reports done,
// fails, or the context ends.
package poll

import (
	"context"
	"time"
)

const DefaultInterval = time.Second

// Func reports whether polling can stop. A non-nil error stops polling.
type Func func(ctx context.Context) (done bool, err error)

// Until calls fn immediately and then once per interval. The wait between
// calls starts after the previous call returns, so checks never overlap.
func Until(ctx context.Context, interval time.Duration, fn Func) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
