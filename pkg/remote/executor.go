package remote

import (
	"context"
	"time"

	"github.com/sddcinfo/provisioning-server/pkg/types"
)

// Executor runs a command against a remote node and returns its combined
// output. Implementations must bound their own work (dial timeouts,
// command deadlines); callers additionally wrap every invocation in
// Supervise so a hanging primitive cannot stall the caller.
type Executor interface {
	Run(ctx context.Context, command string) (string, error)
}

// Supervise runs fn under an inner timeout and independently enforces an
// outer bound. The inner timeout is handed to the primitive via context;
// the outer bound is a supervising wait that abandons the call outright
// if the primitive itself hangs past its own timeout. The abandoned
// goroutine is left to finish in the background; its result is discarded.
func Supervise(ctx context.Context, inner, outer time.Duration, op string, fn func(ctx context.Context) (string, error)) (string, error) {
	innerCtx, cancel := context.WithTimeout(ctx, inner)
	defer cancel()

	type result struct {
		out string
		err error
	}
	// Buffered so the abandoned call can still complete and exit.
	done := make(chan result, 1)

	go func() {
		out, err := fn(innerCtx)
		done <- result{out, err}
	}()

	timer := time.NewTimer(outer)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil && innerCtx.Err() == context.DeadlineExceeded {
			return r.out, &types.RemoteTimeoutError{Op: op, Timeout: inner}
		}
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", &types.RemoteTimeoutError{Op: op, Timeout: outer}
	}
}
