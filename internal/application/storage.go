package application

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

// storeCall bounds a single store round trip.
type storeCall struct {
	timeout time.Duration
}

func (c storeCall) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// detached returns a context for writing a failure audit entry after ctx may
// already have expired. It keeps ctx's values but not its deadline.
func (c storeCall) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return c.context(context.WithoutCancel(ctx))
}

// storageError wraps a store failure so callers can tell it apart from
// validation and not-found results. Deadline and cancellation are flagged
// as timeouts.
func storageError(op string, err error) error {
	var se *model.StorageError
	if errors.As(err, &se) {
		return err
	}
	return &model.StorageError{
		Op:      op,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled),
		Err:     err,
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return model.SystemUser
	}
	return actor
}

// auditTime truncates to the precision every backend stores.
func auditTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
