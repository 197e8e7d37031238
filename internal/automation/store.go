package automation

import (
	"context"
	"fmt"
	"time"
)

// LinkStore is the durable table of automation links, keyed by device ID.
//
// Implementations must be safe for concurrent use. Remove of an absent
// device ID is not an error.
type LinkStore interface {
	// LoadAll returns every stored link.
	LoadAll(ctx context.Context) ([]AutomationLink, error)

	// Upsert inserts or replaces the row for link.DeviceID.
	Upsert(ctx context.Context, link AutomationLink) error

	// Remove deletes the row for deviceID.
	Remove(ctx context.Context, deviceID string) error
}

// retryDelay is the pause between link store attempts.
const retryDelay = 50 * time.Millisecond

// withRetry runs fn up to 1+retries times and returns the last error.
func withRetry(ctx context.Context, retries int, fn func() error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("%w (retry cancelled: %w)", err, ctx.Err())
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
