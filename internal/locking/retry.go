package locking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TaxAccountKey(id snowflake.ID) string {
	return fmt.Sprintf("tax_account:%d", id)
}

func OwnerControlNumberKey(ownerID snowflake.ID) string {
	return fmt.Sprintf("owner:%d:control_number", ownerID)
}

// AcquireWithRetry makes up to attempts bounded acquisitions with a short
// jittered pause between them. It returns how long the caller waited in total.
func AcquireWithRetry(ctx context.Context, l Locker, key string, timeout time.Duration, attempts int) (func(), time.Duration, error) {
	if attempts < 1 {
		attempts = 1
	}
	start := time.Now()
	var err error
	for i := 0; i < attempts; i++ {
		var release func()
		release, err = l.Acquire(ctx, key, timeout)
		if err == nil {
			return release, time.Since(start), nil
		}
		if !errors.Is(err, ErrLockTimeout) {
			return nil, time.Since(start), err
		}
		if i < attempts-1 {
			pause := time.Duration(5+rand.IntN(20)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, time.Since(start), ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return nil, time.Since(start), err
}
