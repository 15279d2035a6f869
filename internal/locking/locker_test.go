package locking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "tax_account:1", time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, maxInside)
	require.Empty(t, locker.slots)
}

func TestLocalLockerDifferentKeysDoNotBlock(t *testing.T) {
	locker := NewLocalLocker()
	releaseA, err := locker.Acquire(context.Background(), "tax_account:1", time.Second)
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(context.Background(), "tax_account:2", 10*time.Millisecond)
	require.NoError(t, err)
	releaseB()
}

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)

	_, err = locker.Acquire(context.Background(), "k", 10*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)

	release()
	release()

	again, err := locker.Acquire(context.Background(), "k", 10*time.Millisecond)
	require.NoError(t, err)
	again()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k", time.Second)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "k", time.Second)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcquireWithRetryGivesUpAfterAttempts(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), TaxAccountKey(1), time.Second)
	require.NoError(t, err)
	defer release()

	_, waited, err := AcquireWithRetry(context.Background(), locker, TaxAccountKey(1), 5*time.Millisecond, 3)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.GreaterOrEqual(t, waited, 15*time.Millisecond)
}

func TestAcquireWithRetrySucceedsOnceFreed(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), OwnerControlNumberKey(9), time.Second)
	require.NoError(t, err)
	go func() {
		time.Sleep(10 * time.Millisecond)
		release()
	}()

	again, _, err := AcquireWithRetry(context.Background(), locker, OwnerControlNumberKey(9), 5*time.Millisecond, 20)
	require.NoError(t, err)
	again()
}
