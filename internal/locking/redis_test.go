package locking

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedRedis answers SET NX and the release script in process so the
// locker runs without a server.
type scriptedRedis struct {
	releases atomic.Int32
}

func (h *scriptedRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *scriptedRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		switch c := cmd.(type) {
		case *redis.BoolCmd:
			c.SetVal(true)
			return nil
		case *redis.Cmd:
			h.releases.Add(1)
			c.SetVal(int64(1))
			return nil
		}
		return next(ctx, cmd)
	}
}

func (h *scriptedRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisLockerReleaseRunsOnce(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })
	hook := &scriptedRedis{}
	client.AddHook(hook)

	locker := NewRedisLocker(client, zap.NewNop())
	release, err := locker.Acquire(context.Background(), TaxAccountKey(7), time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release()
		}()
	}
	wg.Wait()
	release()

	require.EqualValues(t, 1, hook.releases.Load())
}
