package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPool_GetPut(t *testing.T) {
	require := require.New(t)

	timer1 := GetTimer(time.Second)
	require.NotNil(timer1)
	PutTimer(timer1)

	timer2 := GetTimer(20 * time.Millisecond)
	require.NotNil(timer2)

	select {
	case <-timer2.C:
	case <-time.After(time.Second):
		t.Fatal("pooled timer did not fire")
	}
	PutTimer(timer2)
}

func TestTimerPool_ReusedTimerHasNoStaleTick(t *testing.T) {
	timer := GetTimer(time.Millisecond)
	time.Sleep(10 * time.Millisecond) // let it fire without reading C
	PutTimer(timer)

	begin := time.Now()
	timer = GetTimer(100 * time.Millisecond)
	defer PutTimer(timer)

	<-timer.C
	require.GreaterOrEqual(t, time.Since(begin), 90*time.Millisecond)
}

func TestSleep(t *testing.T) {
	require := require.New(t)

	begin := time.Now()
	require.NoError(Sleep(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(time.Since(begin), 20*time.Millisecond)

	require.NoError(Sleep(context.Background(), 0))
}

func TestSleep_Cancelled(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	begin := time.Now()
	err := Sleep(ctx, 10*time.Second)
	require.ErrorIs(err, context.Canceled)
	require.Less(time.Since(begin), 5*time.Second)

	require.ErrorIs(Sleep(ctx, 0), context.Canceled)
}

func TestSleep_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Sleep(context.Background(), 5*time.Millisecond)
		}()
	}
	wg.Wait()
}
