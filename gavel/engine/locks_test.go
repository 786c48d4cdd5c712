package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestLotLocksAcquireRelease(t *testing.T) {
	locks := newLotLocks()
	ctx := context.Background()

	release, err := locks.acquire(ctx, 1)
	assert.Nil(t, err)
	release()

	// Released section can be taken again.
	release, err = locks.acquire(ctx, 1)
	assert.Nil(t, err)
	release()
}

func TestLotLocksTimeout(t *testing.T) {
	locks := newLotLocks()

	release, err := locks.acquire(context.Background(), 1)
	assert.Nil(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, 1)
	check.True(t, errors.Is(err, ErrLockTimeout))
}

func TestLotLocksIndependentLots(t *testing.T) {
	locks := newLotLocks()

	release, err := locks.acquire(context.Background(), 1)
	assert.Nil(t, err)
	defer release()

	// A held section on one lot never blocks another.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	release2, err := locks.acquire(ctx, 2)
	assert.Nil(t, err)
	release2()
}

func TestLotLocksSerialize(t *testing.T) {
	locks := newLotLocks()
	ctx := context.Background()

	var mu sync.Mutex
	var inside int
	var maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.acquire(ctx, 7)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	check.Equal(t, 1, maxInside)
}
