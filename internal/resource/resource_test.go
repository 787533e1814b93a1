package resource

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type unordered struct{ Resource }

func (unordered) PreservesOrder() bool { return false }

type plain struct{ Resource }

func TestPreservesOrder(t *testing.T) {
	assert.True(t, PreservesOrder(plain{}))
	assert.False(t, PreservesOrder(unordered{}))
}

func TestRootLocks_SerializesSameRoot(t *testing.T) {
	locks := NewRootLocks()

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			release := locks.Lock("root")
			defer release()

			n := active.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}

			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestRootLocks_IndependentRoots(t *testing.T) {
	locks := NewRootLocks()
	release := locks.Lock("a")
	defer release()

	done := make(chan struct{})

	go func() {
		locks.Lock("b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock of another root must not block")
	}
}
