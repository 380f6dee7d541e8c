package loop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockMonotonic(t *testing.T) {
	var c clock
	assert.Equal(t, int64(0), c.current())
	assert.Equal(t, int64(1), c.next())
	assert.Equal(t, int64(2), c.next())
	assert.Equal(t, int64(2), c.current())
}

func TestClockConcurrentUniqueness(t *testing.T) {
	var c clock
	const n = 1000

	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/10; j++ {
				seen <- c.next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{}, n)
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, n)
	assert.Equal(t, int64(n), c.current())
}
