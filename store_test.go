package loop

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSubscribeDeliversCurrentFirst(t *testing.T) {
	st := newStore(10)

	var got []int
	st.Subscribe(func(v int) { got = append(got, v) })
	assert.Equal(t, []int{10}, got)

	st.set(11)
	st.set(12)
	assert.Equal(t, []int{10, 11, 12}, got)
}

func TestStoreCurrentTracksCommits(t *testing.T) {
	st := newStore("a")
	assert.Equal(t, "a", st.Current())
	st.set("b")
	assert.Equal(t, "b", st.Current())
}

func TestStoreLateSubscriberSkipsHistory(t *testing.T) {
	st := newStore(0)
	st.set(1)
	st.set(2)
	st.set(3)

	var got []int
	st.Subscribe(func(v int) { got = append(got, v) })
	st.set(4)

	// Current value at subscribe time, then subsequent commits. Never
	// anything older.
	assert.Equal(t, []int{3, 4}, got)
}

func TestStoreMultipleObserversSameOrder(t *testing.T) {
	st := newStore(0)

	var a, b []int
	st.Subscribe(func(v int) { a = append(a, v) })
	st.Subscribe(func(v int) { b = append(b, v) })

	for i := 1; i <= 5; i++ {
		st.set(i)
	}

	want := []int{0, 1, 2, 3, 4, 5}
	assert.Equal(t, want, a)
	assert.Equal(t, want, b)
}

func TestStoreCancelStopsDelivery(t *testing.T) {
	st := newStore(0)

	var got []int
	sub := st.Subscribe(func(v int) { got = append(got, v) })
	st.set(1)
	sub.Cancel()
	st.set(2)

	assert.Equal(t, []int{0, 1}, got)

	// Idempotent.
	sub.Cancel()
}

func TestStoreConcurrentSubscribeSeesGaplessSuffix(t *testing.T) {
	st := newStore(0)

	const commits = 200
	start := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for i := 1; i <= commits; i++ {
			st.set(i)
		}
	}()

	type log struct {
		mu  sync.Mutex
		got []int
	}
	logs := make([]*log, 8)
	for i := range logs {
		l := &log{}
		logs[i] = l
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			st.Subscribe(func(v int) {
				l.mu.Lock()
				l.got = append(l.got, v)
				l.mu.Unlock()
			})
		}()
	}

	close(start)
	wg.Wait()

	for _, l := range logs {
		require.NotEmpty(t, l.got)
		// Each observer sees a strictly increasing, gap-free suffix of the
		// commit history ending at the final value.
		for i := 1; i < len(l.got); i++ {
			require.Equal(t, l.got[i-1]+1, l.got[i],
				"observer log has a gap or reordering: %v", l.got)
		}
		require.Equal(t, commits, l.got[len(l.got)-1])
	}
}
