package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeBlocksUntilFirstPublish(t *testing.T) {
	r := New[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Consume(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan int, 1)
	go func() {
		v, err := r.Consume(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	r.Publish(7)

	select {
	case v := <-got:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after Publish")
	}
}

func TestLatestWins(t *testing.T) {
	r := New[int]()
	for i := 1; i <= 5; i++ {
		r.Publish(i)
	}

	v, err := r.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	stats := r.Stats()
	assert.Equal(t, uint64(5), stats.Published)
	assert.Equal(t, uint64(4), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Consumed)
}

func TestConsumeRepeatsLast(t *testing.T) {
	r := New[string]()
	r.Publish("a")

	for i := 0; i < 3; i++ {
		v, err := r.Consume(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a", v)
	}

	r.Publish("b")
	v, err := r.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	assert.Equal(t, uint64(0), r.Stats().Dropped)
}

func TestPublishNeverBlocks(t *testing.T) {
	r := New[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 10000; i++ {
			r.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a consumer")
	}

	v, err := r.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9999, v)
}

func TestConcurrentProducerConsumer(t *testing.T) {
	r := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const n = 2000
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			r.Publish(i)
		}
	}()

	// Values seen by a consumer never go backwards
	for c := 0; c < 2; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := 0
			for {
				v, err := r.Consume(ctx)
				if err != nil {
					return
				}
				if v < last {
					t.Errorf("consumer saw %d after %d", v, last)
					return
				}
				last = v
				if v == n {
					return
				}
			}
		}()
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("consumers did not observe the final value")
	}

	stats := r.Stats()
	assert.Equal(t, uint64(n), stats.Published)
	assert.LessOrEqual(t, stats.Dropped, stats.Published)
}
