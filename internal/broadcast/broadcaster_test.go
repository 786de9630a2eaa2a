// ABOUTME: Tests for the synchronous fan-out broadcaster
// ABOUTME: Covers ordering, unsubscribe semantics, close, and concurrent publishing

package broadcast

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SingleSubscriberReceivesValue(t *testing.T) {
	b := New[string](nil)
	defer b.Close()

	var got []string
	b.Subscribe(func(v string) { got = append(got, v) })

	b.Publish("a")
	b.Publish("b")

	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBroadcaster_SubscribersCalledInSubscriptionOrder(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	var order []string
	b.Subscribe(func(int) { order = append(order, "first") })
	b.Subscribe(func(int) { order = append(order, "second") })
	b.Subscribe(func(int) { order = append(order, "third") })

	b.Publish(1)

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	var count int
	sub := b.Subscribe(func(int) { count++ })

	b.Publish(1)
	sub.Unsubscribe()
	b.Publish(2)
	sub.Unsubscribe() // idempotent

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.Len())
}

func TestBroadcaster_UnsubscribeFromCallback(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	var sub *Subscription
	var count int
	sub = b.Subscribe(func(int) {
		count++
		sub.Unsubscribe()
	})

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, 1, count)
}

func TestBroadcaster_UnsubscribeDuringFanOutSkipsLaterSubscriber(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	var second *Subscription
	var secondCalls int
	b.Subscribe(func(int) { second.Unsubscribe() })
	second = b.Subscribe(func(int) { secondCalls++ })

	b.Publish(1)

	assert.Equal(t, 0, secondCalls, "subscriber unsubscribed mid fan-out must not be called")
}

func TestBroadcaster_CloseDropsSubscribers(t *testing.T) {
	b := New[int](nil)

	var count int
	sub := b.Subscribe(func(int) { count++ })

	b.Close()
	b.Publish(1)
	b.Close() // idempotent

	assert.Equal(t, 0, count)
	assert.Equal(t, 0, b.Len())

	// Unsubscribing after close is harmless
	sub.Unsubscribe()
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := New[int](nil)
	b.Close()

	var count int
	sub := b.Subscribe(func(int) { count++ })
	require.NotNil(t, sub)
	b.Publish(1)

	assert.Equal(t, 0, count)
}

func TestBroadcaster_ConcurrentPublish(t *testing.T) {
	b := New[int](nil)
	defer b.Close()

	var total atomic.Int64
	for range 5 {
		b.Subscribe(func(v int) { total.Add(int64(v)) })
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				b.Publish(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5*20*50), total.Load())
}
