package notify_test

import (
	"testing"
	"time"

	"github.com/raphaelgruber/mnemo-go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestBusFanOut(t *testing.T) {
	bus := notify.NewBus[int]()
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(7)

	assert.Equal(t, 7, receive(t, a))
	assert.Equal(t, 7, receive(t, b))
}

func TestBusReplaysLatestToNewSubscriber(t *testing.T) {
	bus := notify.NewBus[string]()
	bus.Publish("connected")
	bus.Publish("disconnected")

	ch, cancel := bus.Subscribe()
	defer cancel()

	assert.Equal(t, "disconnected", receive(t, ch))
	latest, ok := bus.Latest()
	require.True(t, ok)
	assert.Equal(t, "disconnected", latest)
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := notify.NewBus[int]()
	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestBusCancelAndClose(t *testing.T) {
	bus := notify.NewBus[int]()
	ch, cancel := bus.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok, "cancelled channel should be closed")

	other, _ := bus.Subscribe()
	bus.Close()
	_, ok = <-other
	assert.False(t, ok, "Close should close subscribers")

	bus.Publish(1)
	late, _ := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestToastsNotify(t *testing.T) {
	toasts := notify.NewToasts()
	ch, cancel := toasts.Subscribe()
	defer cancel()

	toasts.Notify("Backend unreachable")

	toast := receive(t, ch)
	assert.Equal(t, "Backend unreachable", toast.Message)
	assert.NotEmpty(t, toast.ID)
	assert.False(t, toast.At.IsZero())
}
