package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBus()
	var got []Signal
	cancel := b.Subscribe(SignalClick, func(s Signal) { got = append(got, s) })
	defer cancel()

	b.Publish(SignalClick)
	b.Publish(SignalScroll) // different class, not delivered

	assert.Equal(t, []Signal{SignalClick}, got)
}

func TestCancelIsIdempotent(t *testing.T) {
	b := NewBus()
	calls := 0
	cancel := b.Subscribe(SignalKeyPress, func(Signal) { calls++ })

	cancel()
	cancel()

	b.Publish(SignalKeyPress)
	assert.Zero(t, calls)
	assert.Zero(t, b.SubscriberCount(SignalKeyPress))
}

func TestIndependentSubscribers(t *testing.T) {
	b := NewBus()
	first, second := 0, 0
	cancelFirst := b.Subscribe(SignalScroll, func(Signal) { first++ })
	cancelSecond := b.Subscribe(SignalScroll, func(Signal) { second++ })
	defer cancelSecond()

	b.Publish(SignalScroll)
	cancelFirst()
	b.Publish(SignalScroll)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}
