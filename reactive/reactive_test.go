package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactiveCycle(t *testing.T) {
	obs := New[int](1)
	sub := obs.Subscribe()
	defer sub.Cancel()
	assert.Equal(t, 1, obs.Publish(1))
	v := <-sub.Channel()
	assert.Equal(t, 1, v)
}

func TestReactiveCycleMultiple(t *testing.T) {
	obs := New[int](2)
	sub := obs.Subscribe()
	defer sub.Cancel()
	obs.Publish(1)
	obs.Publish(2)
	v := <-sub.Channel()
	assert.Equal(t, 1, v)
	v = <-sub.Channel()
	assert.Equal(t, 2, v)
}

func TestReactiveSlowSubscriberDoesNotBlock(t *testing.T) {
	obs := New[int](1)
	slow := obs.Subscribe()
	defer slow.Cancel()
	fast := obs.Subscribe()
	defer fast.Cancel()

	assert.Equal(t, 2, obs.Publish(1))
	v := <-fast.Channel()
	assert.Equal(t, 1, v)

	assert.Equal(t, 1, obs.Publish(2))
	v = <-fast.Channel()
	assert.Equal(t, 2, v)

	v = <-slow.Channel()
	assert.Equal(t, 1, v)
}

func TestReactiveMultipleSubscribers(t *testing.T) {
	obs := New[int](2)
	sub1 := obs.Subscribe()
	defer sub1.Cancel()
	sub2 := obs.Subscribe()
	defer sub2.Cancel()
	obs.Publish(1)
	obs.Publish(2)
	for _, s := range []*Subscriber[int]{sub1, sub2} {
		v := <-s.Channel()
		assert.Equal(t, 1, v)
		v = <-s.Channel()
		assert.Equal(t, 2, v)
	}
}

func TestReactiveCancel(t *testing.T) {
	obs := New[int](2)
	sub1 := obs.Subscribe()
	sub2 := obs.Subscribe()
	defer sub2.Cancel()
	sub1.Cancel()
	sub1.Cancel()

	assert.Equal(t, 1, obs.Publish(1))
	v := <-sub2.Channel()
	assert.Equal(t, 1, v)

	_, ok := <-sub1.Channel()
	assert.False(t, ok)
}

func FuzzTestDataIntegrity(f *testing.F) {
	obs := New[string](100)

	sub1 := obs.Subscribe()
	defer sub1.Cancel()
	sub2 := obs.Subscribe()
	defer sub2.Cancel()

	for _, v := range []string{"a", "b", "c", "1", "12a", "p45", "qwerty"} {
		f.Add(v)
	}

	f.Fuzz(func(t *testing.T, a string) {
		obs.Publish(a)
		v := <-sub1.Channel()
		assert.Equal(t, a, v)
		v = <-sub2.Channel()
		assert.Equal(t, a, v)
	})
}
