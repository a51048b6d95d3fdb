package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(5 * time.Second)
	assert.Equal(t, epoch.Add(5*time.Second), c.Now())
}

func TestFakeAfterFuncFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	called := 0
	c.AfterFunc(2*time.Second, func() { called++ })

	c.Advance(time.Second)
	assert.Equal(t, 0, called)

	c.Advance(time.Second)
	assert.Equal(t, 1, called)

	c.Advance(time.Hour)
	assert.Equal(t, 1, called, "one-shot timer must not repeat")
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(epoch)
	called := false
	timer := c.AfterFunc(time.Second, func() { called = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(time.Minute)
	assert.False(t, called)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeAfterFuncNonPositiveRunsImmediately(t *testing.T) {
	c := Fake(epoch)
	called := false
	c.AfterFunc(0, func() { called = true })
	assert.True(t, called)
}

func TestFakeCallbacksFireInDeadlineOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFakeTickerDropsLateTicks(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	select {
	case <-ticker.C:
		t.Fatal("ticker fired before first interval")
	default:
	}

	c.Advance(5 * time.Second)

	select {
	case <-ticker.C:
	default:
		t.Fatal("expected a buffered tick")
	}
	select {
	case <-ticker.C:
		t.Fatal("late ticks should be dropped")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker stopped ticking")
	}
}

func TestFakeTickerPanicsOnNonPositive(t *testing.T) {
	c := Fake(epoch)
	assert.Panics(t, func() { c.NewTicker(0) })
}

func TestClocksImplementInterface(t *testing.T) {
	var _ Clock = (*FakeClock)(nil)
	var _ Clock = Real()
}
