package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceFiresTicker(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)
	ticker := c.NewTicker(time.Minute)

	c.Advance(30 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker 不应该提前触发")
	default:
	}

	c.Advance(30 * time.Second)
	select {
	case tick := <-ticker.C():
		assert.Equal(t, start.Add(time.Minute), tick)
	default:
		t.Fatal("ticker 应该触发")
	}

	assert.Equal(t, start.Add(time.Minute), c.Now())
}

func TestFakeStoppedTickerIsSilent(t *testing.T) {
	c := NewFake(time.Now())
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(time.Minute)

	select {
	case <-ticker.C():
		t.Fatal("已停止的 ticker 不应该触发")
	default:
	}
}

func TestRealClock(t *testing.T) {
	c := New()
	require.WithinDuration(t, time.Now(), c.Now(), time.Second)

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("真实 ticker 没有触发")
	}
}
