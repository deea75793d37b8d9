package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator() (*Aggregator, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(3*time.Second, 1)
	a.now = clock.now
	return a, clock
}

func TestTypingEntryExpiresAfterWindow(t *testing.T) {
	a, clock := newTestAggregator()

	_, ok := a.Touch(10, 2)
	require.True(t, ok)
	require.Equal(t, []int64{2}, a.Active(10))

	clock.advance(2999 * time.Millisecond)
	require.Equal(t, []int64{2}, a.Active(10))
	require.False(t, a.Expire(10, 2))

	clock.advance(time.Millisecond)
	require.Empty(t, a.Active(10), "stale entry must not outlive its window even before the timer fires")
	require.True(t, a.Expire(10, 2))
}

func TestTypingRefreshExtendsWindow(t *testing.T) {
	a, clock := newTestAggregator()

	a.Touch(10, 2)
	clock.advance(2 * time.Second)
	a.Touch(10, 2)
	clock.advance(2 * time.Second)

	require.False(t, a.Expire(10, 2), "the first timer firing must not clear a refreshed entry")
	require.Equal(t, []int64{2}, a.Active(10))
}

func TestTypingIgnoresLocalActor(t *testing.T) {
	a, _ := newTestAggregator()

	_, ok := a.Touch(10, 1)
	require.False(t, ok)
	require.Empty(t, a.Active(10))
}

func TestTypingPerChat(t *testing.T) {
	a, _ := newTestAggregator()

	a.Touch(10, 2)
	a.Touch(10, 3)
	a.Touch(11, 4)

	require.Equal(t, []int64{2, 3}, a.Active(10))
	require.Equal(t, []int64{4}, a.Active(11))

	require.True(t, a.Stop(10, 3))
	require.False(t, a.Stop(10, 3))
	a.ClearChat(11)

	require.Equal(t, []int64{2}, a.Active(10))
	require.Empty(t, a.Active(11))
}
