package presence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerIdempotence(t *testing.T) {
	tr := New()

	require.True(t, tr.SetOnline(3))
	require.False(t, tr.SetOnline(3))
	require.True(t, tr.SetOnline(1))
	require.Equal(t, []int64{1, 3}, tr.Online())

	require.False(t, tr.SetOffline(99))
	require.True(t, tr.SetOffline(3))
	require.False(t, tr.SetOffline(3))

	require.False(t, tr.IsOnline(3))
	require.True(t, tr.IsOnline(1))
	require.Equal(t, 1, tr.Len())
}
