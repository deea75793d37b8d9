package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Event("typing")
	m.UnknownEvent()
	m.Dropped("unsubscribed")
	m.Reconnect()
	m.SetConnected(true)
	m.Fetch(false)
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Event("new_message")
	m.Event("new_message")
	m.Reconnect()
	m.SetConnected(true)

	require.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("new_message")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.reconnects))
	require.Equal(t, float64(1), testutil.ToFloat64(m.connected))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `chatsync_events_total{type="new_message"} 2`), string(body))
}
