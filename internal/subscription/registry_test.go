package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-sync/internal/core"
	"github.com/vovakirdan/wirechat-sync/internal/proto"
)

type recordingSender struct {
	frames []proto.Frame
	err    error
}

func (s *recordingSender) Send(_ context.Context, frame proto.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, frame)
	return nil
}

func TestSubscribeAllIsOneFrameAndIdempotent(t *testing.T) {
	sender := &recordingSender{}
	reg := NewRegistry(sender, nil)
	ctx := context.Background()

	require.NoError(t, reg.SubscribeAll(ctx, []int64{3, 1, 2, 3}))
	require.NoError(t, reg.SubscribeAll(ctx, []int64{3, 1, 2}))

	require.Len(t, sender.frames, 2)
	require.Equal(t, proto.OutboundTypeSubscribeAll, sender.frames[0].Type)
	require.Equal(t, []int64{3, 1, 2}, sender.frames[0].ChatIDs)
	require.Equal(t, []int64{1, 2, 3}, reg.Snapshot())
}

func TestUnsubscribeDropsFromDesiredSet(t *testing.T) {
	sender := &recordingSender{}
	reg := NewRegistry(sender, nil)
	ctx := context.Background()

	require.NoError(t, reg.Subscribe(ctx, 1))
	require.NoError(t, reg.Subscribe(ctx, 2))
	require.NoError(t, reg.Unsubscribe(ctx, 1))

	require.False(t, reg.IsSubscribed(1))
	require.Equal(t, []int64{2}, reg.Resync())
	require.Equal(t, proto.Unsubscribe(1), sender.frames[len(sender.frames)-1])

	// unknown ids produce no traffic
	before := len(sender.frames)
	require.NoError(t, reg.Unsubscribe(ctx, 42))
	require.Len(t, sender.frames, before)
}

func TestOfflineSubscribeIsDeferred(t *testing.T) {
	sender := &recordingSender{err: core.ErrNotConnected}
	reg := NewRegistry(sender, nil)

	require.NoError(t, reg.Subscribe(context.Background(), 5))
	require.Equal(t, []int64{5}, reg.Snapshot())
}

func TestSendErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry(&recordingSender{err: boom}, nil)

	err := reg.Subscribe(context.Background(), 5)
	require.ErrorIs(t, err, boom)
	require.True(t, reg.IsSubscribed(5))
}

func TestResyncDiscardsStaleAcks(t *testing.T) {
	reg := NewRegistry(nil, nil)
	ctx := context.Background()

	require.NoError(t, reg.SubscribeAll(ctx, []int64{1, 2}))
	reg.Ack(1)
	require.Equal(t, []int64{2}, reg.Pending())

	require.Equal(t, []int64{1, 2}, reg.Resync())
	require.Equal(t, []int64{1, 2}, reg.Pending())

	reg.AckAll(2)
	require.Empty(t, reg.Pending())
}
