package pipe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	p := New(1)
	ctx := context.Background()

	require.NoError(t, p.Send(ctx, Data{Kind: Text, Text: "hello"}))
	data, ok, err := p.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", data.Text)
}

func TestFilterDropsSilently(t *testing.T) {
	p := New(4, WithFilter(func(d Data) bool { return d.Text != "drop" }))
	ctx := context.Background()

	require.NoError(t, p.Send(ctx, Data{Kind: Text, Text: "drop"}))
	require.NoError(t, p.Send(ctx, Data{Kind: Text, Text: "keep"}))

	data, ok, err := p.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "keep", data.Text)
}

func TestTransformErrorIsTagged(t *testing.T) {
	p := New(1, WithTransform(func(d Data) (Data, error) {
		return Data{}, assertErr{}
	}))
	err := p.Send(context.Background(), Data{Kind: Text, Text: "x"})
	require.Error(t, err)
	assert.Equal(t, Failed, p.State())
}

type assertErr struct{}

func (assertErr) Error() string { return "transform failed" }

func TestCloseDrainsBufferedThenEndsStream(t *testing.T) {
	p := New(4)
	ctx := context.Background()

	require.NoError(t, p.Send(ctx, Data{Kind: Text, Text: "a"}))
	require.NoError(t, p.Send(ctx, Data{Kind: Text, Text: "b"}))
	require.NoError(t, p.Close())

	d1, ok1, err1 := p.Receive(ctx)
	require.NoError(t, err1)
	require.True(t, ok1)

	d2, ok2, err2 := p.Receive(ctx)
	require.NoError(t, err2)
	require.True(t, ok2)

	assert.ElementsMatch(t, []string{"a", "b"}, []string{d1.Text, d2.Text})

	_, ok3, err3 := p.Receive(ctx)
	require.NoError(t, err3)
	assert.False(t, ok3)
}

func TestSendAfterCloseFails(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Close())
	err := p.Send(context.Background(), Data{Kind: Text, Text: "x"})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	p := New(1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

// TestConcurrentSendClose exercises the Send/Close race that previously
// risked a send on a closed channel: many senders race a concurrent Close,
// and the pipe must neither panic nor deadlock.
func TestConcurrentSendClose(t *testing.T) {
	p := New(1)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_ = p.Send(ctx, Data{Kind: Text, Text: "x"})
		}
	}()

	go func() {
		for {
			_, _, err := p.Receive(ctx)
			if err != nil {
				return
			}
		}
	}()

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, p.Close())
	<-done
}

func TestThrottleLimitsRate(t *testing.T) {
	p := New(4, WithThrottle(20)) // 20/s -> 50ms min interval
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Send(ctx, Data{Kind: Empty}))
	require.NoError(t, p.Send(ctx, Data{Kind: Empty}))
	require.NoError(t, p.Send(ctx, Data{Kind: Empty}))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestSharedPipeBroadcastsToAllSubscribers(t *testing.T) {
	sp := NewShared(4)
	ctx := context.Background()

	sub1 := sp.Subscribe()
	sub2 := sp.Subscribe()

	require.NoError(t, sp.Send(ctx, Data{Kind: Text, Text: "v1"}))

	d1, _, ok1, err1 := sub1.Receive(ctx)
	require.NoError(t, err1)
	require.True(t, ok1)
	assert.Equal(t, "v1", d1.Text)

	d2, _, ok2, err2 := sub2.Receive(ctx)
	require.NoError(t, err2)
	require.True(t, ok2)
	assert.Equal(t, "v1", d2.Text)
}

func TestSharedPipeLaggedSubscriberDoesNotBlockProducer(t *testing.T) {
	sp := NewShared(1)
	ctx := context.Background()

	slow := sp.Subscribe()
	_ = slow

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, sp.Send(ctx, Data{Kind: Text, Text: "v"}))
	}
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 500*time.Millisecond, "producer must not block on a slow subscriber")

	require.Eventually(t, func() bool {
		_, lagged, ok, err := slow.Receive(ctx)
		return err == nil && ok && lagged > 0
	}, time.Second, 5*time.Millisecond)
}

func TestSharedPipeUnsubscribeClosesChannel(t *testing.T) {
	sp := NewShared(1)
	sub := sp.Subscribe()
	assert.Equal(t, 1, sp.SubscriberCount())

	sp.Unsubscribe(sub)
	assert.Equal(t, 0, sp.SubscriberCount())

	_, _, ok, err := sub.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSharedPipeCloseClosesAllSubscribers(t *testing.T) {
	sp := NewShared(1)
	sub := sp.Subscribe()

	require.NoError(t, sp.Close())

	require.Eventually(t, func() bool {
		_, _, ok, err := sub.Receive(context.Background())
		return err == nil && !ok
	}, time.Second, 5*time.Millisecond)
}
