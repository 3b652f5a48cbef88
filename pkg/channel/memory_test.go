package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SendReceiveDelete(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, []byte("one")))
	require.NoError(t, q.Send(ctx, []byte("two")))

	deliveries, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "one", string(deliveries[0].Body))
	assert.Equal(t, 1, deliveries[0].ReceiveCount)

	for _, d := range deliveries {
		require.NoError(t, q.Delete(ctx, d.Handle))
	}
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueue_EmptyReceiveIsNotAnError(t *testing.T) {
	q := NewMemoryQueue()

	start := time.Now()
	deliveries, err := q.Receive(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond, "should long-poll for the full wait")
}

func TestMemoryQueue_ReceiveHonorsWaitBound(t *testing.T) {
	q := NewMemoryQueue()

	// A wait below the poll interval truncates the final sleep instead of
	// overshooting the deadline.
	start := time.Now()
	deliveries, err := q.Receive(context.Background(), 1, 5*time.Millisecond)
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Empty(t, deliveries)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	assert.Less(t, elapsed, 50*time.Millisecond, "receive blocked past its wait bound")
}

func TestMemoryQueue_VisibilityRedelivery(t *testing.T) {
	q := NewMemoryQueue(WithVisibilityTimeout(30 * time.Millisecond))
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte("msg")))

	first, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Invisible inside the window.
	hidden, err := q.Receive(ctx, 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, hidden)

	// Redelivered after the window with a fresh handle and a bumped count.
	second, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 2, second[0].ReceiveCount)
	assert.NotEqual(t, first[0].Handle, second[0].Handle)
}

func TestMemoryQueue_DeleteIsIdempotent(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte("msg")))

	deliveries, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	require.NoError(t, q.Delete(ctx, deliveries[0].Handle))
	require.NoError(t, q.Delete(ctx, deliveries[0].Handle))
	require.NoError(t, q.Delete(ctx, "never-issued"))
}

func TestMemoryQueue_DeadLetterAfterMaxReceives(t *testing.T) {
	dlq := NewMemoryQueue()
	q := NewMemoryQueue(
		WithVisibilityTimeout(time.Millisecond),
		WithMaxReceiveCount(2),
		WithDeadLetter(dlq),
	)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte("poison")))

	// Receive without deleting until the redrive policy kicks in.
	for i := 0; i < 2; i++ {
		deliveries, err := q.Receive(ctx, 1, time.Second)
		require.NoError(t, err)
		require.Len(t, deliveries, 1)
		time.Sleep(5 * time.Millisecond)
	}

	deliveries, err := q.Receive(ctx, 1, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, deliveries, "message should have moved to the DLQ")
	assert.Equal(t, 0, q.Len())

	dead, err := dlq.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "poison", string(dead[0].Body))
}

func TestMemoryQueue_MaxBatch(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Send(ctx, []byte{byte('a' + i)}))
	}

	deliveries, err := q.Receive(ctx, 3, time.Second)
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)
}
