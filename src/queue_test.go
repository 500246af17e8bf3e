package basenji

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestQueuePushPull verifies FIFO order through the bounded queue.
func TestQueuePushPull(t *testing.T) {
	var q = new_chunk_queue(4)

	for i := uint64(1); i <= 3; i++ {
		require.True(t, q.push(new_chunk(i, time.Now(), []int16{int16(i)})))
	}
	assert.Equal(t, 3, q.depth())

	for i := uint64(1); i <= 3; i++ {
		var c, ok = q.try_pull()
		require.True(t, ok)
		assert.Equal(t, i, c.Seq)
	}

	var _, ok = q.try_pull()
	assert.False(t, ok, "empty queue should not produce")
}

// TestQueueOverflowDropsNewest verifies the drop policy: a full queue
// rejects the incoming chunk and keeps what it already buffered.
func TestQueueOverflowDropsNewest(t *testing.T) {
	var q = new_chunk_queue(2)

	require.True(t, q.push(new_chunk(1, time.Now(), nil)))
	require.True(t, q.push(new_chunk(2, time.Now(), nil)))
	require.False(t, q.push(new_chunk(3, time.Now(), nil)), "overflow push should report a drop")

	assert.Equal(t, uint64(1), q.drop_count())

	var c, ok = q.try_pull()
	require.True(t, ok)
	assert.Equal(t, uint64(1), c.Seq, "oldest chunk should survive the overflow")
}

// TestQueueReset verifies reset discards everything buffered.
func TestQueueReset(t *testing.T) {
	var q = new_chunk_queue(4)
	q.push(new_chunk(1, time.Now(), nil))
	q.push(new_chunk(2, time.Now(), nil))

	q.reset()
	assert.Equal(t, 0, q.depth())

	var _, ok = q.try_pull()
	assert.False(t, ok)
}

// TestQueueDepthNeverExceedsCapacity exercises random interleavings of
// pushes and pulls; the depth must stay within the configured bound
// and push must never block (it either succeeds or reports a drop).
func TestQueueDepthNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var depth = rapid.IntRange(1, 8).Draw(t, "depth")
		var q = new_chunk_queue(depth)
		var ops = rapid.SliceOfN(rapid.Bool(), 1, 100).Draw(t, "ops")

		var seq uint64
		for _, isPush := range ops {
			if isPush {
				seq++
				q.push(new_chunk(seq, time.Now(), nil))
			} else {
				q.try_pull()
			}
			if q.depth() > depth {
				t.Fatalf("depth %d exceeds capacity %d", q.depth(), depth)
			}
		}
	})
}
