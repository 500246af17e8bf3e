package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Bounded per-source chunk queue.
 *
 * Description: The only structure shared between an ingest goroutine
 *		and the tick loop.  Single producer, single consumer.
 *		The producer never blocks: when the queue is full the
 *		incoming chunk is discarded (drop-newest), favoring
 *		continuity of the audio already buffered.  The consumer
 *		never blocks either; the mixer substitutes silence for
 *		a tick that finds the queue empty.
 *
 *---------------------------------------------------------------*/

import (
	"sync/atomic"
)

const DEFAULT_QUEUE_DEPTH = 20

type chunk_queue struct {
	ch      chan *AudioChunk
	dropped atomic.Uint64
}

func new_chunk_queue(depth int) *chunk_queue {
	if depth <= 0 {
		depth = DEFAULT_QUEUE_DEPTH
	}
	return &chunk_queue{ch: make(chan *AudioChunk, depth)}
}

// push publishes a chunk without ever blocking the producer.
// Returns false when the chunk was dropped because the queue is full.
func (q *chunk_queue) push(c *AudioChunk) bool {
	select {
	case q.ch <- c:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// try_pull takes the oldest chunk if one is available.
func (q *chunk_queue) try_pull() (*AudioChunk, bool) {
	select {
	case c := <-q.ch:
		return c, true
	default:
		return nil, false
	}
}

func (q *chunk_queue) depth() int {
	return len(q.ch)
}

func (q *chunk_queue) drop_count() uint64 {
	return q.dropped.Load()
}

// reset discards all buffered audio.  Used by the watchdog when a
// device is reopened so stale samples are not replayed.
func (q *chunk_queue) reset() {
	for {
		select {
		case <-q.ch:
		default:
			return
		}
	}
}
