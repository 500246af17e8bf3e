package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Device ingest loops.
 *
 * Description: One goroutine per hardware or network audio endpoint.
 *		Each loop blocks on the device for a fixed period (a
 *		configured multiple of the chunk size), slices the
 *		period into chunks and pushes them into the source's
 *		bounded queue.  A stalled device therefore stalls only
 *		its own goroutine, never the tick loop.
 *
 *		Before the tick loop is allowed to start draining a
 *		freshly (re)started source, a pre-fill phase waits for
 *		the queue to reach a target depth.  The producer's
 *		delivery clock and the mixer's tick clock are
 *		independent and will drift; the pre-fill cushion is
 *		what the drift drains or fills before anyone hears a
 *		gap.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DEFAULT_BUFFER_MULT  = 4 // period = 4 chunks = 200 ms
	DEFAULT_PREFILL_MULT = 2 // pre-fill target = 2 * buffer mult

	// Pause after a transient read failure before trying again.
	INGEST_RETRY_DELAY = 10 * time.Millisecond

	PREFILL_DEADLINE = 3 * time.Second
)

// frame_reader is a hardware or network audio endpoint.  read_period
// blocks until one period of samples is available.  reopen tears the
// handle down and brings it back, for watchdog recovery.  reopen is
// called from the watchdog goroutine while the ingest loop may be
// inside read_period, so implementations serialize the two internally.
type frame_reader interface {
	read_period() ([]int16, error)
	reopen() error
	close() error
}

type ingest struct {
	src       *Source
	reader    frame_reader
	chunkSize int
	seq       uint64
	prefill   int          // queue depth required before the source is ready
	filling   atomic.Int64 // unix nanos when the current pre-fill phase began
}

func new_ingest(src *Source, reader frame_reader, chunkSize int, prefill int) *ingest {
	var in = &ingest{src: src, reader: reader, chunkSize: chunkSize, prefill: prefill}
	in.filling.Store(time.Now().UnixNano())
	return in
}

/*-------------------------------------------------------------------
 *
 * Name:	ingest.run
 *
 * Purpose:	The per-device read loop.
 *
 * Description:	Runs until the context is cancelled or the source is
 *		permanently disabled.  Transient read errors sleep
 *		briefly and retry; the failure count is surfaced to
 *		the watchdog through DeviceHealth rather than being
 *		raised anywhere.
 *
 *--------------------------------------------------------------------*/

func (in *ingest) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !in.src.Enabled() {
			// Watchdog gave up on this device.  Park.
			return
		}

		var period, err = in.reader.read_period()
		if err != nil {
			in.src.health.note_failure()
			select {
			case <-ctx.Done():
				return
			case <-time.After(INGEST_RETRY_DELAY):
			}
			continue
		}

		in.src.health.note_good_read()
		in.publish(period)

		if !in.src.ready.Load() {
			if in.src.queue.depth() >= in.prefill {
				in.src.ready.Store(true)
				log.Debug("ingest pre-fill complete", "source", in.src.Name, "depth", in.src.queue.depth())
			} else if time.Since(time.Unix(0, in.filling.Load())) > PREFILL_DEADLINE {
				// Bounded wait: a device trickling slower than
				// real time must not keep the source muted forever.
				in.src.ready.Store(true)
				log.Warn("ingest pre-fill deadline passed, starting anyway",
					"source", in.src.Name, "depth", in.src.queue.depth(), "want", in.prefill)
			}
		}
	}
}

// publish slices one period into chunk-sized units and pushes them.
// A short tail (device returned less than a whole period) is padded
// with silence rather than carried across reads; it only happens on
// restart boundaries.
func (in *ingest) publish(period []int16) {
	var now = time.Now()

	for off := 0; off < len(period); off += in.chunkSize {
		var end = off + in.chunkSize
		var pcm []int16
		if end <= len(period) {
			pcm = period[off:end]
		} else {
			pcm = make([]int16, in.chunkSize)
			copy(pcm, period[off:])
		}

		in.seq++
		if !in.src.queue.push(new_chunk(in.seq, now, pcm)) {
			log.Debug("ingest queue full, chunk dropped", "source", in.src.Name)
		}
	}
}

// restart is called by the watchdog with the ingest loop parked on
// read errors.  It reopens the device, flushes stale audio and
// re-arms the pre-fill gate.
func (in *ingest) restart() error {
	in.src.ready.Store(false)
	in.filling.Store(time.Now().UnixNano())
	in.src.queue.reset()
	if in.src.det != nil {
		in.src.det.Reset()
	}
	if in.src.dsp != nil {
		in.src.dsp.Reset()
	}
	return in.reader.reopen()
}
