package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Audio sources and the source registry.
 *
 * Description: A Source is a named audio producer with a priority,
 *		routing flags, and an activity detector.  The variant
 *		set is fixed: Mumble voice, up to two SDR receivers,
 *		the remote audio link, an EchoLink receiver, the
 *		announcement input, file playback, and the Morse
 *		generator.  Hardware and network variants are fed by a
 *		background ingest goroutine through a bounded queue;
 *		synthetic variants (Morse, playback) produce chunks on
 *		demand from an internal buffer.  Either way the mixer
 *		sees one uniform capability: try to pull one chunk.
 *
 *---------------------------------------------------------------*/

import (
	"sync/atomic"
	"time"
)

type SourceClass int

const (
	CLASS_MUMBLE SourceClass = iota
	CLASS_SDR
	CLASS_LINK
	CLASS_ECHOLINK
	CLASS_ANNOUNCE
	CLASS_FILE
	CLASS_MORSE
)

func (c SourceClass) String() string {
	switch c {
	case CLASS_MUMBLE:
		return "mumble"
	case CLASS_SDR:
		return "sdr"
	case CLASS_LINK:
		return "link"
	case CLASS_ECHOLINK:
		return "echolink"
	case CLASS_ANNOUNCE:
		return "announce"
	case CLASS_FILE:
		return "file"
	case CLASS_MORSE:
		return "morse"
	}
	return "?"
}

// chunk_generator is the pull side of a synthetic source.  next_chunk
// returns up to n samples; ok is false when nothing is pending.
type chunk_generator interface {
	next_chunk(n int) (pcm []int16, ok bool)
	pending() bool
}

type Source struct {
	Name     string
	Class    SourceClass
	Priority int  // lower value wins arbitration
	Duck     bool // true: silence lower priority sources while active
	Volume   float64
	ToMumble bool // may feed the Mumble output
	ToRadio  bool // may feed the radio output

	// Synthetic sources bypass detection: they are active exactly
	// while they have material queued.
	BypassDetection bool

	queue *chunk_queue
	gen   chunk_generator
	det   *Detector
	dsp   *Pipeline

	enabled atomic.Bool // cleared by watchdog exhaustion or operator command
	ready   atomic.Bool // set once ingest pre-fill has completed

	health *DeviceHealth

	// Scheduler-thread state, never touched elsewhere.
	lastActivity time.Time
	lastLevel    float64
}

func (s *Source) Enabled() bool {
	return s.enabled.Load()
}

func (s *Source) set_enabled(on bool) {
	s.enabled.Store(on)
}

// try_pull takes at most one chunk.  Called only from the tick loop.
func (s *Source) try_pull(n int) (*AudioChunk, bool) {
	if s.gen != nil {
		var pcm, ok = s.gen.next_chunk(n)
		if !ok {
			return nil, false
		}
		return new_chunk(0, time.Now(), pcm), true
	}
	if s.queue == nil {
		return nil, false
	}
	return s.queue.try_pull()
}

// is_active reports whether the source should be considered for
// arbitration this tick.
func (s *Source) is_active() bool {
	if !s.enabled.Load() {
		return false
	}
	if s.BypassDetection {
		if s.gen != nil {
			return s.gen.pending()
		}
		return s.queue != nil && s.queue.depth() > 0
	}
	if !s.ready.Load() {
		return false
	}
	return s.det != nil && s.det.Active()
}

/*-------------------------------------------------------------------
 *
 * Name:	source_registry
 *
 * Purpose:	Hold all sources in registration order.
 *
 * Description:	Registration order is the deterministic tie-break for
 *		equal priorities, so it is fixed: sources register in
 *		the order they appear in the configuration builder,
 *		never from map iteration.
 *
 *--------------------------------------------------------------------*/

type source_registry struct {
	ordered []*Source
	byName  map[string]*Source
}

func new_source_registry() *source_registry {
	return &source_registry{byName: make(map[string]*Source)}
}

func (r *source_registry) add(s *Source) {
	r.ordered = append(r.ordered, s)
	r.byName[s.Name] = s
}

func (r *source_registry) get(name string) *Source {
	return r.byName[name]
}

func (r *source_registry) all() []*Source {
	return r.ordered
}
