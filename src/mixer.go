package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Priority arbitration and ducking.
 *
 * Description: Recomputed from scratch every tick.  Among the active
 *		sources, the numerically lowest priority wins each
 *		output path independently, subject to routing flags.
 *		An active source with duck set excludes every lower
 *		priority source from both outputs entirely - hard
 *		ducking, not attenuation.  Active losers without duck
 *		are scaled by the mix ratio and added under the winner
 *		instead, clipped to the 16 bit range.
 *
 *		Equal priorities break deterministically: the first
 *		registered source wins.  Registration order is the
 *		configuration build order, so the outcome is stable
 *		run to run.  This is a policy choice, not an accident
 *		of iteration order.
 *
 *		When an output's winner changes between ticks, a
 *		configured duration of silence is inserted at both the
 *		duck-out and duck-in edges.  Splicing two unrelated
 *		audio streams mid-sample pops; the padding masks that
 *		and swallows any leftover buffered audio from the
 *		displaced source.
 *
 *---------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"
)

const (
	DEFAULT_SWITCH_PADDING = 150 * time.Millisecond
	DEFAULT_MIX_RATIO      = 0.35
)

// MixDecision is this tick's arbitration result.  Derived solely from
// current activity states and priorities; no history beyond what the
// detectors already encode.
type MixDecision struct {
	MumbleFeed *Source
	RadioFeed  *Source
	DuckSet    map[*Source]bool
}

type mixer struct {
	reg       *source_registry
	mixRatio  float64
	padding   time.Duration
	chunkSize int

	// Previous winners and padding deadlines, per output.
	lastMumble *Source
	lastRadio  *Source
	mumblePad  time.Time
	radioPad   time.Time
}

func new_mixer(reg *source_registry, mixRatio float64, padding time.Duration, chunkSize int) *mixer {
	if mixRatio <= 0 || mixRatio > 1 {
		mixRatio = DEFAULT_MIX_RATIO
	}
	return &mixer{reg: reg, mixRatio: mixRatio, padding: padding, chunkSize: chunkSize}
}

/*-------------------------------------------------------------------
 *
 * Name:	mixer.decide
 *
 * Purpose:	Pick the winner for each output path.
 *
 *--------------------------------------------------------------------*/

func (m *mixer) decide() MixDecision {
	var d = MixDecision{DuckSet: make(map[*Source]bool)}

	var actives []*Source
	for _, s := range m.reg.all() {
		if s.is_active() {
			actives = append(actives, s)
		}
	}

	// Hard ducking first: every active ducker silences everything
	// numerically below it, active or not.
	for _, ducker := range actives {
		if !ducker.Duck {
			continue
		}
		for _, other := range m.reg.all() {
			if other.Priority > ducker.Priority {
				d.DuckSet[other] = true
			}
		}
	}

	d.MumbleFeed = pick_winner(actives, d.DuckSet, func(s *Source) bool { return s.ToMumble })
	d.RadioFeed = pick_winner(actives, d.DuckSet, func(s *Source) bool { return s.ToRadio })

	return d
}

// pick_winner selects the lowest priority value among candidates.
// actives is in registration order, and the strict < comparison keeps
// the first registered source on an equal-priority tie.
func pick_winner(actives []*Source, ducked map[*Source]bool, routed func(*Source) bool) *Source {
	var best *Source
	for _, s := range actives {
		if ducked[s] || !routed(s) {
			continue
		}
		if best == nil || s.Priority < best.Priority {
			best = s
		}
	}
	return best
}

/*-------------------------------------------------------------------
 *
 * Name:	mixer.render
 *
 * Purpose:	Produce the two output chunks for this tick.
 *
 * Inputs:	d	- This tick's decision.
 *		pulled	- The chunk each source delivered this tick,
 *			  nil for sources whose queue came up empty.
 *		now	- Tick time.
 *
 * Returns:	PCM for the Mumble output and the radio output.  nil
 *		means nothing at all feeds that path this tick (which
 *		is different from a silence chunk inserted as padding).
 *
 * Description:	A winner whose queue produced nothing this tick gets
 *		silence substituted, never a retry - the loop must not
 *		stall inside a tick.
 *
 *--------------------------------------------------------------------*/

func (m *mixer) render(d MixDecision, pulled map[*Source]*AudioChunk, now time.Time) (mumbleOut []int16, radioOut []int16) {
	mumbleOut, m.lastMumble, m.mumblePad = m.render_path(d.MumbleFeed, m.lastMumble, m.mumblePad, d, pulled, now, func(s *Source) bool { return s.ToMumble })
	radioOut, m.lastRadio, m.radioPad = m.render_path(d.RadioFeed, m.lastRadio, m.radioPad, d, pulled, now, func(s *Source) bool { return s.ToRadio })
	return mumbleOut, radioOut
}

func (m *mixer) render_path(winner *Source, last *Source, padUntil time.Time, d MixDecision,
	pulled map[*Source]*AudioChunk, now time.Time, routed func(*Source) bool) ([]int16, *Source, time.Time) {

	if winner != last {
		// Winner changed; mask the splice on both edges.
		if m.padding > 0 {
			padUntil = now.Add(m.padding)
			var from, to = source_name(last), source_name(winner)
			log.Debug("output switch", "from", from, "to", to)
		}
		last = winner
	}

	if winner == nil {
		return nil, last, padUntil
	}

	if now.Before(padUntil) {
		return make([]int16, m.chunkSize), last, padUntil
	}

	var chunk = pulled[winner]
	if chunk == nil {
		// Queue came up empty.  Silence, no retry.
		return make([]int16, m.chunkSize), last, padUntil
	}

	var out = scale_pcm(chunk.Data, winner.Volume)

	// Blend in non-ducking losers that also route here.  Registry
	// order, so saturation behavior is reproducible.
	for _, s := range m.reg.all() {
		var c = pulled[s]
		if s == winner || c == nil || s.Duck || d.DuckSet[s] || !routed(s) || !s.is_active() {
			continue
		}
		var gain = m.mixRatio * s.Volume
		for i := range out {
			if i >= len(c.Data) {
				break
			}
			out[i] = clamp16(int32(out[i]) + int32(float64(c.Data[i])*gain))
		}
	}

	return out, last, padUntil
}

func source_name(s *Source) string {
	if s == nil {
		return "none"
	}
	return s.Name
}
