package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Signal detection.
 *
 * Description: Two separate consumers, two separate mechanisms:
 *
 *		(1) The instant gate is a per-tick boolean, RMS level
 *		against a threshold, no memory.  Cheap pass/fail used
 *		by the ducking logic.
 *
 *		(2) The hysteresis detector is the VOX.  It requires a
 *		sustained stretch of signal before a source counts as
 *		Active and a sustained stretch of silence before it
 *		counts as Silent again.  This is what keeps a single
 *		noisy chunk from keying the transmitter, and what keeps
 *		a breath pause from unkeying it.
 *
 *---------------------------------------------------------------*/

import (
	"math"
	"time"
)

// Level reported for an all-zero chunk.  Anything quieter than
// one count of a 16 bit sample is below this anyway.
const SILENCE_FLOOR_DBFS = -100.0

type ActivityState int

const (
	STATE_SILENT ActivityState = iota
	STATE_ATTACKING
	STATE_ACTIVE
	STATE_RELEASING
)

func (s ActivityState) String() string {
	switch s {
	case STATE_SILENT:
		return "Silent"
	case STATE_ATTACKING:
		return "Attacking"
	case STATE_ACTIVE:
		return "Active"
	case STATE_RELEASING:
		return "Releasing"
	}
	return "?"
}

/*-------------------------------------------------------------------
 *
 * Name:	chunk_rms / chunk_dbfs
 *
 * Purpose:	Measure the level of one chunk.
 *
 * Returns:	chunk_rms: root mean square in sample counts, 0 .. 32767.
 *		chunk_dbfs: the same as dB relative to full scale.
 *
 * Description:	An RMS of zero maps to SILENCE_FLOOR_DBFS rather than
 *		feeding zero into the log.
 *
 *--------------------------------------------------------------------*/

func chunk_rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}

	var sum float64
	for _, s := range pcm {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

func chunk_dbfs(pcm []int16) float64 {
	var rms = chunk_rms(pcm)
	if rms <= 0 {
		return SILENCE_FLOOR_DBFS
	}

	var db = 20 * math.Log10(rms/32767.0)
	if db < SILENCE_FLOOR_DBFS {
		db = SILENCE_FLOOR_DBFS
	}
	return db
}

// instant_gate is the memoryless per-tick check.
func instant_gate(levelDBFS float64, thresholdDBFS float64) bool {
	return levelDBFS >= thresholdDBFS
}

/*-------------------------------------------------------------------
 *
 * Name:	Detector
 *
 * Purpose:	Attack/release hysteresis over per-chunk levels.
 *
 * Description:	State transitions, evaluated once per tick:
 *
 *		  Silent    --signal-->  Attacking
 *		  Attacking --sustained attack time--> Active
 *		  Attacking --silence--> Silent
 *		  Active    --silence--> Releasing
 *		  Releasing --sustained release time--> Silent
 *		  Releasing --signal--> Active
 *
 *		The minimum duration floor is folded into the attack
 *		requirement: signal must persist for at least
 *		max(attack, minDuration) before Active is declared, so
 *		a spike shorter than the floor never becomes activity
 *		at all.
 *
 *--------------------------------------------------------------------*/

type Detector struct {
	thresholdDBFS float64
	attack        time.Duration // continuous signal required to go Active
	release       time.Duration // continuous silence required to go Silent
	minDuration   time.Duration // floor below which signal is treated as noise

	state       ActivityState
	flipAt      time.Time // when the current Attacking/Releasing stretch began
	lastSignal  time.Time // last chunk at or above threshold
	activeSince time.Time
}

func NewDetector(thresholdDBFS float64, attack, release, minDuration time.Duration) *Detector {
	return &Detector{
		thresholdDBFS: thresholdDBFS,
		attack:        attack,
		release:       release,
		minDuration:   minDuration,
		state:         STATE_SILENT,
	}
}

func (d *Detector) State() ActivityState {
	return d.state
}

func (d *Detector) Active() bool {
	return d.state == STATE_ACTIVE
}

// attack_needed is the effective sustain requirement for going Active.
func (d *Detector) attack_needed() time.Duration {
	if d.minDuration > d.attack {
		return d.minDuration
	}
	return d.attack
}

// Advance feeds one chunk level into the detector and returns the
// resulting state.  Call exactly once per tick per source.
func (d *Detector) Advance(levelDBFS float64, now time.Time) ActivityState {
	var signal = levelDBFS >= d.thresholdDBFS

	if signal {
		d.lastSignal = now
	}

	switch d.state {
	case STATE_SILENT:
		if signal {
			d.state = STATE_ATTACKING
			d.flipAt = now
			// Zero attack keys immediately (subject to the floor).
			if now.Sub(d.flipAt) >= d.attack_needed() {
				d.state = STATE_ACTIVE
				d.activeSince = now
			}
		}

	case STATE_ATTACKING:
		if !signal {
			d.state = STATE_SILENT
			break
		}
		if now.Sub(d.flipAt) >= d.attack_needed() {
			d.state = STATE_ACTIVE
			d.activeSince = now
		}

	case STATE_ACTIVE:
		if !signal {
			d.state = STATE_RELEASING
			d.flipAt = now
		}

	case STATE_RELEASING:
		if signal {
			// Brief gap, no audible consequence.
			d.state = STATE_ACTIVE
			break
		}
		if now.Sub(d.flipAt) >= d.release {
			d.state = STATE_SILENT
		}
	}

	return d.state
}

// Reset returns the detector to Silent.  Used when a device is
// restarted so stale state cannot hold a dead source Active.
func (d *Detector) Reset() {
	d.state = STATE_SILENT
	d.flipAt = time.Time{}
	d.lastSignal = time.Time{}
	d.activeSince = time.Time{}
}
