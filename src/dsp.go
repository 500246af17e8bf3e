package basenji

/*------------------------------------------------------------------
 *
 * Purpose:     Conditioning applied to raw chunks before detection
 *		and mixing.
 *
 * Description: A fixed chain of independently toggleable stages:
 *
 *		  highpass -> noise gate -> noise suppression -> AGC
 *
 *		The order is not negotiable.  The gate has to see the
 *		pre-suppression signal or the suppressor would be
 *		voting in the gate's election, and the AGC has to run
 *		last so the level it normalizes is the level that
 *		leaves the pipeline.  Echo cancellation would slot in
 *		after the gate with the same Chunk -> Chunk contract
 *		but no backend for it is implemented here.
 *
 *		With every stage disabled the pipeline is an exact
 *		identity - same samples out as in.
 *
 *----------------------------------------------------------------*/

import (
	"math"
)

/*------------------------------------------------------------------
 *
 * Name:        biquad
 *
 * Purpose:     Second order IIR section, direct form 1.
 *
 * Description:	Coefficients from the usual audio EQ cookbook,
 *		Butterworth highpass (Q = 1/sqrt(2)).
 *
 *----------------------------------------------------------------*/

type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func highpass_biquad(cutoffHz float64, sampleRate int) *biquad {
	var w0 = 2 * math.Pi * cutoffHz / float64(sampleRate)
	var cosw = math.Cos(w0)
	var alpha = math.Sin(w0) * math.Sqrt2 / 2

	var a0 = 1 + alpha

	return &biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) process(in []int16) []int16 {
	var out = make([]int16, len(in))
	for i, s := range in {
		var x = float64(s)
		var y = f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
		f.x2, f.x1 = f.x1, x
		f.y2, f.y1 = f.y1, y
		out[i] = clamp16(int32(y))
	}
	return out
}

func (f *biquad) reset() {
	f.x1, f.x2, f.y1, f.y2 = 0, 0, 0, 0
}

/*------------------------------------------------------------------
 *
 * Name:        noise_gate
 *
 * Purpose:     Hard-mute chunks below a level threshold.
 *
 * Description:	A hold counter keeps the gate open across brief dips
 *		so speech is not chopped mid-word, and the first
 *		gated chunk is faded out instead of cut so the mute
 *		edge does not click.
 *
 *----------------------------------------------------------------*/

type noise_gate struct {
	thresholdDBFS float64
	hold          int // chunks the gate stays open after the level drops
	remaining     int
	open          bool
}

func new_noise_gate(thresholdDBFS float64, hold int) *noise_gate {
	return &noise_gate{thresholdDBFS: thresholdDBFS, hold: hold}
}

func (g *noise_gate) process(in []int16) []int16 {
	var level = chunk_dbfs(in)

	if instant_gate(level, g.thresholdDBFS) {
		g.remaining = g.hold
		g.open = true
		return in
	}

	if g.remaining > 0 {
		g.remaining--
		g.open = true
		return in
	}

	var out = make([]int16, len(in))
	if g.open {
		// Closing edge: linear fade across the chunk.
		for i, s := range in {
			var gain = 1.0 - float64(i)/float64(len(in))
			out[i] = clamp16(int32(float64(s) * gain))
		}
	}
	g.open = false
	return out
}

/*------------------------------------------------------------------
 *
 * Name:        noise_suppressor
 *
 * Purpose:     Reduce steady background noise under the voice.
 *
 * Description:	Tracks the noise floor as a slow minimum statistic of
 *		the chunk RMS and applies a broadband gain that backs
 *		the floor out of the signal.  Strength 0..1 scales how
 *		much of the estimated floor is removed.  Deliberately
 *		simple; the job is taking the edge off receiver hiss
 *		before it reaches Mumble, not studio denoising.
 *
 *----------------------------------------------------------------*/

type noise_suppressor struct {
	strength float64
	floor    float64 // running noise floor estimate, RMS counts
}

func new_noise_suppressor(strength float64) *noise_suppressor {
	return &noise_suppressor{strength: strength, floor: 100}
}

func (n *noise_suppressor) process(in []int16) []int16 {
	var rms = chunk_rms(in)

	// The floor tracks down fast and up very slowly, so speech
	// does not drag the estimate up.
	if rms < n.floor {
		n.floor += (rms - n.floor) * 0.3
	} else {
		n.floor += (rms - n.floor) * 0.01
	}

	if rms <= 0 {
		return in
	}

	var gain = 1.0 - n.strength*(n.floor/rms)
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}

	var out = make([]int16, len(in))
	for i, s := range in {
		out[i] = clamp16(int32(float64(s) * gain))
	}
	return out
}

/*------------------------------------------------------------------
 *
 * Name:        agc
 *
 * Purpose:     Pull the chunk level toward a target.
 *
 * Description:	Asymmetric smoothing: gain comes down quickly when the
 *		signal is hot and recovers slowly, so a loud burst does
 *		not pump the background.  Gain is clamped to +-20 dB
 *		and frozen on near-silent chunks so the noise floor is
 *		not amplified up to the target.
 *
 *----------------------------------------------------------------*/

type agc struct {
	targetDBFS float64
	gain       float64
}

const (
	AGC_MIN_GAIN      = 0.1  // -20 dB
	AGC_MAX_GAIN      = 10.0 // +20 dB
	AGC_ATTACK_COEFF  = 0.5
	AGC_RELEASE_COEFF = 0.05
	AGC_FLOOR_DBFS    = -60.0 // below this, leave the gain alone
)

func new_agc(targetDBFS float64) *agc {
	return &agc{targetDBFS: targetDBFS, gain: 1.0}
}

func (a *agc) process(in []int16) []int16 {
	var out = make([]int16, len(in))
	for i, s := range in {
		out[i] = clamp16(int32(float64(s) * a.gain))
	}

	var level = chunk_dbfs(in)
	if level <= AGC_FLOOR_DBFS {
		return out
	}

	var desired = math.Pow(10, (a.targetDBFS-level)/20)
	if desired < AGC_MIN_GAIN {
		desired = AGC_MIN_GAIN
	}
	if desired > AGC_MAX_GAIN {
		desired = AGC_MAX_GAIN
	}

	var coeff = AGC_RELEASE_COEFF
	if desired < a.gain {
		coeff = AGC_ATTACK_COEFF
	}
	a.gain += coeff * (desired - a.gain)

	return out
}

/*------------------------------------------------------------------
 *
 * Name:        Pipeline
 *
 * Purpose:     The per-source chain.  Each stage honors the
 *		Chunk -> Chunk contract and is skipped when disabled.
 *
 *----------------------------------------------------------------*/

type Pipeline struct {
	HighpassEnabled bool
	GateEnabled     bool
	SuppressEnabled bool
	AGCEnabled      bool

	hp       *biquad
	gate     *noise_gate
	suppress *noise_suppressor
	gainCtl  *agc
}

type DSPSettings struct {
	Highpass         bool
	HighpassHz       float64
	Gate             bool
	GateThresholdDB  float64
	GateHoldChunks   int
	Suppress         bool
	SuppressStrength float64
	AGC              bool
	AGCTargetDB      float64
}

func NewPipeline(s DSPSettings, sampleRate int) *Pipeline {
	return &Pipeline{
		HighpassEnabled: s.Highpass,
		GateEnabled:     s.Gate,
		SuppressEnabled: s.Suppress,
		AGCEnabled:      s.AGC,
		hp:              highpass_biquad(s.HighpassHz, sampleRate),
		gate:            new_noise_gate(s.GateThresholdDB, s.GateHoldChunks),
		suppress:        new_noise_suppressor(s.SuppressStrength),
		gainCtl:         new_agc(s.AGCTargetDB),
	}
}

// Process conditions one chunk.  With all stages disabled the input
// chunk is returned untouched.
func (p *Pipeline) Process(c *AudioChunk) *AudioChunk {
	if !p.HighpassEnabled && !p.GateEnabled && !p.SuppressEnabled && !p.AGCEnabled {
		return c
	}

	var pcm = c.Data
	if p.HighpassEnabled {
		pcm = p.hp.process(pcm)
	}
	if p.GateEnabled {
		pcm = p.gate.process(pcm)
	}
	if p.SuppressEnabled {
		pcm = p.suppress.process(pcm)
	}
	if p.AGCEnabled {
		pcm = p.gainCtl.process(pcm)
	}

	return new_chunk(c.Seq, c.When, pcm)
}

// Reset clears filter and envelope state after a device restart.
func (p *Pipeline) Reset() {
	p.hp.reset()
	p.gate.remaining = 0
	p.gate.open = false
	p.gainCtl.gain = 1.0
}
