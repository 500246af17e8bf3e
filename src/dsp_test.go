package basenji

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine_chunk generates n samples of a sine at the given amplitude
// (fraction of full scale).
func sine_chunk(n int, freqHz float64, amplitude float64, sampleRate int) []int16 {
	var out = make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767.0 * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}
	return out
}

// TestPipelineDisabledIsIdentity verifies the pipeline contract: with
// every stage off, the exact input chunk comes back.
func TestPipelineDisabledIsIdentity(t *testing.T) {
	var p = NewPipeline(DSPSettings{HighpassHz: 300}, DEFAULT_SAMPLE_RATE)

	var in = new_chunk(7, time.Now(), sine_chunk(2400, 1000, 0.5, DEFAULT_SAMPLE_RATE))
	var out = p.Process(in)

	assert.Same(t, in, out, "disabled pipeline should return the input chunk itself")
}

// TestHighpassRemovesDC verifies the highpass kills a DC offset while
// passing voice-band content.
func TestHighpassRemovesDC(t *testing.T) {
	var f = highpass_biquad(300, DEFAULT_SAMPLE_RATE)

	// A pure DC offset.  Run a few chunks to let the filter settle.
	var dc = make([]int16, 2400)
	for i := range dc {
		dc[i] = 8000
	}
	var out []int16
	for i := 0; i < 4; i++ {
		out = f.process(dc)
	}
	assert.Less(t, chunk_rms(out), 50.0, "DC should be removed")

	// A 1 kHz tone passes nearly unchanged.
	f.reset()
	var tone = sine_chunk(2400, 1000, 0.5, DEFAULT_SAMPLE_RATE)
	for i := 0; i < 4; i++ {
		out = f.process(tone)
	}
	var inRMS = chunk_rms(tone)
	assert.InDelta(t, inRMS, chunk_rms(out), inRMS*0.1, "1 kHz should pass")
}

// TestNoiseGate verifies mute below threshold, hold across brief dips,
// and the fade on the closing edge.
func TestNoiseGate(t *testing.T) {
	var g = new_noise_gate(-45, 2)

	var loud = sine_chunk(2400, 1000, 0.5, DEFAULT_SAMPLE_RATE) // ~ -9 dBFS
	var quiet = sine_chunk(2400, 1000, 0.001, DEFAULT_SAMPLE_RATE)

	// Loud passes untouched.
	assert.Equal(t, loud, g.process(loud))

	// Quiet within the hold window still passes.
	assert.Equal(t, quiet, g.process(quiet))
	assert.Equal(t, quiet, g.process(quiet))

	// Hold spent: the closing chunk fades, everything after is zero.
	var fade = g.process(quiet)
	assert.NotEqual(t, quiet, fade)
	assert.Less(t, chunk_rms(fade), chunk_rms(quiet))

	var muted = g.process(quiet)
	assert.Equal(t, 0.0, chunk_rms(muted))
}

// TestAGCConverges verifies the gain walks a quiet signal up toward
// the target level.
func TestAGCConverges(t *testing.T) {
	var a = new_agc(-12)

	// -32 dBFS sine (amplitude ~0.035 of full scale RMS).
	var in = sine_chunk(2400, 1000, 0.035, DEFAULT_SAMPLE_RATE)
	require.Less(t, chunk_dbfs(in), -25.0)

	var out []int16
	for i := 0; i < 100; i++ {
		out = a.process(in)
	}

	assert.InDelta(t, -12.0, chunk_dbfs(out), 3.0, "level should converge on the target")
}

// TestAGCIgnoresSilence verifies near-silence does not wind the gain
// up.
func TestAGCIgnoresSilence(t *testing.T) {
	var a = new_agc(-12)

	var silence = make([]int16, 2400)
	for i := 0; i < 50; i++ {
		a.process(silence)
	}
	assert.Equal(t, 1.0, a.gain, "gain must not move on silence")
}

// TestPipelineReset verifies reset clears envelope state.
func TestPipelineReset(t *testing.T) {
	var p = NewPipeline(DSPSettings{
		Highpass: true, HighpassHz: 300,
		AGC: true, AGCTargetDB: -12,
	}, DEFAULT_SAMPLE_RATE)

	var in = new_chunk(1, time.Now(), sine_chunk(2400, 1000, 0.035, DEFAULT_SAMPLE_RATE))
	for i := 0; i < 20; i++ {
		p.Process(in)
	}
	require.NotEqual(t, 1.0, p.gainCtl.gain)

	p.Reset()
	assert.Equal(t, 1.0, p.gainCtl.gain)
}
