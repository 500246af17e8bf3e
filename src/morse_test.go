package basenji

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMorseLookup verifies table lookup is case insensitive and
// unknown characters report -1.
func TestMorseLookup(t *testing.T) {
	var i = morse_lookup('a')
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, ".-", MORSE[i].enc)

	assert.Equal(t, morse_lookup('A'), morse_lookup('a'))
	assert.Equal(t, -1, morse_lookup('!'))
}

// TestTimeUnitsToMs verifies the standard timing: 1200/wpm ms per unit.
func TestTimeUnitsToMs(t *testing.T) {
	assert.Equal(t, 60.0, TIME_UNITS_TO_MS(1, 20))
	assert.Equal(t, 180.0, TIME_UNITS_TO_MS(3, 20))
	assert.Equal(t, 100.0, TIME_UNITS_TO_MS(1, 12))
}

// TestMorseRenderTiming verifies rendered sample counts against the
// dit/dah/gap arithmetic at 20 WPM and 48 kHz (one unit = 60 ms =
// 2,880 samples).
func TestMorseRenderTiming(t *testing.T) {
	var unit = 2880

	tests := []struct {
		name    string
		text    string
		samples int
	}{
		{
			name:    "single dit",
			text:    "E",
			samples: unit,
		},
		{
			name:    "single dah",
			text:    "T",
			samples: 3 * unit,
		},
		{
			name: "A is dit gap dah",
			text: "A",
			// 1 + 1 + 3
			samples: 5 * unit,
		},
		{
			name: "two characters get a three unit gap",
			text: "EE",
			// 1 + 3 + 1
			samples: 5 * unit,
		},
		{
			name: "word gap totals seven units",
			text: "E E",
			// 1 + 3 (char gap) + 4 (word gap supplement) + 1
			samples: 9 * unit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var synth = new_tone_synth(DEFAULT_SAMPLE_RATE, MORSE_AMPLITUDE)
			var buf = morse_render(synth, tt.text, 20, 800)
			assert.Equal(t, tt.samples, len(buf))
		})
	}
}

// TestMorseRenderHasTone verifies the rendered audio is a real tone at
// the requested amplitude, not silence.
func TestMorseRenderHasTone(t *testing.T) {
	var synth = new_tone_synth(DEFAULT_SAMPLE_RATE, MORSE_AMPLITUDE)
	var buf = morse_render(synth, "T", 20, 800)

	// A 0.7 amplitude sine has an RMS around 0.7 * 32767 / sqrt(2).
	var rms = chunk_rms(buf)
	assert.InDelta(t, 16220.0, rms, 500.0)
}

// TestMorseGeneratorChunking verifies text queued on the generator
// comes out in fixed-size chunks with a zero-padded tail.
func TestMorseGeneratorChunking(t *testing.T) {
	var g = new_morse_generator(DEFAULT_SAMPLE_RATE, 20, 800)

	require.False(t, g.pending())

	g.queue_text("E") // 2,880 samples
	require.True(t, g.pending())

	var c1, ok = g.next_chunk(2400)
	require.True(t, ok)
	require.Len(t, c1, 2400)

	var c2, ok2 = g.next_chunk(2400)
	require.True(t, ok2)
	require.Len(t, c2, 2400)
	assert.Equal(t, int16(0), c2[2399], "tail should be zero padded")

	assert.False(t, g.pending())
	var _, ok3 = g.next_chunk(2400)
	assert.False(t, ok3)
}

// TestRogerBeep verifies the beep queues the configured duration of
// tone.
func TestRogerBeep(t *testing.T) {
	var g = new_morse_generator(DEFAULT_SAMPLE_RATE, 20, 800)

	g.queue_beep()
	require.True(t, g.pending())

	g.mu.Lock()
	var n = len(g.pendBuf)
	g.mu.Unlock()
	assert.Equal(t, ROGER_BEEP_MS*DEFAULT_SAMPLE_RATE/1000, n)
}
