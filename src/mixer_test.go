package basenji

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stub_gen is a synthetic generator producing a constant sample value
// while switched on.
type stub_gen struct {
	value int16
	on    bool
}

func (g *stub_gen) next_chunk(n int) ([]int16, bool) {
	if !g.on {
		return nil, false
	}
	var pcm = make([]int16, n)
	for i := range pcm {
		pcm[i] = g.value
	}
	return pcm, true
}

func (g *stub_gen) pending() bool {
	return g.on
}

func make_test_source(name string, priority int, duck bool, toMumble bool, toRadio bool, value int16) *Source {
	var s = &Source{
		Name:            name,
		Priority:        priority,
		Duck:            duck,
		Volume:          1.0,
		ToMumble:        toMumble,
		ToRadio:         toRadio,
		BypassDetection: true,
		gen:             &stub_gen{value: value, on: true},
		health:          new_device_health(),
	}
	s.set_enabled(true)
	return s
}

// pull_all mirrors the tick loop's phase 1 for these tests.
func pull_all(reg *source_registry, n int) map[*Source]*AudioChunk {
	var pulled = make(map[*Source]*AudioChunk)
	for _, s := range reg.all() {
		if c, ok := s.try_pull(n); ok {
			pulled[s] = c
		}
	}
	return pulled
}

// TestMixerDuckExcludesLowerPriority verifies hard ducking: while a
// ducking source is active, lower priority sources are absent from the
// output entirely, not attenuated.
func TestMixerDuckExcludesLowerPriority(t *testing.T) {
	var reg = new_source_registry()
	var a = make_test_source("a", 1, true, true, true, 1000)
	var b = make_test_source("b", 2, false, true, false, 500)
	reg.add(a)
	reg.add(b)

	var m = new_mixer(reg, 0.35, 0, 64)
	var d = m.decide()

	require.Same(t, a, d.MumbleFeed)
	require.Same(t, a, d.RadioFeed)
	assert.True(t, d.DuckSet[b], "lower priority source should be ducked")

	var mumbleOut, radioOut = m.render(d, pull_all(reg, 64), time.Now())
	require.NotNil(t, mumbleOut)
	require.NotNil(t, radioOut)
	assert.Equal(t, int16(1000), mumbleOut[0], "ducked source must not be blended in")
	assert.Equal(t, int16(1000), radioOut[0])
}

// TestMixerBlendsNonDuckingLoser verifies a non-ducking loser is mixed
// under the winner at the configured ratio.
func TestMixerBlendsNonDuckingLoser(t *testing.T) {
	var reg = new_source_registry()
	var a = make_test_source("a", 1, false, true, false, 1000)
	var b = make_test_source("b", 2, false, true, false, 1000)
	reg.add(a)
	reg.add(b)

	var m = new_mixer(reg, 0.35, 0, 64)
	var d = m.decide()
	require.Same(t, a, d.MumbleFeed)
	assert.False(t, d.DuckSet[b])

	var mumbleOut, _ = m.render(d, pull_all(reg, 64), time.Now())
	require.NotNil(t, mumbleOut)
	assert.Equal(t, int16(1350), mumbleOut[0], "winner plus 0.35 of the loser")
}

// TestMixerTieBreakIsRegistrationOrder verifies equal priorities break
// deterministically in favor of the first registered source.
func TestMixerTieBreakIsRegistrationOrder(t *testing.T) {
	var reg = new_source_registry()
	var first = make_test_source("first", 3, false, true, false, 1)
	var second = make_test_source("second", 3, false, true, false, 2)
	reg.add(first)
	reg.add(second)

	var m = new_mixer(reg, 0.35, 0, 64)

	for i := 0; i < 10; i++ {
		assert.Same(t, first, m.decide().MumbleFeed)
	}
}

// TestMixerRoutingFlags verifies each output only considers sources
// routed to it.
func TestMixerRoutingFlags(t *testing.T) {
	var reg = new_source_registry()
	var mumbleOnly = make_test_source("m", 1, false, true, false, 1)
	var radioOnly = make_test_source("r", 2, false, false, true, 2)
	reg.add(mumbleOnly)
	reg.add(radioOnly)

	var d = new_mixer(reg, 0.35, 0, 64).decide()
	assert.Same(t, mumbleOnly, d.MumbleFeed)
	assert.Same(t, radioOnly, d.RadioFeed)
}

// TestMixerNoActiveSources verifies both outputs are nil, not silence,
// when nothing is active.
func TestMixerNoActiveSources(t *testing.T) {
	var reg = new_source_registry()
	var a = make_test_source("a", 1, false, true, true, 1000)
	a.gen.(*stub_gen).on = false
	reg.add(a)

	var m = new_mixer(reg, 0.35, 0, 64)
	var d = m.decide()
	require.Nil(t, d.MumbleFeed)

	var mumbleOut, radioOut = m.render(d, pull_all(reg, 64), time.Now())
	assert.Nil(t, mumbleOut)
	assert.Nil(t, radioOut)
}

// TestMixerSwitchPadding verifies silence is inserted when the winner
// changes, and real audio resumes once the padding has elapsed.
func TestMixerSwitchPadding(t *testing.T) {
	var reg = new_source_registry()
	var a = make_test_source("a", 1, false, true, false, 1000)
	reg.add(a)

	var m = new_mixer(reg, 0.35, 100*time.Millisecond, 64)
	var t0 = time.Now()

	// First tick with a winner: the none -> a edge pads.
	var d = m.decide()
	var out, _ = m.render(d, pull_all(reg, 64), t0)
	require.NotNil(t, out)
	assert.Equal(t, int16(0), out[0], "duck-in edge should be silence")

	// Still inside the padding window.
	out, _ = m.render(d, pull_all(reg, 64), t0.Add(50*time.Millisecond))
	assert.Equal(t, int16(0), out[0])

	// Padding over: audio flows.
	out, _ = m.render(d, pull_all(reg, 64), t0.Add(150*time.Millisecond))
	assert.Equal(t, int16(1000), out[0])
}

// TestMixerWinnerEmptyQueueGetsSilence verifies a winner whose queue
// produced nothing this tick yields silence, not nil and not a stall.
func TestMixerWinnerEmptyQueueGetsSilence(t *testing.T) {
	var reg = new_source_registry()
	var a = make_test_source("a", 1, false, true, false, 1000)
	reg.add(a)

	var m = new_mixer(reg, 0.35, 0, 64)
	var d = m.decide()
	require.Same(t, a, d.MumbleFeed)

	// Empty pulled map: the source was active but delivered nothing.
	var out, _ = m.render(d, map[*Source]*AudioChunk{}, time.Now())
	require.NotNil(t, out)
	assert.Len(t, out, 64)
	assert.Equal(t, int16(0), out[0])
}

// TestScalePcmClips verifies volume scaling saturates instead of
// wrapping.
func TestScalePcmClips(t *testing.T) {
	var out = scale_pcm([]int16{30000, -30000, 100}, 2.0)
	assert.Equal(t, int16(32767), out[0])
	assert.Equal(t, int16(-32768), out[1])
	assert.Equal(t, int16(200), out[2])
}
