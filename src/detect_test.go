package basenji

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestChunkDbfs tests level measurement of representative chunks.
func TestChunkDbfs(t *testing.T) {
	tests := []struct {
		name string
		pcm  []int16
		min  float64
		max  float64
	}{
		{
			name: "all zero is the silence floor",
			pcm:  make([]int16, 2400),
			min:  SILENCE_FLOOR_DBFS,
			max:  SILENCE_FLOOR_DBFS,
		},
		{
			name: "empty is the silence floor",
			pcm:  nil,
			min:  SILENCE_FLOOR_DBFS,
			max:  SILENCE_FLOOR_DBFS,
		},
		{
			name: "full scale square is 0 dBFS",
			pcm:  []int16{32767, -32767, 32767, -32767},
			min:  -0.01,
			max:  0.01,
		},
		{
			name: "half scale square is about -6 dBFS",
			pcm:  []int16{16384, -16384, 16384, -16384},
			min:  -6.1,
			max:  -5.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var db = chunk_dbfs(tt.pcm)
			assert.GreaterOrEqual(t, db, tt.min)
			assert.LessOrEqual(t, db, tt.max)
		})
	}
}

// TestInstantGate verifies the memoryless per-tick check.
func TestInstantGate(t *testing.T) {
	assert.True(t, instant_gate(-30, -40))
	assert.True(t, instant_gate(-40, -40))
	assert.False(t, instant_gate(-50, -40))
}

// detector configured like the defaults: -40 dBFS threshold, 150 ms
// attack, 500 ms release, 250 ms minimum duration.  The minimum
// duration dominates, so going Active takes 250 ms of signal.
func default_test_detector() *Detector {
	return NewDetector(-40, 150*time.Millisecond, 500*time.Millisecond, 250*time.Millisecond)
}

// step feeds n ticks of the given level at 50 ms intervals and returns
// the time after the last tick.
func step(d *Detector, t0 time.Time, n int, level float64) time.Time {
	var now = t0
	for i := 0; i < n; i++ {
		d.Advance(level, now)
		now = now.Add(50 * time.Millisecond)
	}
	return now
}

// TestDetectorAttack verifies that sustained signal goes Active only
// after the effective attack time.
func TestDetectorAttack(t *testing.T) {
	var d = default_test_detector()
	var t0 = time.Now()

	// First signal tick: Attacking, not Active.
	d.Advance(-20, t0)
	require.Equal(t, STATE_ATTACKING, d.State())
	assert.False(t, d.Active())

	// 200 ms in: still short of the 250 ms floor.
	d.Advance(-20, t0.Add(200*time.Millisecond))
	assert.Equal(t, STATE_ATTACKING, d.State())

	// 250 ms in: Active.
	d.Advance(-20, t0.Add(250*time.Millisecond))
	assert.Equal(t, STATE_ACTIVE, d.State())
	assert.True(t, d.Active())
}

// TestDetectorShortBurstIgnored verifies that a burst shorter than the
// minimum duration never becomes activity.
func TestDetectorShortBurstIgnored(t *testing.T) {
	var d = default_test_detector()
	var t0 = time.Now()

	// 100 ms of signal, then silence.
	var now = step(d, t0, 3, -20) // ticks at 0, 50, 100 ms
	require.NotEqual(t, STATE_ACTIVE, d.State())

	d.Advance(SILENCE_FLOOR_DBFS, now)
	assert.Equal(t, STATE_SILENT, d.State())
}

// TestDetectorRelease verifies the hysteresis on the way down: a gap
// shorter than the release time does not end activity, a longer one
// does.
func TestDetectorRelease(t *testing.T) {
	var d = default_test_detector()
	var t0 = time.Now()

	var now = step(d, t0, 7, -20) // 300 ms of signal
	require.True(t, d.Active())

	// 200 ms gap: Releasing, still counts as... not Active for the
	// mixer, but recoverable.
	d.Advance(SILENCE_FLOOR_DBFS, now)
	require.Equal(t, STATE_RELEASING, d.State())
	d.Advance(SILENCE_FLOOR_DBFS, now.Add(200*time.Millisecond))
	require.Equal(t, STATE_RELEASING, d.State())

	// Signal returns: straight back to Active, no re-attack.
	d.Advance(-20, now.Add(250*time.Millisecond))
	require.Equal(t, STATE_ACTIVE, d.State())

	// Now a full release time of silence.
	d.Advance(SILENCE_FLOOR_DBFS, now.Add(300*time.Millisecond))
	d.Advance(SILENCE_FLOOR_DBFS, now.Add(800*time.Millisecond))
	assert.Equal(t, STATE_SILENT, d.State())
}

// TestDetectorReset verifies a reset detector forgets everything.
func TestDetectorReset(t *testing.T) {
	var d = default_test_detector()
	step(d, time.Now(), 10, -20)
	require.True(t, d.Active())

	d.Reset()
	assert.Equal(t, STATE_SILENT, d.State())
	assert.False(t, d.Active())
}

// TestDetectorNeverActiveWithoutSustainedSignal is the property form
// of the attack requirement: no sequence whose signal runs are all
// shorter than the effective attack time ever reaches Active.
func TestDetectorNeverActiveWithoutSustainedSignal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var d = default_test_detector()
		var now = time.Unix(0, 0)

		// 250 ms at 50 ms ticks: a run needs 6 ticks (spanning
		// 250 ms) to go Active.  Keep every run at 5 or fewer.
		var runs = rapid.SliceOfN(rapid.IntRange(1, 5), 1, 20).Draw(t, "runs")

		for _, run := range runs {
			for i := 0; i < run; i++ {
				var state = d.Advance(-20, now)
				if state == STATE_ACTIVE {
					t.Fatalf("went Active after %d ticks of signal", i+1)
				}
				now = now.Add(50 * time.Millisecond)
			}
			// At least one tick of silence between runs.
			var gap = rapid.IntRange(1, 30).Draw(t, "gap")
			for i := 0; i < gap; i++ {
				d.Advance(SILENCE_FLOOR_DBFS, now)
				now = now.Add(50 * time.Millisecond)
			}
		}
	})
}
