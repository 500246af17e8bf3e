package basenji

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigMissingFile verifies the bridge runs on defaults when
// there is no configuration file.
func TestLoadConfigMissingFile(t *testing.T) {
	var cfg = LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NotNil(t, cfg)

	assert.Equal(t, DEFAULT_SAMPLE_RATE, cfg.Audio.SampleRate)
	assert.Equal(t, DEFAULT_CHUNK_MS, cfg.Audio.ChunkMS)
	assert.True(t, cfg.Sources.Morse.Enabled)
	assert.Equal(t, "none", cfg.PTT.Method)
}

// TestLoadConfigOverlay verifies file values overlay the defaults and
// unmentioned keys keep theirs.
func TestLoadConfigOverlay(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "basenji.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio:
  chunk_ms: 20
ptt:
  method: cm108
  activation_ms: 100
detect:
  threshold_dbfs: -35
sources:
  sdr1:
    enabled: true
    device: "USB Audio"
    priority: 4
    to_mumble: true
    volume: 0.8
`), 0644))

	var cfg = LoadConfig(path)

	assert.Equal(t, 20, cfg.Audio.ChunkMS)
	assert.Equal(t, DEFAULT_SAMPLE_RATE, cfg.Audio.SampleRate, "unmentioned keys keep defaults")
	assert.Equal(t, "cm108", cfg.PTT.Method)
	assert.Equal(t, 100, cfg.PTT.ActivationMS)
	assert.Equal(t, -35.0, cfg.Detect.ThresholdDBFS)
	assert.True(t, cfg.Sources.SDR1.Enabled)
	assert.Equal(t, "USB Audio", cfg.Sources.SDR1.Device)
	assert.Equal(t, 0.8, cfg.Sources.SDR1.Volume)
}

// TestLoadConfigUnparsable verifies garbage YAML falls back to pure
// defaults instead of dying.
func TestLoadConfigUnparsable(t *testing.T) {
	var path = filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [not: a map"), 0644))

	var cfg = LoadConfig(path)
	require.NotNil(t, cfg)
	assert.Equal(t, DEFAULT_SAMPLE_RATE, cfg.Audio.SampleRate)
}

// TestSanitizePutsBadValuesBack verifies out-of-range values are
// replaced by defaults rather than propagated.
func TestSanitizePutsBadValuesBack(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Audio.SampleRate = -1
	cfg.Mix.Ratio = 5.0
	cfg.Link.Role = "carrier-pigeon"
	cfg.Sources.SDR1.Volume = 0

	cfg.sanitize()

	assert.Equal(t, DEFAULT_SAMPLE_RATE, cfg.Audio.SampleRate)
	assert.Equal(t, DEFAULT_MIX_RATIO, cfg.Mix.Ratio)
	assert.Equal(t, "listen", cfg.Link.Role)
	assert.Equal(t, 1.0, cfg.Sources.SDR1.Volume)
}

// TestConfigDerived verifies the derived sizes.
func TestConfigDerived(t *testing.T) {
	var cfg = DefaultConfig()

	assert.Equal(t, 2400, cfg.ChunkSamples())
	assert.Equal(t, 50*time.Millisecond, cfg.ChunkDuration())
	assert.Equal(t, 2400*DEFAULT_BUFFER_MULT, cfg.PeriodSamples())
	assert.Equal(t, DEFAULT_BUFFER_MULT*DEFAULT_PREFILL_MULT, cfg.PrefillChunks())

	// The pre-fill target never exceeds the queue depth.
	cfg.Audio.PrefillMult = 100
	assert.Equal(t, cfg.Audio.QueueDepth, cfg.PrefillChunks())
}
