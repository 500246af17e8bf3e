package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Configuration.
 *
 * Description: One YAML file, loaded once at startup into a single
 *		immutable struct that gets passed into constructors.
 *		Nothing here is fatal: a missing file runs on
 *		defaults, a bad value is put back to its default with
 *		a logged warning.  The operator who fat-fingers a
 *		threshold gets a working bridge and a complaint in the
 *		log, not a dead service.
 *
 *---------------------------------------------------------------*/

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

type AudioConfig struct {
	SampleRate   int    `yaml:"sample_rate"`
	ChunkMS      int    `yaml:"chunk_ms"`
	BufferMult   int    `yaml:"buffer_mult"`   // device period, in chunks
	QueueDepth   int    `yaml:"queue_depth"`   // per-source queue, in chunks
	PrefillMult  int    `yaml:"prefill_mult"`  // pre-fill target = mult * buffer_mult
	OutputDevice string `yaml:"output_device"` // radio transmit audio
}

type DetectConfig struct {
	ThresholdDBFS float64 `yaml:"threshold_dbfs"`
	AttackMS      int     `yaml:"attack_ms"`
	ReleaseMS     int     `yaml:"release_ms"`
	VadMinMS      int     `yaml:"vad_min_ms"`
}

type DSPConfig struct {
	Highpass         bool    `yaml:"highpass"`
	HighpassHz       float64 `yaml:"highpass_hz"`
	Gate             bool    `yaml:"gate"`
	GateThresholdDB  float64 `yaml:"gate_threshold_dbfs"`
	GateHoldChunks   int     `yaml:"gate_hold_chunks"`
	Suppress         bool    `yaml:"suppress"`
	SuppressStrength float64 `yaml:"suppress_strength"`
	AGC              bool    `yaml:"agc"`
	AGCTargetDB      float64 `yaml:"agc_target_dbfs"`
}

type MixConfig struct {
	Ratio           float64 `yaml:"ratio"` // gain for blended non-ducking sources
	SwitchPaddingMS int     `yaml:"switch_padding_ms"`
}

type PttConfig struct {
	Method       string `yaml:"method"` // cm108, gpio, serial, none
	Device       string `yaml:"device"` // hidraw node, gpiochip, or tty
	Pin          int    `yaml:"pin"`
	SerialSignal string `yaml:"serial_signal"` // rts or dtr
	ActivationMS int    `yaml:"activation_ms"`
	ReleaseMS    int    `yaml:"release_ms"`
	MonitorPty   bool   `yaml:"monitor_pty"` // expose key/unkey events on a pseudo terminal
}

type WatchdogConfig struct {
	TimeoutS    int    `yaml:"timeout_s"`
	MaxRestarts uint32 `yaml:"max_restarts"`
	Helper      string `yaml:"helper"` // privileged recovery command, optional
}

type LinkConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Role       string `yaml:"role"` // listen or dial
	Addr       string `yaml:"addr"`
	ReconnectS int    `yaml:"reconnect_s"`
	Announce   bool   `yaml:"announce"` // DNS-SD, listener role only
}

type MorseConfig struct {
	WPM           int    `yaml:"wpm"`
	ToneHz        int    `yaml:"tone_hz"`
	IDText        string `yaml:"id_text"`         // station identification, empty = off
	IDIntervalMin int    `yaml:"id_interval_min"` // 0 = off
	RogerBeep     bool   `yaml:"roger_beep"`
}

type SourceConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Device   string  `yaml:"device"` // capture device, hardware sources only
	Priority int     `yaml:"priority"`
	Duck     bool    `yaml:"duck"`
	Volume   float64 `yaml:"volume"`
	ToMumble bool    `yaml:"to_mumble"`
	ToRadio  bool    `yaml:"to_radio"`
}

type SourcesConfig struct {
	Mumble   SourceConfig `yaml:"mumble"`
	SDR1     SourceConfig `yaml:"sdr1"`
	SDR2     SourceConfig `yaml:"sdr2"`
	Link     SourceConfig `yaml:"link"`
	EchoLink SourceConfig `yaml:"echolink"`
	Announce SourceConfig `yaml:"announce"`
	File     SourceConfig `yaml:"file"`
	Morse    SourceConfig `yaml:"morse"`
}

type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	Detect   DetectConfig   `yaml:"detect"`
	DSP      DSPConfig      `yaml:"dsp"`
	Mix      MixConfig      `yaml:"mix"`
	PTT      PttConfig      `yaml:"ptt"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Link     LinkConfig     `yaml:"link"`
	Morse    MorseConfig    `yaml:"morse"`
	Sources  SourcesConfig  `yaml:"sources"`
	LogDir   string         `yaml:"log_dir"` // daily activity logs, empty = off
}

func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:  DEFAULT_SAMPLE_RATE,
			ChunkMS:     DEFAULT_CHUNK_MS,
			BufferMult:  DEFAULT_BUFFER_MULT,
			QueueDepth:  DEFAULT_QUEUE_DEPTH,
			PrefillMult: DEFAULT_PREFILL_MULT,
		},
		Detect: DetectConfig{
			ThresholdDBFS: -40,
			AttackMS:      150,
			ReleaseMS:     500,
			VadMinMS:      250,
		},
		DSP: DSPConfig{
			Highpass:         true,
			HighpassHz:       300,
			Gate:             true,
			GateThresholdDB:  -45,
			GateHoldChunks:   4,
			Suppress:         false,
			SuppressStrength: 0.5,
			AGC:              false,
			AGCTargetDB:      -12,
		},
		Mix: MixConfig{
			Ratio:           DEFAULT_MIX_RATIO,
			SwitchPaddingMS: int(DEFAULT_SWITCH_PADDING / time.Millisecond),
		},
		PTT: PttConfig{
			Method:       "none",
			Pin:          CM108_DEFAULT_PTT_PIN,
			SerialSignal: "rts",
			ActivationMS: int(DEFAULT_PTT_ACTIVATION_DELAY / time.Millisecond),
			ReleaseMS:    int(DEFAULT_PTT_RELEASE_DELAY / time.Millisecond),
		},
		Watchdog: WatchdogConfig{
			TimeoutS:    int(DEFAULT_WATCHDOG_TIMEOUT / time.Second),
			MaxRestarts: DEFAULT_WATCHDOG_MAX_RESTARTS,
		},
		Link: LinkConfig{
			Role:       "listen",
			Addr:       ":4810",
			ReconnectS: int(DEFAULT_LINK_RECONNECT / time.Second),
			Announce:   true,
		},
		Morse: MorseConfig{
			WPM:    DEFAULT_WPM,
			ToneHz: MORSE_TONE_HZ,
		},
		Sources: SourcesConfig{
			Mumble:   SourceConfig{Enabled: true, Priority: 2, Duck: true, Volume: 1.0, ToRadio: true},
			SDR1:     SourceConfig{Priority: 4, Volume: 1.0, ToMumble: true},
			SDR2:     SourceConfig{Priority: 5, Volume: 1.0, ToMumble: true},
			Link:     SourceConfig{Priority: 3, Volume: 1.0, ToMumble: true, ToRadio: true},
			EchoLink: SourceConfig{Priority: 6, Volume: 1.0, ToMumble: true},
			Announce: SourceConfig{Priority: 1, Duck: true, Volume: 1.0, ToMumble: true, ToRadio: true},
			File:     SourceConfig{Priority: 7, Volume: 1.0, ToMumble: true},
			Morse:    SourceConfig{Enabled: true, Priority: 0, Duck: true, Volume: 1.0, ToRadio: true},
		},
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	LoadConfig
 *
 * Purpose:	Read the YAML configuration file.
 *
 * Description:	Starts from defaults and overlays whatever the file
 *		provides, then sanity checks the result.  Missing file
 *		or unparsable YAML runs on pure defaults.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(path string) *Config {
	var cfg = DefaultConfig()

	var data, err = os.ReadFile(path)
	if err != nil {
		log.Warn("configuration file not readable, using defaults", "path", path, "error", err)
		return cfg
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		log.Warn("configuration file not parsable, using defaults", "path", path, "error", unmarshalErr)
		return DefaultConfig()
	}

	cfg.sanitize()
	return cfg
}

// sanitize puts out-of-range values back to their defaults, loudly.
func (c *Config) sanitize() {
	var def = DefaultConfig()

	if c.Audio.SampleRate <= 0 {
		log.Warn("invalid audio.sample_rate, using default", "got", c.Audio.SampleRate, "default", def.Audio.SampleRate)
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.ChunkMS <= 0 {
		log.Warn("invalid audio.chunk_ms, using default", "got", c.Audio.ChunkMS, "default", def.Audio.ChunkMS)
		c.Audio.ChunkMS = def.Audio.ChunkMS
	}
	if c.Audio.BufferMult <= 0 {
		log.Warn("invalid audio.buffer_mult, using default", "got", c.Audio.BufferMult, "default", def.Audio.BufferMult)
		c.Audio.BufferMult = def.Audio.BufferMult
	}
	if c.Audio.QueueDepth <= 0 {
		log.Warn("invalid audio.queue_depth, using default", "got", c.Audio.QueueDepth, "default", def.Audio.QueueDepth)
		c.Audio.QueueDepth = def.Audio.QueueDepth
	}
	if c.Audio.PrefillMult <= 0 {
		c.Audio.PrefillMult = def.Audio.PrefillMult
	}
	if c.Mix.Ratio <= 0 || c.Mix.Ratio > 1 {
		log.Warn("invalid mix.ratio, using default", "got", c.Mix.Ratio, "default", def.Mix.Ratio)
		c.Mix.Ratio = def.Mix.Ratio
	}
	if c.Mix.SwitchPaddingMS < 0 {
		c.Mix.SwitchPaddingMS = def.Mix.SwitchPaddingMS
	}
	if c.PTT.ActivationMS < 0 {
		c.PTT.ActivationMS = def.PTT.ActivationMS
	}
	if c.PTT.ReleaseMS < 0 {
		c.PTT.ReleaseMS = def.PTT.ReleaseMS
	}
	if c.Watchdog.TimeoutS <= 0 {
		c.Watchdog.TimeoutS = def.Watchdog.TimeoutS
	}
	if c.Watchdog.MaxRestarts == 0 {
		c.Watchdog.MaxRestarts = def.Watchdog.MaxRestarts
	}
	if c.Link.Role != "listen" && c.Link.Role != "dial" {
		log.Warn("invalid link.role, using listen", "got", c.Link.Role)
		c.Link.Role = "listen"
	}
	if c.Morse.WPM <= 0 {
		c.Morse.WPM = def.Morse.WPM
	}
	if c.Morse.ToneHz <= 0 {
		c.Morse.ToneHz = def.Morse.ToneHz
	}

	for _, sc := range []*SourceConfig{
		&c.Sources.Mumble, &c.Sources.SDR1, &c.Sources.SDR2, &c.Sources.Link,
		&c.Sources.EchoLink, &c.Sources.Announce, &c.Sources.File, &c.Sources.Morse,
	} {
		if sc.Volume <= 0 {
			sc.Volume = 1.0
		}
	}
}

// Derived values.

func (c *Config) ChunkSamples() int {
	return c.Audio.SampleRate * c.Audio.ChunkMS / 1000
}

func (c *Config) ChunkDuration() time.Duration {
	return time.Duration(c.Audio.ChunkMS) * time.Millisecond
}

func (c *Config) PeriodSamples() int {
	return c.ChunkSamples() * c.Audio.BufferMult
}

func (c *Config) PrefillChunks() int {
	var p = c.Audio.BufferMult * c.Audio.PrefillMult
	if p > c.Audio.QueueDepth {
		p = c.Audio.QueueDepth
	}
	return p
}

func (c *Config) dsp_settings() DSPSettings {
	return DSPSettings{
		Highpass:         c.DSP.Highpass,
		HighpassHz:       c.DSP.HighpassHz,
		Gate:             c.DSP.Gate,
		GateThresholdDB:  c.DSP.GateThresholdDB,
		GateHoldChunks:   c.DSP.GateHoldChunks,
		Suppress:         c.DSP.Suppress,
		SuppressStrength: c.DSP.SuppressStrength,
		AGC:              c.DSP.AGC,
		AGCTargetDB:      c.DSP.AGCTargetDB,
	}
}
