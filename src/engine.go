package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Assemble and run the bridge.
 *
 * Description: Builds the source set from configuration (in a fixed
 *		order - that order is the arbitration tie-break),
 *		opens the PTT line and the transmit audio device,
 *		starts one ingest goroutine and one watchdog per
 *		hardware source, the network link, and finally the
 *		tick loop.
 *
 *		Shutdown is ordered: the tick loop stops first, the
 *		PTT line is forced down, then the ingest goroutines
 *		are cancelled and joined with a bounded timeout.  A
 *		device driver that refuses to return from a blocking
 *		read gets abandoned; leaking a handle on the way out
 *		beats never exiting.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// How long shutdown waits for ingest goroutines before abandoning them.
const SHUTDOWN_JOIN_TIMEOUT = 3 * time.Second

// chunk_sink accepts one chunk without blocking.  The playback device
// implements it for the transmitter; tests substitute their own.
type chunk_sink interface {
	write_chunk(pcm []int16)
}

type null_sink struct{}

func (null_sink) write_chunk(pcm []int16) {}

// EngineDeps lets callers substitute collaborators.  Any nil field is
// built from the configuration.
type EngineDeps struct {
	Mumble    MumbleSession
	RadioSink chunk_sink
	PttLine   ptt_line
}

type Engine struct {
	cfg *Config
	reg *source_registry
	mix *mixer
	ptt *PttMachine

	mumble  MumbleSession
	inbound *mumble_inbound

	radioSink chunk_sink
	link      *audio_link

	morseGen    *morse_generator
	fileGen     *playback_generator
	announceGen *playback_generator

	mumbleSrc *Source
	linkSrc   *Source
	morseSrc  *Source

	ingests   []*ingest
	watchdogs []*watchdog

	alog   *activity_log
	ptymon *ptt_monitor

	// Tick-loop state.
	lastRadioActive bool
	lastRadioFeed   *Source
	lastStationID   time.Time
}

/*-------------------------------------------------------------------
 *
 * Name:	NewEngine
 *
 * Purpose:	Build everything up to, but not including, starting
 *		goroutines.
 *
 * Errors:	Only a PTT backend that cannot be opened is fatal.  A
 *		missing audio capture device is the watchdog's problem;
 *		everything else degrades with a logged warning.
 *
 *--------------------------------------------------------------------*/

func NewEngine(cfg *Config, deps EngineDeps) (*Engine, error) {
	var e = &Engine{
		cfg: cfg,
		reg: new_source_registry(),
	}

	// PTT first: a bridge that cannot key is not a bridge.
	if deps.PttLine != nil {
		e.ptt = NewPttMachine(deps.PttLine,
			time.Duration(cfg.PTT.ActivationMS)*time.Millisecond,
			time.Duration(cfg.PTT.ReleaseMS)*time.Millisecond)
	} else {
		var line, err = open_ptt_line(cfg.PTT)
		if err != nil {
			return nil, fmt.Errorf("opening PTT line: %w", err)
		}
		e.ptt = NewPttMachine(line,
			time.Duration(cfg.PTT.ActivationMS)*time.Millisecond,
			time.Duration(cfg.PTT.ReleaseMS)*time.Millisecond)
	}

	e.mumble = deps.Mumble
	if e.mumble == nil {
		e.mumble = null_mumble_session{}
	}

	e.radioSink = deps.RadioSink
	if e.radioSink == nil {
		if cfg.Audio.OutputDevice != "" {
			var dev, err = open_playback_device(cfg.Audio.OutputDevice, cfg.Audio.SampleRate, cfg.ChunkSamples())
			if err != nil {
				return nil, fmt.Errorf("opening transmit audio device: %w", err)
			}
			e.radioSink = dev
		} else {
			log.Warn("no transmit audio device configured, radio output discarded")
			e.radioSink = null_sink{}
		}
	}

	e.build_sources()

	e.mix = new_mixer(e.reg, cfg.Mix.Ratio,
		time.Duration(cfg.Mix.SwitchPaddingMS)*time.Millisecond, cfg.ChunkSamples())

	if cfg.LogDir != "" {
		e.alog = new_activity_log(cfg.LogDir)
	}
	if cfg.PTT.MonitorPty {
		e.ptymon = open_ptt_monitor()
	}
	e.ptt.onKey = func(now time.Time) {
		if e.alog != nil {
			e.alog.key(now, source_name(e.lastRadioFeed))
		}
		e.ptymon.key(now, source_name(e.lastRadioFeed))
	}
	e.ptt.onUnkey = func(now time.Time) {
		if e.alog != nil {
			e.alog.unkey(now)
		}
		e.ptymon.unkey(now)
	}

	return e, nil
}

// build_sources registers every configured source.  Order matters:
// it is the deterministic tie-break for equal priorities, so it is
// fixed here and nowhere else.
func (e *Engine) build_sources() {
	var cfg = e.cfg

	e.mumbleSrc = e.add_network_source("mumble", CLASS_MUMBLE, cfg.Sources.Mumble)
	e.inbound = new_mumble_inbound(e.mumbleSrc)

	e.add_capture_source("sdr1", CLASS_SDR, cfg.Sources.SDR1)
	e.add_capture_source("sdr2", CLASS_SDR, cfg.Sources.SDR2)

	e.linkSrc = e.add_network_source("link", CLASS_LINK, cfg.Sources.Link)
	if cfg.Link.Enabled && cfg.Sources.Link.Enabled {
		e.link = new_audio_link(e.linkSrc, cfg.Link.Addr, cfg.Link.Role == "listen",
			time.Duration(cfg.Link.ReconnectS)*time.Second, cfg.Link.Announce, cfg.ChunkSamples())
	}

	e.add_capture_source("echolink", CLASS_ECHOLINK, cfg.Sources.EchoLink)

	e.announceGen = new_playback_generator()
	e.add_generator_source("announce", CLASS_ANNOUNCE, cfg.Sources.Announce, e.announceGen)

	e.fileGen = new_playback_generator()
	e.add_generator_source("file", CLASS_FILE, cfg.Sources.File, e.fileGen)

	e.morseGen = new_morse_generator(cfg.Audio.SampleRate, cfg.Morse.WPM, cfg.Morse.ToneHz)
	e.morseSrc = e.add_generator_source("morse", CLASS_MORSE, cfg.Sources.Morse, e.morseGen)
}

func (e *Engine) new_source(name string, class SourceClass, sc SourceConfig) *Source {
	var s = &Source{
		Name:     name,
		Class:    class,
		Priority: sc.Priority,
		Duck:     sc.Duck,
		Volume:   sc.Volume,
		ToMumble: sc.ToMumble,
		ToRadio:  sc.ToRadio,
		health:   new_device_health(),
	}
	s.set_enabled(sc.Enabled)
	return s
}

// add_network_source: fed asynchronously by a protocol adapter, no
// ingest goroutine, no watchdog.
func (e *Engine) add_network_source(name string, class SourceClass, sc SourceConfig) *Source {
	var s = e.new_source(name, class, sc)
	s.queue = new_chunk_queue(e.cfg.Audio.QueueDepth)
	s.det = e.new_detector()
	s.dsp = NewPipeline(e.cfg.dsp_settings(), e.cfg.Audio.SampleRate)
	e.reg.add(s)
	return s
}

// add_capture_source: a hardware device with ingest and watchdog.
func (e *Engine) add_capture_source(name string, class SourceClass, sc SourceConfig) *Source {
	var s = e.new_source(name, class, sc)
	s.queue = new_chunk_queue(e.cfg.Audio.QueueDepth)
	s.det = e.new_detector()
	s.dsp = NewPipeline(e.cfg.dsp_settings(), e.cfg.Audio.SampleRate)
	e.reg.add(s)

	if !sc.Enabled {
		return s
	}

	var dev, err = open_capture_device(sc.Device, e.cfg.Audio.SampleRate, e.cfg.PeriodSamples())
	if err != nil {
		// Not fatal: the watchdog owns device recovery from here.
		log.Warn("capture device not available at startup, watchdog will retry",
			"source", name, "device", sc.Device, "error", err)
	}

	var in = new_ingest(s, dev, e.cfg.ChunkSamples(), e.cfg.PrefillChunks())
	e.ingests = append(e.ingests, in)
	e.watchdogs = append(e.watchdogs, new_watchdog(s, in,
		time.Duration(e.cfg.Watchdog.TimeoutS)*time.Second,
		e.cfg.Watchdog.MaxRestarts, e.cfg.Watchdog.Helper))
	return s
}

// add_generator_source: synthetic, pulls chunks straight out of a
// generator, active while material is pending.
func (e *Engine) add_generator_source(name string, class SourceClass, sc SourceConfig, gen chunk_generator) *Source {
	var s = e.new_source(name, class, sc)
	s.gen = gen
	s.BypassDetection = true
	e.reg.add(s)
	return s
}

func (e *Engine) new_detector() *Detector {
	return NewDetector(e.cfg.Detect.ThresholdDBFS,
		time.Duration(e.cfg.Detect.AttackMS)*time.Millisecond,
		time.Duration(e.cfg.Detect.ReleaseMS)*time.Millisecond,
		time.Duration(e.cfg.Detect.VadMinMS)*time.Millisecond)
}

/*-------------------------------------------------------------------
 *
 * Name:	Engine accessors for collaborators.
 *
 *--------------------------------------------------------------------*/

// Inbound returns the sink for decoded Mumble events.
func (e *Engine) Inbound() *mumble_inbound {
	return e.inbound
}

// Announce queues a synthesized announcement (e.g. TTS output).
func (e *Engine) Announce(pcm []int16) {
	e.announceGen.queue_pcm(pcm)
}

// PlayFile queues a WAV file on the file playback source.
func (e *Engine) PlayFile(path string) error {
	return e.fileGen.queue_file(path, e.cfg.Audio.SampleRate)
}

// MorseText queues text on the Morse generator.
func (e *Engine) MorseText(text string) {
	e.morseGen.queue_text(text)
}

/*-------------------------------------------------------------------
 *
 * Name:	Engine.Run
 *
 * Purpose:	Run until the context is cancelled.
 *
 *--------------------------------------------------------------------*/

func (e *Engine) Run(ctx context.Context) error {
	var ingestCtx, ingestCancel = context.WithCancel(context.Background())
	defer ingestCancel()

	var g, gctx = errgroup.WithContext(ingestCtx)

	for _, in := range e.ingests {
		var in = in
		g.Go(func() error {
			in.run(gctx)
			return nil
		})
	}
	for _, w := range e.watchdogs {
		var w = w
		g.Go(func() error {
			w.run(gctx)
			return nil
		})
	}
	if e.link != nil {
		g.Go(func() error {
			return e.link.run(gctx)
		})
	}

	log.Info("bridge running",
		"chunk_ms", e.cfg.Audio.ChunkMS,
		"sources", len(e.reg.all()),
		"ptt_activation_ms", e.cfg.PTT.ActivationMS,
		"ptt_release_ms", e.cfg.PTT.ReleaseMS)

	// The tick loop owns all arbitration state and runs here.
	e.run_loop(ctx)

	// Ordered shutdown: tick loop is already stopped, transmitter
	// must never be left keyed.
	e.ptt.ForceIdle(time.Now())
	if e.alog != nil {
		e.alog.close()
	}
	e.ptymon.close()

	ingestCancel()
	var joined = make(chan error, 1)
	go func() {
		joined <- g.Wait()
	}()

	select {
	case err := <-joined:
		if err != nil {
			log.Warn("background goroutine reported error at shutdown", "error", err)
		}
	case <-time.After(SHUTDOWN_JOIN_TIMEOUT):
		log.Warn("ingest goroutines did not stop in time, abandoning them")
	}

	log.Info("bridge stopped")
	return nil
}
