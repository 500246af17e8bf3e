package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Sound hardware, through portaudio.
 *
 * Description: Capture devices (SDR receiver taps, the EchoLink
 *		receiver, the announcement input) implement the
 *		frame_reader contract used by ingest: blocking period
 *		reads, reopenable by the watchdog.  The playback
 *		device drives the transmitter's audio input; it is
 *		invoked from the tick loop but buffers internally so a
 *		slow ALSA write can never hold up a tick.
 *
 *		Devices are selected by substring match on the
 *		portaudio device name, empty for the system default -
 *		same approach as every other sound card application,
 *		because nobody can predict what hotplug will call a
 *		USB dongle this boot.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
)

var pa_init_once sync.Once
var pa_init_err error

// pa_init initializes portaudio exactly once for the process.
// Teardown is deliberately omitted; portaudio is needed until exit.
func pa_init() error {
	pa_init_once.Do(func() {
		pa_init_err = portaudio.Initialize()
	})
	return pa_init_err
}

// pa_find_device returns the first device whose name contains name,
// restricted to inputs or outputs.  Empty name means system default.
func pa_find_device(name string, wantInput bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if wantInput {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	var devices, err = portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing audio devices: %w", err)
	}

	for _, d := range devices {
		if !strings.Contains(strings.ToLower(d.Name), strings.ToLower(name)) {
			continue
		}
		if wantInput && d.MaxInputChannels < 1 {
			continue
		}
		if !wantInput && d.MaxOutputChannels < 1 {
			continue
		}
		return d, nil
	}

	return nil, fmt.Errorf("no audio device matching %q", name)
}

/*-------------------------------------------------------------------
 *
 * Name:	capture_device
 *
 * Purpose:	One mono input stream, read in fixed periods.
 *
 * Description:	The lock serializes read_period against the
 *		watchdog's reopen.  A reopen in the middle of a read
 *		makes the pending read fail, which is fine - the
 *		ingest loop treats it as one more transient error.
 *
 *--------------------------------------------------------------------*/

type capture_device struct {
	name       string
	sampleRate int
	period     int // samples per read

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// open_capture_device returns the device even when the initial open
// fails: read_period then errors until the watchdog's reopen brings
// the hardware back.
func open_capture_device(name string, sampleRate int, period int) (*capture_device, error) {
	var d = &capture_device{name: name, sampleRate: sampleRate, period: period}
	return d, d.open()
}

func (d *capture_device) open() error {
	if err := pa_init(); err != nil {
		return fmt.Errorf("initializing portaudio: %w", err)
	}

	var info, err = pa_find_device(d.name, true)
	if err != nil {
		return err
	}

	var params = portaudio.HighLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(d.sampleRate)
	params.FramesPerBuffer = d.period

	d.buf = make([]int16, d.period)

	var stream, openErr = portaudio.OpenStream(params, &d.buf)
	if openErr != nil {
		return fmt.Errorf("opening capture device %q: %w", info.Name, openErr)
	}

	if startErr := stream.Start(); startErr != nil {
		stream.Close()
		return fmt.Errorf("starting capture device %q: %w", info.Name, startErr)
	}

	d.stream = stream
	log.Info("capture device open", "device", info.Name, "rate", d.sampleRate, "period", d.period)
	return nil
}

func (d *capture_device) read_period() ([]int16, error) {
	d.mu.Lock()
	var stream = d.stream
	d.mu.Unlock()

	if stream == nil {
		return nil, fmt.Errorf("capture device %q is closed", d.name)
	}

	if err := stream.Read(); err != nil {
		return nil, fmt.Errorf("reading capture device %q: %w", d.name, err)
	}

	var out = make([]int16, len(d.buf))
	copy(out, d.buf)
	return out, nil
}

func (d *capture_device) reopen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		d.stream.Abort()
		d.stream.Close()
		d.stream = nil
	}
	return d.open()
}

func (d *capture_device) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}
	var err = d.stream.Close()
	d.stream = nil
	return err
}

/*-------------------------------------------------------------------
 *
 * Name:	playback_device
 *
 * Purpose:	The transmitter audio output.
 *
 * Description:	The tick loop hands over one chunk and moves on; a
 *		writer goroutine does the blocking device writes.  The
 *		handoff queue uses the same drop-newest policy as
 *		ingest, so a wedged output device costs audio, not
 *		ticks.
 *
 *--------------------------------------------------------------------*/

type playback_device struct {
	name       string
	sampleRate int
	chunkSize  int

	stream *portaudio.Stream
	buf    []int16
	out    chan []int16
	done   chan struct{}
}

func open_playback_device(name string, sampleRate int, chunkSize int) (*playback_device, error) {
	if err := pa_init(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	var info, err = pa_find_device(name, false)
	if err != nil {
		return nil, err
	}

	var d = &playback_device{
		name:       name,
		sampleRate: sampleRate,
		chunkSize:  chunkSize,
		buf:        make([]int16, chunkSize),
		out:        make(chan []int16, 8),
		done:       make(chan struct{}),
	}

	var params = portaudio.HighLatencyParameters(nil, info)
	params.Output.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = chunkSize

	var stream, openErr = portaudio.OpenStream(params, &d.buf)
	if openErr != nil {
		return nil, fmt.Errorf("opening playback device %q: %w", info.Name, openErr)
	}
	if startErr := stream.Start(); startErr != nil {
		stream.Close()
		return nil, fmt.Errorf("starting playback device %q: %w", info.Name, startErr)
	}
	d.stream = stream

	go d.writer()

	log.Info("playback device open", "device", info.Name, "rate", sampleRate)
	return d, nil
}

// write_chunk hands one chunk to the writer without blocking.
func (d *playback_device) write_chunk(pcm []int16) {
	select {
	case d.out <- pcm:
	default:
		log.Debug("playback queue full, chunk dropped", "device", d.name)
	}
}

func (d *playback_device) writer() {
	for pcm := range d.out {
		copy(d.buf, pcm)
		if err := d.stream.Write(); err != nil {
			log.Debug("playback write failed", "device", d.name, "error", err)
		}
	}
	close(d.done)
}

func (d *playback_device) close() error {
	close(d.out)
	<-d.done
	d.stream.Abort()
	return d.stream.Close()
}
