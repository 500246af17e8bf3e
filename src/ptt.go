package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Push to talk.
 *
 * Description: Two halves.  The line backends know how to raise and
 *		drop the physical PTT signal: a CM108 GPIO pin behind
 *		/dev/hidraw, a GPIO character device line, or a serial
 *		port RTS/DTR pin.  The state machine decides when.
 *
 *		  Idle --radio feed appears--> Activating
 *		       line asserted at once, but audio is held back
 *		       for the activation delay so the transmitter is
 *		       fully keyed before the first syllable.
 *		  Activating --delay elapsed--> Keyed
 *		       audio flows.
 *		  Keyed --radio feed empty--> Releasing
 *		       line stays asserted.
 *		  Releasing --release delay of continuous silence--> Idle
 *		       line dropped.  If the feed returns first we go
 *		       straight back to Keyed with no line transition
 *		       at all - that is the whole point: no relay
 *		       chatter on the gap between two sentences.
 *
 *		Exactly one line write per logical change.  The
 *		machine tracks the line state and never repeats a set.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

const (
	DEFAULT_PTT_ACTIVATION_DELAY = 250 * time.Millisecond
	DEFAULT_PTT_RELEASE_DELAY    = 800 * time.Millisecond
)

type PttState int

const (
	PTT_IDLE PttState = iota
	PTT_ACTIVATING
	PTT_KEYED
	PTT_RELEASING
)

func (s PttState) String() string {
	switch s {
	case PTT_IDLE:
		return "Idle"
	case PTT_ACTIVATING:
		return "Activating"
	case PTT_KEYED:
		return "Keyed"
	case PTT_RELEASING:
		return "Releasing"
	}
	return "?"
}

// ptt_line is the physical control line.  Implementations must be
// idempotence-agnostic; the state machine guarantees it never asks
// for the state the line is already in.
type ptt_line interface {
	set_ptt(active bool) error
	close() error
}

/*-------------------------------------------------------------------
 *
 * Name:	PttMachine
 *
 * Purpose:	Convert per-tick "radio output active" decisions into
 *		keyed/unkeyed transitions with delays.
 *
 *--------------------------------------------------------------------*/

type PttMachine struct {
	line            ptt_line
	activationDelay time.Duration
	releaseDelay    time.Duration

	state  PttState
	since  time.Time // when the current Activating/Releasing began
	lineOn bool

	// Observers for the transmission log.
	onKey   func(now time.Time)
	onUnkey func(now time.Time)
}

func NewPttMachine(line ptt_line, activationDelay, releaseDelay time.Duration) *PttMachine {
	return &PttMachine{
		line:            line,
		activationDelay: activationDelay,
		releaseDelay:    releaseDelay,
		state:           PTT_IDLE,
	}
}

func (m *PttMachine) State() PttState {
	return m.state
}

// Advance runs one tick of the machine.  active is whether the mixer
// chose a radio feed this tick.  The return value gates whether audio
// may actually be sent to the transmitter right now.
func (m *PttMachine) Advance(active bool, now time.Time) (txAudio bool) {
	switch m.state {
	case PTT_IDLE:
		if active {
			m.set_line(true, now)
			m.state = PTT_ACTIVATING
			m.since = now
		}

	case PTT_ACTIVATING:
		if !active {
			// Feed evaporated before we ever sent audio.  Hold the
			// line through the release delay anyway; dropping it
			// early is exactly the chatter we are avoiding.
			m.state = PTT_RELEASING
			m.since = now
			break
		}
		if now.Sub(m.since) >= m.activationDelay {
			m.state = PTT_KEYED
		}

	case PTT_KEYED:
		if !active {
			m.state = PTT_RELEASING
			m.since = now
		}

	case PTT_RELEASING:
		if active {
			// Back within the release window: no line transition.
			m.state = PTT_KEYED
			break
		}
		if now.Sub(m.since) >= m.releaseDelay {
			m.set_line(false, now)
			m.state = PTT_IDLE
		}
	}

	return m.state == PTT_KEYED
}

// ForceIdle unconditionally unkeys.  Called on every shutdown path;
// a transmitter left keyed by a crashed bridge is the one failure
// mode nobody forgives.
func (m *PttMachine) ForceIdle(now time.Time) {
	if m.lineOn {
		m.set_line(false, now)
	}
	m.state = PTT_IDLE
}

func (m *PttMachine) set_line(on bool, now time.Time) {
	if m.lineOn == on {
		return
	}
	if err := m.line.set_ptt(on); err != nil {
		log.Error("PTT line write failed", "active", on, "error", err)
		// Fall through and track the intent anyway so we do not
		// hammer the device every tick.
	}
	m.lineOn = on
	log.Info("PTT", "line", on)

	if on && m.onKey != nil {
		m.onKey(now)
	}
	if !on && m.onUnkey != nil {
		m.onUnkey(now)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:	open_ptt_line
 *
 * Purpose:	Build the configured line backend.
 *
 * Inputs:	cfg - the ptt section of the configuration.
 *
 * Description:	"cm108" uses the GPIO pin of a CM108/CM119 USB audio
 *		adapter.  "gpio" uses a line of a GPIO character
 *		device.  "serial" raises RTS or DTR on a serial port.
 *		"none" logs transitions and touches no hardware, for
 *		bench work without a transmitter attached.
 *
 *--------------------------------------------------------------------*/

func open_ptt_line(cfg PttConfig) (ptt_line, error) {
	switch cfg.Method {
	case "cm108":
		return open_cm108_line(cfg.Device, cfg.Pin)
	case "gpio":
		return open_gpio_line(cfg.Device, cfg.Pin)
	case "serial":
		return open_serial_line(cfg.Device, cfg.SerialSignal)
	case "none", "":
		return &null_line{}, nil
	}
	return nil, fmt.Errorf("unknown PTT method %q", cfg.Method)
}

// null_line is the bench backend.
type null_line struct{}

func (n *null_line) set_ptt(active bool) error {
	log.Debug("PTT (no hardware)", "active", active)
	return nil
}

func (n *null_line) close() error {
	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:	gpio_line
 *
 * Purpose:	PTT via a GPIO character device line.
 *
 *--------------------------------------------------------------------*/

type gpio_line struct {
	line *gpiocdev.Line
}

func open_gpio_line(chip string, offset int) (ptt_line, error) {
	if chip == "" {
		chip = "gpiochip0"
	}

	var l, err = gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer("basenji-ptt"))
	if err != nil {
		return nil, fmt.Errorf("requesting GPIO %s line %d: %w", chip, offset, err)
	}

	return &gpio_line{line: l}, nil
}

func (g *gpio_line) set_ptt(active bool) error {
	var v = 0
	if active {
		v = 1
	}
	return g.line.SetValue(v)
}

func (g *gpio_line) close() error {
	// Leave the line low on the way out.
	_ = g.line.SetValue(0)
	return g.line.Close()
}
