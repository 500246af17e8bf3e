package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	PTT via a serial port control signal.
 *
 * Description: The classic homebrew interface: RTS (or DTR) drives a
 *		transistor that keys the transmitter.  No data is ever
 *		sent on the port; only the modem control line moves.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkg/term"
)

type serial_line struct {
	port   *term.Term
	device string
	useRTS bool // false: DTR
}

func open_serial_line(devicename string, signal string) (ptt_line, error) {
	var useRTS bool
	switch strings.ToLower(signal) {
	case "rts", "":
		useRTS = true
	case "dtr":
		useRTS = false
	default:
		return nil, fmt.Errorf("serial PTT signal must be rts or dtr, not %q", signal)
	}

	var port, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", devicename, err)
	}

	var l = &serial_line{port: port, device: devicename, useRTS: useRTS}

	// Both lines float high on open with some USB adapters.  Start
	// with the keying line explicitly dropped.
	if clearErr := l.set_ptt(false); clearErr != nil {
		port.Close()
		return nil, clearErr
	}

	log.Info("serial PTT ready", "device", devicename, "signal", signal)
	return l, nil
}

func (l *serial_line) set_ptt(active bool) error {
	var err error
	if l.useRTS {
		err = l.port.SetRTS(active)
	} else {
		err = l.port.SetDTR(active)
	}
	if err != nil {
		return fmt.Errorf("setting PTT on %s: %w", l.device, err)
	}
	return nil
}

func (l *serial_line) close() error {
	_ = l.set_ptt(false)
	return l.port.Close()
}
