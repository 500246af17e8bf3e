package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Pseudo terminal PTT monitor.
 *
 * Description: Creates a Linux pseudo terminal and streams one text
 *		line per transmitter state change:
 *
 *			KEY <source>
 *			UNKEY <seconds>
 *
 *		External tooling (repeater dashboards, logging scripts)
 *		attaches to the slave side like any serial device.  A
 *		symlink at a fixed path points at the slave, whose name
 *		changes from run to run.
 *
 *		Writes must never block the tick loop, so the master is
 *		put in non-blocking mode; a reader that stops draining
 *		just loses lines.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const PTYMON_SYMLINK = "/tmp/basenji-ptt"

type ptt_monitor struct {
	master *os.File
	slave  *os.File

	keyedAt time.Time
}

func open_ptt_monitor() *ptt_monitor {
	var ptmx, pts, err = pty.Open()
	if err != nil {
		log.Warn("could not create pseudo terminal for PTT monitor", "error", err)
		return nil
	}

	if fdErr := unix.SetNonblock(int(ptmx.Fd()), true); fdErr != nil {
		log.Warn("could not set PTT monitor non-blocking", "error", fdErr)
		ptmx.Close()
		pts.Close()
		return nil
	}

	// The slave name changes between runs; the symlink doesn't.
	os.Remove(PTYMON_SYMLINK)
	if linkErr := os.Symlink(pts.Name(), PTYMON_SYMLINK); linkErr != nil {
		log.Warn("could not create PTT monitor symlink", "path", PTYMON_SYMLINK, "error", linkErr)
	} else {
		log.Info("PTT monitor available", "path", PTYMON_SYMLINK, "pty", pts.Name())
	}

	return &ptt_monitor{master: ptmx, slave: pts}
}

func (p *ptt_monitor) key(now time.Time, source string) {
	if p == nil {
		return
	}
	p.keyedAt = now
	p.emit(fmt.Sprintf("KEY %s\n", source))
}

func (p *ptt_monitor) unkey(now time.Time) {
	if p == nil {
		return
	}
	var secs = 0.0
	if !p.keyedAt.IsZero() {
		secs = now.Sub(p.keyedAt).Seconds()
	}
	p.emit(fmt.Sprintf("UNKEY %.1f\n", secs))
}

func (p *ptt_monitor) emit(line string) {
	// Non-blocking master: EAGAIN when nobody is draining.  Lost
	// lines are fine, a stuck tick loop is not.
	if _, err := p.master.WriteString(line); err != nil {
		log.Debug("PTT monitor write failed", "error", err)
	}
}

func (p *ptt_monitor) close() {
	if p == nil {
		return
	}
	os.Remove(PTYMON_SYMLINK)
	p.master.Close()
	p.slave.Close()
}
