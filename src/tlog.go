package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Save transmission activity to a log file.
 *
 * Description: Rather than a cryptic debug trace, write separated
 *		properties into CSV format for easy reading and later
 *		processing.  One file per UTC day, named by date, in
 *		the configured directory.  Records key and unkey
 *		events with the source that won the radio output and
 *		how long the transmitter was keyed.  No audio is ever
 *		written anywhere.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const TLOG_NAME_FORMAT = "%Y-%m-%d.log"

type activity_log struct {
	dir      string
	fp       *os.File
	w        *csv.Writer
	openName string

	keyedAt time.Time
	keyedBy string
}

func new_activity_log(dir string) *activity_log {
	return &activity_log{dir: dir}
}

func (a *activity_log) enabled() bool {
	return a != nil && a.dir != ""
}

/*-------------------------------------------------------------------
 *
 * Name:	activity_log.roll
 *
 * Purpose:	Open the file for today, closing yesterday's if the
 *		date rolled over.  UTC, so the rollover does not move
 *		with daylight saving.
 *
 *--------------------------------------------------------------------*/

func (a *activity_log) roll(now time.Time) bool {
	var fname, err = strftime.Format(TLOG_NAME_FORMAT, now.UTC())
	if err != nil {
		log.Warn("activity log name format failed", "error", err)
		return false
	}

	if a.fp != nil && fname == a.openName {
		return true
	}

	a.close()

	var full = filepath.Join(a.dir, fname)
	var _, statErr = os.Stat(full)
	var existed = statErr == nil

	var f, openErr = os.OpenFile(full, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0644)
	if openErr != nil {
		log.Warn("can't open activity log", "path", full, "error", openErr)
		return false
	}

	log.Info("opening activity log", "file", fname)
	a.fp = f
	a.w = csv.NewWriter(f)
	a.openName = fname

	if !existed {
		// Header only on the first line of a fresh file.
		a.w.Write([]string{"time", "event", "source", "seconds"}) //nolint:errcheck
		a.w.Flush()
	}
	return true
}

// key records the transmitter keying up.
func (a *activity_log) key(now time.Time, source string) {
	a.keyedAt = now
	a.keyedBy = source

	if !a.enabled() || !a.roll(now) {
		return
	}
	a.w.Write([]string{now.UTC().Format(time.RFC3339), "key", source, ""}) //nolint:errcheck
	a.w.Flush()
}

// unkey records the transmitter dropping, with the keyed duration.
func (a *activity_log) unkey(now time.Time) {
	if !a.enabled() || !a.roll(now) {
		return
	}

	var secs = ""
	if !a.keyedAt.IsZero() {
		secs = fmt.Sprintf("%.1f", now.Sub(a.keyedAt).Seconds())
	}
	a.w.Write([]string{now.UTC().Format(time.RFC3339), "unkey", a.keyedBy, secs}) //nolint:errcheck
	a.w.Flush()
}

func (a *activity_log) close() {
	if a.fp == nil {
		return
	}
	a.w.Flush()
	a.fp.Close()
	a.fp = nil
	a.w = nil
	a.openName = ""
}
