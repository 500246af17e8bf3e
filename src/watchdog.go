package basenji

/*------------------------------------------------------------------
 *
 * Purpose:   	Per-device staleness monitor and recovery supervisor.
 *
 * Description: Each hardware ingest source gets a watchdog.  When the
 *		time since the last good read exceeds the configured
 *		timeout the watchdog closes and reopens the device,
 *		flushes the queue and re-arms the pre-fill gate.  If
 *		configured, a privileged helper command is run first -
 *		typically something that reloads a flaky USB audio
 *		kernel module.
 *
 *		Recovery attempts are bounded.  restart_count is a
 *		lifetime counter, never reset by later success: a
 *		device that keeps falling over eventually gets marked
 *		permanently disabled and the mixer treats it as
 *		always-Silent.  Fatal for that source, never for the
 *		process.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DEFAULT_WATCHDOG_TIMEOUT      = 10 * time.Second
	DEFAULT_WATCHDOG_MAX_RESTARTS = 5

	WATCHDOG_POLL_INTERVAL = time.Second

	// Upper bound on a helper command; a hung helper must not
	// wedge the supervisor.
	WATCHDOG_HELPER_TIMEOUT = 15 * time.Second
)

// DeviceHealth is shared between exactly two parties: the owning
// ingest goroutine writes reads/failures, the watchdog reads them and
// owns the restart counter.  Nobody else looks at it.
type DeviceHealth struct {
	lastGoodRead        atomic.Int64 // unix nanos
	consecutiveFailures atomic.Uint32
	restartCount        uint32 // watchdog-only; lifetime, never reset
}

func new_device_health() *DeviceHealth {
	var h = &DeviceHealth{}
	h.lastGoodRead.Store(time.Now().UnixNano())
	return h
}

func (h *DeviceHealth) note_good_read() {
	h.lastGoodRead.Store(time.Now().UnixNano())
	h.consecutiveFailures.Store(0)
}

func (h *DeviceHealth) note_failure() {
	h.consecutiveFailures.Add(1)
}

func (h *DeviceHealth) last_good() time.Time {
	return time.Unix(0, h.lastGoodRead.Load())
}

func (h *DeviceHealth) failures() uint32 {
	return h.consecutiveFailures.Load()
}

func (h *DeviceHealth) restarts() uint32 {
	return h.restartCount
}

type watchdog struct {
	src         *Source
	in          *ingest
	timeout     time.Duration
	maxRestarts uint32
	helper      string // optional privileged recovery command
}

func new_watchdog(src *Source, in *ingest, timeout time.Duration, maxRestarts uint32, helper string) *watchdog {
	if timeout <= 0 {
		timeout = DEFAULT_WATCHDOG_TIMEOUT
	}
	if maxRestarts == 0 {
		maxRestarts = DEFAULT_WATCHDOG_MAX_RESTARTS
	}
	return &watchdog{src: src, in: in, timeout: timeout, maxRestarts: maxRestarts, helper: helper}
}

/*-------------------------------------------------------------------
 *
 * Name:	watchdog.run
 *
 * Purpose:	Poll for staleness, recover, give up when the budget
 *		is spent.
 *
 *--------------------------------------------------------------------*/

func (w *watchdog) run(ctx context.Context) {
	var ticker = time.NewTicker(WATCHDOG_POLL_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !w.src.Enabled() {
			return
		}

		var stale = time.Since(w.src.health.last_good())
		if stale < w.timeout {
			continue
		}

		if w.src.health.restartCount >= w.maxRestarts {
			w.src.set_enabled(false)
			log.Error("device restart budget exhausted, source disabled for the rest of this run",
				"source", w.src.Name, "restarts", w.src.health.restartCount)
			return
		}

		w.src.health.restartCount++
		log.Warn("device stale, attempting recovery",
			"source", w.src.Name, "stale", stale,
			"attempt", w.src.health.restartCount, "budget", w.maxRestarts)

		if w.helper != "" {
			w.run_helper(ctx)
		}

		if err := w.in.restart(); err != nil {
			log.Error("device recovery failed", "source", w.src.Name, "error", err)
			// Leave lastGoodRead alone; next poll past the timeout
			// burns the next attempt.
			continue
		}

		// Give the reopened device a full timeout to produce.
		w.src.health.lastGoodRead.Store(time.Now().UnixNano())
		log.Info("device reopened", "source", w.src.Name)
	}
}

// run_helper invokes the configured privileged recovery command,
// e.g. a script that reloads the USB audio kernel module.
func (w *watchdog) run_helper(ctx context.Context) {
	var hctx, cancel = context.WithTimeout(ctx, WATCHDOG_HELPER_TIMEOUT)
	defer cancel()

	var cmd = exec.CommandContext(hctx, "/bin/sh", "-c", w.helper) //nolint:gosec
	var out, err = cmd.CombinedOutput()
	if err != nil {
		log.Error("watchdog helper failed", "source", w.src.Name, "error", err, "output", string(out))
		return
	}
	log.Info("watchdog helper ran", "source", w.src.Name)
}
