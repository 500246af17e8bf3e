package basenji

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPttMonitor verifies the pseudo terminal comes up with its
// symlink, accepts events and tears down cleanly.  Skipped where the
// environment has no pty support.
func TestPttMonitor(t *testing.T) {
	var p = open_ptt_monitor()
	if p == nil {
		t.Skip("no pty support in this environment")
	}
	defer p.close()

	var _, err = os.Lstat(PTYMON_SYMLINK)
	assert.NoError(t, err, "symlink should exist while the monitor is up")

	var t0 = time.Now()
	p.key(t0, "mumble")
	p.unkey(t0.Add(2 * time.Second))

	p.close()
	_, err = os.Lstat(PTYMON_SYMLINK)
	assert.Error(t, err, "symlink should be removed on close")
}

// TestPttMonitorNilSafe verifies a disabled monitor is a no-op, since
// the engine calls through it unconditionally.
func TestPttMonitorNilSafe(t *testing.T) {
	var p *ptt_monitor
	p.key(time.Now(), "x")
	p.unkey(time.Now())
	p.close()
}
