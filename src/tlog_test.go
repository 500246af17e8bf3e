package basenji

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestActivityLogKeyUnkey verifies one keyed transmission produces a
// header, a key row and an unkey row with the duration.
func TestActivityLogKeyUnkey(t *testing.T) {
	var dir = t.TempDir()
	var a = new_activity_log(dir)

	var keyAt = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	a.key(keyAt, "mumble")
	a.unkey(keyAt.Add(3500 * time.Millisecond))
	a.close()

	var raw, err = os.ReadFile(filepath.Join(dir, "2026-08-25.log"))
	require.NoError(t, err)

	var lines = strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "time,event,source,seconds", lines[0])
	assert.Contains(t, lines[1], "key,mumble")
	assert.Contains(t, lines[2], "unkey,mumble,3.5")
}

// TestActivityLogDailyRollover verifies a new UTC day opens a new file
// and the old one keeps its rows.
func TestActivityLogDailyRollover(t *testing.T) {
	var dir = t.TempDir()
	var a = new_activity_log(dir)

	var day1 = time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	var day2 = time.Date(2026, 8, 26, 0, 1, 0, 0, time.UTC)

	a.key(day1, "sdr1")
	a.unkey(day2)
	a.close()

	var _, err1 = os.Stat(filepath.Join(dir, "2026-08-25.log"))
	var _, err2 = os.Stat(filepath.Join(dir, "2026-08-26.log"))
	assert.NoError(t, err1)
	assert.NoError(t, err2)
}

// TestActivityLogAppendsAcrossReopen verifies reopening the same day
// appends instead of rewriting the header.
func TestActivityLogAppendsAcrossReopen(t *testing.T) {
	var dir = t.TempDir()
	var when = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	var a = new_activity_log(dir)
	a.key(when, "mumble")
	a.unkey(when.Add(time.Second))
	a.close()

	var b = new_activity_log(dir)
	b.key(when.Add(time.Minute), "sdr1")
	b.unkey(when.Add(2*time.Minute))
	b.close()

	var raw, err = os.ReadFile(filepath.Join(dir, "2026-08-25.log"))
	require.NoError(t, err)

	var content = string(raw)
	assert.Equal(t, 1, strings.Count(content, "time,event,source,seconds"), "header only once")
	assert.Contains(t, content, "key,mumble")
	assert.Contains(t, content, "key,sdr1")
}

// TestActivityLogDisabled verifies a nil or dirless log never writes.
func TestActivityLogDisabled(t *testing.T) {
	var a *activity_log
	assert.False(t, a.enabled())

	var b = new_activity_log("")
	assert.False(t, b.enabled())
	b.key(time.Now(), "x") // must not panic
	b.unkey(time.Now())
}
