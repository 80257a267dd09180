// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package usage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

// newTestLedger creates a ledger backed by a file in a temp dir.
func newTestLedger(t *testing.T, userLimit, totalLimit int) *Ledger {
	t.Helper()
	return NewLedger(types.UsageConfig{
		DailyUserLimit:  userLimit,
		DailyTotalLimit: totalLimit,
		LedgerPath:      filepath.Join(t.TempDir(), "api_usage.json"),
	})
}

// setNow pins the ledger clock and restores it when the test finishes.
func setNow(t *testing.T, day time.Time) {
	t.Helper()
	nowFunc = func() time.Time { return day }
	t.Cleanup(func() { nowFunc = time.Now })
}

func TestAllowAndRecord(t *testing.T) {
	l := newTestLedger(t, 5, 100)

	require.NoError(t, l.Allow("radim"))
	require.NoError(t, l.Record("radim"))
	require.NoError(t, l.Record("radim"))

	stats := l.Stats()
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 2, stats.UserCalls["radim"])
	assert.Equal(t, 5, stats.UserLimit)
	assert.Equal(t, 100, stats.TotalLimit)
}

func TestUserLimitDenied(t *testing.T) {
	l := newTestLedger(t, 2, 100)

	require.NoError(t, l.Record("radim"))
	require.NoError(t, l.Record("radim"))

	err := l.Allow("radim")
	require.Error(t, err)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "user", limitErr.Scope)
	assert.Equal(t, "radim", limitErr.User)
	assert.Equal(t, 2, limitErr.Used)
	assert.Equal(t, 2, limitErr.Limit)
	assert.Contains(t, err.Error(), "daily user limit reached for radim")

	// Another user is still allowed.
	assert.NoError(t, l.Allow("guest"))
}

func TestTotalLimitDenied(t *testing.T) {
	l := newTestLedger(t, 10, 3)

	require.NoError(t, l.Record("a"))
	require.NoError(t, l.Record("b"))
	require.NoError(t, l.Record("c"))

	err := l.Allow("d")
	require.Error(t, err)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "total", limitErr.Scope)
	assert.Contains(t, err.Error(), "daily total limit reached")
}

func TestDayRollover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_usage.json")
	day1 := time.Date(2026, 3, 1, 23, 50, 0, 0, time.Local)
	setNow(t, day1)

	l := NewLedger(types.UsageConfig{DailyUserLimit: 2, DailyTotalLimit: 10, LedgerPath: path})
	require.NoError(t, l.Record("radim"))
	require.NoError(t, l.Record("radim"))
	require.Error(t, l.Allow("radim"))

	// Next day: counts reset and the reset is persisted.
	nowFunc = func() time.Time { return day1.AddDate(0, 0, 1) }

	assert.NoError(t, l.Allow("radim"))
	stats := l.Stats()
	assert.Equal(t, "2026-03-02", stats.Date)
	assert.Equal(t, 0, stats.TotalCalls)
	assert.Empty(t, stats.UserCalls)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2026-03-02")
}

func TestRecordPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_usage.json")
	cfg := types.UsageConfig{LedgerPath: path}

	l := NewLedger(cfg)
	require.NoError(t, l.Record("radim"))
	require.NoError(t, l.Record("guest"))

	// A second ledger sees the persisted counts.
	reloaded := NewLedger(cfg)
	stats := reloaded.Stats()
	assert.Equal(t, 2, stats.TotalCalls)
	assert.Equal(t, 1, stats.UserCalls["radim"])
	assert.Equal(t, 1, stats.UserCalls["guest"])

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestLedgerFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_usage.json")
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))

	l := NewLedger(types.UsageConfig{LedgerPath: path})
	require.NoError(t, l.Record("radim"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk struct {
		Date       string         `json:"date"`
		TotalCalls int            `json:"total_calls"`
		Users      map[string]int `json:"users"`
	}
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Equal(t, "2026-03-01", onDisk.Date)
	assert.Equal(t, 1, onDisk.TotalCalls)
	assert.Equal(t, map[string]int{"radim": 1}, onDisk.Users)
}

func TestCorruptLedgerStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api_usage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := NewLedger(types.UsageConfig{LedgerPath: path})
	assert.NoError(t, l.Allow("radim"))
	assert.Equal(t, 0, l.Stats().TotalCalls)
	assert.NoError(t, l.Record("radim"))
}

func TestLedgerWithoutUsersField(t *testing.T) {
	// Ledgers written before per-user tracking carry only date and total.
	path := filepath.Join(t.TempDir(), "api_usage.json")
	setNow(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local))
	require.NoError(t, os.WriteFile(path, []byte(`{"date":"2026-03-01","total_calls":5}`), 0o644))

	l := NewLedger(types.UsageConfig{DailyTotalLimit: 6, LedgerPath: path})
	assert.Equal(t, 5, l.Stats().TotalCalls)

	require.NoError(t, l.Record("radim"))
	err := l.Allow("radim")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "total", limitErr.Scope)
}

func TestDefaults(t *testing.T) {
	l := NewLedger(types.UsageConfig{LedgerPath: filepath.Join(t.TempDir(), "api_usage.json")})
	stats := l.Stats()
	assert.Equal(t, DefaultUserLimit, stats.UserLimit)
	assert.Equal(t, DefaultTotalLimit, stats.TotalLimit)
}

func TestLimitErrorUnwrapsFromWrapped(t *testing.T) {
	l := newTestLedger(t, 0, 0)
	for i := 0; i < DefaultUserLimit; i++ {
		require.NoError(t, l.Record("radim"))
	}

	err := l.Allow("radim")
	wrapped := errors.Join(errors.New("context"), err)

	var limitErr *LimitError
	assert.ErrorAs(t, wrapped, &limitErr)
}
