// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package usage enforces daily AI API call quotas. Counts are kept per user
// and in total, persisted as a small JSON ledger at the workspace root, and
// reset automatically on the first touch of a new day.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/RadimMusalek/pv-planner/pkg/types"
)

const (
	// DefaultUserLimit is the per-user daily call allowance.
	DefaultUserLimit = 10

	// DefaultTotalLimit is the daily call allowance across all users.
	DefaultTotalLimit = 100

	// DefaultLedgerFile is the ledger filename at the workspace root.
	DefaultLedgerFile = "api_usage.json"
)

// nowFunc returns the current local time. Tests override it to exercise
// day rollover.
var nowFunc = time.Now

// ledgerData is the JSON document persisted to the ledger file.
type ledgerData struct {
	Date       string         `json:"date"`
	TotalCalls int            `json:"total_calls"`
	Users      map[string]int `json:"users"`
}

// Stats is a point-in-time snapshot of the ledger for display.
type Stats struct {
	Date       string         `json:"date"`
	TotalCalls int            `json:"total_calls"`
	TotalLimit int            `json:"total_limit"`
	UserCalls  map[string]int `json:"user_calls"`
	UserLimit  int            `json:"user_limit"`
}

// LimitError reports a denied API call and the limit that would be exceeded.
type LimitError struct {
	Scope string // "user" or "total"
	User  string
	Used  int
	Limit int
}

func (e *LimitError) Error() string {
	if e.Scope == "user" {
		return fmt.Sprintf("daily user limit reached for %s (%d/%d calls); try again tomorrow", e.User, e.Used, e.Limit)
	}
	return fmt.Sprintf("daily total limit reached (%d/%d calls); try again tomorrow", e.Used, e.Limit)
}

// Ledger tracks daily API usage. It is safe for concurrent use within one
// process; cross-process writers last-write-wins on the ledger file.
type Ledger struct {
	userLimit  int
	totalLimit int
	path       string

	mu   sync.Mutex
	data ledgerData
}

// NewLedger opens (or starts) the ledger described by cfg. Zero limits fall
// back to the defaults. A missing ledger file starts a fresh day silently; a
// corrupt one starts fresh with a warning on stderr rather than failing, so
// a damaged ledger never blocks work.
func NewLedger(cfg types.UsageConfig) *Ledger {
	l := &Ledger{
		userLimit:  cfg.DailyUserLimit,
		totalLimit: cfg.DailyTotalLimit,
		path:       cfg.LedgerPath,
	}
	if l.userLimit <= 0 {
		l.userLimit = DefaultUserLimit
	}
	if l.totalLimit <= 0 {
		l.totalLimit = DefaultTotalLimit
	}
	if l.path == "" {
		l.path = DefaultLedgerFile
	}

	l.data = loadLedger(l.path)
	return l
}

// loadLedger reads the ledger file, tolerating absence and corruption.
func loadLedger(path string) ledgerData {
	fresh := ledgerData{Date: todayString(), Users: map[string]int{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "warning: could not read usage ledger %s: %v; starting fresh\n", path, err)
		}
		return fresh
	}

	var data ledgerData
	if err := json.Unmarshal(raw, &data); err != nil {
		fmt.Fprintf(os.Stderr, "warning: usage ledger %s is corrupt: %v; starting fresh\n", path, err)
		return fresh
	}
	if data.Date == "" {
		return fresh
	}
	if data.Users == nil {
		data.Users = map[string]int{}
	}
	return data
}

// Allow reports whether user may make an API call right now. It returns nil
// when the call is allowed and a *LimitError when a daily limit would be
// exceeded. The day rolls over before the check.
func (l *Ledger) Allow(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rolloverLocked(); err != nil {
		return err
	}

	if used := l.data.Users[user]; used >= l.userLimit {
		return &LimitError{Scope: "user", User: user, Used: used, Limit: l.userLimit}
	}
	if l.data.TotalCalls >= l.totalLimit {
		return &LimitError{Scope: "total", User: user, Used: l.data.TotalCalls, Limit: l.totalLimit}
	}
	return nil
}

// Record counts one completed API call for user and persists the ledger.
func (l *Ledger) Record(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rolloverLocked(); err != nil {
		return err
	}

	l.data.Users[user]++
	l.data.TotalCalls++
	return l.persistLocked()
}

// Stats returns a snapshot of today's usage. The day rolls over first, so a
// ledger left over from yesterday reads as zeroed.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Rollover failures only mean the reset was not persisted yet; the
	// snapshot itself is still correct.
	_ = l.rolloverLocked()

	users := make(map[string]int, len(l.data.Users))
	for user, calls := range l.data.Users {
		users[user] = calls
	}
	return Stats{
		Date:       l.data.Date,
		TotalCalls: l.data.TotalCalls,
		TotalLimit: l.totalLimit,
		UserCalls:  users,
		UserLimit:  l.userLimit,
	}
}

// rolloverLocked resets all counts when the stored date is not today and
// persists the reset. Callers must hold mu.
func (l *Ledger) rolloverLocked() error {
	today := todayString()
	if l.data.Date == today {
		return nil
	}
	l.data = ledgerData{Date: today, Users: map[string]int{}}
	return l.persistLocked()
}

// persistLocked writes the ledger atomically: a temp file in the same
// directory, then a rename. Callers must hold mu.
func (l *Ledger) persistLocked() error {
	raw, err := json.MarshalIndent(l.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling usage ledger: %w", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".usage-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary ledger in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing usage ledger %s: %w", l.path, err)
	}
	return nil
}

func todayString() string {
	return nowFunc().Format("2006-01-02")
}
