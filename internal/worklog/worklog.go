// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package worklog appends structured JSON records of notable tool activity
// (AI calls, quota denials, ingest summaries) to the workspace log file.
// Logging is strictly best-effort: a workspace without a logs/ directory
// gets a no-op logger, and a failure to open the file degrades to no-op
// with a warning instead of blocking the command.
package worklog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logsDir     = "logs"
	logFileName = "pv-planner.log"
)

// Options configure where the worklog is written.
type Options struct {
	// Workspace is the workspace root. The log file lives at
	// <workspace>/logs/pv-planner.log, and only when logs/ already exists.
	Workspace string

	// Path overrides the derived location. When set, parent directories
	// are created as needed.
	Path string
}

// Open returns a logger appending JSON records to the worklog, and a close
// function that flushes it. The returned logger is never nil: when the
// workspace has no logs/ directory or the file cannot be opened, Open
// returns a no-op logger so callers log unconditionally.
func Open(opts Options) (*zap.Logger, func()) {
	path := opts.Path
	if path == "" {
		dir := filepath.Join(opts.Workspace, logsDir)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return zap.NewNop(), func() {}
		}
		path = filepath.Join(dir, logFileName)
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create log directory %s: %v; logging disabled\n", dir, err)
			return zap.NewNop(), func() {}
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open worklog %s: %v; logging disabled\n", path, err)
		return zap.NewNop(), func() {}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), zapcore.InfoLevel)
	logger := zap.New(core)

	return logger, func() {
		_ = logger.Sync()
		_ = file.Close()
	}
}
