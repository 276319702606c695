// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package logging provides the diagnostic logger. Operator-facing result
// lines are plain stdout; zap carries only debug diagnostics, enabled
// with --verbose.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger
	once   sync.Once
)

// Init builds the global logger. Verbose enables debug level; otherwise
// only warnings and above surface. Init is once-guarded; later calls are
// no-ops.
func Init(verbose bool) {
	once.Do(func() {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err := cfg.Build()
		if err != nil {
			logger = zap.NewNop()
		}
		global = logger
	})
}

// L returns the global logger, initializing it quiet if needed.
func L() *zap.Logger {
	if global == nil {
		Init(false)
	}
	return global
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}
