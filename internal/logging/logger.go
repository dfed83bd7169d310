// Package logging builds the structured logger shared by the hub process
// and its background services.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The teacher repo logs ad hoc with fmt/log; this package adopts
// go.uber.org/zap the way the wider pack's long-running network daemons
// configure it for a service binary: a level parsed from configuration, a
// console encoder for interactive use, the caller on every entry and a
// stacktrace on error+.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger at the given level name ("debug", "info",
// "warn", "error"; an empty value means "info", an unrecognized value is
// an error).
func New(levelName string) (*zap.Logger, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return logger, nil
}

func parseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q: %w", name, err)
	}
	return level, nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg
}
