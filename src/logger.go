package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"go-arp-sim/src/internal/logger"
)

// LogLevel represents the severity of log messages
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var zerologLevels = map[LogLevel]zerolog.Level{
	DEBUG: zerolog.DebugLevel,
	INFO:  zerolog.InfoLevel,
	WARN:  zerolog.WarnLevel,
	ERROR: zerolog.ErrorLevel,
}

// out is where CLI output goes. Tests swap it for a buffer.
var out io.Writer = os.Stdout

// setupLogging installs the process logger. Log lines go to stderr so that
// they never interleave with command output.
func setupLogging(level string) error {
	return logger.Setup(level, os.Stderr)
}

// SetLogLevel sets the minimum log level to display
func SetLogLevel(level LogLevel) {
	logger.SetLevel(zerologLevels[level])
}

func netsimLog() *zerolog.Logger {
	l := logger.Component("netsim")
	return &l
}

// LogDebug logs a debug message
func LogDebug(format string, args ...interface{}) {
	netsimLog().Debug().Msgf(format, args...)
}

// LogInfo logs an informational message
func LogInfo(format string, args ...interface{}) {
	netsimLog().Info().Msgf(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...interface{}) {
	netsimLog().Warn().Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	netsimLog().Error().Msgf(format, args...)
}
