package utils

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var ErrUnexpectedLogLevel = errors.New("unexpected log level")

// Rotation limits of the log file.
const (
	logFileMaxSizeMB  = 50
	logFileMaxBackups = 5
	logFileMaxAgeDays = 28
)

// Configure the slog logger with a specific log level and potential output file.
//
// Valid log levels are "none", "error", "warn", "info", "debug". Any other value returns an error.
// logFile may either specify a file path or be empty, in which case the logger points to stdout.
// A log file is written as JSON and rotated once it grows past logFileMaxSizeMB.
//
// Returns the io.Closer of the log file (nil for stdout), so it may be gracefully shut:
// ```
// logCloser, err := utils.ConfigureDefaultLogger(...)
//
//	if logCloser != nil {
//		defer logCloser.Close()
//	}
//
// ```
func ConfigureDefaultLogger(logLevel string, logFile string, loggerOptions slog.HandlerOptions) (io.Closer, error) {
	switch logLevel {
	case "none":
		// No logging is required, disable the logger and return
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return nil, nil
	case "error":
		loggerOptions.Level = slog.LevelError
	case "warn":
		loggerOptions.Level = slog.LevelWarn
	case "info":
		loggerOptions.Level = slog.LevelInfo
	case "debug":
		loggerOptions.Level = slog.LevelDebug
	default:
		return nil, ErrUnexpectedLogLevel
	}

	// --------------------------------------------------------------------------------

	var logCloser io.Closer
	var slogHandler slog.Handler
	if logFile == "" {
		slogHandler = slog.NewTextHandler(os.Stdout, &loggerOptions)
	} else {
		rotatingFile := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
			MaxAge:     logFileMaxAgeDays,
		}
		// Fail now rather than on the first log line.
		if err := rotatingFile.Rotate(); err != nil {
			return nil, err
		}
		logCloser = rotatingFile
		slogHandler = slog.NewJSONHandler(rotatingFile, &loggerOptions)
	}

	// --------------------------------------------------------------------------------

	slog.SetDefault(slog.New(slogHandler))
	return logCloser, nil
}
