package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// logFile is the open debug log, nil when logging is discarded.
var logFile *os.File

func getLogFilePath() (string, error) {
	path, err := gap.NewScope(gap.User, "karaoke").LogPath("karaoke.log")
	if err != nil {
		return "", fmt.Errorf("could not find log directory: %w", err)
	}
	return path, nil
}

// setupLog silences logging, since the interface owns the terminal. Debug
// mode sends it to a file instead.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)
	log.SetReportTimestamp(true)

	if viper.GetBool("debug") {
		if err := logToFile(); err != nil {
			return nil, err
		}
	}
	return func() error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	}, nil
}

// logToFile appends debug logs to the log file. Calling it again is a
// no-op.
func logToFile() error {
	if logFile != nil {
		return nil
	}

	path, err := getLogFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("unable to open log file: %w", err)
	}

	logFile = f
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.Debug("Logging to file", "path", path)
	return nil
}
