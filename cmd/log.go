package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/cwbudde/beamlayout/internal/config"
)

// newLogger builds the process logger. JSON goes to stdout for log
// collectors; text uses a charm logger on stderr.
func newLogger(l config.Log) (*slog.Logger, error) {
	if strings.ToLower(l.Format) == "json" {
		return newJSONLogger(os.Stdout, l.Level)
	}
	return newTextLogger(os.Stderr, l.Level)
}

func newJSONLogger(w io.Writer, levelName string) (*slog.Logger, error) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// newTextLogger formats timestamps as "HH:MM:SS.ms" (e.g. "14:32:01.45").
func newTextLogger(w io.Writer, levelName string) (*slog.Logger, error) {
	level, err := config.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	handler := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           log.Level(level),
	})
	return slog.New(handler), nil
}
