package ladderlib

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the host logger from cfg. The returned closer flushes the
// log file, if one was opened.
func NewLogger(cfg LogConfig) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
		}
		level = l
	}

	var writers []io.Writer
	var closer io.Closer = nopCloser{}
	for _, w := range cfg.Writer {
		switch w {
		case "console":
			if term.IsTerminal(int(os.Stdout.Fd())) {
				writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
			} else {
				writers = append(writers, os.Stdout)
			}
		case "file":
			file := &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     7, // days
			}
			writers = append(writers, file)
			closer = file
		default:
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("unknown log writer '%s'", w)
		}
	}
	if len(writers) == 0 {
		return zerolog.Nop(), closer, nil
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
