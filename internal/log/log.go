package log

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// string representation that directly corresponds to zerolog.Level
type (
	LogLevel     string
	LogLevelList []LogLevel
)

const (
	DEBUG    LogLevel = "debug"
	INFO     LogLevel = "info"
	WARN     LogLevel = "warn"
	ERROR    LogLevel = "error"
	DISABLED LogLevel = "disabled"
	TRACE    LogLevel = "trace"
)

var Levels = LogLevelList{DEBUG, INFO, WARN, ERROR, DISABLED, TRACE}

// LogFile is the open log file, if any. Close it on exit.
var LogFile *os.File

func (lls LogLevelList) Strings() []string {
	s := make([]string, 0, len(lls))
	for _, l := range lls {
		s = append(s, string(l))
	}
	return s
}

func (ll LogLevel) String() string {
	return string(ll)
}

func (ll *LogLevel) Set(v string) error {
	if !slices.Contains(Levels, LogLevel(v)) {
		return fmt.Errorf("must be one of %v", Levels)
	}
	*ll = LogLevel(v)
	return nil
}

func (ll LogLevel) Type() string {
	return "LogLevel"
}

// ZerologLevel converts the level to zerolog's representation.
func (ll LogLevel) ZerologLevel() (zerolog.Level, error) {
	switch ll {
	case DEBUG:
		return zerolog.DebugLevel, nil
	case INFO:
		return zerolog.InfoLevel, nil
	case WARN:
		return zerolog.WarnLevel, nil
	case ERROR:
		return zerolog.ErrorLevel, nil
	case DISABLED:
		return zerolog.Disabled, nil
	case TRACE:
		return zerolog.TraceLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf(
		"invalid log level (options: %s)", strings.Join(Levels.Strings(), ", "),
	)
}

// InitWithLogLevel sets the global logger to write to stderr and, when
// logPath is not empty, to append to that file as well.
func InitWithLogLevel(logLevel LogLevel, logPath string) error {
	return initWithWriter(logLevel, logPath, os.Stderr)
}

func initWithWriter(logLevel LogLevel, logPath string, stderr io.Writer) error {
	var (
		logger  zerolog.Logger
		level   zerolog.Level
		writers []io.Writer
		err     error
	)

	level, err = logLevel.ZerologLevel()
	if err != nil {
		return fmt.Errorf("failed to convert log level: %w", err)
	}

	writers = append(writers, &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{Out: stderr, NoColor: stderr != os.Stderr}},
		Level:  level,
	})

	if logPath != "" {
		LogFile, err = os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: LogFile},
			Level:  level,
		})
	}
	logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(level).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return nil
}
