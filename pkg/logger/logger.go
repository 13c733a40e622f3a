// Package logger builds the zerolog loggers used across topicnote.
package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type LogBuild struct {
	writer  io.Writer
	path    string
	level   string
	console bool
}

type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

// Level sets the minimum level by name ("debug", "info", ...). Unknown or
// empty names keep the default of info.
func (build *LogBuild) Level(level string) *LogBuild {
	build.level = level
	return build
}

// Console switches to zerolog's human readable console output.
func (build *LogBuild) Console(enabled bool) *LogBuild {
	build.console = enabled
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = os.Stderr
	if build.writer != nil {
		logData.writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	} else if build.console {
		logData.writer = zerolog.ConsoleWriter{Out: logData.writer}
	}

	level := zerolog.InfoLevel
	if build.level != "" {
		if parsed, perr := zerolog.ParseLevel(build.level); perr == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	logData.Logger = zerolog.New(logData.writer).Level(level).With().Timestamp().Logger()
	return
}

// Close releases the log file, if any.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}
