package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. Tests may swap its output.
var Log = logrus.New()

type Options struct {
	File   string
	Level  string
	Format string
}

func NewLogger(opts Options) {
	if opts.File == "" {
		opts.File = "router.log"
	}
	logFile := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     28, //days
	}

	// Set log output to the file and console
	Log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	if opts.Format == "json" {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	Log.Info("Logging has been initialized...")
}

func Info(msg string, keyvals ...any) {
	Log.WithFields(fields(keyvals)).Info(msg)
}

func Warn(msg string, keyvals ...any) {
	Log.WithFields(fields(keyvals)).Warn(msg)
}

func Error(msg string, keyvals ...any) {
	Log.WithFields(fields(keyvals)).Error(msg)
}

func Debug(msg string, keyvals ...any) {
	Log.WithFields(fields(keyvals)).Debug(msg)
}

// fields turns alternating key/value pairs into logrus fields. A dangling
// key is kept with the value "MISSING".
func fields(keyvals []any) logrus.Fields {
	f := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 < len(keyvals) {
			f[key] = keyvals[i+1]
		} else {
			f[key] = "MISSING"
		}
	}
	return f
}
