// Package logging builds the process-wide zap.Logger. The external line
// format is pinned to "YYYY-MM-DDTHH:MM:SS [LEVEL] - message" (spec §6),
// matching the original implementation's env_logger formatter rather than
// zap's default JSON or console encoders.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger writing to stdout with the pinned line format.
func New(debug bool) *zap.Logger {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	core := zapcore.NewCore(newLineEncoder(), zapcore.AddSync(os.Stdout), level)
	return zap.New(core)
}

var pool = buffer.NewPool()

// lineEncoder formats each entry as "YYYY-MM-DDTHH:MM:SS [LEVEL] - message
// key=value ...", the one external line format this system ever emits.
type lineEncoder struct {
	*zapcore.MapObjectEncoder
}

func newLineEncoder() *lineEncoder {
	return &lineEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (e *lineEncoder) Clone() zapcore.Encoder {
	clone := newLineEncoder()
	for k, v := range e.MapObjectEncoder.Fields {
		clone.MapObjectEncoder.Fields[k] = v
	}
	return clone
}

func levelWord(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (e *lineEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	fieldEnc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(fieldEnc)
	}

	line := pool.Get()
	line.AppendString(entry.Time.Format("2006-01-02T15:04:05"))
	line.AppendString(" [")
	line.AppendString(levelWord(entry.Level))
	line.AppendString("] - ")
	line.AppendString(entry.Message)
	for k, v := range fieldEnc.Fields {
		line.AppendString(" ")
		line.AppendString(k)
		line.AppendString("=")
		fmt.Fprintf(line, "%v", v)
	}
	line.AppendString("\n")
	return line, nil
}
