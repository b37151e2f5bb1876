package logging

import (
	"regexp"
	"testing"

	"go.uber.org/zap/zapcore"
)

var lineFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2} \[(DEBUG|INFO|WARN|ERROR)\] - .*\n$`)

func TestLineEncoder_MatchesExternalFormat(t *testing.T) {
	enc := newLineEncoder()
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "connected to broker"}

	buf, err := enc.EncodeEntry(entry, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lineFormat.MatchString(buf.String()) {
		t.Fatalf("line %q does not match expected format", buf.String())
	}
}

func TestLevelWord(t *testing.T) {
	cases := map[zapcore.Level]string{
		zapcore.DebugLevel: "DEBUG",
		zapcore.InfoLevel:  "INFO",
		zapcore.WarnLevel:  "WARN",
		zapcore.ErrorLevel: "ERROR",
		zapcore.FatalLevel: "ERROR",
	}
	for level, want := range cases {
		if got := levelWord(level); got != want {
			t.Fatalf("levelWord(%v) = %q, want %q", level, got, want)
		}
	}
}
