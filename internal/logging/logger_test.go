package logging

import (
	"bytes"
	"strings"
	"testing"
)

func newBufferedLogger(component string, level Level) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{
		level:     level,
		fields:    make(Fields),
		component: component,
		output:    &buf,
	}
	return l, &buf
}

func TestWriteFormatsLevelAndMessage(t *testing.T) {
	l, buf := newBufferedLogger("relay", DEBUG)
	l.Info("listening")

	line := buf.String()
	if !strings.Contains(line, "[INFO]") {
		t.Errorf("log line %q missing level tag", line)
	}
	if !strings.Contains(line, "listening") {
		t.Errorf("log line %q missing message", line)
	}
	if !strings.Contains(line, "(relay)") {
		t.Errorf("log line %q missing component tag", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferedLogger("client", WARN)
	l.Debug("should not appear")
	l.Info("should not appear either")

	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got %q", buf.String())
	}

	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected WARN message to be written, got %q", buf.String())
	}
}

func TestWithFieldAppendsKeyValue(t *testing.T) {
	l, buf := newBufferedLogger("relay", INFO)
	l.WithField("peer", "abcd1234").Info("handshake complete")

	if !strings.Contains(buf.String(), "peer=abcd1234") {
		t.Errorf("log line %q missing field", buf.String())
	}
}

func TestFormattedVariants(t *testing.T) {
	l, buf := newBufferedLogger("client", DEBUG)
	l.Errorf("failed after %d attempts", 3)

	if !strings.Contains(buf.String(), "failed after 3 attempts") {
		t.Errorf("log line %q missing formatted message", buf.String())
	}
}
