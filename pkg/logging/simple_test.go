package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestDefaultWriter(t *testing.T) {
	s := NewSimpleLogSink(nil, 1, false)
	if s.writer != os.Stderr {
		t.Errorf("expected default writer to be os.Stderr, got %v", s.writer)
	}
}

func TestEnabled(t *testing.T) {
	s := NewSimpleLogSink(&bytes.Buffer{}, 1, false)
	if !s.Enabled(0) {
		t.Error("expected level 0 to be enabled")
	}
	if !s.Enabled(1) {
		t.Error("expected level 1 to be enabled")
	}
	if s.Enabled(2) {
		t.Error("expected level 2 to be disabled")
	}
}

func TestInfoLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 1, false)
	s.Info(0, "Hello world", "key", "value")
	output := buf.String()

	if !strings.Contains(output, "Hello world") {
		t.Errorf("expected output to contain 'Hello world', got %q", output)
	}
	if !strings.Contains(output, "key: value") {
		t.Errorf("expected output to contain key-value pair, got %q", output)
	}
	if !strings.Contains(output, "[INFO]") {
		t.Errorf("expected output to contain [INFO] label, got %q", output)
	}
}

func TestInfoNotLoggedWhenDisabled(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 0, false)
	s.Info(1, "This should not be logged", "foo", "bar")
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestErrorLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 0, false)
	s.Error(errors.New("boom"), "something failed")
	output := buf.String()

	if !strings.Contains(output, "[ERROR]") {
		t.Errorf("expected output to contain [ERROR] label, got %q", output)
	}
	if !strings.Contains(output, "error: boom") {
		t.Errorf("expected output to contain wrapped error, got %q", output)
	}
}

func TestWithName(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSimpleLogSink(buf, 0, false)
	named := s.WithName("disc").(*SimpleLogSink)
	named.Info(0, "opened")
	if !strings.Contains(buf.String(), "[disc] opened") {
		t.Errorf("expected name prefix in output, got %q", buf.String())
	}
}

func TestWrapperLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(NewSimpleLogger(buf, LEVEL_TRACE, false))
	logger.Info("a")
	logger.Debug("b")
	logger.Trace("c")
	logger.Warn("d")

	output := buf.String()
	for _, want := range []string{"[INFO] a", "[DEBUG] b", "[TRACE] c", "[INFO] d"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got %q", want, output)
		}
	}
}
