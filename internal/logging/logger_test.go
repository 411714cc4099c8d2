package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("warn")
	l := NewLogger("Processor").With("job", "j-1")
	l.Info("hidden")
	l.Warn("chunk failed", "chunk", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info entry written at warn level: %s", out)
	}
	for _, want := range []string{"chunk failed", "component=Processor", "job=j-1", "chunk=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
