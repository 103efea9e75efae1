package logx

import (
	"bytes"
	"strings"
	"testing"
)

func TestFormatTelegramJSON(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","message":"fetch failed","comp":"vk","attempt":2}`)
	got := formatTelegramJSON(line)
	want := "[WARN] fetch failed\n- attempt=2\n- comp=vk"
	if got != want {
		t.Fatalf("formatTelegramJSON = %q, want %q", got, want)
	}
}

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))
	log.Warn("hello", Int("n", 3))
	out := buf.String()
	for _, want := range []string{`"level":"warn"`, `"comp":"test"`, `"n":3`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("expected zero logger")
	}
	l.Error("must not panic")
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warning"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}
