package observe

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLogging_JSONHandler(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	InitLogging(LoggingConfig{Level: "debug", JSON: true, Output: &buf})

	slog.Debug("pipeline ready", "component", "uplink")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "pipeline ready" || entry["component"] != "uplink" {
		t.Errorf("unexpected log entry: %v", entry)
	}
}

func TestInitLogging_LevelVarControlsOutput(t *testing.T) {
	orig := slog.Default()
	defer slog.SetDefault(orig)

	var buf bytes.Buffer
	level := InitLogging(LoggingConfig{Level: "info", Output: &buf})

	slog.Debug("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug line logged at info level")
	}

	level.Set(slog.LevelDebug)
	slog.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing after lowering the level")
	}
}
