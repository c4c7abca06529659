package config_test

import (
	"testing"
	"time"

	"github.com/voxhire/voxhire/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogInfo},
		Interview: config.InterviewConfig{ID: "int-1"},
		Providers: config.ProvidersConfig{
			Agent: config.ProviderEntry{Name: "gemini-live"},
		},
		Audio: config.AudioConfig{SilenceThreshold: 0.004},
	}
}

func TestDiff_NoChange(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AudioChanged || d.SnapshotIntervalChanged {
		t.Errorf("unexpected diff for identical configs: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q; want debug", d.NewLogLevel)
	}
}

func TestDiff_Audio(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Audio.SilenceThreshold = 0.01
	new.Audio.FlushSamples = 1600

	d := config.Diff(old, new)
	if !d.AudioChanged {
		t.Fatal("audio tuning change not detected")
	}
	if d.NewAudio.FlushSamples != 1600 {
		t.Errorf("NewAudio = %+v", d.NewAudio)
	}
}

func TestDiff_SnapshotInterval(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Storage.SnapshotInterval = time.Minute

	d := config.Diff(old, new)
	if !d.SnapshotIntervalChanged {
		t.Fatal("snapshot interval change not detected")
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()

	old := baseConfig()
	new := baseConfig()
	new.Providers.Agent.Name = "openai-realtime"
	new.Storage.PostgresDSN = "postgres://elsewhere/db"

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AudioChanged || d.SnapshotIntervalChanged {
		t.Errorf("restart-only changes must not appear in the diff: %+v", d)
	}
}
