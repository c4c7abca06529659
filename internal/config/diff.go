package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (provider selection, storage, platform endpoints) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AudioChanged is true when any capture/uplink tuning value changed.
	// The new values apply to the next session, not the running one.
	AudioChanged bool
	NewAudio     AudioConfig

	// SnapshotIntervalChanged is true when the periodic persistence cadence
	// changed.
	SnapshotIntervalChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Audio != new.Audio {
		d.AudioChanged = true
		d.NewAudio = new.Audio
	}

	if old.Storage.SnapshotInterval != new.Storage.SnapshotInterval {
		d.SnapshotIntervalChanged = true
	}

	return d
}
