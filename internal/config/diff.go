package config

// Diff describes what changed between two configs. Only the log level is
// tracked as hot-reloadable; pipeline topology (worker pool size, model
// path, listen address) is fixed at process startup.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// DiffConfigs compares old and new and reports the hot-reloadable changes.
func DiffConfigs(old, new *Config) Diff {
	d := Diff{}
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	return d
}
