package config

import "testing"

func TestDiffConfigs_LogLevelChanged(t *testing.T) {
	old := Defaults()
	newCfg := Defaults()
	newCfg.LogLevel = LogDebug

	d := DiffConfigs(old, newCfg)
	if !d.LogLevelChanged {
		t.Fatalf("expected LogLevelChanged to be true")
	}
	if d.NewLogLevel != LogDebug {
		t.Fatalf("got new log level %q want debug", d.NewLogLevel)
	}
}

func TestDiffConfigs_NoChange(t *testing.T) {
	old := Defaults()
	newCfg := Defaults()

	d := DiffConfigs(old, newCfg)
	if d.LogLevelChanged {
		t.Fatalf("expected no change when configs are identical")
	}
}

func TestDiffConfigs_OtherFieldsIgnored(t *testing.T) {
	old := Defaults()
	newCfg := Defaults()
	newCfg.WhisperProcesses = 8
	newCfg.Listen = "0.0.0.0:1"

	d := DiffConfigs(old, newCfg)
	if d.LogLevelChanged {
		t.Fatalf("expected topology-only changes to not register as a log level change")
	}
}
