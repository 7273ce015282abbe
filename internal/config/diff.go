package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; transport and
// provider changes require a restart.
type ConfigDiff struct {
	LogLevelChanged    bool
	NewLogLevel        LogLevel
	StagesChanged      bool
	CustomTermsChanged bool
	ScorerChanged      bool
}

// Changed reports whether the diff carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.StagesChanged || d.CustomTermsChanged || d.ScorerChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Stages != new.Stages {
		d.StagesChanged = true
	}
	if !maps.Equal(old.CustomTerms, new.CustomTerms) {
		d.CustomTermsChanged = true
	}
	if old.Scorer != new.Scorer {
		d.ScorerChanged = true
	}

	return d
}
