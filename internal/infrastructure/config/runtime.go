package config

import "maps"

// RuntimeSnapshot is the read-only view of runtime switches handed to the
// HTTP layer. It is built once at startup and copied, never mutated globally.
type RuntimeSnapshot struct {
	DevMode  bool            `json:"dev_mode"`
	Version  string          `json:"version,omitempty"`
	Features map[string]bool `json:"features"`
}

// NewRuntimeSnapshot copies cfg into a snapshot
func NewRuntimeSnapshot(cfg RuntimeConfig, version string) RuntimeSnapshot {
	features := make(map[string]bool, len(cfg.Features))
	maps.Copy(features, cfg.Features)
	return RuntimeSnapshot{DevMode: cfg.DevMode, Version: version, Features: features}
}

// Enabled reports whether a feature flag is on
func (s RuntimeSnapshot) Enabled(name string) bool {
	return s.Features[name]
}
