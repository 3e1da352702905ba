package config

import (
	"reflect"
)

// Subsystem identifies a daemon subsystem affected by a configuration change.
type Subsystem int

const (
	// SubsystemNetwork covers the agent fabric listener and secret
	SubsystemNetwork Subsystem = iota + 1

	// SubsystemOverlayConnection covers the coordination server address,
	// credentials, and connect timeout
	SubsystemOverlayConnection

	// SubsystemOverlayListener covers the announced peer listen port
	SubsystemOverlayListener

	// SubsystemOverlayDistributed covers distributed mesh participation
	SubsystemOverlayDistributed

	// SubsystemSharesPaths covers the shared root list
	SubsystemSharesPaths

	// SubsystemSharesFilters covers the share exclusion filters
	SubsystemSharesFilters

	// SubsystemGroups covers group tuning, global transfer limits, and the
	// blacklist source
	SubsystemGroups

	// SubsystemRooms covers the auto-join room list
	SubsystemRooms

	// SubsystemIntegration covers outbound webhooks
	SubsystemIntegration

	// SubsystemMetrics covers Prometheus exposure
	SubsystemMetrics

	// SubsystemWeb covers the operator REST API
	SubsystemWeb
)

// String returns the subsystem name as used in events and logs.
func (s Subsystem) String() string {
	switch s {
	case SubsystemNetwork:
		return "network"
	case SubsystemOverlayConnection:
		return "overlay_connection"
	case SubsystemOverlayListener:
		return "overlay_listener"
	case SubsystemOverlayDistributed:
		return "overlay_distributed"
	case SubsystemSharesPaths:
		return "shares_paths"
	case SubsystemSharesFilters:
		return "shares_filters"
	case SubsystemGroups:
		return "groups"
	case SubsystemRooms:
		return "rooms"
	case SubsystemIntegration:
		return "integration"
	case SubsystemMetrics:
		return "metrics"
	case SubsystemWeb:
		return "web"
	default:
		return "unknown"
	}
}

// Verdict is a subsystem's answer to a configuration change.
// Higher values dominate when verdicts are merged.
type Verdict int

const (
	// ApplyNow means the change took effect immediately
	ApplyNow Verdict = iota

	// RequiresRescan means the shared-file index must be refilled
	RequiresRescan

	// RequiresReconnect means the overlay session must be re-established
	RequiresReconnect

	// RequiresRestart means the daemon must be restarted
	RequiresRestart
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case ApplyNow:
		return "apply_now"
	case RequiresRescan:
		return "requires_rescan"
	case RequiresReconnect:
		return "requires_reconnect"
	case RequiresRestart:
		return "requires_restart"
	default:
		return "unknown"
	}
}

// Merge combines two verdicts, keeping the more disruptive one.
func (v Verdict) Merge(other Verdict) Verdict {
	if other > v {
		return other
	}
	return v
}

// DefaultVerdict returns the baseline verdict for a change touching this
// subsystem. Components may override it (the overlay listener, for example,
// can sometimes apply a port change without reconnecting).
func (s Subsystem) DefaultVerdict() Verdict {
	switch s {
	case SubsystemNetwork, SubsystemMetrics, SubsystemWeb:
		return RequiresRestart
	case SubsystemOverlayConnection:
		return RequiresReconnect
	case SubsystemSharesPaths, SubsystemSharesFilters:
		return RequiresRescan
	default:
		return ApplyNow
	}
}

// ConfigChange describes the difference between two configuration snapshots.
//
// Subsystems lists the classified areas touched by the change; Other lists
// dotted section names that changed but have no live-reload path (the daemon
// flags a pending restart for those). Both may be empty for changes to fields
// that are read from the current snapshot at their point of use.
type ConfigChange struct {
	Old *Config
	New *Config

	Subsystems []Subsystem
	Other      []string
}

// Touches reports whether the change affects the given subsystem.
func (c ConfigChange) Touches(s Subsystem) bool {
	for _, sub := range c.Subsystems {
		if sub == s {
			return true
		}
	}
	return false
}

// Empty reports whether the change requires no subsystem action.
func (c ConfigChange) Empty() bool {
	return len(c.Subsystems) == 0 && len(c.Other) == 0
}

// SubsystemNames returns the subsystem names for event payloads.
func (c ConfigChange) SubsystemNames() []string {
	names := make([]string, 0, len(c.Subsystems)+len(c.Other))
	for _, s := range c.Subsystems {
		names = append(names, s.String())
	}
	names = append(names, c.Other...)
	return names
}

// Diff classifies the differences between two configuration snapshots.
//
// Fields that components read from the current snapshot at their point of use
// (download directories, search response limits, the startup resume policy,
// the shutdown timeout) produce no classification: swapping the snapshot is
// the whole change.
func Diff(old, new *Config) ConfigChange {
	change := ConfigChange{Old: old, New: new}

	add := func(s Subsystem) {
		change.Subsystems = append(change.Subsystems, s)
	}
	other := func(section string) {
		change.Other = append(change.Other, section)
	}

	if !reflect.DeepEqual(old.Agents, new.Agents) {
		add(SubsystemNetwork)
	}

	if old.Overlay.Address != new.Overlay.Address ||
		old.Overlay.Username != new.Overlay.Username ||
		old.Overlay.Password != new.Overlay.Password ||
		old.Overlay.ConnectTimeout != new.Overlay.ConnectTimeout {
		add(SubsystemOverlayConnection)
	}
	if old.Overlay.ListenPort != new.Overlay.ListenPort {
		add(SubsystemOverlayListener)
	}
	if old.Overlay.Distributed != new.Overlay.Distributed {
		add(SubsystemOverlayDistributed)
	}

	if !stringSlicesEqual(old.Shares.Roots, new.Shares.Roots) {
		add(SubsystemSharesPaths)
	}
	if !stringSlicesEqual(old.Shares.Filters, new.Shares.Filters) {
		add(SubsystemSharesFilters)
	}
	// The catalog storage layout can only change across a restart.
	if old.Shares.Storage != new.Shares.Storage ||
		old.Shares.CacheDir != new.Shares.CacheDir {
		other("shares.storage")
	}

	if !reflect.DeepEqual(old.Groups, new.Groups) ||
		old.Transfers.Downloads.Slots != new.Transfers.Downloads.Slots ||
		old.Transfers.Downloads.SpeedLimit != new.Transfers.Downloads.SpeedLimit ||
		old.Transfers.Uploads.Slots != new.Transfers.Uploads.Slots ||
		old.Transfers.Uploads.SpeedLimit != new.Transfers.Uploads.SpeedLimit ||
		old.Blacklist != new.Blacklist {
		add(SubsystemGroups)
	}

	if !stringSlicesEqual(old.Rooms.AutoJoin, new.Rooms.AutoJoin) {
		add(SubsystemRooms)
	}

	if !reflect.DeepEqual(old.Integration, new.Integration) {
		add(SubsystemIntegration)
	}

	if old.Metrics != new.Metrics {
		add(SubsystemMetrics)
	}

	if !reflect.DeepEqual(old.API, new.API) {
		add(SubsystemWeb)
	}

	if !reflect.DeepEqual(old.Logging, new.Logging) {
		other("logging")
	}
	if !reflect.DeepEqual(old.Telemetry, new.Telemetry) {
		other("telemetry")
	}
	if !reflect.DeepEqual(old.Database, new.Database) {
		other("database")
	}
	if old.DataDir != new.DataDir {
		other("data_dir")
	}

	return change
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
