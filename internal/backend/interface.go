package backend

import (
	"context"

	"codeberg.org/mutker/cpuctl/internal/profile"
)

// Kind identifies the concrete control surface behind a Controller
type Kind string

const (
	KindSimulated Kind = "simulated"
	KindSysfs     Kind = "sysfs"
)

// Controller abstracts CPU performance control. Implementations must treat
// Apply as all-or-nothing from the caller's perspective: partial per-core
// results are never observable, and a failed Apply leaves the caller free to
// retain its previous committed state.
type Controller interface {
	// Apply drives cfg into the control surface and returns only after all
	// per-core writes have completed
	Apply(ctx context.Context, cfg profile.Config) error

	// CurrentFrequencyMHz reports the observed frequency, if readable
	CurrentFrequencyMHz() (float64, bool)

	// CurrentGovernor reports the active governor, if readable
	CurrentGovernor() (string, bool)

	// AvailableGovernors lists the governors the surface accepts
	AvailableGovernors() []string

	// IsAvailable reports whether a usable control surface was detected
	IsAvailable() bool

	// SystemFreqRange returns the hardware frequency limits in MHz
	SystemFreqRange() (minMHz, maxMHz int)

	// Kind identifies the implementation
	Kind() Kind

	// Diagnostics returns a snapshot of the permission state
	Diagnostics() Diagnostics
}

// Diagnostics is a fixed-shape snapshot of the backend's ability to write the
// control surface, surfaced through status queries for remediation.
type Diagnostics struct {
	User         string
	Groups       []string
	FileWritable map[string]bool
	// PrivilegedAvailable is nil until the privileged-write fallback has
	// been probed at least once
	PrivilegedAvailable *bool
	RecentErrors        []string
}
