package validation

import (
	"time"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
)

// PostChecks toggles the optional post-level layers individually. Named
// booleans on purpose: a missing flag is a compile error at the call site,
// not a silent default.
type PostChecks struct {
	AssignmentEnabled    bool `json:"assignment_enabled" koanf:"assignment_enabled"`
	GeofenceEnabled      bool `json:"geofence_enabled" koanf:"geofence_enabled"`
	OrdersEnabled        bool `json:"orders_enabled" koanf:"orders_enabled"`
	CertificationEnabled bool `json:"certification_enabled" koanf:"certification_enabled"`
}

// Config carries every tunable of the chain. Zero values are replaced by
// defaults in NewChain so a partially filled config stays safe.
type Config struct {
	// MaxAccuracyMeters is the coarsest GPS fix the chain trusts.
	MaxAccuracyMeters float64 `json:"max_accuracy_meters" koanf:"max_accuracy_meters"`

	// GraceWindow widens shift windows on both sides.
	GraceWindow time.Duration `json:"grace_window" koanf:"grace_window"`

	// MinimumRest is the regulatory floor between shifts.
	MinimumRest time.Duration `json:"minimum_rest" koanf:"minimum_rest"`

	// DedupWindow is how close two same-kind events may sit before the
	// second is suppressed.
	DedupWindow time.Duration `json:"dedup_window" koanf:"dedup_window"`

	// StoreTimeout bounds each layer's backing reads.
	StoreTimeout time.Duration `json:"store_timeout" koanf:"store_timeout"`

	PostChecks PostChecks `json:"post_checks" koanf:"post_checks"`

	// Policies overrides the per-layer fail-open/fail-closed defaults.
	// Layers not present fall back to DefaultPolicies.
	Policies map[attendance.LayerCode]attendance.FailurePolicy `json:"-" koanf:"-"`
}

const (
	defaultMaxAccuracyMeters = 100.0
	defaultGraceWindow       = 15 * time.Minute
	defaultMinimumRest       = 8 * time.Hour
	defaultDedupWindow       = 2 * time.Minute
	defaultStoreTimeout      = 50 * time.Millisecond
)

func (c *Config) applyDefaults() {
	if c.MaxAccuracyMeters <= 0 {
		c.MaxAccuracyMeters = defaultMaxAccuracyMeters
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = defaultGraceWindow
	}
	if c.MinimumRest <= 0 {
		c.MinimumRest = defaultMinimumRest
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = defaultDedupWindow
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
}

// DefaultPolicies returns the fail-open/fail-closed table: the mandatory
// layers reject when their backing state is unreachable, the optional
// post-level layers skip.
func DefaultPolicies() map[attendance.LayerCode]attendance.FailurePolicy {
	return map[attendance.LayerCode]attendance.FailurePolicy{
		attendance.LayerLocationAccuracy: attendance.FailClosed,
		attendance.LayerSiteAssignment:   attendance.FailClosed,
		attendance.LayerShiftAssignment:  attendance.FailClosed,
		attendance.LayerShiftWindow:      attendance.FailClosed,
		attendance.LayerRestPeriod:       attendance.FailClosed,
		attendance.LayerDuplicate:        attendance.FailClosed,
		attendance.LayerPostAssignment:   attendance.FailOpen,
		attendance.LayerPostGeofence:     attendance.FailOpen,
		attendance.LayerPostOrders:       attendance.FailOpen,
		attendance.LayerCertification:    attendance.FailOpen,
	}
}

// resolvePolicies merges configured overrides over the defaults.
func resolvePolicies(overrides map[attendance.LayerCode]attendance.FailurePolicy) map[attendance.LayerCode]attendance.FailurePolicy {
	policies := DefaultPolicies()
	for layer, policy := range overrides {
		policies[layer] = policy
	}
	return policies
}
