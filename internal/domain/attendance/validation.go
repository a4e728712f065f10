package attendance

// LayerCode identifies one check in the admission chain. Codes are stable
// wire values; dashboards and audit records key on them.
type LayerCode string

const (
	LayerLocationAccuracy LayerCode = "location_accuracy"
	LayerSiteAssignment   LayerCode = "site_assignment"
	LayerShiftAssignment  LayerCode = "shift_assignment"
	LayerShiftWindow      LayerCode = "shift_window"
	LayerRestPeriod       LayerCode = "rest_period"
	LayerDuplicate        LayerCode = "duplicate"
	LayerPostAssignment   LayerCode = "post_assignment"
	LayerPostGeofence     LayerCode = "post_geofence"
	LayerPostOrders       LayerCode = "post_orders"
	LayerCertification    LayerCode = "certification"
)

// OrderedLayers returns every layer code in evaluation order.
func OrderedLayers() []LayerCode {
	return []LayerCode{
		LayerLocationAccuracy,
		LayerSiteAssignment,
		LayerShiftAssignment,
		LayerShiftWindow,
		LayerRestPeriod,
		LayerDuplicate,
		LayerPostAssignment,
		LayerPostGeofence,
		LayerPostOrders,
		LayerCertification,
	}
}

// LayerOutcome is the typed result of one layer evaluation. Unavailable
// means the layer could not consult its backing state; policy decides
// whether that admits or rejects.
type LayerOutcome int

const (
	OutcomeAdmit LayerOutcome = iota
	OutcomeReject
	OutcomeUnavailable
)

func (o LayerOutcome) String() string {
	switch o {
	case OutcomeAdmit:
		return "admit"
	case OutcomeReject:
		return "reject"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// FailurePolicy controls how an Unavailable outcome resolves.
type FailurePolicy int

const (
	FailClosed FailurePolicy = iota
	FailOpen
)

func (p FailurePolicy) String() string {
	switch p {
	case FailClosed:
		return "fail_closed"
	case FailOpen:
		return "fail_open"
	default:
		return "unknown"
	}
}

// ValidationResult is the outcome of running the chain over one event.
// Transient: constructed per evaluation, never persisted here.
type ValidationResult struct {
	Admitted         bool       `json:"admitted"`
	FailedLayer      *LayerCode `json:"failed_layer,omitempty"`
	ReasonCode       string     `json:"reason_code,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	RequiresOverride bool       `json:"requires_override,omitempty"`

	// Unavailable marks a rejection caused by a fail-closed layer that
	// could not evaluate, as opposed to a rule actually being violated.
	Unavailable bool `json:"unavailable,omitempty"`

	// EvaluatedLayers counts layers that ran before the chain stopped.
	EvaluatedLayers int `json:"evaluated_layers"`
}

func Admit(evaluated int) ValidationResult {
	return ValidationResult{Admitted: true, EvaluatedLayers: evaluated}
}

func Reject(layer LayerCode, reasonCode, reason string, evaluated int) ValidationResult {
	return ValidationResult{
		FailedLayer:     &layer,
		ReasonCode:      reasonCode,
		Reason:          reason,
		EvaluatedLayers: evaluated,
	}
}

// RejectUnavailable builds the fail-closed rejection for a layer whose
// backing state could not be read. The reason code is distinguishable from
// the layer's normal violation code so operators can tell "rule violated"
// from "system degraded".
func RejectUnavailable(layer LayerCode, evaluated int) ValidationResult {
	return ValidationResult{
		FailedLayer:     &layer,
		ReasonCode:      string(layer) + "_unavailable",
		Reason:          "layer could not evaluate: backing store unavailable",
		Unavailable:     true,
		EvaluatedLayers: evaluated,
	}
}
