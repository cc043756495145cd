package formz

// Status is the validation status of a control.
type Status int32

const (
	// StatusValid indicates the control passed all validation checks.
	StatusValid Status = iota

	// StatusInvalid indicates at least one validator reported errors on the
	// control or one of its enabled descendants.
	StatusInvalid

	// StatusPending indicates an async validator is still running on the
	// control or one of its descendants.
	StatusPending

	// StatusDisabled indicates the control is exempt from validation.
	// A container is disabled when every child is disabled.
	StatusDisabled
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	case StatusPending:
		return "PENDING"
	case StatusDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

// Origin records where the last change to a form tree came from.
type Origin int8

const (
	// OriginUnset means no change has been attributed since the last reset.
	OriginUnset Origin = iota

	// OriginUI means the last change came from direct user interaction.
	OriginUI

	// OriginProgrammatic means the last change was explicitly marked as
	// coming from code.
	OriginProgrammatic
)

// String returns the string representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginUnset:
		return "unset"
	case OriginUI:
		return "ui"
	case OriginProgrammatic:
		return "programmatic"
	default:
		return "unknown"
	}
}

// Phase is a named moment in a field's lifecycle at which logic runs.
type Phase int32

const (
	// PhaseInit runs once when an engine starts, before configuration is
	// materialized.
	PhaseInit Phase = iota

	// PhaseConfig runs after configuration is materialized at start and
	// whenever the override configuration changes.
	PhaseConfig

	// PhaseValue runs after a qualifying value or status change.
	PhaseValue

	// PhaseRecalculate runs when recalculation is requested explicitly.
	PhaseRecalculate

	// PhaseDestroy runs once when the engine stops.
	PhaseDestroy
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseConfig:
		return "config"
	case PhaseValue:
		return "value"
	case PhaseRecalculate:
		return "recalculate"
	case PhaseDestroy:
		return "destroy"
	default:
		return "unknown"
	}
}

// Kind identifies the shape of a control node.
type Kind int8

const (
	// KindLeaf is a single value control.
	KindLeaf Kind = iota

	// KindGroup is a control with named children.
	KindGroup

	// KindArray is a control with indexed children.
	KindArray
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindGroup:
		return "group"
	case KindArray:
		return "array"
	default:
		return "unknown"
	}
}
