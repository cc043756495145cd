package formz

import (
	"context"

	"github.com/zoobzio/capitan"
)

// LogicArgs is what a logic callback receives.
type LogicArgs[C any] struct {
	// Form is the root of the control tree.
	Form Control
	// Field is the control the logic is keyed to.
	Field Control
	// Path is the dotted path of Field under Form.
	Path string
	// Phase is the phase being run.
	Phase Phase
	// Index is the array index of the bound form, or NoIndex.
	Index int
	// Config is the current materialized configuration. It is nil only in
	// the init phase.
	Config *Tree[C]
	// Default is the materialized default configuration.
	Default *Tree[C]
	// Previous is the configuration published before this cycle.
	Previous *Tree[C]
	// InitialRun is true during the cycle started by Start.
	InitialRun bool
}

// FieldConfig returns the materialized configuration at the field's path.
func (a LogicArgs[C]) FieldConfig() (C, bool) {
	return a.Config.Lookup(a.Path)
}

// LogicState is returned by a logic callback.
type LogicState struct {
	// StopExecution skips the phase for every remaining field in this cycle.
	StopExecution bool
}

// Continue lets the phase run on.
var Continue = LogicState{}

// Stop halts the phase for the remaining fields of the cycle.
var Stop = LogicState{StopExecution: true}

// LogicFunc is a per-field, per-phase callback.
type LogicFunc[C any] func(ctx context.Context, args LogicArgs[C]) LogicState

// FieldLogic holds a field's callbacks by phase. Nil callbacks are skipped.
type FieldLogic[C any] struct {
	Init        LogicFunc[C]
	Config      LogicFunc[C]
	Value       LogicFunc[C]
	Recalculate LogicFunc[C]
	Destroy     LogicFunc[C]
}

// For returns the callback for p.
func (l FieldLogic[C]) For(p Phase) LogicFunc[C] {
	switch p {
	case PhaseInit:
		return l.Init
	case PhaseConfig:
		return l.Config
	case PhaseValue:
		return l.Value
	case PhaseRecalculate:
		return l.Recalculate
	case PhaseDestroy:
		return l.Destroy
	default:
		return nil
	}
}

// merge overlays o's callbacks on l.
func (l FieldLogic[C]) merge(o FieldLogic[C]) FieldLogic[C] {
	if o.Init != nil {
		l.Init = o.Init
	}
	if o.Config != nil {
		l.Config = o.Config
	}
	if o.Value != nil {
		l.Value = o.Value
	}
	if o.Recalculate != nil {
		l.Recalculate = o.Recalculate
	}
	if o.Destroy != nil {
		l.Destroy = o.Destroy
	}
	return l
}

// Logic is a logic leaf entry.
func Logic[C any](name string, l FieldLogic[C]) Entry[FieldLogic[C]] {
	return At(name, Leaf(l))
}

// LogicSection is a nested logic group entry.
func LogicSection[C any](name string, entries ...Entry[FieldLogic[C]]) Entry[FieldLogic[C]] {
	return At(name, Group(entries...))
}

// NewLogic builds a logic tree.
func NewLogic[C any](entries ...Entry[FieldLogic[C]]) *Tree[FieldLogic[C]] {
	return Group(entries...)
}

// MergeLogic overlays over on base field by field and phase by phase.
func MergeLogic[C any](base, over *Tree[FieldLogic[C]]) *Tree[FieldLogic[C]] {
	return MergeTrees(base, over, func(b, o FieldLogic[C]) FieldLogic[C] { return b.merge(o) })
}

// phaseResult summarizes one phase run.
type phaseResult struct {
	ran       int
	stoppedAt string
}

// runPhase invokes phase for every field in logic order. A callback
// returning StopExecution ends the phase for the remaining fields. Phases
// after init require a materialized configuration.
func runPhase[C any](ctx context.Context, logic *Tree[FieldLogic[C]], base LogicArgs[C]) (phaseResult, error) {
	var res phaseResult
	if base.Phase != PhaseInit && base.Config == nil {
		return res, &MissingConfigSnapshotError{Phase: base.Phase}
	}
	logic.Walk(func(path string, l FieldLogic[C]) bool {
		fn := l.For(base.Phase)
		if fn == nil {
			return true
		}
		field := Find(base.Form, path)
		if field == nil {
			return true
		}
		args := base
		args.Field = field
		args.Path = path
		res.ran++
		if fn(ctx, args).StopExecution {
			res.stoppedAt = path
			capitan.Emit(ctx, LogicStopped,
				KeyPhase.Field(base.Phase.String()),
				KeyField.Field(path),
			)
			return false
		}
		return true
	})
	return res, nil
}
