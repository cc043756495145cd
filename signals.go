package formz

import "github.com/zoobzio/capitan"

// Coordination signals.
var (
	// ContextDisabled is emitted when a context asserts disable on a control.
	ContextDisabled = capitan.NewSignal(
		"formz.context.disabled",
		"Context asserted disable",
	)

	// ContextEnabled is emitted when a context releases disable on a control.
	ContextEnabled = capitan.NewSignal(
		"formz.context.enabled",
		"Context released disable",
	)

	// ControlForceEnabled is emitted when a force-enable override is set.
	ControlForceEnabled = capitan.NewSignal(
		"formz.control.force_enabled",
		"Force-enable override set",
	)

	// ControlForceEnableReset is emitted when a force-enable override is cleared.
	ControlForceEnableReset = capitan.NewSignal(
		"formz.control.force_enable_reset",
		"Force-enable override cleared",
	)

	// ValidatorsAdded is emitted when a context asserts validators.
	ValidatorsAdded = capitan.NewSignal(
		"formz.validators.added",
		"Context asserted validators",
	)

	// ValidatorsRemoved is emitted when a context releases validators.
	ValidatorsRemoved = capitan.NewSignal(
		"formz.validators.removed",
		"Context released validators",
	)
)

// Engine lifecycle signals.
var (
	// EngineStarted is emitted when an Engine starts.
	EngineStarted = capitan.NewSignal(
		"formz.engine.started",
		"Engine started",
	)

	// EngineStopped is emitted when an Engine stops.
	EngineStopped = capitan.NewSignal(
		"formz.engine.stopped",
		"Engine stopped",
	)

	// CycleSucceeded is emitted when a configuration/logic cycle completes.
	CycleSucceeded = capitan.NewSignal(
		"formz.engine.cycle.succeeded",
		"Cycle completed",
	)

	// CycleFailed is emitted when a configuration/logic cycle fails.
	CycleFailed = capitan.NewSignal(
		"formz.engine.cycle.failed",
		"Cycle failed",
	)

	// LogicStopped is emitted when a logic callback short-circuits its phase.
	LogicStopped = capitan.NewSignal(
		"formz.engine.logic.stopped",
		"Logic short-circuited the phase",
	)
)

// Form and persistence signals.
var (
	// FormValueChanged is emitted when a form publishes a value change.
	FormValueChanged = capitan.NewSignal(
		"formz.form.value.changed",
		"Form value changed",
	)

	// FormValuesSaved is emitted when form values are written to the store.
	FormValuesSaved = capitan.NewSignal(
		"formz.form.values.saved",
		"Form values persisted",
	)

	// FormValuesCleared is emitted when stored form values are cleared.
	FormValuesCleared = capitan.NewSignal(
		"formz.form.values.cleared",
		"Form values cleared",
	)

	// StoreFailed is emitted when a store operation fails.
	StoreFailed = capitan.NewSignal(
		"formz.store.failed",
		"Store operation failed",
	)

	// FormEventPublished is emitted for every event on a service's event bus.
	FormEventPublished = capitan.NewSignal(
		"formz.event.published",
		"Form event published",
	)
)
