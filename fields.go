package formz

import "github.com/zoobzio/capitan"

// Field keys for formz events.
var (
	// KeyContext is the coordination context name.
	KeyContext = capitan.NewStringKey("context")

	// KeyControl is the dotted path of the affected control.
	KeyControl = capitan.NewStringKey("control")

	// KeyCount is the number of validators involved.
	KeyCount = capitan.NewIntKey("count")

	// KeyPhase is the logic phase of a cycle.
	KeyPhase = capitan.NewStringKey("phase")

	// KeyField is the dotted path of the field whose logic ran.
	KeyField = capitan.NewStringKey("field")

	// KeyComponentID is the persisted form's component identifier.
	KeyComponentID = capitan.NewStringKey("component_id")

	// KeyOperation is the store operation that failed.
	KeyOperation = capitan.NewStringKey("operation")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyDuration is the time a cycle took.
	KeyDuration = capitan.NewDurationKey("duration")

	// KeyDebounce is the configured debounce duration.
	KeyDebounce = capitan.NewDurationKey("debounce")

	// KeyEventType is the type of a published form event.
	KeyEventType = capitan.NewStringKey("event_type")

	// KeyOrigin is the change origin of a value change.
	KeyOrigin = capitan.NewStringKey("origin")
)
