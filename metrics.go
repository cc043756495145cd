package formz

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus,
// StatsD, etc. Implement this interface to receive callbacks on engine and
// persistence events.
type MetricsProvider interface {
	// OnChangeReceived is called when the form emits a value or status
	// change the engine observes.
	OnChangeReceived()

	// OnCycleSuccess is called after a cycle publishes its change.
	OnCycleSuccess(phase Phase, duration time.Duration)

	// OnCycleFailure is called when a cycle fails at any stage.
	OnCycleFailure(phase Phase, duration time.Duration)

	// OnLogicStopped is called when a field's logic stops its phase.
	OnLogicStopped(phase Phase, field string)

	// OnValuesSaved is called when form values are written to the store.
	OnValuesSaved(componentID string)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnChangeReceived()                       {}
func (NoOpMetricsProvider) OnCycleSuccess(_ Phase, _ time.Duration) {}
func (NoOpMetricsProvider) OnCycleFailure(_ Phase, _ time.Duration) {}
func (NoOpMetricsProvider) OnLogicStopped(_ Phase, _ string)        {}
func (NoOpMetricsProvider) OnValuesSaved(_ string)                  {}
