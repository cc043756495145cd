package formz

// Registry is the recalculation hook list a Service shares with the engines
// attached to its forms. Each registrant gets a Subscription to detach with.
type Registry struct {
	recalculate Stream[struct{}]
	reload      Stream[struct{}]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnRecalculate registers fn to run on RecalculateConfig.
func (r *Registry) OnRecalculate(fn func()) *Subscription {
	return r.recalculate.Subscribe(func(struct{}) { fn() })
}

// OnReload registers fn to run on ReloadLogic.
func (r *Registry) OnReload(fn func()) *Subscription {
	return r.reload.Subscribe(func(struct{}) { fn() })
}

// RecalculateConfig asks every registered engine to rerun its pipeline
// from its current configuration.
func (r *Registry) RecalculateConfig() {
	r.recalculate.Emit(struct{}{})
}

// ReloadLogic asks every registered engine to rebuild its merged logic.
func (r *Registry) ReloadLogic() {
	r.reload.Emit(struct{}{})
}

// Len is the number of registered recalculation hooks.
func (r *Registry) Len() int {
	return r.recalculate.Len()
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.recalculate.Clear()
	r.reload.Clear()
}
