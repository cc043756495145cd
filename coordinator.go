package formz

// Coordinator bundles the context-scoped coordinators and side channels a
// form tree needs. One Coordinator is owned by one Service; controls are
// never mutated to carry coordination state.
type Coordinator struct {
	disabler *Disabler
	sync     *ValidatorContexts[*Validator]
	async    *ValidatorContexts[*AsyncValidator]
	origins  *OriginTracker

	labels   sideTable[string]
	configs  sideTable[any]
	defaults sideTable[any]
	changes  sideTable[any]
}

// NewCoordinator creates a Coordinator with empty side tables.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		disabler: NewDisabler(),
		sync:     NewValidatorContexts(),
		async:    NewAsyncValidatorContexts(),
		origins:  NewOriginTracker(),
	}
}

// DisableControl asserts disable for name on c.
func (co *Coordinator) DisableControl(name string, c Control, opts ...Option) error {
	return co.disabler.Disable(name, c, opts...)
}

// EnableControl releases name's disable assertion on c.
func (co *Coordinator) EnableControl(name string, c Control, opts ...Option) {
	co.disabler.Enable(name, c, opts...)
}

// SwitchDisable disables when disable is true and enables otherwise.
func (co *Coordinator) SwitchDisable(disable bool, name string, c Control, opts ...Option) error {
	return co.disabler.Switch(disable, name, c, opts...)
}

// ForceEnableControl enables c regardless of blocking contexts.
func (co *Coordinator) ForceEnableControl(c Control, opts ...Option) {
	co.disabler.ForceEnable(c, opts...)
}

// ResetForceEnableControl clears the force-enable override.
func (co *Coordinator) ResetForceEnableControl(c Control, opts ...Option) {
	co.disabler.ResetForceEnable(c, opts...)
}

// IsForceEnabled reports whether c is force-enabled.
func (co *Coordinator) IsForceEnabled(c Control) bool {
	return co.disabler.IsForceEnabled(c)
}

// DisablingContexts lists contexts asserting disable on c.
func (co *Coordinator) DisablingContexts(c Control) []string {
	return co.disabler.DisablingContexts(c)
}

// AddValidators asserts vs under name on c.
func (co *Coordinator) AddValidators(name string, c Control, vs []*Validator, opts ...Option) error {
	return co.sync.Add(name, c, vs, opts...)
}

// RemoveValidators releases validators asserted by name on c.
func (co *Coordinator) RemoveValidators(name string, c Control, vs []*Validator, opts ...Option) error {
	return co.sync.Remove(name, c, vs, opts...)
}

// SwitchValidators adds when add is true and removes otherwise.
func (co *Coordinator) SwitchValidators(add bool, name string, c Control, vs []*Validator, opts ...Option) error {
	return co.sync.Switch(add, name, c, vs, opts...)
}

// ValidatorContexts lists the contexts asserting v on c.
func (co *Coordinator) ValidatorContexts(c Control, v *Validator) []string {
	return co.sync.Contexts(c, v)
}

// AddAsyncValidators asserts async vs under name on c.
func (co *Coordinator) AddAsyncValidators(name string, c Control, vs []*AsyncValidator, opts ...Option) error {
	return co.async.Add(name, c, vs, opts...)
}

// RemoveAsyncValidators releases async validators asserted by name on c.
func (co *Coordinator) RemoveAsyncValidators(name string, c Control, vs []*AsyncValidator, opts ...Option) error {
	return co.async.Remove(name, c, vs, opts...)
}

// SwitchAsyncValidators adds when add is true and removes otherwise.
func (co *Coordinator) SwitchAsyncValidators(add bool, name string, c Control, vs []*AsyncValidator, opts ...Option) error {
	return co.async.Switch(add, name, c, vs, opts...)
}

// AsyncValidatorContexts lists the contexts asserting v on c.
func (co *Coordinator) AsyncValidatorContexts(c Control, v *AsyncValidator) []string {
	return co.async.Contexts(c, v)
}

// MarkAsUIChange attributes the pending change on c's tree to the UI.
func (co *Coordinator) MarkAsUIChange(c Control) { co.origins.MarkAsUIChange(c) }

// MarkAsNonUIChange attributes the pending change to code unless already set.
func (co *Coordinator) MarkAsNonUIChange(c Control) { co.origins.MarkAsNonUIChange(c) }

// ResetUIChange clears the origin flag.
func (co *Coordinator) ResetUIChange(c Control) { co.origins.ResetUIChange(c) }

// IsDataChangedByUI reports whether the pending change came from the UI.
func (co *Coordinator) IsDataChangedByUI(c Control) bool { return co.origins.IsDataChangedByUI(c) }

// IsChangedByUIUnset reports whether no origin is recorded.
func (co *Coordinator) IsChangedByUIUnset(c Control) bool { return co.origins.IsChangedByUIUnset(c) }

// Origin returns the recorded origin for c's tree.
func (co *Coordinator) Origin(c Control) Origin { return co.origins.Origin(c) }

// MarkAsResetChange flags the next model write on c's tree as a reset.
func (co *Coordinator) MarkAsResetChange(c Control) { co.origins.MarkAsResetChange(c) }

// ResetResetChange clears the reset flag.
func (co *Coordinator) ResetResetChange(c Control) { co.origins.ResetResetChange(c) }

// IsResetChange reports whether the reset flag is set.
func (co *Coordinator) IsResetChange(c Control) bool { return co.origins.IsResetChange(c) }

// SetLabel records a human-readable label for c.
func (co *Coordinator) SetLabel(c Control, label string) {
	if c == nil {
		return
	}
	if label == "" {
		co.labels.drop(c.ID())
		return
	}
	co.labels.set(c.ID(), label)
}

// Label returns c's label, falling back to its name.
func (co *Coordinator) Label(c Control) string {
	if c == nil {
		return ""
	}
	if l, ok := co.labels.get(c.ID()); ok {
		return l
	}
	return ControlName(c)
}

// SetConfig attaches a configuration value to c.
func (co *Coordinator) SetConfig(c Control, cfg any) {
	if c != nil {
		co.configs.set(c.ID(), cfg)
	}
}

// Config returns the configuration attached to c.
func (co *Coordinator) Config(c Control) (any, bool) {
	if c == nil {
		return nil, false
	}
	return co.configs.get(c.ID())
}

// SetDefaultConfig attaches the default configuration to c.
func (co *Coordinator) SetDefaultConfig(c Control, cfg any) {
	if c != nil {
		co.defaults.set(c.ID(), cfg)
	}
}

// DefaultConfig returns the default configuration attached to c.
func (co *Coordinator) DefaultConfig(c Control) (any, bool) {
	if c == nil {
		return nil, false
	}
	return co.defaults.get(c.ID())
}

// SetChange attaches a materialized per-field configuration value to c.
func (co *Coordinator) SetChange(c Control, v any) {
	if c != nil {
		co.changes.set(c.ID(), v)
	}
}

// Change returns the materialized configuration value attached to c.
func (co *Coordinator) Change(c Control) (any, bool) {
	if c == nil {
		return nil, false
	}
	return co.changes.get(c.ID())
}

// Forget drops every side-table entry recorded for c and its descendants.
func (co *Coordinator) Forget(c Control) {
	Walk(c, func(n Control) {
		co.disabler.Forget(n)
		co.sync.Forget(n)
		co.async.Forget(n)
		id := n.ID()
		co.labels.drop(id)
		co.configs.drop(id)
		co.defaults.drop(id)
		co.changes.drop(id)
	})
	if c != nil && c.Parent() == nil {
		co.origins.Forget(c)
	}
}

// GetConfig returns the configuration attached to c as T.
func GetConfig[T any](co *Coordinator, c Control) (T, bool) {
	var zero T
	v, ok := co.Config(c)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// GetDefaultConfig returns the default configuration attached to c as T.
func GetDefaultConfig[T any](co *Coordinator, c Control) (T, bool) {
	var zero T
	v, ok := co.DefaultConfig(c)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// GetConfigField returns the materialized configuration of the control at
// the dotted path under form.
func GetConfigField[C any](co *Coordinator, form Control, path string) (C, bool) {
	var zero C
	v, ok := co.Change(Find(form, path))
	if !ok {
		return zero, false
	}
	c, ok := v.(C)
	return c, ok
}
