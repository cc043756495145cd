package formz

// modelNotifier is implemented by controls that can push model writes and
// disabled-state changes to a bound view. *Node implements it.
type modelNotifier interface {
	OnModelChange(fn func(v any)) *Subscription
	OnDisabledChange(fn func(disabled bool)) *Subscription
}

// BindingOption configures a FieldBinding.
type BindingOption func(*FieldBinding)

// WithMarkForCheck sets the hint invoked after view-visible state changes.
func WithMarkForCheck(fn func()) BindingOption {
	return func(b *FieldBinding) { b.markForCheck = fn }
}

// WithRequiredValidators adds validators that make a field count as
// required. Required and RequiredTrue always count.
func WithRequiredValidators(vs ...*Validator) BindingOption {
	return func(b *FieldBinding) { b.requiredValidators = append(b.requiredValidators, vs...) }
}

// WithTouchPredicate decides whether a pre-filled value is real enough to
// surface its errors before the user interacts. Defaults to HasRealValue.
func WithTouchPredicate(fn func(v any) bool) BindingOption {
	return func(b *FieldBinding) { b.touchPredicate = fn }
}

// WithValidateFunc replaces the binding's error computation entirely.
func WithValidateFunc(fn func(shadow, base Control) Errors) BindingOption {
	return func(b *FieldBinding) { b.validateFn = fn }
}

// WithLabel records a label for the bound control.
func WithLabel(label string) BindingOption {
	return func(b *FieldBinding) { b.label = label }
}

// FieldBinding binds a shadow control, the one a view edits, to a base
// control in a form tree. Dirty and pristine promote from shadow to base,
// touched promotes from base to shadow, and base errors are merged onto the
// shadow after each validation pass of the base.
//
// A FieldBinding is confined to the goroutine that owns its trees.
type FieldBinding struct {
	coord  *Coordinator
	shadow *Node
	base   Control

	name     string
	resolved bool
	required bool

	onChange  func(v any)
	onTouched func()
	skipNext  bool

	local    Errors
	pending  bool

	markForCheck       func()
	requiredValidators []*Validator
	touchPredicate     func(v any) bool
	validateFn         func(shadow, base Control) Errors
	label              string

	validator *Validator
	subs      []*Subscription

	valueChanges    Stream[any]
	disabledChanges Stream[bool]
	validations     Stream[Errors]
}

// NewFieldBinding binds shadow under coord. The base control is resolved on
// the first Validate or by Attach.
func NewFieldBinding(coord *Coordinator, shadow *Node, opts ...BindingOption) *FieldBinding {
	if coord == nil {
		coord = NewCoordinator()
	}
	if shadow == nil {
		shadow = NewControl(nil)
	}
	b := &FieldBinding{
		coord:              coord,
		shadow:             shadow,
		requiredValidators: []*Validator{Required, RequiredTrue},
		touchPredicate:     HasRealValue,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.validator = NewValidator("binding", func(c Control) Errors { return b.Validate(c) })
	b.subs = append(b.subs, shadow.ValueChanges().Subscribe(b.onShadowChange))
	return b
}

func (b *FieldBinding) onShadowChange(v any) {
	if b.skipNext {
		b.skipNext = false
		return
	}
	if b.base != nil && b.coord.Origin(b.base) != OriginProgrammatic {
		b.coord.MarkAsUIChange(b.base)
	}
	if b.onChange != nil {
		b.onChange(v)
	}
}

// Shadow returns the control the view edits.
func (b *FieldBinding) Shadow() *Node { return b.shadow }

// Base returns the bound form control, or nil before binding.
func (b *FieldBinding) Base() Control { return b.base }

// Name returns the base control's name as resolved on the first validation
// pass. Later moves in the tree do not change it.
func (b *FieldBinding) Name() string { return b.name }

// Required reports whether the base carried a required validator on the
// last validation pass.
func (b *FieldBinding) Required() bool { return b.required }

// RegisterOnChange sets the callback that receives view changes.
func (b *FieldBinding) RegisterOnChange(fn func(v any)) { b.onChange = fn }

// RegisterOnTouched sets the callback invoked on blur.
func (b *FieldBinding) RegisterOnTouched(fn func()) { b.onTouched = fn }

// WriteValue pushes a model value into the shadow. While the base root is
// flagged as a reset the shadow is reset, otherwise patched. The echo back
// through the change callback is suppressed once.
func (b *FieldBinding) WriteValue(v any) {
	if b.onChange != nil {
		b.skipNext = true
	}
	if b.base != nil && b.coord.IsResetChange(b.base) {
		b.shadow.Reset(v, OnlySelf())
	} else {
		b.shadow.PatchValue(v, OnlySelf())
	}
	b.valueChanges.Emit(v)
	b.check()
}

// SetDisabledState mirrors the base's disabled state onto the shadow.
func (b *FieldBinding) SetDisabledState(disabled bool) {
	if disabled {
		b.shadow.Disable(Silent(), OnlySelf())
	} else {
		b.shadow.Enable(Silent(), OnlySelf())
	}
	b.disabledChanges.Emit(disabled)
	b.check()
}

// Input simulates the user typing v into the view.
func (b *FieldBinding) Input(v any) {
	b.shadow.MarkAsDirty(OnlySelf())
	b.shadow.SetValue(v, FromView(), OnlySelf())
}

// Blur simulates the view losing focus.
func (b *FieldBinding) Blur() {
	b.shadow.MarkAsTouched(OnlySelf())
	if b.onTouched != nil {
		b.onTouched()
	}
	b.check()
}

// Attach binds base: view changes write through to it, model writes and
// disabled changes flow back to the shadow, and the binding's validator is
// installed on it.
func (b *FieldBinding) Attach(base Control) {
	if base == nil {
		return
	}
	b.base = base
	b.RegisterOnChange(func(v any) {
		base.MarkAsDirty()
		base.SetValue(v, FromView())
	})
	b.RegisterOnTouched(func() { base.MarkAsTouched() })

	if mn, ok := base.(modelNotifier); ok {
		b.subs = append(b.subs,
			mn.OnModelChange(b.WriteValue),
			mn.OnDisabledChange(b.SetDisabledState),
		)
	}
	b.WriteValue(base.Value())
	if base.Disabled() {
		b.SetDisabledState(true)
	}

	base.AddValidators(b.validator)
	base.UpdateValueAndValidity(Silent())
	b.Flush()
}

// Validate runs one validation pass against base and returns the errors
// the base should carry for this field. Merging base errors onto the shadow
// happens after the pass completes, on the base's next status emission or
// on Flush.
func (b *FieldBinding) Validate(base Control) Errors {
	if base == nil {
		return nil
	}
	if b.base == nil {
		b.base = base
	}
	b.setInitial(base)
	b.checkRequired(base)
	b.checkDirty(base)
	b.checkPristine(base)
	b.checkTouched(base)

	if b.validateFn != nil {
		b.local = b.validateFn(b.shadow, base)
	} else {
		b.local = runValidators(b.shadow.Validators(), b.shadow)
	}
	b.pending = true
	return b.local
}

func (b *FieldBinding) setInitial(base Control) {
	if b.resolved {
		return
	}
	b.resolved = true
	b.name = ControlName(base)
	if b.label != "" {
		b.coord.SetLabel(base, b.label)
	}
	b.subs = append(b.subs, base.StatusChanges().Subscribe(func(Status) { b.Flush() }))
}

func (b *FieldBinding) checkRequired(base Control) {
	b.required = false
	for _, v := range b.requiredValidators {
		if base.HasValidator(v) {
			b.required = true
			return
		}
	}
}

func (b *FieldBinding) checkDirty(base Control) {
	if b.shadow.Dirty() && base.Pristine() {
		base.MarkAsDirty()
	}
}

func (b *FieldBinding) checkPristine(base Control) {
	if b.shadow.Pristine() && base.Dirty() {
		base.MarkAsPristine()
	}
}

func (b *FieldBinding) checkTouched(base Control) {
	if b.shadow.Untouched() && base.Touched() {
		b.shadow.MarkAsTouched(OnlySelf())
	}
}

// Flush applies a completed validation pass: the base errors merged with
// the shadow's own, shadow winning on collisions, are written onto the
// shadow without revalidating it.
func (b *FieldBinding) Flush() {
	if !b.pending || b.base == nil {
		return
	}
	b.pending = false

	merged := mergeErrors(b.base.Errors(), b.local)
	b.shadow.SetErrors(merged, Silent())

	if len(merged) > 0 && b.shadow.Pristine() && b.shadow.Untouched() &&
		b.touchPredicate != nil && b.touchPredicate(b.shadow.Value()) {
		b.shadow.MarkAsTouched(OnlySelf())
	}

	b.validations.Emit(merged)
	b.check()
}

// ValueChanges emits every model value written into the view.
func (b *FieldBinding) ValueChanges() *Stream[any] { return &b.valueChanges }

// DisabledChanges emits every disabled-state write.
func (b *FieldBinding) DisabledChanges() *Stream[bool] { return &b.disabledChanges }

// Validations emits the merged error set after each validation pass.
func (b *FieldBinding) Validations() *Stream[Errors] { return &b.validations }

// Close unbinds the shadow from the base.
func (b *FieldBinding) Close() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	b.subs = nil
	b.onChange = nil
	b.onTouched = nil
	if b.base != nil {
		b.base.RemoveValidators(b.validator)
		b.base.UpdateValueAndValidity(Silent())
	}
	b.valueChanges.Clear()
	b.disabledChanges.Clear()
	b.validations.Clear()
}

func (b *FieldBinding) check() {
	if b.markForCheck != nil {
		b.markForCheck()
	}
}
