package formz

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/zoobzio/capitan"
)

// ValueChange is published by a started Form whenever its value or raw
// value actually changed.
type ValueChange struct {
	// UIChange is true when the change came from a bound view.
	UIChange       bool
	DataChanged    bool
	RawDataChanged bool
	// FirstUIChange is true only for the first UI change of the form.
	FirstUIChange bool
	Previous      FormValues
	Current       FormValues
}

// StatusChange is published when the form's status changes. Start
// publishes one with Previous equal to Current.
type StatusChange struct {
	Previous Status
	Current  Status
}

// ClearRequest resets a form. A nil Value resets to the initial data, or
// to a fresh default when ClearWithInitialData is off.
type ClearRequest struct {
	Value any
	// Silent resets without emitting and without marking a UI change.
	Silent bool
}

// Form is a started, persisted form: it builds its group from a Service,
// classifies and persists value changes, reports status and invalid
// fields, and receives patches and events routed by the Service.
//
// Example:
//
//	form := formz.NewForm(svc, "signup").InitialData(seed)
//	if err := form.Start(ctx); err != nil {
//	    return err
//	}
//	form.ValueChanges().Subscribe(func(vc formz.ValueChange) { ... })
type Form[C any] struct {
	svc  *Service[C]
	base string

	index             int
	initialData       any
	initialDisabled   map[string]bool
	initialValidators map[string][]*Validator
	saveWithService   bool
	saveInStore       *bool
	clearWithInitial  bool
	changed           func(prev, curr any) bool
	logger            *slog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc

	group      *Node
	engine     *Engine[C]
	prev       FormValues
	firstUI    bool
	lastStatus Status
	pendingInv bool
	lastInv    []string
	subs       []*Subscription

	valueChanges  Stream[ValueChange]
	statusChanges Stream[StatusChange]
	invalidFields Stream[[]string]
	events        Stream[FormEvent]
}

// NewForm creates a Form persisting under name. An empty name uses the
// service's default component ID.
func NewForm[C any](svc *Service[C], name string) *Form[C] {
	if name == "" {
		name = svc.DefaultID()
	}
	return &Form[C]{
		svc:              svc,
		base:             name,
		index:            NoIndex,
		saveWithService:  true,
		clearWithInitial: true,
		changed:          func(prev, curr any) bool { return !jsonEqual(prev, curr) },
		logger:           svc.logger,
		firstUI:          true,
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Index binds the form to an array item. Must be called before Start().
func (f *Form[C]) Index(i int) *Form[C] {
	f.index = i
	return f
}

// InitialData seeds the form when nothing is stored for it, and is what
// Clear resets to. Must be called before Start().
func (f *Form[C]) InitialData(v any) *Form[C] {
	f.initialData = v
	return f
}

// InitialDisabled disables controls by path when the group is built.
// Must be called before Start().
func (f *Form[C]) InitialDisabled(paths map[string]bool) *Form[C] {
	f.initialDisabled = paths
	return f
}

// InitialValidators adds validators by path when the group is built.
// Must be called before Start().
func (f *Form[C]) InitialValidators(vs map[string][]*Validator) *Form[C] {
	f.initialValidators = vs
	return f
}

// SaveWithService sets whether value changes are recorded in the service.
// Default: true.
func (f *Form[C]) SaveWithService(b bool) *Form[C] {
	f.saveWithService = b
	return f
}

// SaveInStore overrides the service's SaveInStore for this form.
func (f *Form[C]) SaveInStore(b bool) *Form[C] {
	f.saveInStore = &b
	return f
}

// ClearWithInitialData sets whether Clear resets to the initial data or to
// a freshly built default. Default: true.
func (f *Form[C]) ClearWithInitialData(b bool) *Form[C] {
	f.clearWithInitial = b
	return f
}

// DataChanged replaces the serialize-compare used to classify changes.
func (f *Form[C]) DataChanged(fn func(prev, curr any) bool) *Form[C] {
	f.changed = fn
	return f
}

// Logger sets the logger. Default: the service's.
func (f *Form[C]) Logger(l *slog.Logger) *Form[C] {
	f.logger = l
	return f
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// ComponentID is the key the form persists and receives patches under.
func (f *Form[C]) ComponentID() string {
	return ComponentID(f.base, f.index)
}

// Start builds the group, seeding it from stored values when the form
// saves with the service, or from the initial data otherwise, and begins
// publishing changes. Start can only be called once.
func (f *Form[C]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	f.ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	if f.initialData != nil {
		g, err := f.svc.FormGroup(GroupInit{Value: f.initialData, Index: f.index})
		if err != nil {
			return fmt.Errorf("normalize initial data: %w", err)
		}
		f.initialData = g.RawValue()
	}

	seed := f.initialData
	if f.saveWithService {
		if stored, ok := f.svc.GetFormValues(ctx, f.ComponentID()); ok {
			seed = stored.RawValue
		}
	}
	g, err := f.svc.FormGroup(GroupInit{
		Value:      seed,
		Disabled:   f.initialDisabled,
		Validators: f.initialValidators,
		Index:      f.index,
	})
	if err != nil {
		return err
	}
	f.group = g

	if f.initialData == nil {
		if f.svc.initial != nil {
			f.initialData = f.svc.initial
		} else if def, err := f.defaultValue(); err == nil {
			f.initialData = def
		}
	}

	f.prev = FormValues{Value: g.Value(), RawValue: g.RawValue()}
	f.lastStatus = g.Status()
	id := f.ComponentID()

	f.subs = append(f.subs,
		g.ValueChanges().Subscribe(func(any) { f.onValue() }),
		g.StatusChanges().Subscribe(f.onStatus),
		f.svc.Patches().Subscribe(func(p Patch) {
			if p.ComponentID == id {
				g.PatchValue(p.Value)
			}
		}),
		f.svc.Events().Subscribe(f.events.Emit),
	)

	f.statusChanges.Emit(StatusChange{Previous: f.lastStatus, Current: f.lastStatus})
	f.scheduleInvalid()
	f.logger.Debug("form started", "component_id", id)
	return nil
}

func (f *Form[C]) defaultValue() (any, error) {
	g, err := f.svc.FormGroup(GroupInit{Index: f.index})
	if err != nil {
		return nil, err
	}
	return g.RawValue(), nil
}

// onValue classifies a value emission and publishes it when anything
// changed. The UI mark is consumed either way.
func (f *Form[C]) onValue() {
	co := f.svc.Coordinator()
	curr := FormValues{Value: f.group.Value(), RawValue: f.group.RawValue()}
	prev := f.prev
	f.prev = curr

	origin := co.Origin(f.group)
	ui := origin == OriginUI
	dataChanged := f.changed(prev.Value, curr.Value)
	rawChanged := f.changed(prev.RawValue, curr.RawValue)
	co.ResetUIChange(f.group)
	if !dataChanged && !rawChanged {
		return
	}

	triggers := []SaveTrigger{SaveOnNonUserChange}
	if ui {
		triggers[0] = SaveOnUserChange
	}
	if dataChanged {
		triggers = append(triggers, SaveOnDataChange)
	}
	if rawChanged {
		triggers = append(triggers, SaveOnRawDataChange)
	}

	id := f.ComponentID()
	if f.saveWithService {
		opts := []SaveOption{SaveAs(triggers...)}
		if f.saveInStore != nil {
			opts = append(opts, InStore(*f.saveInStore))
		}
		_ = f.svc.SetFormValues(f.ctx, id, curr, opts...) //nolint:errcheck // Errors stored via Service.LastError
	}

	vc := ValueChange{
		UIChange:       ui,
		DataChanged:    dataChanged,
		RawDataChanged: rawChanged,
		FirstUIChange:  f.firstUI && ui,
		Previous:       prev,
		Current:        curr,
	}
	if ui {
		f.firstUI = false
	}

	capitan.Emit(f.ctx, FormValueChanged,
		KeyComponentID.Field(id),
		KeyOrigin.Field(origin.String()),
	)
	f.valueChanges.Emit(vc)
}

func (f *Form[C]) onStatus(s Status) {
	if s != f.lastStatus {
		prev := f.lastStatus
		f.lastStatus = s
		f.statusChanges.Emit(StatusChange{Previous: prev, Current: s})
	}
	f.scheduleInvalid()
}

// scheduleInvalid recomputes invalid field labels once the current burst
// of status emissions has settled.
func (f *Form[C]) scheduleInvalid() {
	if f.pendingInv {
		return
	}
	f.pendingInv = true
	schedulerOf(f.group).Post(func() {
		f.pendingInv = false
		if !f.invalidFields.Observed() {
			return
		}
		labels := f.InvalidLabels()
		if f.lastInv != nil && slices.Equal(labels, f.lastInv) {
			return
		}
		f.lastInv = labels
		f.invalidFields.Emit(labels)
	})
}

// InvalidLabels returns the labels of every invalid leaf, in tree order.
func (f *Form[C]) InvalidLabels() []string {
	labels := []string{}
	if f.group == nil || f.group.Valid() {
		return labels
	}
	co := f.svc.Coordinator()
	Walk(f.group, func(c Control) {
		if c.Kind() == KindLeaf && c.Invalid() {
			if l := co.Label(c); l != "" {
				labels = append(labels, l)
			}
		}
	})
	return labels
}

// Configure attaches an Engine running the service's default configuration
// and logic, with config and logic as overrides. The engine starts
// immediately and stops with the form.
func (f *Form[C]) Configure(config *Tree[Setting[C]], logic *Tree[FieldLogic[C]], opts ...PipelineOption[C]) (*Engine[C], error) {
	if f.group == nil {
		return nil, ErrNotStarted
	}
	if f.engine != nil {
		return nil, ErrAlreadyStarted
	}
	e := NewEngine(f.group, f.svc.FieldsConfig(), f.svc.FieldsLogic(), opts...).
		Coordinator(f.svc.Coordinator()).
		Index(f.index).
		Registry(f.svc.Registry()).
		Logger(f.logger).
		MergeOptions(f.svc.mergeOpts...)
	if f.svc.metrics != nil {
		e.Metrics(f.svc.metrics)
	}
	if config != nil {
		_ = e.SetConfig(config) //nolint:errcheck // Not started yet
	}
	if logic != nil {
		e.SetLogic(logic)
	}
	f.engine = e
	return e, e.Start(f.ctx)
}

// Clear resets the group. A non-silent clear is a UI change; every clear
// is flagged as a reset so bound views take the value without dirtying.
func (f *Form[C]) Clear(req ClearRequest) error {
	if f.group == nil {
		return ErrNotStarted
	}
	co := f.svc.Coordinator()
	value := req.Value
	if value == nil {
		if f.clearWithInitial {
			value = f.initialData
		} else {
			def, err := f.defaultValue()
			if err != nil {
				return err
			}
			value = def
		}
	}

	if !req.Silent {
		co.MarkAsUIChange(f.group)
	}
	co.MarkAsResetChange(f.group)
	if req.Silent {
		f.group.Reset(value, Silent())
		f.prev = FormValues{Value: f.group.Value(), RawValue: f.group.RawValue()}
	} else {
		f.group.Reset(value)
	}
	co.ResetResetChange(f.group)
	return nil
}

// Patch writes the present keys of v into the group.
func (f *Form[C]) Patch(v any) {
	if f.group != nil {
		f.group.PatchValue(v)
	}
}

// Values returns the current value and raw value.
func (f *Form[C]) Values() FormValues {
	if f.group == nil {
		return FormValues{}
	}
	return FormValues{Value: f.group.Value(), RawValue: f.group.RawValue()}
}

// Group returns the form's group, or nil before Start.
func (f *Form[C]) Group() *Node { return f.group }

// Engine returns the attached engine, or nil.
func (f *Form[C]) Engine() *Engine[C] { return f.engine }

// ValueChanges emits every classified value change.
func (f *Form[C]) ValueChanges() *Stream[ValueChange] { return &f.valueChanges }

// StatusChanges emits status transitions.
func (f *Form[C]) StatusChanges() *Stream[StatusChange] { return &f.statusChanges }

// InvalidFields emits the invalid field labels when they change.
func (f *Form[C]) InvalidFields() *Stream[[]string] { return &f.invalidFields }

// Events relays the service's event bus.
func (f *Form[C]) Events() *Stream[FormEvent] { return &f.events }

// Watch reseeds the form from the store whenever another writer updates
// its persisted values. Updates are applied through the group's scheduler
// as programmatic changes; give the group a Loop scheduler when the form
// is driven from another goroutine. Watch blocks until ctx is canceled or
// the watch channel closes.
func (f *Form[C]) Watch(ctx context.Context) error {
	if f.group == nil {
		return ErrNotStarted
	}
	ws, ok := f.svc.store.(WatchableStore)
	if !ok {
		return ErrWatchUnsupported
	}
	id := f.ComponentID()
	ch, err := ws.Watch(ctx, f.svc.key(id))
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}
	sched := schedulerOf(f.group)

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			var v FormValues
			if err := f.svc.codec.Unmarshal(data, &v); err != nil {
				_ = f.svc.recordError(ctx, "decode", id, err) //nolint:errcheck // Errors stored via Service.LastError
				continue
			}
			sched.Post(func() { f.applyRemote(v) })
		}
	}
}

func (f *Form[C]) applyRemote(v FormValues) {
	if f.isClosed() || !f.changed(f.group.RawValue(), v.RawValue) {
		return
	}
	f.svc.Coordinator().MarkAsNonUIChange(f.group)
	f.group.PatchValue(v.RawValue)
}

func (f *Form[C]) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close stops the attached engine and detaches the form from its group
// and service.
func (f *Form[C]) Close(ctx context.Context) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return ErrNotStarted
	}
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	var err error
	if f.engine != nil {
		err = f.engine.Stop(ctx)
	}
	for _, s := range f.subs {
		s.Unsubscribe()
	}
	f.subs = nil
	f.cancel()
	return err
}
