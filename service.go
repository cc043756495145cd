package formz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
)

// FormValues is what a Service persists per component: the enabled value
// and the raw value including disabled controls.
type FormValues struct {
	Value    any `json:"value" yaml:"value"`
	RawValue any `json:"rawValue" yaml:"rawValue"`
}

// SaveTrigger classifies a value change for persistence. A change is
// written to the store when any of its triggers is one the service saves
// on.
type SaveTrigger string

const (
	SaveOnUserChange    SaveTrigger = "user-change"
	SaveOnNonUserChange SaveTrigger = "non-user-change"
	SaveOnDataChange    SaveTrigger = "data-change"
	SaveOnRawDataChange SaveTrigger = "raw-data-change"
)

// GroupInit seeds a group built by a Service. Disabled and Validators are
// keyed by dotted control path. Index is the array index the group is
// built for; use NoIndex for a standalone form.
type GroupInit struct {
	Value      any
	Disabled   map[string]bool
	Validators map[string][]*Validator
	Index      int
}

// Definition describes a form: how to build its controls and its default
// configuration and logic. Embed BaseDefinition to implement only part of
// it.
type Definition[C any] interface {
	// BuildGroup creates the form's controls with their default values.
	// index is the array index the group is built for, or NoIndex.
	BuildGroup(index int) (*Node, error)
	FieldsConfig() *Tree[Setting[C]]
	FieldsLogic() *Tree[FieldLogic[C]]
}

// BaseDefinition provides empty configuration and logic. Its BuildGroup
// fails with MissingImplementationError.
type BaseDefinition[C any] struct{}

func (BaseDefinition[C]) BuildGroup(int) (*Node, error) {
	return nil, &MissingImplementationError{Method: "BuildGroup"}
}

func (BaseDefinition[C]) FieldsConfig() *Tree[Setting[C]] { return NewConfig[C]() }

func (BaseDefinition[C]) FieldsLogic() *Tree[FieldLogic[C]] { return NewLogic[C]() }

// Patch is a value routed to the form with the matching component ID.
type Patch struct {
	ComponentID string
	Value       any
}

// ComponentID names the component a form with base name and index
// persists under.
func ComponentID(base string, index int) string {
	if index == NoIndex {
		return base
	}
	return base + "_" + strconv.Itoa(index)
}

// Service owns everything a family of forms built from one Definition
// shares: the coordinator, persisted values, the recalculation registry,
// patch routing, and the event bus.
//
// Instance configuration uses chainable methods before the first form is
// started.
type Service[C any] struct {
	def      Definition[C]
	coord    *Coordinator
	registry *Registry
	events   *EventBus

	store         Store
	codec         Codec
	keyPrefix     string
	saveOn        []SaveTrigger
	saveInStore   bool
	removeOnClose bool
	mergeOpts     []MergeOption
	defaultID     string

	initial           any
	initialDisabled   map[string]bool
	initialValidators map[string][]*Validator

	mu      sync.Mutex
	values  map[string]FormValues
	order   []string
	lastErr error
	errors  *ring[error]

	logger  *slog.Logger
	metrics MetricsProvider

	valuesChanges Stream[map[string]FormValues]
	patches       Stream[Patch]
}

// NewService creates a Service for def, persisting to a MemoryStore as
// JSON and saving on user changes.
//
// Example:
//
//	svc := formz.NewService[FieldConfig](signupDefinition{}).
//	    Store(redisstore.New(client)).
//	    SaveOn(formz.SaveOnUserChange, formz.SaveOnDataChange)
func NewService[C any](def Definition[C]) *Service[C] {
	return &Service[C]{
		def:           def,
		coord:         NewCoordinator(),
		registry:      NewRegistry(),
		events:        NewEventBus(),
		store:         NewMemoryStore(),
		codec:         JSONCodec{},
		saveOn:        []SaveTrigger{SaveOnUserChange},
		saveInStore:   true,
		removeOnClose: true,
		defaultID:     uuid.NewString(),
		values:        make(map[string]FormValues),
		logger:        discardLogger,
	}
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Store sets where form values are persisted.
func (s *Service[C]) Store(st Store) *Service[C] {
	s.store = st
	return s
}

// Codec sets how persisted values are encoded. Default: JSONCodec.
func (s *Service[C]) Codec(c Codec) *Service[C] {
	s.codec = c
	return s
}

// KeyPrefix is prepended to component IDs to form store keys.
func (s *Service[C]) KeyPrefix(p string) *Service[C] {
	s.keyPrefix = p
	return s
}

// SaveOn sets the triggers that write changes to the store.
// Default: SaveOnUserChange.
func (s *Service[C]) SaveOn(triggers ...SaveTrigger) *Service[C] {
	s.saveOn = append([]SaveTrigger(nil), triggers...)
	return s
}

// SaveInStore sets whether values are written to the store at all.
// Default: true.
func (s *Service[C]) SaveInStore(b bool) *Service[C] {
	s.saveInStore = b
	return s
}

// RemoveOnClose sets whether Close deletes the persisted keys.
// Default: true.
func (s *Service[C]) RemoveOnClose(b bool) *Service[C] {
	s.removeOnClose = b
	return s
}

// MergeOptions sets how MergeConfigWith and MergeInitialValueWith merge.
func (s *Service[C]) MergeOptions(opts ...MergeOption) *Service[C] {
	s.mergeOpts = opts
	return s
}

// DefaultComponentID sets the component ID used when none is given.
// Default: a random UUID.
func (s *Service[C]) DefaultComponentID(id string) *Service[C] {
	s.defaultID = id
	return s
}

// InitialValue seeds every group this service builds.
func (s *Service[C]) InitialValue(v any) *Service[C] {
	s.initial = v
	return s
}

// InitialDisabled disables controls by path in every group this service
// builds.
func (s *Service[C]) InitialDisabled(paths map[string]bool) *Service[C] {
	s.initialDisabled = paths
	return s
}

// InitialValidators adds validators by path to every group this service
// builds.
func (s *Service[C]) InitialValidators(vs map[string][]*Validator) *Service[C] {
	s.initialValidators = vs
	return s
}

// EventBus shares bus between services.
func (s *Service[C]) EventBus(bus *EventBus) *Service[C] {
	s.events = bus
	return s
}

// ErrorHistorySize keeps the last n store errors for ErrorHistory.
// Default: 0 (disabled).
func (s *Service[C]) ErrorHistorySize(n int) *Service[C] {
	s.errors = newRing[error](n)
	return s
}

// Logger sets the logger. Default: discard.
func (s *Service[C]) Logger(l *slog.Logger) *Service[C] {
	s.logger = l
	return s
}

// Metrics sets a metrics provider.
func (s *Service[C]) Metrics(provider MetricsProvider) *Service[C] {
	s.metrics = provider
	return s
}

// -----------------------------------------------------------------------------
// Definition
// -----------------------------------------------------------------------------

// FormGroup builds a group from the definition and seeds it. Service-level
// initial values, disabled paths, and validators are applied first, then
// init's own on top. The default configuration is attached to the group.
func (s *Service[C]) FormGroup(init GroupInit) (*Node, error) {
	g, err := s.def.BuildGroup(init.Index)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &MissingImplementationError{Method: "BuildGroup"}
	}

	value := s.initial
	if init.Value != nil {
		value = MergeDeep(s.initial, init.Value, s.mergeOpts...)
	}
	if value != nil {
		g.PatchValue(value, Silent())
	}

	for path, v := range s.initialValidators {
		addPathValidators(g, path, v)
	}
	for path, v := range init.Validators {
		addPathValidators(g, path, v)
	}
	for path, d := range s.initialDisabled {
		disablePath(g, path, d)
	}
	for path, d := range init.Disabled {
		disablePath(g, path, d)
	}
	g.UpdateValueAndValidity(Silent())

	cfg := s.def.FieldsConfig()
	s.coord.SetDefaultConfig(g, cfg)
	s.coord.SetConfig(g, cfg)
	return g, nil
}

func addPathValidators(g *Node, path string, vs []*Validator) {
	if c := g.Get(path); c != nil {
		c.AddValidators(vs...)
		c.UpdateValueAndValidity(Silent())
	}
}

func disablePath(g *Node, path string, disabled bool) {
	c := g.Get(path)
	if c == nil {
		return
	}
	if disabled {
		c.Disable(Silent())
	} else {
		c.Enable(Silent())
	}
}

// DefaultValue is the raw value of a freshly built group.
func (s *Service[C]) DefaultValue() (any, error) {
	g, err := s.FormGroup(GroupInit{Index: NoIndex})
	if err != nil {
		return nil, err
	}
	return g.RawValue(), nil
}

// FieldsConfig returns the definition's default configuration.
func (s *Service[C]) FieldsConfig() *Tree[Setting[C]] {
	return s.def.FieldsConfig()
}

// FieldsLogic returns the definition's default logic.
func (s *Service[C]) FieldsLogic() *Tree[FieldLogic[C]] {
	return s.def.FieldsLogic()
}

// MergeConfigWith overlays cfg on the default configuration. Where both
// supply a leaf the results are deep-merged, so an override only needs
// the parts it changes. Computed leaves are merged on every evaluation.
func (s *Service[C]) MergeConfigWith(cfg *Tree[Setting[C]]) *Tree[Setting[C]] {
	o := resolveMergeOptions(s.mergeOpts)
	return MergeTrees(s.def.FieldsConfig(), cfg, func(base, over Setting[C]) Setting[C] {
		if !base.IsComputed() && !over.IsComputed() {
			return Static(mergeLeaf(base.value, over.value, o))
		}
		return Computed(func(a ConfigArgs[C]) C {
			return mergeLeaf(base.Resolve(a), over.Resolve(a), o)
		})
	})
}

// MergeLogicWith overlays logic on the default logic phase by phase.
func (s *Service[C]) MergeLogicWith(logic *Tree[FieldLogic[C]]) *Tree[FieldLogic[C]] {
	return MergeLogic(s.def.FieldsLogic(), logic)
}

// MergeInitialValueWith deep-merges v over the default value.
func (s *Service[C]) MergeInitialValueWith(v any) (any, error) {
	def, err := s.DefaultValue()
	if err != nil {
		return nil, err
	}
	return MergeDeep(def, v, s.mergeOpts...), nil
}

// -----------------------------------------------------------------------------
// Persisted Values
// -----------------------------------------------------------------------------

// SaveOption adjusts a single SetFormValues call.
type SaveOption func(*saveOptions)

type saveOptions struct {
	triggers []SaveTrigger
	store    *bool
	quiet    bool
}

// SaveAs classifies the change. Default: the service's own triggers, which
// always save.
func SaveAs(triggers ...SaveTrigger) SaveOption {
	return func(o *saveOptions) { o.triggers = triggers }
}

// InStore overrides the service's SaveInStore for this call.
func InStore(b bool) SaveOption {
	return func(o *saveOptions) { o.store = &b }
}

// Quiet skips the ValuesChanges emission.
func Quiet() SaveOption {
	return func(o *saveOptions) { o.quiet = true }
}

func (s *Service[C]) componentID(id string) string {
	if id == "" {
		return s.defaultID
	}
	return id
}

func (s *Service[C]) key(id string) string {
	return s.keyPrefix + id
}

// SetFormValues records v for the component and, when the change's
// triggers match, persists it. Store failures are returned and recorded.
func (s *Service[C]) SetFormValues(ctx context.Context, id string, v FormValues, opts ...SaveOption) error {
	o := saveOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	id = s.componentID(id)

	s.mu.Lock()
	if _, ok := s.values[id]; !ok {
		s.order = append(s.order, id)
	}
	s.values[id] = v
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if !o.quiet {
		s.valuesChanges.Emit(snapshot)
	}

	save := s.saveInStore
	if o.store != nil {
		save = *o.store
	}
	if !save || !s.shouldSave(o.triggers) {
		return nil
	}

	data, err := s.codec.Marshal(v)
	if err != nil {
		return s.recordError(ctx, "encode", id, err)
	}
	if err := s.store.Set(ctx, s.key(id), data); err != nil {
		return s.recordError(ctx, "set", id, err)
	}

	capitan.Emit(ctx, FormValuesSaved, KeyComponentID.Field(id))
	s.logger.Debug("form values saved", "component_id", id, "content_type", s.codec.ContentType())
	if s.metrics != nil {
		s.metrics.OnValuesSaved(id)
	}
	return nil
}

func (s *Service[C]) shouldSave(triggers []SaveTrigger) bool {
	if triggers == nil {
		return true
	}
	for _, want := range s.saveOn {
		for _, got := range triggers {
			if want == got {
				return true
			}
		}
	}
	return false
}

// GetFormValues returns the component's values, reading through to the
// store on a miss. Stored values that cannot be decoded are treated as
// absent and recorded as errors.
func (s *Service[C]) GetFormValues(ctx context.Context, id string) (FormValues, bool) {
	id = s.componentID(id)

	s.mu.Lock()
	v, ok := s.values[id]
	s.mu.Unlock()
	if ok {
		return v, true
	}

	data, err := s.store.Get(ctx, s.key(id))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			_ = s.recordError(ctx, "get", id, err) //nolint:errcheck // Errors stored via LastError
		}
		return FormValues{}, false
	}
	if err := s.codec.Unmarshal(data, &v); err != nil {
		_ = s.recordError(ctx, "decode", id, err) //nolint:errcheck // Errors stored via LastError
		return FormValues{}, false
	}
	_ = s.SetFormValues(ctx, id, v, InStore(false)) //nolint:errcheck // Never writes to the store
	return v, true
}

// ClearOption adjusts ClearData.
type ClearOption func(*clearOptions)

type clearOptions struct {
	skipStore   bool
	skipService bool
}

// SkipStore leaves persisted values in place.
func SkipStore() ClearOption {
	return func(o *clearOptions) { o.skipStore = true }
}

// SkipService leaves in-memory values in place.
func SkipService() ClearOption {
	return func(o *clearOptions) { o.skipService = true }
}

// ClearData drops every component's values from the store and from
// memory.
func (s *Service[C]) ClearData(ctx context.Context, opts ...ClearOption) error {
	o := clearOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	var errs []error
	if !o.skipStore {
		errs = s.deleteKeys(ctx, ids)
	}
	if !o.skipService {
		s.mu.Lock()
		s.values = make(map[string]FormValues)
		s.order = nil
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.valuesChanges.Emit(snapshot)
	}

	capitan.Emit(ctx, FormValuesCleared, KeyCount.Field(len(ids)))
	return errors.Join(errs...)
}

func (s *Service[C]) deleteKeys(ctx context.Context, ids []string) []error {
	var errs []error
	for _, id := range ids {
		if err := s.store.Delete(ctx, s.key(id)); err != nil {
			errs = append(errs, s.recordError(ctx, "delete", id, err))
		}
	}
	return errs
}

// FormValues returns a copy of every component's values.
func (s *Service[C]) FormValues() map[string]FormValues {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service[C]) snapshotLocked() map[string]FormValues {
	out := make(map[string]FormValues, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ValuesChanges emits a snapshot of every component's values after each
// change.
func (s *Service[C]) ValuesChanges() *Stream[map[string]FormValues] {
	return &s.valuesChanges
}

// PatchForm routes v to the started form with the default component ID
// and index.
func (s *Service[C]) PatchForm(v any, index int) {
	s.patches.Emit(Patch{ComponentID: ComponentID(s.defaultID, index), Value: v})
}

// PatchComponent routes v to the form persisting under id.
func (s *Service[C]) PatchComponent(id string, v any) {
	s.patches.Emit(Patch{ComponentID: s.componentID(id), Value: v})
}

// Patches emits every routed patch.
func (s *Service[C]) Patches() *Stream[Patch] {
	return &s.patches
}

// -----------------------------------------------------------------------------
// Arrays
// -----------------------------------------------------------------------------

// AddGroup builds a group and appends it to array as a UI change.
func (s *Service[C]) AddGroup(array *Node, init GroupInit) (*Node, error) {
	g, err := s.FormGroup(init)
	if err != nil {
		return nil, err
	}
	s.coord.MarkAsUIChange(array)
	array.Push(g)
	return g, nil
}

// AddControl appends c to array as a UI change.
func (s *Service[C]) AddControl(array, c *Node) {
	s.coord.MarkAsUIChange(array)
	array.Push(c)
}

// RemoveFromArray removes c from array as a UI change. It reports whether
// c was found.
func (s *Service[C]) RemoveFromArray(array *Node, c Control) bool {
	if array == nil || c == nil {
		return false
	}
	for i := 0; i < array.Len(); i++ {
		if array.At(i).ID() == c.ID() {
			s.coord.MarkAsUIChange(array)
			s.coord.Forget(c)
			array.RemoveAt(i)
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Recalculation, Events, Lifecycle
// -----------------------------------------------------------------------------

// RecalculateConfig reruns every attached engine from its configuration.
func (s *Service[C]) RecalculateConfig() {
	s.registry.RecalculateConfig()
}

// ReloadLogic rebuilds the merged logic of every attached engine.
func (s *Service[C]) ReloadLogic() {
	s.registry.ReloadLogic()
}

// Coordinator returns the coordinator shared by this service's forms.
func (s *Service[C]) Coordinator() *Coordinator { return s.coord }

// Registry returns the recalculation registry.
func (s *Service[C]) Registry() *Registry { return s.registry }

// Events returns the event bus.
func (s *Service[C]) Events() *EventBus { return s.events }

// Definition returns the form definition.
func (s *Service[C]) Definition() Definition[C] { return s.def }

// DefaultID returns the component ID used when none is given.
func (s *Service[C]) DefaultID() string { return s.defaultID }

// LastError returns the most recent store error, or nil.
func (s *Service[C]) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ErrorHistory returns recent store errors, oldest first. Requires
// ErrorHistorySize.
func (s *Service[C]) ErrorHistory() []error {
	return s.errors.all()
}

func (s *Service[C]) recordError(ctx context.Context, op, id string, err error) error {
	err = fmt.Errorf("%s %s: %w", op, id, err)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.errors.push(err)

	capitan.Emit(ctx, StoreFailed,
		KeyOperation.Field(op),
		KeyComponentID.Field(id),
		KeyError.Field(err.Error()),
	)
	s.logger.Warn("store operation failed", "operation", op, "component_id", id, "error", err)
	return err
}

// Close deletes persisted keys when RemoveOnClose is set and detaches
// every engine registration.
func (s *Service[C]) Close(ctx context.Context) error {
	var errs []error
	if s.removeOnClose {
		s.mu.Lock()
		ids := append([]string(nil), s.order...)
		s.mu.Unlock()
		errs = s.deleteKeys(ctx, ids)
	}
	s.registry.Clear()
	return errors.Join(errs...)
}
