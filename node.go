package formz

import (
	"context"
	"reflect"
	"strconv"
	"strings"
)

// Node is the concrete control tree: a leaf holding a value, a group of
// named children, or an array of indexed children.
//
// Container values are derived from children on every read. Value excludes
// disabled children unless the container itself is disabled; RawValue
// always includes them.
type Node struct {
	id     uint64
	kind   Kind
	parent *Node

	value        any
	defaultValue any
	nonNullable  bool
	startOff     bool

	names    []string
	children map[string]*Node
	items    []*Node

	validators      []*Validator
	asyncValidators []*AsyncValidator
	errors          Errors
	status          Status
	pristine        bool
	touched         bool

	sched       Scheduler
	asyncSeq    uint64
	asyncCancel context.CancelFunc
	ownPending  bool

	valueChanges    Stream[any]
	statusChanges   Stream[Status]
	modelChanges    Stream[any]
	disabledChanges Stream[bool]
}

// NodeOption configures a node at construction.
type NodeOption func(*Node)

// WithValidators attaches sync validators.
func WithValidators(vs ...*Validator) NodeOption {
	return func(n *Node) {
		n.AddValidators(vs...)
	}
}

// WithAsyncValidators attaches async validators.
func WithAsyncValidators(vs ...*AsyncValidator) NodeOption {
	return func(n *Node) {
		n.AddAsyncValidators(vs...)
	}
}

// WithDisabled creates the node disabled.
func WithDisabled() NodeOption {
	return func(n *Node) {
		n.startOff = true
	}
}

// NonNullable makes Reset(nil) restore the initial value instead of nil.
func NonNullable() NodeOption {
	return func(n *Node) {
		n.nonNullable = true
	}
}

// WithScheduler sets the scheduler used for async validation results.
// Only meaningful on a root.
func WithScheduler(s Scheduler) NodeOption {
	return func(n *Node) {
		n.sched = s
	}
}

// Member is a named child passed to NewGroup.
type Member struct {
	name string
	node *Node
}

// Named pairs a child with its name in a group.
func Named(name string, n *Node) Member {
	return Member{name: name, node: n}
}

func newNode(kind Kind, opts []NodeOption) *Node {
	n := &Node{
		id:       newControlID(),
		kind:     kind,
		pristine: true,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Node) finish() {
	n.updateValueAndValidity(callOptions{onlySelf: true})
	if n.startOff {
		n.Disable(OnlySelf(), Silent())
	}
}

// NewControl creates a leaf.
func NewControl(value any, opts ...NodeOption) *Node {
	n := newNode(KindLeaf, opts)
	n.value = value
	n.defaultValue = value
	n.finish()
	return n
}

// NewGroup creates a group. Duplicate or nil members are ignored.
func NewGroup(members []Member, opts ...NodeOption) *Node {
	n := newNode(KindGroup, opts)
	n.children = make(map[string]*Node, len(members))
	for _, m := range members {
		n.register(m.name, m.node)
	}
	n.finish()
	return n
}

// NewArray creates an array.
func NewArray(items []*Node, opts ...NodeOption) *Node {
	n := newNode(KindArray, opts)
	for _, item := range items {
		if item == nil {
			continue
		}
		item.parent = n
		n.items = append(n.items, item)
	}
	n.finish()
	return n
}

func (n *Node) register(name string, c *Node) bool {
	if c == nil {
		return false
	}
	if _, exists := n.children[name]; exists {
		return false
	}
	c.parent = n
	n.names = append(n.names, name)
	n.children[name] = c
	return true
}

// -----------------------------------------------------------------------------
// Identity and Navigation
// -----------------------------------------------------------------------------

// ID returns the node's process-unique identity.
func (n *Node) ID() uint64 { return n.id }

// Kind returns the node's shape.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the parent, or nil for a root.
func (n *Node) Parent() Control {
	if n.parent == nil {
		return nil
	}
	return n.parent
}

// Root returns the top of the tree.
func (n *Node) Root() Control {
	return n.rootNode()
}

func (n *Node) rootNode() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Names lists child names in order.
func (n *Node) Names() []string {
	switch n.kind {
	case KindGroup:
		out := make([]string, len(n.names))
		copy(out, n.names)
		return out
	case KindArray:
		out := make([]string, len(n.items))
		for i := range n.items {
			out[i] = strconv.Itoa(i)
		}
		return out
	}
	return nil
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) Control {
	if c := n.child(name); c != nil {
		return c
	}
	return nil
}

func (n *Node) child(name string) *Node {
	switch n.kind {
	case KindGroup:
		return n.children[name]
	case KindArray:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= len(n.items) {
			return nil
		}
		return n.items[i]
	}
	return nil
}

// Get walks a dotted path and returns the node there, or nil.
func (n *Node) Get(path string) *Node {
	if path == "" {
		return n
	}
	cur := n
	for _, name := range strings.Split(path, ".") {
		cur = cur.child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Controls returns the direct children in order.
func (n *Node) Controls() []*Node {
	switch n.kind {
	case KindGroup:
		out := make([]*Node, 0, len(n.names))
		for _, name := range n.names {
			out = append(out, n.children[name])
		}
		return out
	case KindArray:
		out := make([]*Node, len(n.items))
		copy(out, n.items)
		return out
	}
	return nil
}

// -----------------------------------------------------------------------------
// Structure
// -----------------------------------------------------------------------------

// AddControl adds a named child to a group. An existing child with the same
// name is kept.
func (n *Node) AddControl(name string, c *Node, opts ...Option) {
	if n.kind != KindGroup || !n.register(name, c) {
		return
	}
	n.updateValueAndValidity(resolveOptions(opts))
}

// SetControl replaces or adds a named child of a group.
func (n *Node) SetControl(name string, c *Node, opts ...Option) {
	if n.kind != KindGroup || c == nil {
		return
	}
	if old, ok := n.children[name]; ok {
		old.parent = nil
		c.parent = n
		n.children[name] = c
	} else {
		n.register(name, c)
	}
	n.updateValueAndValidity(resolveOptions(opts))
}

// RemoveControl removes a named child from a group.
func (n *Node) RemoveControl(name string, opts ...Option) {
	if n.kind != KindGroup {
		return
	}
	old, ok := n.children[name]
	if !ok {
		return
	}
	old.parent = nil
	delete(n.children, name)
	for i, existing := range n.names {
		if existing == name {
			n.names = append(n.names[:i:i], n.names[i+1:]...)
			break
		}
	}
	n.updateValueAndValidity(resolveOptions(opts))
}

// Push appends an item to an array.
func (n *Node) Push(c *Node, opts ...Option) {
	n.Insert(len(n.items), c, opts...)
}

// Insert places an item at index i of an array, clamped to bounds.
func (n *Node) Insert(i int, c *Node, opts ...Option) {
	if n.kind != KindArray || c == nil {
		return
	}
	if i < 0 {
		i = 0
	}
	if i > len(n.items) {
		i = len(n.items)
	}
	c.parent = n
	n.items = append(n.items, nil)
	copy(n.items[i+1:], n.items[i:])
	n.items[i] = c
	n.updateValueAndValidity(resolveOptions(opts))
}

// RemoveAt removes the item at index i of an array.
func (n *Node) RemoveAt(i int, opts ...Option) {
	if n.kind != KindArray || i < 0 || i >= len(n.items) {
		return
	}
	n.items[i].parent = nil
	n.items = append(n.items[:i:i], n.items[i+1:]...)
	n.updateValueAndValidity(resolveOptions(opts))
}

// At returns the item at index i, or nil.
func (n *Node) At(i int) *Node {
	if n.kind != KindArray || i < 0 || i >= len(n.items) {
		return nil
	}
	return n.items[i]
}

// Len returns the number of children.
func (n *Node) Len() int {
	switch n.kind {
	case KindGroup:
		return len(n.names)
	case KindArray:
		return len(n.items)
	}
	return 0
}

// -----------------------------------------------------------------------------
// Values
// -----------------------------------------------------------------------------

// Value returns the node's value. Groups yield map[string]any and arrays
// yield []any.
func (n *Node) Value() any {
	switch n.kind {
	case KindGroup:
		out := make(map[string]any, len(n.names))
		for _, name := range n.names {
			c := n.children[name]
			if c.Enabled() || n.Disabled() {
				out[name] = c.Value()
			}
		}
		return out
	case KindArray:
		out := make([]any, 0, len(n.items))
		for _, c := range n.items {
			if c.Enabled() || n.Disabled() {
				out = append(out, c.Value())
			}
		}
		return out
	}
	return n.value
}

// RawValue returns the node's value including disabled children.
func (n *Node) RawValue() any {
	switch n.kind {
	case KindGroup:
		out := make(map[string]any, len(n.names))
		for _, name := range n.names {
			out[name] = n.children[name].RawValue()
		}
		return out
	case KindArray:
		out := make([]any, 0, len(n.items))
		for _, c := range n.items {
			out = append(out, c.RawValue())
		}
		return out
	}
	return n.value
}

// SetValue replaces the value. For containers every child is written;
// children missing from v are set to nil.
func (n *Node) SetValue(v any, opts ...Option) {
	o := resolveOptions(opts)
	child := o
	child.onlySelf = true

	switch n.kind {
	case KindGroup:
		m := asMap(v)
		for _, name := range n.names {
			n.children[name].SetValue(m[name], child.toOptions()...)
		}
	case KindArray:
		s := asSlice(v)
		for i, c := range n.items {
			var cv any
			if i < len(s) {
				cv = s[i]
			}
			c.SetValue(cv, child.toOptions()...)
		}
	default:
		n.value = v
		if !o.fromView {
			n.modelChanges.Emit(v)
		}
	}
	n.updateValueAndValidity(o)
}

// PatchValue writes only the children present in v. For a leaf it is the
// same as SetValue.
func (n *Node) PatchValue(v any, opts ...Option) {
	o := resolveOptions(opts)
	child := o
	child.onlySelf = true

	switch n.kind {
	case KindGroup:
		for key, cv := range asMap(v) {
			if c, ok := n.children[key]; ok {
				c.PatchValue(cv, child.toOptions()...)
			}
		}
	case KindArray:
		s := asSlice(v)
		for i, cv := range s {
			if i >= len(n.items) {
				break
			}
			n.items[i].PatchValue(cv, child.toOptions()...)
		}
	default:
		n.SetValue(v, opts...)
		return
	}
	n.updateValueAndValidity(o)
}

// Reset writes v and marks the subtree pristine and untouched.
func (n *Node) Reset(v any, opts ...Option) {
	o := resolveOptions(opts)
	child := o
	child.onlySelf = true

	switch n.kind {
	case KindGroup:
		m := asMap(v)
		for _, name := range n.names {
			n.children[name].Reset(m[name], child.toOptions()...)
		}
		n.updatePristine(o)
		n.updateTouched(o)
	case KindArray:
		s := asSlice(v)
		for i, c := range n.items {
			var cv any
			if i < len(s) {
				cv = s[i]
			}
			c.Reset(cv, child.toOptions()...)
		}
		n.updatePristine(o)
		n.updateTouched(o)
	default:
		if v == nil && n.nonNullable {
			v = n.defaultValue
		}
		n.value = v
		n.MarkAsPristine(opts...)
		n.MarkAsUntouched(opts...)
		if !o.fromView {
			n.modelChanges.Emit(v)
		}
	}
	n.updateValueAndValidity(o)
}

func asMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

func asSlice(v any) []any {
	if v == nil {
		return nil
	}
	if s, ok := v.([]any); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// -----------------------------------------------------------------------------
// Status and Validation
// -----------------------------------------------------------------------------

// Status returns the current validation status.
func (n *Node) Status() Status { return n.status }

// Valid reports StatusValid.
func (n *Node) Valid() bool { return n.status == StatusValid }

// Invalid reports StatusInvalid.
func (n *Node) Invalid() bool { return n.status == StatusInvalid }

// Pending reports StatusPending.
func (n *Node) Pending() bool { return n.status == StatusPending }

// Disabled reports StatusDisabled.
func (n *Node) Disabled() bool { return n.status == StatusDisabled }

// Enabled reports any status other than StatusDisabled.
func (n *Node) Enabled() bool { return n.status != StatusDisabled }

// Errors returns the node's own errors.
func (n *Node) Errors() Errors { return n.errors }

// SetErrors overrides the node's errors without running validators and
// recalculates status up the tree.
func (n *Node) SetErrors(errs Errors, opts ...Option) {
	o := resolveOptions(opts)
	if len(errs) == 0 {
		errs = nil
	}
	n.errors = errs
	n.updateControlsErrors(o.emitEvent)
}

func (n *Node) updateControlsErrors(emit bool) {
	n.status = n.calculateStatus()
	if emit {
		n.statusChanges.Emit(n.status)
	}
	if n.parent != nil {
		n.parent.updateControlsErrors(emit)
	}
}

// UpdateValueAndValidity reruns validators and recalculates status, then
// propagates to ancestors unless OnlySelf is given.
func (n *Node) UpdateValueAndValidity(opts ...Option) {
	n.updateValueAndValidity(resolveOptions(opts))
}

func (n *Node) updateValueAndValidity(o callOptions) {
	if n.allControlsDisabled() {
		n.status = StatusDisabled
	} else {
		n.status = StatusValid
	}

	if n.Enabled() {
		n.cancelAsync()
		n.errors = runValidators(n.validators, n)
		n.status = n.calculateStatus()
		if n.status == StatusValid || n.status == StatusPending {
			n.runAsyncValidators(o.emitEvent)
		}
	}

	if o.emitEvent {
		n.valueChanges.Emit(n.Value())
		n.statusChanges.Emit(n.status)
	}

	if n.parent != nil && !o.onlySelf {
		n.parent.updateValueAndValidity(o)
	}
}

func (n *Node) allControlsDisabled() bool {
	if n.kind == KindLeaf || n.Len() == 0 {
		return n.status == StatusDisabled
	}
	for _, c := range n.Controls() {
		if c.Enabled() {
			return false
		}
	}
	return true
}

func (n *Node) calculateStatus() Status {
	if n.allControlsDisabled() {
		return StatusDisabled
	}
	if len(n.errors) > 0 {
		return StatusInvalid
	}
	if n.ownPending || n.anyChildHasStatus(StatusPending) {
		return StatusPending
	}
	if n.anyChildHasStatus(StatusInvalid) {
		return StatusInvalid
	}
	return StatusValid
}

func (n *Node) anyChildHasStatus(s Status) bool {
	for _, c := range n.Controls() {
		if c.status == s {
			return true
		}
	}
	return false
}

func (n *Node) cancelAsync() {
	n.asyncSeq++
	n.ownPending = false
	if n.asyncCancel != nil {
		n.asyncCancel()
		n.asyncCancel = nil
	}
}

// runAsyncValidators evaluates async validators against a detached snapshot
// of the value. Without a scheduler they run inline; with one they run on
// their own goroutine and post the result back.
func (n *Node) runAsyncValidators(emit bool) {
	if len(n.asyncValidators) == 0 {
		return
	}
	n.status = StatusPending
	n.ownPending = true
	seq := n.asyncSeq

	vs := make([]*AsyncValidator, len(n.asyncValidators))
	copy(vs, n.asyncValidators)
	snapshot := NewControl(n.Value())
	opts := callOptions{emitEvent: emit}

	sched := n.rootNode().sched
	if sched == nil {
		errs := runAsync(context.Background(), vs, snapshot)
		n.ownPending = false
		n.SetErrors(errs, opts.toOptions()...)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.asyncCancel = cancel
	go func() {
		errs := runAsync(ctx, vs, snapshot)
		sched.Post(func() {
			if n.asyncSeq != seq || ctx.Err() != nil {
				return
			}
			cancel()
			n.asyncCancel = nil
			n.ownPending = false
			n.SetErrors(errs, opts.toOptions()...)
		})
	}()
}

func runAsync(ctx context.Context, vs []*AsyncValidator, c Control) Errors {
	var out Errors
	for _, v := range vs {
		if ctx.Err() != nil {
			return nil
		}
		if errs := v.Validate(ctx, c); len(errs) > 0 {
			out = mergeErrors(out, errs)
		}
	}
	return out
}

// SetScheduler sets the scheduler used for async validation results.
func (n *Node) SetScheduler(s Scheduler) {
	n.sched = s
}

// Scheduler returns the root's scheduler, or nil.
func (n *Node) Scheduler() Scheduler {
	return n.rootNode().sched
}

// -----------------------------------------------------------------------------
// Enable / Disable
// -----------------------------------------------------------------------------

// Disable marks the subtree disabled, clears its errors, and revalidates
// ancestors unless OnlySelf is given.
func (n *Node) Disable(opts ...Option) {
	o := resolveOptions(opts)
	child := o
	child.onlySelf = true

	n.status = StatusDisabled
	n.errors = nil
	n.cancelAsync()
	for _, c := range n.Controls() {
		c.Disable(child.toOptions()...)
	}
	n.disabledChanges.Emit(true)

	if o.emitEvent {
		n.valueChanges.Emit(n.Value())
		n.statusChanges.Emit(n.status)
	}
	n.updateAncestors(o)
}

// Enable marks the subtree enabled, revalidates it, and revalidates
// ancestors unless OnlySelf is given.
func (n *Node) Enable(opts ...Option) {
	o := resolveOptions(opts)
	child := o
	child.onlySelf = true

	n.status = StatusValid
	for _, c := range n.Controls() {
		c.Enable(child.toOptions()...)
	}
	n.updateValueAndValidity(callOptions{onlySelf: true, emitEvent: o.emitEvent})
	n.disabledChanges.Emit(false)
	n.updateAncestors(o)
}

func (n *Node) updateAncestors(o callOptions) {
	if n.parent == nil || o.onlySelf {
		return
	}
	n.parent.updateValueAndValidity(o)
	n.parent.updatePristine(callOptions{emitEvent: true})
	n.parent.updateTouched(callOptions{emitEvent: true})
}

// -----------------------------------------------------------------------------
// Validators
// -----------------------------------------------------------------------------

// AddValidators adds validators not already present. It does not revalidate.
func (n *Node) AddValidators(vs ...*Validator) {
	for _, v := range vs {
		if v != nil && !n.HasValidator(v) {
			n.validators = append(n.validators, v)
		}
	}
}

// RemoveValidators removes validators. It does not revalidate.
func (n *Node) RemoveValidators(vs ...*Validator) {
	kept := n.validators[:0:0]
	for _, existing := range n.validators {
		if !containsRef(vs, existing) {
			kept = append(kept, existing)
		}
	}
	n.validators = kept
}

// HasValidator reports whether v is active.
func (n *Node) HasValidator(v *Validator) bool {
	return containsRef(n.validators, v)
}

// Validators returns the active sync validators.
func (n *Node) Validators() []*Validator {
	out := make([]*Validator, len(n.validators))
	copy(out, n.validators)
	return out
}

// AddAsyncValidators adds async validators not already present.
func (n *Node) AddAsyncValidators(vs ...*AsyncValidator) {
	for _, v := range vs {
		if v != nil && !n.HasAsyncValidator(v) {
			n.asyncValidators = append(n.asyncValidators, v)
		}
	}
}

// RemoveAsyncValidators removes async validators.
func (n *Node) RemoveAsyncValidators(vs ...*AsyncValidator) {
	kept := n.asyncValidators[:0:0]
	for _, existing := range n.asyncValidators {
		if !containsRef(vs, existing) {
			kept = append(kept, existing)
		}
	}
	n.asyncValidators = kept
}

// HasAsyncValidator reports whether v is active.
func (n *Node) HasAsyncValidator(v *AsyncValidator) bool {
	return containsRef(n.asyncValidators, v)
}

// AsyncValidators returns the active async validators.
func (n *Node) AsyncValidators() []*AsyncValidator {
	out := make([]*AsyncValidator, len(n.asyncValidators))
	copy(out, n.asyncValidators)
	return out
}

func containsRef[V comparable](list []V, v V) bool {
	for _, existing := range list {
		if existing == v {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Interaction State
// -----------------------------------------------------------------------------

// Dirty reports whether the value was changed through the view.
func (n *Node) Dirty() bool { return !n.pristine }

// Pristine is the inverse of Dirty.
func (n *Node) Pristine() bool { return n.pristine }

// Touched reports whether the control was blurred.
func (n *Node) Touched() bool { return n.touched }

// Untouched is the inverse of Touched.
func (n *Node) Untouched() bool { return !n.touched }

// MarkAsDirty marks the node and its ancestors dirty.
func (n *Node) MarkAsDirty(opts ...Option) {
	n.pristine = false
	if n.parent != nil && !resolveOptions(opts).onlySelf {
		n.parent.MarkAsDirty(opts...)
	}
}

// MarkAsPristine marks the subtree pristine and recomputes ancestors.
func (n *Node) MarkAsPristine(opts ...Option) {
	o := resolveOptions(opts)
	n.pristine = true
	for _, c := range n.Controls() {
		c.MarkAsPristine(OnlySelf())
	}
	if n.parent != nil && !o.onlySelf {
		n.parent.updatePristine(o)
	}
}

// MarkAsTouched marks the node and its ancestors touched.
func (n *Node) MarkAsTouched(opts ...Option) {
	n.touched = true
	if n.parent != nil && !resolveOptions(opts).onlySelf {
		n.parent.MarkAsTouched(opts...)
	}
}

// MarkAsUntouched marks the subtree untouched and recomputes ancestors.
func (n *Node) MarkAsUntouched(opts ...Option) {
	o := resolveOptions(opts)
	n.touched = false
	for _, c := range n.Controls() {
		c.MarkAsUntouched(OnlySelf())
	}
	if n.parent != nil && !o.onlySelf {
		n.parent.updateTouched(o)
	}
}

func (n *Node) updatePristine(o callOptions) {
	dirty := false
	for _, c := range n.Controls() {
		if c.Dirty() {
			dirty = true
			break
		}
	}
	n.pristine = !dirty
	if n.parent != nil && !o.onlySelf {
		n.parent.updatePristine(o)
	}
}

func (n *Node) updateTouched(o callOptions) {
	touched := false
	for _, c := range n.Controls() {
		if c.Touched() {
			touched = true
			break
		}
	}
	n.touched = touched
	if n.parent != nil && !o.onlySelf {
		n.parent.updateTouched(o)
	}
}

// -----------------------------------------------------------------------------
// Streams
// -----------------------------------------------------------------------------

// ValueChanges emits the value after every validation pass that is not
// silenced.
func (n *Node) ValueChanges() *Stream[any] { return &n.valueChanges }

// StatusChanges emits the status after every validation pass that is not
// silenced.
func (n *Node) StatusChanges() *Stream[Status] { return &n.statusChanges }

// OnModelChange registers a view writer invoked when a leaf's value is
// written by anything other than the view itself.
func (n *Node) OnModelChange(fn func(v any)) *Subscription {
	return n.modelChanges.Subscribe(fn)
}

// OnDisabledChange registers a callback invoked when the node is enabled or
// disabled.
func (n *Node) OnDisabledChange(fn func(disabled bool)) *Subscription {
	return n.disabledChanges.Subscribe(fn)
}

// Ensure *Node implements Control.
var _ Control = (*Node)(nil)
