package formz

import (
	"strings"
	"sync/atomic"
)

// Control is the contract the coordinators consume. *Node is the provided
// implementation; anything satisfying this interface can be coordinated.
//
// Controls are not safe for concurrent use. Confine a tree to one goroutine,
// or route work through a Loop scheduler.
type Control interface {
	// ID returns a process-unique identity used to key side tables.
	ID() uint64
	Kind() Kind

	Value() any
	RawValue() any
	SetValue(v any, opts ...Option)
	PatchValue(v any, opts ...Option)
	Reset(v any, opts ...Option)

	Status() Status
	Valid() bool
	Invalid() bool
	Pending() bool
	Disabled() bool
	Enabled() bool
	Enable(opts ...Option)
	Disable(opts ...Option)

	Errors() Errors
	SetErrors(errs Errors, opts ...Option)
	UpdateValueAndValidity(opts ...Option)

	AddValidators(vs ...*Validator)
	RemoveValidators(vs ...*Validator)
	HasValidator(v *Validator) bool
	Validators() []*Validator
	AddAsyncValidators(vs ...*AsyncValidator)
	RemoveAsyncValidators(vs ...*AsyncValidator)
	HasAsyncValidator(v *AsyncValidator) bool
	AsyncValidators() []*AsyncValidator

	Dirty() bool
	Pristine() bool
	Touched() bool
	Untouched() bool
	MarkAsDirty(opts ...Option)
	MarkAsPristine(opts ...Option)
	MarkAsTouched(opts ...Option)
	MarkAsUntouched(opts ...Option)

	// Parent returns nil for a root.
	Parent() Control
	Root() Control
	// Names lists child names in order. Array children are named by index.
	Names() []string
	// Child returns nil when no child has that name.
	Child(name string) Control

	ValueChanges() *Stream[any]
	StatusChanges() *Stream[Status]
}

var nextControlID atomic.Uint64

func newControlID() uint64 {
	return nextControlID.Add(1)
}

// ControlName resolves a control's name by looking it up among its parent's
// children. Array children resolve to their index. A root has no name.
func ControlName(c Control) string {
	if c == nil {
		return ""
	}
	parent := c.Parent()
	if parent == nil {
		return ""
	}
	id := c.ID()
	for _, name := range parent.Names() {
		if child := parent.Child(name); child != nil && child.ID() == id {
			return name
		}
	}
	return ""
}

// Path returns the dotted path from the root to c.
func Path(c Control) string {
	if c == nil {
		return ""
	}
	var parts []string
	for cur := c; cur != nil && cur.Parent() != nil; cur = cur.Parent() {
		parts = append(parts, ControlName(cur))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Find walks a dotted path from c. It returns nil when any segment is
// missing. An empty path returns c.
func Find(c Control, path string) Control {
	if c == nil || path == "" {
		return c
	}
	cur := c
	for _, name := range strings.Split(path, ".") {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Walk visits c and its descendants depth-first in child order.
func Walk(c Control, fn func(Control)) {
	if c == nil {
		return
	}
	fn(c)
	for _, name := range c.Names() {
		Walk(c.Child(name), fn)
	}
}

// MarkAllAsTouched touches every untouched leaf under c without propagating
// to ancestors, then revalidates each touched leaf in place.
func MarkAllAsTouched(c Control) {
	if c == nil {
		return
	}
	if c.Kind() != KindLeaf {
		for _, name := range c.Names() {
			MarkAllAsTouched(c.Child(name))
		}
		return
	}
	if c.Untouched() {
		c.MarkAsTouched(OnlySelf())
		c.UpdateValueAndValidity(OnlySelf())
	}
}
