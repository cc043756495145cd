package formz

// NoIndex marks a configuration or logic call that is not bound to an array
// item.
const NoIndex = -1

// ConfigArgs is what a computed setting receives.
type ConfigArgs[C any] struct {
	// Form is the root of the control tree.
	Form Control
	// Default is the materialized default configuration, or nil while the
	// default itself is being materialized.
	Default *Tree[C]
	// Index is the array index of the bound form, or NoIndex.
	Index int
}

// ConfigFunc computes a configuration value.
type ConfigFunc[C any] func(args ConfigArgs[C]) C

// Setting is a configuration leaf: a constant or a function of the form.
type Setting[C any] struct {
	value C
	fn    ConfigFunc[C]
}

// Static wraps a resolved value.
func Static[C any](v C) Setting[C] {
	return Setting[C]{value: v}
}

// Computed wraps a function evaluated on every materialization.
func Computed[C any](fn ConfigFunc[C]) Setting[C] {
	return Setting[C]{fn: fn}
}

// IsComputed reports whether s is a function.
func (s Setting[C]) IsComputed() bool {
	return s.fn != nil
}

// Resolve returns the constant or the function's result.
func (s Setting[C]) Resolve(args ConfigArgs[C]) C {
	if s.fn != nil {
		return s.fn(args)
	}
	return s.value
}

// Field is a configuration leaf entry.
func Field[C any](name string, s Setting[C]) Entry[Setting[C]] {
	return At(name, Leaf(s))
}

// Const is a constant configuration leaf entry.
func Const[C any](name string, v C) Entry[Setting[C]] {
	return Field(name, Static(v))
}

// Func is a computed configuration leaf entry.
func Func[C any](name string, fn ConfigFunc[C]) Entry[Setting[C]] {
	return Field(name, Computed(fn))
}

// Section is a nested configuration group entry.
func Section[C any](name string, entries ...Entry[Setting[C]]) Entry[Setting[C]] {
	return At(name, Group(entries...))
}

// NewConfig builds a configuration tree.
func NewConfig[C any](entries ...Entry[Setting[C]]) *Tree[Setting[C]] {
	return Group(entries...)
}

// MapConfigToChange materializes cfg: every computed leaf is invoked with
// the form, the materialized default, and the index; constant leaves are
// taken as they are.
func MapConfigToChange[C any](cfg *Tree[Setting[C]], form Control, def *Tree[C], index int) *Tree[C] {
	args := ConfigArgs[C]{Form: form, Default: def, Index: index}
	return MapTree(cfg, func(_ string, s Setting[C]) C {
		return s.Resolve(args)
	})
}

// isEmptyConfig reports whether cfg carries no leaves.
func isEmptyConfig[L any](cfg *Tree[L]) bool {
	if cfg == nil {
		return true
	}
	empty := true
	cfg.Walk(func(string, L) bool {
		empty = false
		return false
	})
	return empty
}
