package formz

import (
	"reflect"
	"time"

	"dario.cat/mergo"
)

// MergeOption configures MergeDeep and leaf configuration merges.
type MergeOption func(*mergeOptions)

type mergeOptions struct {
	arrays bool
	atomic func(v any) bool
}

func resolveMergeOptions(opts []MergeOption) mergeOptions {
	var o mergeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MergeArrays concatenates arrays instead of replacing them.
func MergeArrays() MergeOption {
	return func(o *mergeOptions) { o.arrays = true }
}

// SkipMerging marks source values matching fn as atomic: they replace the
// target value instead of being merged into it.
func SkipMerging(fn func(v any) bool) MergeOption {
	return func(o *mergeOptions) { o.atomic = fn }
}

// MergeDeep merges source into a copy of target. Maps merge key by key with
// source winning at every leaf, arrays are replaced unless MergeArrays is
// given, and everything else, time.Time included, is replaced. Neither
// input is modified.
func MergeDeep(target, source any, opts ...MergeOption) any {
	return mergeDeep(target, source, resolveMergeOptions(opts))
}

func mergeDeep(target, source any, o mergeOptions) any {
	if o.atomic != nil && o.atomic(source) {
		return cloneValue(source)
	}
	switch src := source.(type) {
	case map[string]any:
		dst, ok := target.(map[string]any)
		if !ok {
			return cloneValue(src)
		}
		out := make(map[string]any, len(dst)+len(src))
		for k, v := range dst {
			out[k] = cloneValue(v)
		}
		for k, v := range src {
			if cur, ok := out[k]; ok {
				out[k] = mergeDeep(cur, v, o)
			} else {
				out[k] = cloneValue(v)
			}
		}
		return out
	case []any:
		dst, ok := target.([]any)
		if !ok || !o.arrays {
			return cloneValue(src)
		}
		out := make([]any, 0, len(dst)+len(src))
		for _, v := range dst {
			out = append(out, cloneValue(v))
		}
		for _, v := range src {
			out = append(out, cloneValue(v))
		}
		return out
	default:
		return source
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ConfigMerger is implemented by configuration types that merge an
// override over a default themselves, e.g. to leave unset fields to the
// default. MergeOver is called on the override.
type ConfigMerger[C any] interface {
	MergeOver(base C) C
}

// mergeLeaf merges an override configuration value over a default one.
// JSON-like maps go through MergeDeep and typed maps merge key by key.
// Every field of a struct override wins, zero values included, with slices
// appended under MergeArrays. Anything else is replaced.
func mergeLeaf[C any](base, over C, o mergeOptions) C {
	if m, ok := any(over).(ConfigMerger[C]); ok {
		return m.MergeOver(base)
	}

	switch b := any(base).(type) {
	case map[string]any:
		if ov, ok := any(over).(map[string]any); ok {
			if merged, ok := mergeDeep(b, ov, o).(C); ok {
				return merged
			}
		}
		return over
	case time.Time:
		return over
	}

	rv := reflect.ValueOf(&base).Elem()
	mopts := []func(*mergo.Config){mergo.WithOverride}
	switch rv.Kind() {
	case reflect.Struct:
		if !o.arrays {
			return over
		}
		mopts = append(mopts, mergo.WithOverwriteWithEmptyValue, mergo.WithAppendSlice)
	case reflect.Map:
		if rv.IsNil() {
			return over
		}
		if o.arrays {
			mopts = append(mopts, mergo.WithAppendSlice)
		}
	default:
		return over
	}

	dst := reflect.New(rv.Type()).Elem()
	if rv.Kind() == reflect.Map {
		m := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m.SetMapIndex(iter.Key(), iter.Value())
		}
		dst.Set(m)
	} else {
		dst.Set(rv)
	}
	out, ok := dst.Addr().Interface().(*C)
	if !ok {
		return over
	}
	if err := mergo.Merge(out, over, mopts...); err != nil {
		return over
	}
	return *out
}
