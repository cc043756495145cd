package formz

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate = validator.New()

// Errors maps an error key to its detail. A nil or empty map means valid.
type Errors map[string]any

// Has reports whether key is present.
func (e Errors) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// mergeErrors returns the union of a and b; b wins on key collision.
func mergeErrors(a, b Errors) Errors {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(Errors, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// ValidatorFunc computes errors for a control.
type ValidatorFunc func(c Control) Errors

// Validator is a named sync validation function. Validators are compared by
// pointer, so keep a reference to add and later remove the same one.
type Validator struct {
	name string
	fn   ValidatorFunc
}

// NewValidator creates a validator.
func NewValidator(name string, fn ValidatorFunc) *Validator {
	return &Validator{name: name, fn: fn}
}

// Name returns the validator's name.
func (v *Validator) Name() string {
	return v.name
}

// Validate runs the validator against c.
func (v *Validator) Validate(c Control) Errors {
	if v == nil || v.fn == nil {
		return nil
	}
	return v.fn(c)
}

// String implements fmt.Stringer.
func (v *Validator) String() string {
	return v.name
}

// AsyncValidatorFunc computes errors for a control. It should honor ctx,
// which is canceled when the control revalidates before the result lands.
type AsyncValidatorFunc func(ctx context.Context, c Control) Errors

// AsyncValidator is a named async validation function, compared by pointer.
type AsyncValidator struct {
	name string
	fn   AsyncValidatorFunc
}

// NewAsyncValidator creates an async validator.
func NewAsyncValidator(name string, fn AsyncValidatorFunc) *AsyncValidator {
	return &AsyncValidator{name: name, fn: fn}
}

// Name returns the validator's name.
func (v *AsyncValidator) Name() string {
	return v.name
}

// Validate runs the validator against c.
func (v *AsyncValidator) Validate(ctx context.Context, c Control) Errors {
	if v == nil || v.fn == nil {
		return nil
	}
	return v.fn(ctx, c)
}

// String implements fmt.Stringer.
func (v *AsyncValidator) String() string {
	return v.name
}

func runValidators(vs []*Validator, c Control) Errors {
	var out Errors
	for _, v := range vs {
		if errs := v.Validate(c); len(errs) > 0 {
			out = mergeErrors(out, errs)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Built-in Validators
// -----------------------------------------------------------------------------

var (
	// Required fails on nil, empty strings, and empty collections.
	Required = NewValidator("required", func(c Control) Errors {
		if isEmptyValue(c.Value()) {
			return Errors{"required": true}
		}
		return nil
	})

	// RequiredTrue fails unless the value is the boolean true.
	RequiredTrue = NewValidator("requiredTrue", func(c Control) Errors {
		if b, ok := c.Value().(bool); !ok || !b {
			return Errors{"required": true}
		}
		return nil
	})

	// Email checks the value is an email address. Empty values pass.
	Email = Tag("email")
)

// MinLength fails when a string or collection is shorter than n.
// Each call returns a distinct validator.
func MinLength(n int) *Validator {
	return NewValidator(fmt.Sprintf("minlength(%d)", n), func(c Control) Errors {
		l, ok := lengthOf(c.Value())
		if !ok || l == 0 || l >= n {
			return nil
		}
		return Errors{"minlength": map[string]any{"requiredLength": n, "actualLength": l}}
	})
}

// MaxLength fails when a string or collection is longer than n.
// Each call returns a distinct validator.
func MaxLength(n int) *Validator {
	return NewValidator(fmt.Sprintf("maxlength(%d)", n), func(c Control) Errors {
		l, ok := lengthOf(c.Value())
		if !ok || l <= n {
			return nil
		}
		return Errors{"maxlength": map[string]any{"requiredLength": n, "actualLength": l}}
	})
}

// Min fails when a numeric value is below n.
func Min(n float64) *Validator {
	return NewValidator(fmt.Sprintf("min(%g)", n), func(c Control) Errors {
		f, ok := toFloat(c.Value())
		if !ok || f >= n {
			return nil
		}
		return Errors{"min": map[string]any{"min": n, "actual": f}}
	})
}

// Max fails when a numeric value is above n.
func Max(n float64) *Validator {
	return NewValidator(fmt.Sprintf("max(%g)", n), func(c Control) Errors {
		f, ok := toFloat(c.Value())
		if !ok || f <= n {
			return nil
		}
		return Errors{"max": map[string]any{"max": n, "actual": f}}
	})
}

// Pattern fails when a string value does not fully match expr.
// It panics if expr does not compile.
func Pattern(expr string) *Validator {
	re := regexp.MustCompile("^(?:" + expr + ")$")
	return NewValidator("pattern("+expr+")", func(c Control) Errors {
		v := c.Value()
		if isEmptyValue(v) {
			return nil
		}
		s := fmt.Sprint(v)
		if re.MatchString(s) {
			return nil
		}
		return Errors{"pattern": map[string]any{"requiredPattern": re.String(), "actualValue": s}}
	})
}

// Tag validates the value against go-playground/validator tags, e.g.
// "email", "url", "gte=3,lte=10". Empty values pass; combine with Required.
// Each failing tag becomes an error key, with the tag parameter as detail.
func Tag(tag string) *Validator {
	return NewValidator(tag, func(c Control) Errors {
		v := c.Value()
		if isEmptyValue(v) {
			return nil
		}
		err := validate.Var(v, tag)
		if err == nil {
			return nil
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Errors{tag: err.Error()}
		}
		out := make(Errors, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Param() != "" {
				out[fe.Tag()] = fe.Param()
			} else {
				out[fe.Tag()] = true
			}
		}
		return out
	})
}

// -----------------------------------------------------------------------------
// Value Helpers
// -----------------------------------------------------------------------------

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func lengthOf(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// HasRealValue reports whether v counts as filled in: non-empty strings and
// collections, false, and zero all count; nil and empty values do not.
func HasRealValue(v any) bool {
	if v == nil {
		return false
	}
	if l, ok := lengthOf(v); ok {
		return l > 0
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return false
	}
	return true
}
