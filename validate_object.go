package formz

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// ValidationMode decides how ValidateObject reports failures.
type ValidationMode int32

const (
	// ModeDefault defers to the mode set with SetValidationMode.
	ModeDefault ValidationMode = iota

	// ModeThrow returns the collected messages as a *ValidationError.
	ModeThrow

	// ModeCollect returns the collected messages with a nil error and leaves
	// handling to the caller.
	ModeCollect
)

var validationMode atomic.Int32

func init() {
	validationMode.Store(int32(ModeThrow))
}

// SetValidationMode sets the mode used when a ValidateSpec leaves Mode as
// ModeDefault. The initial mode is ModeThrow.
func SetValidationMode(m ValidationMode) {
	if m == ModeDefault {
		m = ModeThrow
	}
	validationMode.Store(int32(m))
}

// Rule is a named check over an object. Check returns one message per
// problem found, or nothing when the object passes.
type Rule[T any] struct {
	Name  string
	Check func(T) []string
}

// NewRule creates a rule.
func NewRule[T any](name string, check func(T) []string) Rule[T] {
	return Rule[T]{Name: name, Check: check}
}

// ValidateSpec describes a validation run.
type ValidateSpec[T any] struct {
	Object T
	Rules  []Rule[T]
	// OnError receives every rule's messages by rule name when any rule
	// failed.
	OnError func(statuses map[string][]string)
	Mode    ValidationMode
}

// ValidateObject runs every rule against the object and collects the
// distinct messages in the order they were first reported. The object is
// returned unchanged. In ModeThrow a failure also yields a *ValidationError
// matching ErrValidation.
//
// Example:
//
//	user, _, err := formz.ValidateObject(formz.ValidateSpec[User]{
//	    Object: u,
//	    Rules: []formz.Rule[User]{
//	        formz.StructRule[User](),
//	        formz.NewRule("adult", func(u User) []string {
//	            if u.Age < 18 {
//	                return []string{"must be an adult"}
//	            }
//	            return nil
//	        }),
//	    },
//	})
func ValidateObject[T any](spec ValidateSpec[T]) (T, []string, error) {
	var messages []string
	seen := make(map[string]struct{})
	statuses := make(map[string][]string, len(spec.Rules))

	for _, r := range spec.Rules {
		if r.Check == nil {
			continue
		}
		errs := r.Check(spec.Object)
		statuses[r.Name] = append(statuses[r.Name], errs...)
		for _, msg := range errs {
			if _, dup := seen[msg]; dup {
				continue
			}
			seen[msg] = struct{}{}
			messages = append(messages, msg)
		}
	}

	if len(messages) == 0 {
		return spec.Object, nil, nil
	}
	if spec.OnError != nil {
		spec.OnError(statuses)
	}

	mode := spec.Mode
	if mode == ModeDefault {
		mode = ValidationMode(validationMode.Load())
	}
	if mode == ModeCollect {
		return spec.Object, messages, nil
	}
	return spec.Object, messages, &ValidationError{Messages: messages}
}

// StructRule checks the object's `validate` struct tags. Each failing field
// becomes one message naming the field and the failed tag.
func StructRule[T any]() Rule[T] {
	return NewRule("struct", func(obj T) []string {
		err := validate.Struct(obj)
		if err == nil {
			return nil
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []string{err.Error()}
		}
		out := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			if fe.Param() != "" {
				out = append(out, fmt.Sprintf("%s: %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			} else {
				out = append(out, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
			}
		}
		return out
	})
}
