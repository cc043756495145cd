package formz

import "testing"

func TestSignalNames(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{string(ContextDisabled.Name()), "formz.context.disabled"},
		{string(ContextEnabled.Name()), "formz.context.enabled"},
		{string(ControlForceEnabled.Name()), "formz.control.force_enabled"},
		{string(ControlForceEnableReset.Name()), "formz.control.force_enable_reset"},
		{string(ValidatorsAdded.Name()), "formz.validators.added"},
		{string(ValidatorsRemoved.Name()), "formz.validators.removed"},
		{string(EngineStarted.Name()), "formz.engine.started"},
		{string(EngineStopped.Name()), "formz.engine.stopped"},
		{string(CycleSucceeded.Name()), "formz.engine.cycle.succeeded"},
		{string(CycleFailed.Name()), "formz.engine.cycle.failed"},
		{string(LogicStopped.Name()), "formz.engine.logic.stopped"},
		{string(FormValueChanged.Name()), "formz.form.value.changed"},
		{string(FormValuesSaved.Name()), "formz.form.values.saved"},
		{string(FormValuesCleared.Name()), "formz.form.values.cleared"},
		{string(StoreFailed.Name()), "formz.store.failed"},
		{string(FormEventPublished.Name()), "formz.event.published"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("expected name %q, got %q", tc.want, tc.got)
		}
	}
}
