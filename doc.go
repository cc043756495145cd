/*
Package formz coordinates the state of reactive form controls when several
independent pieces of code want to disable, validate, or configure the same
control at once.

formz is designed to be embedded within services that own form models, not
run as a standalone service. Controls are plain trees of *Node values; the
coordinators keep per-control side tables keyed by control identity, so no
control type needs to know about them.

# Disable Coordination

Each caller disables a control under its own context name. The control stays
disabled until every context has released it:

	co := formz.NewCoordinator()
	co.DisableControl("readonly", field)
	co.DisableControl("loading", field)
	co.EnableControl("loading", field)  // still disabled
	co.EnableControl("readonly", field) // enabled

ForceEnableControl overrides all contexts until ResetForceEnableControl.

# Validator Coordination

Validators are reference counted per context, sync and async alike:

	co.AddValidators("signup", email, []*formz.Validator{formz.Required, formz.Email})
	co.RemoveValidators("signup", email, []*formz.Validator{formz.Required})

A validator shared by two contexts stays attached until both remove it.

# Change Origin

Bound views mark their writes as UI changes; everything else is
programmatic. The flag is per tree and is consumed by whoever classifies
the change:

	co.MarkAsUIChange(group)
	group.Get("name").SetValue("ada")
	co.IsDataChangedByUI(group) // true

FieldBinding adapts a shadow control in a view to a base control in the
model, mirroring value, disabled state, required validators, and
pristine/touched/dirty flags.

# Configuration Engine

An Engine recomputes per-field configuration from a default tree and an
override tree whenever the form's value or status changes, and runs field
logic by phase:

	engine := formz.NewEngine[Field](group, defaults, logic).
	    Debounce(50 * time.Millisecond)
	if err := engine.Start(ctx); err != nil {
	    return err
	}
	engine.Changes().Subscribe(render)

Cycles run through a pipz pipeline and accept the same resilience options
as any other pipeline: WithMiddleware, WithRetry, WithTimeout,
WithCircuitBreaker, WithErrorHandler.

# Services and Forms

A Service builds groups from a Definition, persists form values through a
Store (MemoryStore by default; Redis, Postgres, NATS, and file stores live
under pkg/), and routes patches and events. A Form is one started,
persisted instance:

	svc := formz.NewService[Field](signupDefinition{}).Store(redisStore)
	form := formz.NewForm(svc, "signup")
	if err := form.Start(ctx); err != nil {
	    return err
	}
	form.ValueChanges().Subscribe(func(vc formz.ValueChange) { ... })

The package is built on top of:
  - pipz: For the configuration cycle pipeline
  - capitan: For observability signals
  - clockz: For debounce timing
  - validator: For tag-based validators and StructRule
*/
package formz
