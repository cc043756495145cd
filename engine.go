package formz

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

var (
	cycleID       = pipz.NewIdentity("formz:cycle", "Engine cycle")
	applyID       = pipz.NewIdentity("formz:apply", "Attach configuration to the form")
	initLogicID   = pipz.NewIdentity("formz:logic.init", "Run init logic")
	materializeID = pipz.NewIdentity("formz:materialize", "Materialize the configuration change")
	logicID       = pipz.NewIdentity("formz:logic", "Run phase logic")
	publishID     = pipz.NewIdentity("formz:publish", "Publish the configuration change")
)

// Cycle carries one engine pass through the pipeline. Middleware sees it
// before the built-in stages run.
type Cycle[C any] struct {
	// Phase is the trigger of this cycle.
	Phase Phase
	// Initial is true for the cycle run by Start.
	Initial bool
	// Form is the root control the engine is attached to.
	Form Control
	// Index is the array index of the form, or NoIndex.
	Index int
	// Config is the override configuration in effect.
	Config *Tree[Setting[C]]
	// Logic is the merged logic in effect.
	Logic *Tree[FieldLogic[C]]
	// Default is the materialized default configuration.
	Default *Tree[C]
	// Change is the materialized, merged configuration.
	Change *Tree[C]
	// Previous is the change published by the last cycle.
	Previous *Tree[C]
	// Ran counts the logic callbacks invoked.
	Ran int
	// StoppedAt is the field whose logic stopped the phase, if any.
	StoppedAt string
}

// Engine recomputes per-field configuration and runs phased logic as the
// form's value, status, or configuration changes.
//
// Every cycle runs the same pipeline:
//
//	apply → init logic → materialize → phase logic → publish
//
// Apply and init logic only run when the cycle is an init, config, or
// recalculate cycle. Value notifications are coalesced through the
// scheduler, and optionally debounced, and only start a cycle when the
// value or the status actually changed.
//
// An Engine is confined to the goroutine that owns its form. With Debounce
// the timer fires on another goroutine and posts the flush to the
// scheduler, so pair it with a Loop or Queue scheduler.
type Engine[C any] struct {
	form         Control
	defaults     *Tree[Setting[C]]
	defaultLogic *Tree[FieldLogic[C]]
	pipeline     pipz.Chainable[*Cycle[C]]

	coord     *Coordinator
	index     int
	equal     func(prev, curr any) bool
	debounce  time.Duration
	clock     clockz.Clock
	sched     Scheduler
	metrics   MetricsProvider
	logger    *slog.Logger
	mergeOpts mergeOptions
	registry  *Registry

	config        *Tree[Setting[C]]
	override      *Tree[FieldLogic[C]]
	logic         *Tree[FieldLogic[C]]
	defaultChange *Tree[C]
	change        *Tree[C]
	lastErr       error

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	running    bool
	dirty      bool
	scheduled  bool
	deferred   []func()
	lastValue  any
	lastStatus Status
	kick       chan struct{}
	subs       []*Subscription

	changes Stream[*Tree[C]]
	configs Stream[*Tree[Setting[C]]]
	logics  Stream[*Tree[FieldLogic[C]]]
}

// NewEngine creates an Engine for form with the owning service's default
// configuration and logic.
//
// Pipeline options (With*) wrap the cycle pipeline. Instance configuration
// uses chainable methods before calling Start().
//
// Example:
//
//	engine := formz.NewEngine(group, defaults, logic,
//	    formz.WithTimeout[FieldConfig](time.Second),
//	).Debounce(50 * time.Millisecond).Scheduler(loop)
func NewEngine[C any](
	form Control,
	defaults *Tree[Setting[C]],
	logic *Tree[FieldLogic[C]],
	opts ...PipelineOption[C],
) *Engine[C] {
	e := &Engine[C]{
		form:         form,
		defaults:     defaults,
		defaultLogic: logic,
		index:        NoIndex,
		clock:        clockz.RealClock,
		logger:       discardLogger,
	}
	terminal := pipz.NewSequence(cycleID,
		pipz.Apply(applyID, e.apply),
		pipz.Apply(initLogicID, e.runInit),
		pipz.Apply(materializeID, e.materialize),
		pipz.Apply(logicID, e.runLogic),
		pipz.Apply(publishID, e.publish),
	)
	e.pipeline = buildPipeline(terminal, opts)
	return e
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Coordinator sets the coordinator whose config side channel receives the
// configuration and per-field changes. Must be called before Start().
func (e *Engine[C]) Coordinator(co *Coordinator) *Engine[C] {
	e.coord = co
	return e
}

// Index binds the engine to an array item. Computed settings and logic
// receive it. Must be called before Start().
func (e *Engine[C]) Index(i int) *Engine[C] {
	e.index = i
	return e
}

// Equal replaces the default serialize-compare equality used to decide
// whether a value notification is a real change. Must be called before
// Start().
func (e *Engine[C]) Equal(fn func(prev, curr any) bool) *Engine[C] {
	e.equal = fn
	return e
}

// Debounce delays value cycles until notifications have been quiet for d.
// Default: 0, coalescing through the scheduler only. Must be called before
// Start().
func (e *Engine[C]) Debounce(d time.Duration) *Engine[C] {
	e.debounce = d
	return e
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce testing.
// Must be called before Start().
func (e *Engine[C]) Clock(clock clockz.Clock) *Engine[C] {
	e.clock = clock
	return e
}

// Scheduler sets where coalesced value cycles run. Default: the form's
// scheduler when it has one, otherwise Inline. Must be called before
// Start().
func (e *Engine[C]) Scheduler(s Scheduler) *Engine[C] {
	e.sched = s
	return e
}

// Metrics sets a metrics provider for observability integration.
// Must be called before Start().
func (e *Engine[C]) Metrics(provider MetricsProvider) *Engine[C] {
	e.metrics = provider
	return e
}

// Logger sets the logger. Logic callbacks reach it through LoggerFrom.
// Must be called before Start().
func (e *Engine[C]) Logger(l *slog.Logger) *Engine[C] {
	if l != nil {
		e.logger = l
	}
	return e
}

// MergeOptions sets how override configuration merges over the default.
// Must be called before Start().
func (e *Engine[C]) MergeOptions(opts ...MergeOption) *Engine[C] {
	e.mergeOpts = resolveMergeOptions(opts)
	return e
}

// Registry registers the engine's recalculation hooks with r on Start and
// removes them on Stop. Must be called before Start().
func (e *Engine[C]) Registry(r *Registry) *Engine[C] {
	e.registry = r
	return e
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start runs the init cycle and begins reacting to the form. Start can only
// be called once.
func (e *Engine[C]) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if e.sched == nil {
		e.sched = schedulerOf(e.form)
	}

	capitan.Emit(ctx, EngineStarted,
		KeyDebounce.Field(e.debounce),
	)

	e.logic = MergeLogic(e.defaultLogic, e.override)
	e.configs.Emit(e.config)
	e.logics.Emit(e.logic)

	err := e.cycle(PhaseInit)
	e.lastValue = e.form.Value()
	e.lastStatus = e.form.Status()

	e.subs = append(e.subs,
		e.form.ValueChanges().Subscribe(func(any) { e.notify() }),
		e.form.StatusChanges().Subscribe(func(Status) { e.notify() }),
	)
	if e.registry != nil {
		e.subs = append(e.subs,
			e.registry.OnRecalculate(func() { _ = e.Recalculate() }), //nolint:errcheck // Errors stored via LastError
			e.registry.OnReload(e.ReloadLogic),
		)
	}
	if e.debounce > 0 {
		e.kick = make(chan struct{}, 1)
		go e.debounceLoop(e.ctx)
	}
	return err
}

// Stop runs the destroy phase and detaches the engine from its form and
// registry.
func (e *Engine[C]) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ErrNotStarted
	}
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	for _, s := range e.subs {
		s.Unsubscribe()
	}
	e.subs = nil

	var err error
	if e.change != nil {
		res, perr := runPhase(WithLogger(ctx, e.logger), e.logic, e.logicArgs(PhaseDestroy, e.change, e.defaultChange, e.change, false))
		err = perr
		e.reportStop(PhaseDestroy, res)
	}
	e.cancel()

	capitan.Emit(ctx, EngineStopped)
	return err
}

func (e *Engine[C]) isActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started && !e.stopped
}

// -----------------------------------------------------------------------------
// Triggers
// -----------------------------------------------------------------------------

// SetConfig replaces the override configuration. After Start it runs a
// config cycle. A nil or empty configuration falls back to the default.
func (e *Engine[C]) SetConfig(cfg *Tree[Setting[C]]) error {
	e.config = cfg
	e.configs.Emit(cfg)
	if !e.isActive() {
		return nil
	}
	return e.whenIdle(func() error { return e.cycle(PhaseConfig) })
}

// SetLogic replaces the override logic and reloads the merged logic.
func (e *Engine[C]) SetLogic(logic *Tree[FieldLogic[C]]) {
	e.override = logic
	e.ReloadLogic()
}

// ReloadLogic rebuilds the merged logic from the default and override
// trees. After Start it runs the recalculate phase with the new logic.
// Cycle errors are stored in LastError.
func (e *Engine[C]) ReloadLogic() {
	e.logic = MergeLogic(e.defaultLogic, e.override)
	e.logics.Emit(e.logic)
	if !e.isActive() {
		return
	}
	_ = e.whenIdle(func() error { return e.cycle(PhaseRecalculate) }) //nolint:errcheck // Errors stored via LastError
}

// Recalculate reapplies the current configuration from scratch and runs
// the config phase, as SetConfig does.
func (e *Engine[C]) Recalculate() error {
	if !e.isActive() {
		return ErrNotStarted
	}
	return e.whenIdle(func() error { return e.cycle(PhaseConfig) })
}

// whenIdle runs fn now, or after the running cycle when called from logic.
func (e *Engine[C]) whenIdle(fn func() error) error {
	if e.running {
		e.deferred = append(e.deferred, func() { _ = fn() }) //nolint:errcheck // Errors stored via LastError
		return nil
	}
	return fn()
}

func (e *Engine[C]) notify() {
	if !e.isActive() {
		return
	}
	if e.metrics != nil {
		e.metrics.OnChangeReceived()
	}
	if e.debounce > 0 {
		select {
		case e.kick <- struct{}{}:
		default:
		}
		return
	}
	e.post()
}

func (e *Engine[C]) post() {
	if e.scheduled {
		return
	}
	e.scheduled = true
	e.sched.Post(e.flush)
}

// flush runs a value cycle when the form changed since the last one.
func (e *Engine[C]) flush() {
	e.scheduled = false
	if !e.isActive() {
		return
	}
	if e.running {
		e.dirty = true
		return
	}
	value := e.form.Value()
	status := e.form.Status()
	if status == e.lastStatus && e.sameValue(e.lastValue, value) {
		return
	}
	e.lastValue = value
	e.lastStatus = status
	_ = e.cycle(PhaseValue) //nolint:errcheck // Errors stored via LastError

	if e.dirty {
		e.dirty = false
		e.post()
	}
}

func (e *Engine[C]) sameValue(prev, curr any) bool {
	if e.equal != nil {
		return e.equal(prev, curr)
	}
	return jsonEqual(prev, curr)
}

// jsonEqual compares the serialized forms of a and b.
func jsonEqual(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}

// debounceLoop coalesces notifications until they have been quiet for the
// debounce duration.
func (e *Engine[C]) debounceLoop(ctx context.Context) {
	var timer clockz.Timer
	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-e.kick:
			if timer == nil {
				timer = e.clock.NewTimer(e.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(e.debounce)
			}

		case <-timerC:
			e.sched.Post(e.flush)
		}
	}
}

// -----------------------------------------------------------------------------
// Cycle
// -----------------------------------------------------------------------------

func (e *Engine[C]) cycle(phase Phase) error {
	start := e.clock.Now()
	ctx := WithLogger(e.ctx, e.logger)

	c := &Cycle[C]{
		Phase:    phase,
		Initial:  phase == PhaseInit,
		Form:     e.form,
		Index:    e.index,
		Config:   e.config,
		Logic:    e.logic,
		Previous: e.change,
	}

	e.running = true
	_, err := e.pipeline.Process(ctx, c)
	e.running = false

	duration := e.clock.Since(start)
	if err != nil {
		e.lastErr = err
		e.logger.Error("cycle failed", "phase", phase.String(), "error", err)
		capitan.Emit(ctx, CycleFailed,
			KeyPhase.Field(phase.String()),
			KeyError.Field(err.Error()),
		)
		if e.metrics != nil {
			e.metrics.OnCycleFailure(phase, duration)
		}
	} else {
		e.lastErr = nil
		e.logger.Debug("cycle completed", "phase", phase.String(), "logic", c.Ran, "duration", duration)
		capitan.Emit(ctx, CycleSucceeded,
			KeyPhase.Field(phase.String()),
			KeyDuration.Field(duration),
		)
		if e.metrics != nil {
			e.metrics.OnCycleSuccess(phase, duration)
		}
	}

	deferred := e.deferred
	e.deferred = nil
	for _, fn := range deferred {
		fn()
	}
	return err
}

func (e *Engine[C]) apply(_ context.Context, c *Cycle[C]) (*Cycle[C], error) {
	if c.Phase == PhaseValue || e.coord == nil {
		return c, nil
	}
	e.coord.SetConfig(c.Form, c.Config)
	e.coord.SetDefaultConfig(c.Form, e.defaults)
	return c, nil
}

func (e *Engine[C]) runInit(ctx context.Context, c *Cycle[C]) (*Cycle[C], error) {
	if c.Phase != PhaseInit {
		return c, nil
	}
	res, err := runPhase(ctx, c.Logic, e.logicArgs(PhaseInit, nil, nil, nil, true))
	if err != nil {
		return c, err
	}
	c.Ran += res.ran
	e.reportStop(PhaseInit, res)
	return c, nil
}

func (e *Engine[C]) materialize(_ context.Context, c *Cycle[C]) (*Cycle[C], error) {
	def := MapConfigToChange(e.defaults, c.Form, nil, c.Index)
	var src *Tree[C]
	if !isEmptyConfig(c.Config) {
		src = MapConfigToChange(c.Config, c.Form, def, c.Index)
	}
	c.Default = def
	c.Change = MergeTrees(def, src, func(base, over C) C {
		return mergeLeaf(base, over, e.mergeOpts)
	})
	if c.Change == nil {
		c.Change = Group[C]()
	}

	e.defaultChange = c.Default
	e.change = c.Change
	if e.coord != nil {
		c.Change.Walk(func(path string, v C) bool {
			if field := Find(c.Form, path); field != nil {
				e.coord.SetChange(field, v)
			}
			return true
		})
	}
	return c, nil
}

func (e *Engine[C]) runLogic(ctx context.Context, c *Cycle[C]) (*Cycle[C], error) {
	phase := c.Phase
	if phase == PhaseInit {
		phase = PhaseConfig
	}
	res, err := runPhase(ctx, c.Logic, e.logicArgs(phase, c.Change, c.Default, c.Previous, c.Initial))
	if err != nil {
		return c, err
	}
	c.Ran += res.ran
	c.StoppedAt = res.stoppedAt
	e.reportStop(phase, res)
	return c, nil
}

func (e *Engine[C]) publish(_ context.Context, c *Cycle[C]) (*Cycle[C], error) {
	e.changes.Emit(c.Change)
	return c, nil
}

func (e *Engine[C]) logicArgs(phase Phase, cfg, def, prev *Tree[C], initial bool) LogicArgs[C] {
	return LogicArgs[C]{
		Form:       e.form,
		Phase:      phase,
		Index:      e.index,
		Config:     cfg,
		Default:    def,
		Previous:   prev,
		InitialRun: initial,
	}
}

func (e *Engine[C]) reportStop(phase Phase, res phaseResult) {
	if res.stoppedAt == "" {
		return
	}
	e.logger.Debug("logic stopped phase", "phase", phase.String(), "field", res.stoppedAt)
	if e.metrics != nil {
		e.metrics.OnLogicStopped(phase, res.stoppedAt)
	}
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Change returns the last materialized configuration, or nil before Start.
func (e *Engine[C]) Change() *Tree[C] { return e.change }

// DefaultChange returns the last materialized default configuration.
func (e *Engine[C]) DefaultChange() *Tree[C] { return e.defaultChange }

// Config returns the override configuration.
func (e *Engine[C]) Config() *Tree[Setting[C]] { return e.config }

// Logic returns the merged logic.
func (e *Engine[C]) Logic() *Tree[FieldLogic[C]] { return e.logic }

// LastError returns the error of the last cycle, or nil.
func (e *Engine[C]) LastError() error { return e.lastErr }

// Changes emits every published configuration change.
func (e *Engine[C]) Changes() *Stream[*Tree[C]] { return &e.changes }

// Configs emits every override configuration set on the engine.
func (e *Engine[C]) Configs() *Stream[*Tree[Setting[C]]] { return &e.configs }

// Logics emits the merged logic whenever it is rebuilt.
func (e *Engine[C]) Logics() *Stream[*Tree[FieldLogic[C]]] { return &e.logics }

// schedulerOf returns the scheduler of c's root when it has one.
func schedulerOf(c Control) Scheduler {
	if c != nil {
		if n, ok := c.Root().(interface{ Scheduler() Scheduler }); ok {
			if s := n.Scheduler(); s != nil {
				return s
			}
		}
	}
	return NewInline()
}
