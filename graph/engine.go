package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph/emit"
	"github.com/dshills/contentflow/graph/store"
)

// Engine drives resumable, checkpointed stage graphs.
//
// The Engine:
//   - Holds the graph topology (stages, unconditional edges, branches)
//   - Executes the stages of one thread strictly sequentially
//   - Merges each stage's Delta into state via the reducer
//   - Commits a checkpoint after every merged stage
//   - Suspends threads on Interrupt and re-enters them on Resume
//   - Emits lifecycle events and Prometheus metrics
//
// Distinct threads may run concurrently on the same Engine; all per-thread
// data lives in the store, keyed by thread ID.
//
// Type parameter S is the state type shared across the pipeline.
//
// Example:
//
//	engine, _ := graph.New(reduce, store.NewMemStore[State]())
//	_ = engine.Add("draft", draftNode)
//	_ = engine.Add("review", reviewNode)
//	_ = engine.StartAt("draft")
//	_ = engine.Connect("draft", "review")
//	_ = engine.Branch("review", routeAfterReview, "draft", graph.End)
//
//	res, err := engine.Run(ctx, "thread-1", State{Keyword: "linen"})
type Engine[S any] struct {
	mu sync.RWMutex

	// reducer merges partial state updates deterministically
	reducer Reducer[S]

	// nodes maps stage names to implementations
	nodes map[string]Node[S]

	// edges holds the unconditional successor of each stage
	edges map[string]string

	// branches holds the conditional routing of each stage
	branches map[string]branch[S]

	// middleware wraps every stage invocation
	middleware []Middleware[S]

	// startNode is the entry point for new threads
	startNode string

	// store persists checkpoints
	store store.Store[S]

	// threads serializes Run and Resume calls on one thread
	threads threadLocks

	cfg engineConfig
}

// Result is the outcome of a Run or Resume call.
type Result[S any] struct {
	// ThreadID echoes the thread that was driven.
	ThreadID string

	// State is the latest committed state of the thread.
	State S

	// Step is the step of the latest committed checkpoint.
	Step int

	// Interrupt is non-nil when the thread is suspended; its Payload is
	// what the suspending stage handed to Interrupt.
	Interrupt *store.Interrupt

	// Done reports that the thread reached a terminal edge.
	Done bool
}

// Interrupted reports whether the thread is waiting on a Resume.
func (r Result[S]) Interrupted() bool {
	return r.Interrupt != nil
}

// New creates an Engine.
//
// Parameters:
//   - reducer: merges partial state updates (required)
//   - st: checkpoint persistence (required)
//   - opts: functional options (WithMaxSteps, WithEmitter, ...)
func New[S any](reducer Reducer[S], st store.Store[S], opts ...Option) (*Engine[S], error) {
	if reducer == nil {
		return nil, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if st == nil {
		return nil, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &EngineError{Message: "invalid option", Code: "INVALID_OPTION", Cause: err}
		}
	}

	return &Engine[S]{
		reducer:  reducer,
		nodes:    make(map[string]Node[S]),
		edges:    make(map[string]string),
		branches: make(map[string]branch[S]),
		store:    st,
		cfg:      cfg,
	}, nil
}

// Add registers a stage. Stage names must be unique and must not be End.
func (e *Engine[S]) Add(name string, node Node[S]) error {
	if name == "" {
		return &EngineError{Message: "stage name cannot be empty", Code: "INVALID_GRAPH"}
	}
	if name == End {
		return &EngineError{Message: "stage name is reserved: " + End, Code: "INVALID_GRAPH"}
	}
	if node == nil {
		return &EngineError{Message: "stage cannot be nil: " + name, Code: "INVALID_GRAPH"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[name]; exists {
		return &EngineError{Message: "duplicate stage: " + name, Code: "DUPLICATE_NODE"}
	}
	e.nodes[name] = node
	return nil
}

// Use appends stage middleware. Middleware registered first runs outermost.
func (e *Engine[S]) Use(mw ...Middleware[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.middleware = append(e.middleware, mw...)
}

// StartAt sets the entry stage for new threads.
func (e *Engine[S]) StartAt(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.nodes[name]; !exists {
		return &EngineError{Message: "start stage does not exist: " + name, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = name
	return nil
}

// Connect declares an unconditional edge. A stage has at most one outgoing
// edge or branch; a stage with neither ends the thread.
func (e *Engine[S]) Connect(from, to string) error {
	if from == "" || to == "" {
		return &EngineError{Message: "edge endpoints cannot be empty", Code: "INVALID_GRAPH"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkNoSuccessor(from); err != nil {
		return err
	}
	e.edges[from] = to
	return nil
}

// Branch declares a conditional edge. After from completes, route is called
// with the merged state and must return one of allowed (End may be listed).
func (e *Engine[S]) Branch(from string, route RouteFunc[S], allowed ...string) error {
	if from == "" {
		return &EngineError{Message: "branch source cannot be empty", Code: "INVALID_GRAPH"}
	}
	if route == nil {
		return &EngineError{Message: "route function cannot be nil: " + from, Code: "INVALID_GRAPH"}
	}
	if len(allowed) == 0 {
		return &EngineError{Message: "branch needs at least one target: " + from, Code: "INVALID_GRAPH"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkNoSuccessor(from); err != nil {
		return err
	}
	b := branch[S]{route: route, allowed: make(map[string]bool, len(allowed))}
	for _, to := range allowed {
		if !b.allowed[to] {
			b.allowed[to] = true
			b.order = append(b.order, to)
		}
	}
	e.branches[from] = b
	return nil
}

func (e *Engine[S]) checkNoSuccessor(from string) error {
	if _, ok := e.edges[from]; ok {
		return &EngineError{Message: "stage already has an outgoing edge: " + from, Code: "INVALID_GRAPH"}
	}
	if _, ok := e.branches[from]; ok {
		return &EngineError{Message: "stage already has a branch: " + from, Code: "INVALID_GRAPH"}
	}
	return nil
}

// Validate checks that the entry stage is set and every edge and branch
// endpoint names a registered stage (or End).
func (e *Engine[S]) Validate() error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.startNode == "" {
		return &EngineError{Message: "start stage not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}
	known := func(name string) bool {
		_, ok := e.nodes[name]
		return ok
	}
	for from, to := range e.edges {
		if !known(from) || (to != End && !known(to)) {
			return &EngineError{Message: "edge references unknown stage: " + from + " -> " + to, Code: "NODE_NOT_FOUND"}
		}
	}
	for from, b := range e.branches {
		if !known(from) {
			return &EngineError{Message: "branch from unknown stage: " + from, Code: "NODE_NOT_FOUND"}
		}
		for _, to := range b.order {
			if to != End && !known(to) {
				return &EngineError{Message: "branch references unknown stage: " + from + " -> " + to, Code: "NODE_NOT_FOUND"}
			}
		}
	}
	return nil
}

// Run drives threadID forward until it completes, suspends, or fails.
//
// Run picks the starting point from the thread's latest checkpoint:
//   - No checkpoint: start at the entry stage with initial.
//   - Pending stage (crash recovery): continue there; initial is ignored.
//   - Outstanding interrupt: re-execute the suspended stage without a
//     resume value, so it suspends again and the same payload is returned.
//   - Completed thread: ErrThreadCompleted.
//
// Stage errors are returned unchanged; the thread's checkpoint still names
// the failing stage, so a later Run retries it.
//
// Run and Resume calls on one thread are serialized: a second caller waits
// until the first returns (or its ctx is done) and then starts from the
// checkpoint the first committed. Distinct threads never wait on each other.
//
// Example:
//
//	res, err := engine.Run(ctx, "thread-1", State{Keyword: "linen"})
//	if err != nil {
//	    return err
//	}
//	if res.Interrupted() {
//	    fmt.Println("awaiting approval:", res.Interrupt.Payload)
//	}
func (e *Engine[S]) Run(ctx context.Context, threadID string, initial S) (Result[S], error) {
	if err := e.Validate(); err != nil {
		return Result[S]{ThreadID: threadID}, err
	}
	if threadID == "" {
		return Result[S]{}, &EngineError{Message: "thread ID cannot be empty", Code: "INVALID_THREAD"}
	}

	release, err := e.threads.acquire(ctx, threadID)
	if err != nil {
		return Result[S]{ThreadID: threadID}, err
	}
	defer release()

	cp, err := e.store.Latest(ctx, threadID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		e.mu.RLock()
		start := e.startNode
		e.mu.RUnlock()
		return e.execute(ctx, threadID, initial, start, 0, nil)
	case err != nil:
		return Result[S]{ThreadID: threadID}, &EngineError{Message: "failed to load checkpoint", Code: "STORE_ERROR", Cause: err}
	}

	res := resultFrom(cp)
	switch {
	case cp.Done:
		return res, &EngineError{Message: "thread " + threadID + " already completed", Code: "THREAD_COMPLETED"}
	case cp.Pending != nil:
		return e.execute(ctx, threadID, cp.State, cp.Pending.Stage, cp.Step, nil)
	case cp.Next != "":
		return e.execute(ctx, threadID, cp.State, cp.Next, cp.Step, nil)
	default:
		return res, &EngineError{Message: "checkpoint has no pending stage: " + threadID, Code: "INVALID_CHECKPOINT"}
	}
}

// Resume re-enters the suspended stage of threadID with cmd.Resume as the
// return value of its Interrupt call, then continues normally.
//
// Returns ErrNotInterrupted (via errors.Is) if the thread has no
// outstanding interrupt.
func (e *Engine[S]) Resume(ctx context.Context, threadID string, cmd Command) (Result[S], error) {
	if err := e.Validate(); err != nil {
		return Result[S]{ThreadID: threadID}, err
	}

	release, err := e.threads.acquire(ctx, threadID)
	if err != nil {
		return Result[S]{ThreadID: threadID}, err
	}
	defer release()

	cp, err := e.store.Latest(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return Result[S]{ThreadID: threadID}, &EngineError{Message: "thread " + threadID + " has no checkpoint", Code: "NOT_INTERRUPTED"}
	}
	if err != nil {
		return Result[S]{ThreadID: threadID}, &EngineError{Message: "failed to load checkpoint", Code: "STORE_ERROR", Cause: err}
	}
	if cp.Done {
		return resultFrom(cp), &EngineError{Message: "thread " + threadID + " already completed", Code: "THREAD_COMPLETED"}
	}
	if cp.Pending == nil {
		return resultFrom(cp), &EngineError{Message: "thread " + threadID + " is not suspended", Code: "NOT_INTERRUPTED"}
	}

	stage := cp.Pending.Stage
	e.cfg.metrics.IncrementResumes(stage)
	e.cfg.emitter.Emit(emit.Event{ThreadID: threadID, Step: cp.Step, Stage: stage, Msg: emit.MsgResume})

	return e.execute(ctx, threadID, cp.State, stage, cp.Step, &resumeValue{value: cmd.Resume})
}

// State returns the latest committed checkpoint of threadID.
func (e *Engine[S]) State(ctx context.Context, threadID string) (Result[S], error) {
	cp, err := e.store.Latest(ctx, threadID)
	if err != nil {
		return Result[S]{ThreadID: threadID}, err
	}
	return resultFrom(cp), nil
}

func resultFrom[S any](cp store.Checkpoint[S]) Result[S] {
	return Result[S]{
		ThreadID:  cp.ThreadID,
		State:     cp.State,
		Step:      cp.Step,
		Interrupt: cp.Pending,
		Done:      cp.Done,
	}
}

// execute is the sequential stage loop shared by Run and Resume.
func (e *Engine[S]) execute(ctx context.Context, threadID string, state S, stage string, step int, resume *resumeValue) (Result[S], error) {
	defer e.cfg.metrics.threadStarted()()

	logger := e.cfg.logger.With(zap.String("thread_id", threadID))
	current := Result[S]{ThreadID: threadID, State: state, Step: step}

	for executed := 1; ; executed++ {
		if e.cfg.maxSteps > 0 && executed > e.cfg.maxSteps {
			return current, &EngineError{Message: "thread exceeded MaxSteps limit", Code: "MAX_STEPS_EXCEEDED"}
		}
		if err := ctx.Err(); err != nil {
			return current, err
		}

		node, err := e.stage(stage)
		if err != nil {
			return current, err
		}

		input, err := deepCopy(state)
		if err != nil {
			return current, &EngineError{Message: "failed to copy state", Code: "STATE_ERROR", Cause: err}
		}

		stageCtx := WithStage(ctx, threadID, stage)
		if resume != nil {
			stageCtx = withResume(stageCtx, resume.value)
			resume = nil
		}

		e.cfg.emitter.Emit(emit.Event{ThreadID: threadID, Step: step + 1, Stage: stage, Msg: emit.MsgStageStart})
		started := time.Now()
		result := node.Run(stageCtx, input)
		elapsed := time.Since(started)

		var interrupt *InterruptError
		if errors.As(result.Err, &interrupt) {
			return e.suspend(ctx, current, stage, interrupt, elapsed)
		}
		if result.Err != nil {
			e.cfg.metrics.RecordStage(stage, "error", elapsed)
			e.cfg.emitter.Emit(emit.Event{
				ThreadID: threadID,
				Step:     step + 1,
				Stage:    stage,
				Msg:      emit.MsgStageError,
				Meta:     map[string]interface{}{"error": result.Err.Error(), "duration_ms": elapsed.Milliseconds()},
			})
			logger.Debug("stage failed", zap.String("stage", stage), zap.Error(result.Err))
			return current, result.Err
		}

		merged := e.reducer(state, result.Delta)
		next, err := e.next(stage, merged)
		if err != nil {
			e.cfg.metrics.RecordStage(stage, "error", elapsed)
			return current, err
		}

		step++
		cp := store.Checkpoint[S]{
			ThreadID:  threadID,
			Step:      step,
			Stage:     stage,
			State:     merged,
			UpdatedAt: time.Now().UTC(),
		}
		if next == End {
			cp.Done = true
		} else {
			cp.Next = next
		}
		if err := e.store.Put(ctx, cp); err != nil {
			return current, &EngineError{Message: "failed to save checkpoint", Code: "STORE_ERROR", Cause: err}
		}

		e.cfg.metrics.RecordStage(stage, "success", elapsed)
		e.cfg.emitter.Emit(emit.Event{
			ThreadID: threadID,
			Step:     step,
			Stage:    stage,
			Msg:      emit.MsgStageEnd,
			Meta:     map[string]interface{}{"next": next, "duration_ms": elapsed.Milliseconds()},
		})

		state = merged
		current = Result[S]{ThreadID: threadID, State: state, Step: step, Done: cp.Done}
		if cp.Done {
			e.cfg.emitter.Emit(emit.Event{ThreadID: threadID, Step: step, Msg: emit.MsgThreadEnd})
			return current, nil
		}
		stage = next
	}
}

// suspend commits the suspension point. State is the last committed state;
// only side effects outside the engine survive from the interrupted pass.
func (e *Engine[S]) suspend(ctx context.Context, current Result[S], stage string, ie *InterruptError, elapsed time.Duration) (Result[S], error) {
	pending := &store.Interrupt{Stage: stage, Payload: ie.Payload}
	cp := store.Checkpoint[S]{
		ThreadID:  current.ThreadID,
		Step:      current.Step + 1,
		Stage:     stage,
		State:     current.State,
		Next:      stage,
		Pending:   pending,
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.store.Put(ctx, cp); err != nil {
		return current, &EngineError{Message: "failed to save interrupt checkpoint", Code: "STORE_ERROR", Cause: err}
	}

	e.cfg.metrics.RecordStage(stage, "interrupted", elapsed)
	e.cfg.metrics.IncrementInterrupts(stage)
	e.cfg.emitter.Emit(emit.Event{
		ThreadID: current.ThreadID,
		Step:     cp.Step,
		Stage:    stage,
		Msg:      emit.MsgInterrupt,
		Meta:     map[string]interface{}{"duration_ms": elapsed.Milliseconds()},
	})

	current.Step = cp.Step
	current.Interrupt = pending
	return current, nil
}

// stage returns the named stage wrapped in the registered middleware.
func (e *Engine[S]) stage(name string) (Node[S], error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	node, ok := e.nodes[name]
	if !ok {
		return nil, &EngineError{Message: "stage not found during execution: " + name, Code: "NODE_NOT_FOUND"}
	}
	for i := len(e.middleware) - 1; i >= 0; i-- {
		node = e.middleware[i](name, node)
	}
	return node, nil
}

// next resolves the successor of stage against the merged state.
func (e *Engine[S]) next(stage string, state S) (string, error) {
	e.mu.RLock()
	b, hasBranch := e.branches[stage]
	to, hasEdge := e.edges[stage]
	e.mu.RUnlock()

	switch {
	case hasBranch:
		target := b.route(state)
		if !b.allowed[target] {
			return "", &EngineError{
				Message: "route from " + stage + " returned undeclared target: " + target,
				Code:    "INVALID_ROUTE",
			}
		}
		return target, nil
	case hasEdge:
		return to, nil
	default:
		return End, nil
	}
}
