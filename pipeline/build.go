package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/contentflow/graph"
	"github.com/dshills/contentflow/graph/cache"
	"github.com/dshills/contentflow/graph/route"
	"github.com/dshills/contentflow/graph/runlog"
	"github.com/dshills/contentflow/graph/store"
	"github.com/dshills/contentflow/pipeline/review"
)

// Deps are the collaborators and services of a pipeline.
//
// Curator, Retriever, Generator, Judge and Records are required unless the
// stage using them is overridden. Designer and Enricher are optional.
// Everything else has a usable default.
type Deps struct {
	Curator   Curator
	Designer  Designer
	Retriever Retriever
	Generator Generator
	Enricher  Enricher
	Judge     review.Judge
	Records   Records

	// Store persists checkpoints. Defaults to an in-memory store.
	Store store.Store[State]

	// Router resolves execution tiers. Defaults to route.Default().
	Router *route.Router

	// TierModels maps a tier to the model name cache handles are bound to.
	TierModels map[string]string

	// Cache hands out context cache handles on retries. Nil disables
	// caching.
	Cache *cache.Manager

	// RunLog instruments every stage invocation. Nil disables run logs.
	RunLog *runlog.Instrumenter

	// Classifier and Rubrics configure the review gate. Nil uses defaults.
	Classifier *review.Classifier
	Rubrics    review.Rubrics

	Logger *zap.Logger

	// Options are passed to graph.New.
	Options []graph.Option
}

// Build assembles the pipeline graph.
//
// overrides replaces built-in stages by name, which is how tests substitute
// scripted stages. Overridden stages are still instrumented.
//
// Example:
//
//	engine, err := pipeline.Build(pipeline.Deps{
//	    Curator: curator, Retriever: retriever, Generator: generator,
//	    Judge: judge, Records: records,
//	}, nil)
//	res, err := engine.Run(ctx, "thread-1", pipeline.State{
//	    CurationInput: pipeline.CurationInput{Keyword: "linen"},
//	})
func Build(deps Deps, overrides map[string]graph.Node[State]) (*graph.Engine[State], error) {
	if deps.Store == nil {
		deps.Store = store.NewMemStore[State]()
	}
	if deps.Router == nil {
		deps.Router = route.Default()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	st := &stages{
		deps:   deps,
		gate:   review.NewGate(deps.Judge, deps.Classifier, deps.Rubrics),
		logger: deps.Logger.With(zap.String("component", "pipeline")),
	}
	nodes := map[string]graph.Node[State]{
		StageCuration:   graph.NodeFunc[State](st.curation),
		StageDesignSpec: graph.NodeFunc[State](st.designSpec),
		StageSource:     graph.NodeFunc[State](st.source),
		StageEditorial:  graph.NodeFunc[State](st.editorial),
		StageEnrich:     graph.NodeFunc[State](st.enrich),
		StageReview:     graph.NodeFunc[State](st.review),
		StageAdminGate:  graph.NodeFunc[State](st.adminGate),
		StagePublish:    graph.NodeFunc[State](st.publish),
	}
	for name, node := range overrides {
		if _, ok := nodes[name]; !ok {
			return nil, fmt.Errorf("override for unknown stage %q", name)
		}
		nodes[name] = node
	}
	if err := checkDeps(deps, overrides); err != nil {
		return nil, err
	}

	opts := append([]graph.Option{graph.WithLogger(deps.Logger)}, deps.Options...)
	engine, err := graph.New[State](Reduce, deps.Store, opts...)
	if err != nil {
		return nil, err
	}
	for _, name := range Stages {
		if err := engine.Add(name, nodes[name]); err != nil {
			return nil, err
		}
	}
	if deps.RunLog != nil {
		engine.Use(runlog.Instrument[State](deps.RunLog))
	}

	if err := engine.StartAt(StageCuration); err != nil {
		return nil, err
	}
	for i, from := range Stages[:StageIndex(StageReview)] {
		to := Stages[i+1]
		if err := engine.Branch(from, proceed(to), to, graph.End); err != nil {
			return nil, err
		}
	}
	if err := engine.Branch(StageReview, RouteAfterReview, StageAdminGate, StageEditorial, graph.End); err != nil {
		return nil, err
	}
	if err := engine.Branch(StageAdminGate, RouteAfterAdmin, StagePublish, StageEditorial, graph.End); err != nil {
		return nil, err
	}
	if err := engine.Validate(); err != nil {
		return nil, err
	}
	return engine, nil
}

// StageIndex returns the position of stage in Stages, or -1.
func StageIndex(stage string) int {
	for i, s := range Stages {
		if s == stage {
			return i
		}
	}
	return -1
}

func checkDeps(deps Deps, overrides map[string]graph.Node[State]) error {
	required := map[string]bool{
		StageCuration:  deps.Curator != nil,
		StageSource:    deps.Retriever != nil,
		StageEditorial: deps.Generator != nil,
		StageReview:    deps.Judge != nil,
		StageAdminGate: deps.Records != nil,
		StagePublish:   deps.Records != nil,
	}
	var missing []string
	for stage, ok := range required {
		if _, overridden := overrides[stage]; !ok && !overridden {
			missing = append(missing, stage)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing collaborators for stages: %s", strings.Join(missing, ", "))
}

// Start runs a new thread seeded with input.
func Start(ctx context.Context, engine *graph.Engine[State], threadID string, input CurationInput) (graph.Result[State], error) {
	return engine.Run(ctx, threadID, State{
		ThreadID:      threadID,
		CurationInput: input,
		Status:        StatusCurating,
	})
}
