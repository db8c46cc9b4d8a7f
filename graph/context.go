package graph

import "context"

type threadKey struct{}

type stageKey struct{}

// ThreadID returns the thread the current stage invocation belongs to.
func ThreadID(ctx context.Context) string {
	id, _ := ctx.Value(threadKey{}).(string)
	return id
}

// StageName returns the name of the stage currently executing.
func StageName(ctx context.Context) string {
	name, _ := ctx.Value(stageKey{}).(string)
	return name
}

// WithStage returns a context scoped to one stage invocation of threadID.
// The engine calls it before every stage; tests may call it to invoke a
// stage directly.
func WithStage(ctx context.Context, threadID, stage string) context.Context {
	ctx = context.WithValue(ctx, threadKey{}, threadID)
	return context.WithValue(ctx, stageKey{}, stage)
}
