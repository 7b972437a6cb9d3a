package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, falling back to "system".
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	if actor == "" {
		return "system"
	}
	return actor
}

type commitHooksKey struct{}

// CommitHooks holds work that has to wait until the enclosing transaction
// commits: audit records, metrics and cache invalidation.
type CommitHooks struct {
	fns  []func(context.Context)
	done bool
}

// DeferUntilCommit returns a context under which AfterCommit queues work on
// the returned hooks. When ctx already defers, the outer owner keeps the queue
// and the returned hooks are nil.
func DeferUntilCommit(ctx context.Context) (context.Context, *CommitHooks) {
	if _, ok := ctx.Value(commitHooksKey{}).(*CommitHooks); ok {
		return ctx, nil
	}
	hooks := &CommitHooks{}
	return context.WithValue(ctx, commitHooksKey{}, hooks), hooks
}

// AfterCommit runs fn immediately unless ctx defers until a commit that has
// not happened yet.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*CommitHooks); ok && !hooks.done {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn(ctx)
}

// Run executes the queued work in order. Nil hooks do nothing.
func (h *CommitHooks) Run(ctx context.Context) {
	if h == nil {
		return
	}
	h.done = true
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		fn(ctx)
	}
}
