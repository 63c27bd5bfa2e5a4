package db

import (
	"context"
	"sync"
)

type scopeKey struct{}

// Scope collects callbacks that must only run once the outermost
// transaction has committed.
type Scope struct {
	mu    sync.Mutex
	hooks []func(context.Context)
}

// BeginScope attaches a fresh Scope to ctx.
func BeginScope(ctx context.Context) (context.Context, *Scope) {
	s := &Scope{}
	return context.WithValue(ctx, scopeKey{}, s), s
}

// InScope reports whether ctx belongs to an open transaction scope.
func InScope(ctx context.Context) bool {
	_, ok := ctx.Value(scopeKey{}).(*Scope)
	return ok
}

// AfterCommit defers fn until commit. Outside a transaction fn runs immediately.
// Hooks are dropped when the transaction rolls back.
func AfterCommit(ctx context.Context, fn func(context.Context)) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok {
		fn(ctx)
		return
	}
	s.mu.Lock()
	s.hooks = append(s.hooks, fn)
	s.mu.Unlock()
}

// Committed runs the collected hooks in registration order.
func (s *Scope) Committed(ctx context.Context) {
	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)
	for _, fn := range hooks {
		fn(ctx)
	}
}
