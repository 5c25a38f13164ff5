package runner

import "context"

// LimitedExecutor caps how many executions run at once on this host.
type LimitedExecutor struct {
	inner     Executor
	semaphore chan struct{}
}

func NewLimitedExecutor(inner Executor, maxConcurrency int) Executor {
	if maxConcurrency <= 0 {
		return inner
	}
	return &LimitedExecutor{
		inner:     inner,
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

func (l *LimitedExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.semaphore }()
	return l.inner.Execute(ctx, req)
}
