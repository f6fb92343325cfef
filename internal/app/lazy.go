package app

import (
	"context"
	"fmt"
	"sync"

	"go.aimuz.me/holdtalk/internal/pipeline"
	"go.aimuz.me/holdtalk/internal/session"
	"go.aimuz.me/holdtalk/internal/types"
)

// lazyPipeline builds the real pipeline on first use, so a slow or broken
// provider does not delay the hotkey loop at startup. A failed build is
// reported as a failed session and attempted again on the next one.
type lazyPipeline struct {
	build func() (session.Pipeline, error)

	mu sync.Mutex
	p  session.Pipeline
}

func (l *lazyPipeline) Run(ctx context.Context, audio []byte, report func(types.Stage)) (pipeline.Result, error) {
	p, err := l.get()
	if err != nil {
		return pipeline.Result{Outcome: types.OutcomeFailed, Stage: types.StageTranscribe},
			fmt.Errorf("initialize pipeline: %w", err)
	}
	return p.Run(ctx, audio, report)
}

func (l *lazyPipeline) get() (session.Pipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.p != nil {
		return l.p, nil
	}
	p, err := l.build()
	if err != nil {
		return nil, err
	}
	l.p = p
	return p, nil
}

// Ready reports whether the pipeline has been built.
func (l *lazyPipeline) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.p != nil
}
