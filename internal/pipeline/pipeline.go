package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// DefaultMaxConcurrent bounds evaluations in flight across all requests.
const DefaultMaxConcurrent = 16

// ErrClosed is returned by Wait when in-flight work had to be cancelled.
var ErrClosed = errors.New("pipeline: closed")

// TokenEvaluator evaluates one token. *Evaluator implements it.
type TokenEvaluator interface {
	Evaluate(ctx context.Context, token domain.TokenIdentifier) Outcome
}

// Extractor finds token identifiers in free text. *extract.Extractor
// implements it.
type Extractor interface {
	Extract(text string) []domain.TokenIdentifier
}

// Pipeline spawns evaluation tasks for incoming text and tokens. Tasks are
// detached from the caller's cancellation and only stop when the pipeline
// shuts down; a panic or error in one task never reaches another.
type Pipeline struct {
	extractor Extractor
	evaluator TokenEvaluator
	sem       *semaphore.Weighted
	limit     int
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Pipeline running at most maxConcurrent evaluations at once;
// maxConcurrent <= 0 selects DefaultMaxConcurrent.
func New(extractor Extractor, evaluator TokenEvaluator, maxConcurrent int, logger *slog.Logger) *Pipeline {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		extractor: extractor,
		evaluator: evaluator,
		sem:       semaphore.NewWeighted(int64(maxConcurrent)),
		limit:     maxConcurrent,
		logger:    logger.With(slog.String("component", "pipeline")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// HandleText extracts tokens from text and starts one evaluation per token.
// It returns immediately with the number of tasks started.
func (p *Pipeline) HandleText(ctx context.Context, text string) int {
	tokens := p.extractor.Extract(text)
	if len(tokens) == 0 {
		return 0
	}

	batch := uuid.NewString()
	started := p.spawn(func() {
		var g errgroup.Group
		g.SetLimit(p.limit)
		for _, tok := range tokens {
			g.Go(func() error {
				p.run(ctx, batch, tok)
				return nil
			})
		}
		_ = g.Wait()
	})
	if !started {
		return 0
	}

	p.logger.Info("evaluations scheduled",
		slog.String("batch_id", batch),
		slog.Int("tokens", len(tokens)),
	)
	return len(tokens)
}

// Submit starts an evaluation of a single token. It reports false when the
// pipeline has been shut down.
func (p *Pipeline) Submit(ctx context.Context, token domain.TokenIdentifier) bool {
	return p.spawn(func() {
		p.run(ctx, "", token)
	})
}

// Wait blocks until every task has finished. If timeout elapses first the
// remaining tasks are cancelled and ErrClosed is returned once they exit.
// No new tasks are accepted after Wait is called.
func (p *Pipeline) Wait(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer:
		p.logger.Warn("cancelling in-flight evaluations", slog.Duration("timeout", timeout))
		p.cancel()
		<-done
		return ErrClosed
	}
}

func (p *Pipeline) spawn(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
	return true
}

// run evaluates one token under the global concurrency bound.
func (p *Pipeline) run(parent context.Context, batch string, token domain.TokenIdentifier) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	log := p.logger.With(
		slog.String("evaluation_id", uuid.NewString()),
		slog.String("token", token.String()),
	)
	if batch != "" {
		log = log.With(slog.String("batch_id", batch))
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		log.Warn("evaluation dropped", slog.String("error", err.Error()))
		return
	}
	defer p.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			log.Error("evaluation panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	start := time.Now()
	outcome := p.evaluator.Evaluate(ctx, token)
	log.Info("evaluation finished",
		slog.String("outcome", string(outcome)),
		slog.Duration("elapsed", time.Since(start)),
	)
}
