package detection

import (
	"context"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/shiftsentry/attendance-backend/internal/domain/attendance"
	apperrors "github.com/shiftsentry/attendance-backend/internal/domain/errors"
)

// task pairs an event with the channel its caller waits on.
type task struct {
	ctx   context.Context
	event *attendance.Event
	out   chan taskResult
}

type taskResult struct {
	result *Result
	err    error
}

// Pipeline serializes events per entity while letting different entities
// proceed in parallel: the entity ID hashes to one of N shards, each shard
// is a single worker goroutine draining a queue in arrival order. The
// duplicate and rest-period layers depend on this ordering.
type Pipeline struct {
	orchestrator *Orchestrator
	queues       []chan task
	logger       *zap.Logger
	metrics      MetricsCollector

	mu      sync.Mutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewPipeline(orchestrator *Orchestrator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	queues := make([]chan task, orchestrator.cfg.Shards)
	for i := range queues {
		queues[i] = make(chan task, orchestrator.cfg.QueueSize)
	}
	return &Pipeline{
		orchestrator: orchestrator,
		queues:       queues,
		logger:       logger,
		metrics:      NoopMetrics{},
	}
}

// SetMetrics replaces the no-op collector. Call before Start.
func (p *Pipeline) SetMetrics(m MetricsCollector) {
	if m != nil {
		p.metrics = m
	}
}

// Start launches one worker per shard.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i, queue := range p.queues {
		p.wg.Add(1)
		go p.worker(i, queue)
	}
}

// Stop closes the queues and waits for every in-flight event to finish.
// Submit after Stop fails fast.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, queue := range p.queues {
		close(queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Submit routes the event to its entity's shard and waits for the result.
// Blocks while the shard's queue is full, bounded by the caller's context.
func (p *Pipeline) Submit(ctx context.Context, event *attendance.Event) (*Result, error) {
	p.mu.Lock()
	if p.closed || !p.started {
		p.mu.Unlock()
		return nil, apperrors.ErrPipelineDraining
	}
	queue := p.queues[p.shard(event)]
	p.mu.Unlock()

	t := task{ctx: ctx, event: event, out: make(chan taskResult, 1)}

	select {
	case queue <- t:
	case <-ctx.Done():
		return nil, apperrors.NewTimeoutError("pipeline submission").WithCause(ctx.Err())
	}

	select {
	case res := <-t.out:
		return res.result, res.err
	case <-ctx.Done():
		return nil, apperrors.NewTimeoutError("event processing").WithCause(ctx.Err())
	}
}

func (p *Pipeline) shard(event *attendance.Event) int {
	h := fnv.New32a()
	h.Write(event.EntityID[:])
	return int(h.Sum32() % uint32(len(p.queues)))
}

func (p *Pipeline) worker(shard int, queue chan task) {
	defer p.wg.Done()

	for t := range queue {
		p.metrics.RecordQueueDepth(shard, len(queue))

		if t.ctx.Err() != nil {
			// Caller gave up while queued; nobody is listening.
			p.logger.Warn("queued event abandoned by caller",
				zap.String("event_id", t.event.ID.String()),
				zap.Int("shard", shard),
			)
			continue
		}

		result, err := p.orchestrator.Process(t.ctx, t.event)
		t.out <- taskResult{result: result, err: err}
	}
}
