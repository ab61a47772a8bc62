package workers

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-doctor/metrics"
	"github.com/mrsingh-rishi/voice-doctor/model"
	"github.com/mrsingh-rishi/voice-doctor/queue"
)

var (
	ErrQueueFull     = errors.New("consultation queue is full")
	ErrWorkerStopped = errors.New("consultation worker stopped")
)

// Runner executes one consultation.
type Runner interface {
	Run(ctx context.Context, req model.Request) (*model.Result, error)
}

// Outcome is delivered once per submitted request.
type Outcome struct {
	Result *model.Result
	Err    error
}

type job struct {
	ctx    context.Context
	req    model.Request
	result chan Outcome
}

// ConsultationWorker runs submitted consultations one at a time, in
// submission order. Runs share the output directory, so they never overlap.
type ConsultationWorker struct {
	ctx     context.Context
	cancel  context.CancelFunc
	runner  Runner
	pending *queue.Queue[*job]
	notify  chan struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger

	startOnce sync.Once
	wg        sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewConsultationWorker(runner Runner, capacity int, m *metrics.Metrics, logger *slog.Logger) (*ConsultationWorker, error) {
	// Params Validation
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConsultationWorker{
		ctx:     ctx,
		cancel:  cancel,
		runner:  runner,
		pending: queue.NewBounded[*job](capacity),
		notify:  make(chan struct{}, 1),
		metrics: m,
		logger:  logger,
	}, nil
}

// Start launches the processing goroutine. Calling it again is a no-op.
func (w *ConsultationWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.loop()
	})
}

// Stop cancels the running consultation, fails every pending one with
// ErrWorkerStopped and waits for the goroutine to exit.
func (w *ConsultationWorker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	w.failPending()
}

// Pending returns the number of consultations waiting to run.
func (w *ConsultationWorker) Pending() int {
	return w.pending.Len()
}

// Submit queues req. The returned channel receives exactly one Outcome.
func (w *ConsultationWorker) Submit(ctx context.Context, req model.Request) (<-chan Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrWorkerStopped
	}
	j := &job{ctx: ctx, req: req, result: make(chan Outcome, 1)}
	if !w.pending.Enqueue(j) {
		w.logger.Warn("Consultation queue is full", slog.String("request_id", req.ID))
		return nil, ErrQueueFull
	}
	w.metrics.SetQueueDepth(w.pending.Len())

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return j.result, nil
}

// SubmitAndWait queues req and blocks until it finished or ctx is done.
func (w *ConsultationWorker) SubmitAndWait(ctx context.Context, req model.Request) (*model.Result, error) {
	ch, err := w.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case out := <-ch:
		return out.Result, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *ConsultationWorker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.notify:
			for {
				if w.ctx.Err() != nil {
					return
				}
				j, ok := w.pending.Dequeue()
				if !ok {
					break
				}
				w.metrics.SetQueueDepth(w.pending.Len())
				j.result <- w.process(j)
			}
		}
	}
}

func (w *ConsultationWorker) process(j *job) Outcome {
	if err := j.ctx.Err(); err != nil {
		w.logger.Info("Skipping abandoned consultation", slog.String("request_id", j.req.ID))
		return Outcome{Err: err}
	}

	runCtx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	result, err := w.runner.Run(runCtx, j.req)
	return Outcome{Result: result, Err: err}
}

func (w *ConsultationWorker) failPending() {
	for _, j := range w.pending.Drain() {
		j.result <- Outcome{Err: ErrWorkerStopped}
	}
	w.metrics.SetQueueDepth(0)
}
