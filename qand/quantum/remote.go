package quantum

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// A Remote is an Executor that drives a provider JobClient: it submits,
// waits for counts, and absorbs the operational noise of shared hardware
// queues with bounded retries, exponential backoff, and a wait budget.
type Remote struct {
	client JobClient
	cfg    Config
	log    *zap.Logger
}

// NewRemote returns a Remote submitting through client under cfg's retry and
// budget settings.
func NewRemote(client JobClient, cfg *Config, log *zap.Logger) *Remote {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Remote{client: client, cfg: *cfg, log: log}
}

// Execute implements Executor. The whole call, submission through results,
// runs under the configured wait budget; on timeout the in-flight job is
// cancelled best effort and ErrExecutionTimeout returned.
func (r *Remote) Execute(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	if c == nil {
		return nil, errors.New("nil circuit")
	}
	if shots < 1 {
		return nil, fmt.Errorf("shots %d < 1", shots)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit: %w", err)
	}
	if c.Qubits > r.cfg.MaxQubits {
		return nil, fmt.Errorf("%w: %d qubits, device cap %d", ErrCircuitTooLarge, c.Qubits, r.cfg.MaxQubits)
	}
	if budget := r.cfg.WaitBudget.Std(); budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	log := r.log.With(
		zap.String("request", uuid.NewString()),
		zap.String("device", r.cfg.Device),
	)
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, r.backoff(attempt-1)); err != nil {
				return nil, r.timeoutErr(err, lastErr)
			}
		}
		jobID, err := r.client.Submit(ctx, c, shots)
		if err != nil {
			if errors.Is(err, ErrCircuitTooLarge) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, r.timeoutErr(ctx.Err(), err)
			}
			lastErr = err
			log.Warn("submit failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		log.Debug("job submitted", zap.String("job", jobID), zap.Int("shots", shots))

		counts, err := r.client.Result(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				r.abandon(jobID)
				return nil, r.timeoutErr(ctx.Err(), err)
			}
			lastErr = err
			log.Warn("result failed", zap.String("job", jobID), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if got := counts.Total(); got != shots {
			lastErr = fmt.Errorf("backend returned %d records for %d shots", got, shots)
			log.Warn("short results", zap.String("job", jobID), zap.Error(lastErr))
			continue
		}
		log.Info("execution complete",
			zap.String("job", jobID),
			zap.Int("shots", shots),
			zap.Int("outcomes", len(counts)))
		return counts, nil
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %v", ErrBackendUnavailable, r.cfg.MaxAttempts, lastErr)
}

// abandon cancels a job whose results we will never collect. The parent
// context is already dead, so the cancel gets its own short one.
func (r *Remote) abandon(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Cancel(ctx, jobID); err != nil {
		r.log.Warn("cancel failed", zap.String("job", jobID), zap.Error(err))
	}
}

// backoff returns the delay before retry n (1-based), doubling from
// RetryBase with up to 50% jitter, capped at 32x.
func (r *Remote) backoff(n int) time.Duration {
	base := r.cfg.RetryBase.Std()
	if base <= 0 {
		return 0
	}
	d := base << uint(n-1)
	if max := base << 5; d > max {
		d = max
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

func (r *Remote) timeoutErr(ctxErr error, lastErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if lastErr != nil {
			return fmt.Errorf("%w: %v", ErrExecutionTimeout, lastErr)
		}
		return ErrExecutionTimeout
	}
	return ctxErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// A LocalClient adapts an Executor to the JobClient interface, running jobs
// in process. It lets the hardware submission path be exercised, retries and
// budgets included, without provider credentials.
type LocalClient struct {
	ex Executor

	mu   sync.Mutex
	jobs map[string]localJob
}

type localJob struct {
	counts Counts
	err    error
}

// NewLocalClient returns a LocalClient executing jobs on ex.
func NewLocalClient(ex Executor) *LocalClient {
	return &LocalClient{ex: ex, jobs: make(map[string]localJob)}
}

// Submit implements JobClient. The circuit runs synchronously; execution
// failures surface from Result, as they do with real providers.
func (lc *LocalClient) Submit(ctx context.Context, c *Circuit, shots int) (string, error) {
	id := uuid.NewString()
	counts, err := lc.ex.Execute(ctx, c, shots)
	lc.mu.Lock()
	lc.jobs[id] = localJob{counts: counts, err: err}
	lc.mu.Unlock()
	return id, nil
}

// Result implements JobClient. Each job's counts can be fetched once.
func (lc *LocalClient) Result(ctx context.Context, jobID string) (Counts, error) {
	lc.mu.Lock()
	job, ok := lc.jobs[jobID]
	delete(lc.jobs, jobID)
	lc.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return job.counts, job.err
}

// Cancel implements JobClient.
func (lc *LocalClient) Cancel(ctx context.Context, jobID string) error {
	lc.mu.Lock()
	delete(lc.jobs, jobID)
	lc.mu.Unlock()
	return nil
}
