package quantum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClient scripts a JobClient: queued submit and result outcomes are
// consumed one per call, and blockResult parks Result on the context.
type fakeClient struct {
	mu          sync.Mutex
	submitErrs  []error
	resultErrs  []error
	counts      []Counts
	blockResult bool

	submits int
	results int
	cancels int
}

func (f *fakeClient) Submit(ctx context.Context, c *Circuit, shots int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("job-%d", f.submits), nil
}

func (f *fakeClient) Result(ctx context.Context, jobID string) (Counts, error) {
	f.mu.Lock()
	f.results++
	block := f.blockResult
	var err error
	if len(f.resultErrs) > 0 {
		err = f.resultErrs[0]
		f.resultErrs = f.resultErrs[1:]
	}
	var counts Counts
	if err == nil && len(f.counts) > 0 {
		counts = f.counts[0]
		f.counts = f.counts[1:]
	}
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (f *fakeClient) Cancel(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func remoteCfg() *Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendHardware
	cfg.MaxQubits = 8
	cfg.RetryBase = Duration(time.Millisecond)
	cfg.WaitBudget = 0
	return cfg
}

func flipCircuit() *Circuit {
	return NewCircuit(1, 1).X(0).Measure(0, 0)
}

func TestRemoteRetriesTransientSubmit(t *testing.T) {
	fc := &fakeClient{
		submitErrs: []error{errors.New("queue full"), errors.New("queue full")},
		counts:     []Counts{{"1": 10}},
	}
	r := NewRemote(fc, remoteCfg(), nil)
	counts, err := r.Execute(context.Background(), flipCircuit(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["1"] != 10 {
		t.Errorf("counts == %v, want 10 ones", counts)
	}
	if fc.submits != 3 {
		t.Errorf("submits == %d, want 3", fc.submits)
	}
}

func TestRemoteRetriesShortResults(t *testing.T) {
	fc := &fakeClient{counts: []Counts{{"1": 4}, {"1": 10}}}
	r := NewRemote(fc, remoteCfg(), nil)
	counts, err := r.Execute(context.Background(), flipCircuit(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total() != 10 {
		t.Errorf("total == %d, want 10", counts.Total())
	}
	if fc.results != 2 {
		t.Errorf("results == %d, want 2", fc.results)
	}
}

func TestRemoteExhaustsAttempts(t *testing.T) {
	boom := errors.New("maintenance window")
	fc := &fakeClient{submitErrs: []error{boom, boom, boom}}
	r := NewRemote(fc, remoteCfg(), nil)
	_, err := r.Execute(context.Background(), flipCircuit(), 10)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("got %v, want ErrBackendUnavailable", err)
	}
	if fc.submits != 3 {
		t.Errorf("submits == %d, want 3", fc.submits)
	}
}

func TestRemoteCircuitTooLargeIsFatal(t *testing.T) {
	fc := &fakeClient{
		submitErrs: []error{fmt.Errorf("%w: device has 5 qubits", ErrCircuitTooLarge)},
	}
	r := NewRemote(fc, remoteCfg(), nil)
	if _, err := r.Execute(context.Background(), flipCircuit(), 10); !errors.Is(err, ErrCircuitTooLarge) {
		t.Fatalf("got %v, want ErrCircuitTooLarge", err)
	}
	if fc.submits != 1 {
		t.Errorf("submits == %d, want 1 (no retry on a fatal reject)", fc.submits)
	}
}

func TestRemoteChecksDeviceCap(t *testing.T) {
	fc := &fakeClient{}
	cfg := remoteCfg()
	cfg.MaxQubits = 2
	r := NewRemote(fc, cfg, nil)
	c := NewCircuit(3, 1).Measure(0, 0)
	if _, err := r.Execute(context.Background(), c, 10); !errors.Is(err, ErrCircuitTooLarge) {
		t.Fatalf("got %v, want ErrCircuitTooLarge", err)
	}
	if fc.submits != 0 {
		t.Errorf("submits == %d, want 0 (rejected before submission)", fc.submits)
	}
}

func TestRemoteWaitBudget(t *testing.T) {
	fc := &fakeClient{blockResult: true}
	cfg := remoteCfg()
	cfg.WaitBudget = Duration(30 * time.Millisecond)
	r := NewRemote(fc, cfg, nil)
	_, err := r.Execute(context.Background(), flipCircuit(), 10)
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("got %v, want ErrExecutionTimeout", err)
	}
	if fc.cancels != 1 {
		t.Errorf("cancels == %d, want 1 (in-flight job abandoned)", fc.cancels)
	}
}

func TestRemotePropagatesCancellation(t *testing.T) {
	fc := &fakeClient{blockResult: true}
	r := NewRemote(fc, remoteCfg(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := r.Execute(ctx, flipCircuit(), 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if fc.cancels != 1 {
		t.Errorf("cancels == %d, want 1", fc.cancels)
	}
}

func TestRemoteRejectsBadArgs(t *testing.T) {
	r := NewRemote(&fakeClient{}, remoteCfg(), nil)
	if _, err := r.Execute(context.Background(), nil, 10); err == nil {
		t.Errorf("nil circuit: expected error, got nil")
	}
	if _, err := r.Execute(context.Background(), flipCircuit(), 0); err == nil {
		t.Errorf("zero shots: expected error, got nil")
	}
}

func TestLocalClientLifecycle(t *testing.T) {
	lc := NewLocalClient(NewSimulator(SimOpts{Seed: 1}))
	ctx := context.Background()
	id, err := lc.Submit(ctx, flipCircuit(), 20)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	counts, err := lc.Result(ctx, id)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if counts["1"] != 20 {
		t.Errorf("counts == %v, want 20 ones", counts)
	}
	if _, err := lc.Result(ctx, id); err == nil {
		t.Errorf("second fetch of %s: expected unknown-job error, got nil", id)
	}

	id, err = lc.Submit(ctx, flipCircuit(), 20)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := lc.Cancel(ctx, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := lc.Result(ctx, id); err == nil {
		t.Errorf("fetch after cancel: expected unknown-job error, got nil")
	}
}

func TestRemoteOverLocalClient(t *testing.T) {
	lc := NewLocalClient(NewSimulator(SimOpts{Seed: 1}))
	r := NewRemote(lc, remoteCfg(), nil)
	counts, err := r.Execute(context.Background(), flipCircuit(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["1"] != 30 {
		t.Errorf("counts == %v, want 30 ones", counts)
	}
}
