package quantum

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// ErrBackendUnavailable indicates that the execution backend could not
	// be reached or refused the submission after retries were exhausted.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrExecutionTimeout indicates that the wait budget for an execution
	// elapsed before results arrived. Any in-flight job is abandoned.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrCircuitTooLarge indicates that a circuit exceeds the qubit
	// capacity of the backend it was submitted to.
	ErrCircuitTooLarge = errors.New("circuit too large")
)

// An Executor runs circuits against some quantum backend, real or simulated.
//
// Execute blocks until shots measurement records have been aggregated, ctx is
// done, or the backend fails. Implementations must be safe for concurrent use;
// callers that need submissions serialized (shared hardware queues, rate
// limits) wrap the executor with Serialized.
type Executor interface {
	Execute(ctx context.Context, c *Circuit, shots int) (Counts, error)
}

// A JobClient is the provider-specific half of a hardware backend: it submits
// a circuit, polls for completion, and fetches counts. Remote drives a
// JobClient with retry, backoff, and wait-budget handling so that client
// implementations can stay thin.
type JobClient interface {
	// Submit enqueues c for execution and returns the provider's job id.
	Submit(ctx context.Context, c *Circuit, shots int) (string, error)

	// Result blocks until the job finishes and returns its counts.
	Result(ctx context.Context, jobID string) (Counts, error)

	// Cancel abandons a job. Called on timeout; best effort.
	Cancel(ctx context.Context, jobID string) error
}

// Backend kinds accepted by Config.Backend.
const (
	BackendIdeal    = "ideal"
	BackendNoisy    = "noisy"
	BackendHardware = "hardware"
)

// A NoiseModel parameterizes the noisy simulator: symmetric depolarizing
// error after each one- and two-qubit gate, and classical readout flips.
// ReadoutByQubit, when present, overrides Readout per physical qubit and is
// indexed by the circuit's Layout.
type NoiseModel struct {
	Depol1         float64   `yaml:"depol_1q"`
	Depol2         float64   `yaml:"depol_2q"`
	Readout        float64   `yaml:"readout"`
	ReadoutByQubit []float64 `yaml:"readout_by_qubit"`
}

// Enabled reports whether the model perturbs anything at all.
func (n NoiseModel) Enabled() bool {
	return n.Depol1 > 0 || n.Depol2 > 0 || n.Readout > 0 || len(n.ReadoutByQubit) > 0
}

// readout returns the readout flip probability for physical qubit p.
func (n NoiseModel) readout(p int) float64 {
	if p >= 0 && p < len(n.ReadoutByQubit) {
		return n.ReadoutByQubit[p]
	}
	return n.Readout
}

// A Duration is a time.Duration that unmarshals from YAML strings such as
// "90s" or "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config selects and parameterizes an execution backend.
type Config struct {
	// Backend is one of "ideal", "noisy", or "hardware".
	Backend string `yaml:"backend"`

	// Seed fixes the simulator RNG. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`

	// MaxQubits caps circuit width. Oversized submissions fail with
	// ErrCircuitTooLarge before reaching the backend.
	MaxQubits int `yaml:"max_qubits"`

	// Noise parameterizes the "noisy" backend.
	Noise NoiseModel `yaml:"noise"`

	// Device names the hardware target, for provider clients and logs.
	Device string `yaml:"device"`

	// Token authenticates against the provider. Hardware only.
	Token string `yaml:"token"`

	// WaitBudget bounds one Execute call end to end, submission through
	// results. Zero means no bound beyond the caller's context.
	WaitBudget Duration `yaml:"wait_budget"`

	// MaxAttempts bounds submission attempts on transient failures.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBase is the first retry delay; later delays double, with
	// jitter, capped at 32x.
	RetryBase Duration `yaml:"retry_base"`

	// Serialize forces submissions through the backend one at a time.
	Serialize bool `yaml:"serialize"`
}

// DefaultConfig returns the configuration used when no file is present: the
// ideal simulator, 24-qubit cap, three submission attempts.
func DefaultConfig() *Config {
	return &Config{
		Backend:     BackendIdeal,
		MaxQubits:   24,
		WaitBudget:  Duration(10 * time.Minute),
		MaxAttempts: 3,
		RetryBase:   Duration(2 * time.Second),
	}
}

// LoadConfig reads a Config from a YAML file, applying defaults for absent
// fields. A missing file yields DefaultConfig without error; a malformed one
// is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendIdeal, BackendNoisy, BackendHardware:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxQubits < 1 {
		return fmt.Errorf("max_qubits %d < 1", c.MaxQubits)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts %d < 1", c.MaxAttempts)
	}
	for _, p := range []float64{c.Noise.Depol1, c.Noise.Depol2, c.Noise.Readout} {
		if p < 0 || p > 1 {
			return fmt.Errorf("noise probability %v outside [0,1]", p)
		}
	}
	for _, p := range c.Noise.ReadoutByQubit {
		if p < 0 || p > 1 {
			return fmt.Errorf("readout probability %v outside [0,1]", p)
		}
	}
	return nil
}

// New builds the Executor described by cfg. Hardware backends submit through
// client; simulator backends ignore it. A nil log defaults to zap.NewNop.
func New(cfg *Config, client JobClient, log *zap.Logger) (Executor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	var ex Executor
	switch cfg.Backend {
	case BackendIdeal:
		ex = NewSimulator(SimOpts{MaxQubits: cfg.MaxQubits, Seed: cfg.Seed})
	case BackendNoisy:
		ex = NewSimulator(SimOpts{MaxQubits: cfg.MaxQubits, Seed: cfg.Seed, Noise: cfg.Noise})
	case BackendHardware:
		if client == nil {
			return nil, fmt.Errorf("%w: hardware backend configured without a job client", ErrBackendUnavailable)
		}
		ex = NewRemote(client, cfg, log)
	}
	if cfg.Serialize {
		ex = Serialized(ex)
	}
	return ex, nil
}

// Serialized wraps e so that at most one Execute runs at a time. Use it when
// the backend is a shared hardware queue that throttles concurrent sessions.
func Serialized(e Executor) Executor { return &serialExecutor{e: e} }

type serialExecutor struct {
	mu sync.Mutex
	e  Executor
}

func (s *serialExecutor) Execute(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.e.Execute(ctx, c, shots)
}
