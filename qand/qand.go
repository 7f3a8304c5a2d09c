// Package qand evaluates two-party quantum AND protocols.
//
// Alice holds bit a, Bob holds bit b, and together they compute AND(a, b) by
// bouncing a small quantum state between them for a configured number of
// rounds, trading rounds for information leakage. The package builds the
// protocol circuits, runs them on a quantum.Executor, decodes measurement
// counts into AND verdicts, aggregates correctness statistics across the four
// input combinations, and estimates the round and qubit cost of hitting a
// target error rate.
//
// Two protocol variants are implemented: a multi-qubit reflection protocol
// with explicit state exchange (see https://arxiv.org/abs/1505.03110) and a
// single-qubit damping protocol (see https://arxiv.org/abs/1801.02771).
package qand

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/qclab/qand/go/qand/quantum"
)

var (
	DefaultShots       = 1000
	DefaultRepetitions = 3
	DefaultRounds      = 3
	DefaultWorkers     = 4
)

var (
	// ErrInvalidInput indicates arguments outside a protocol's domain:
	// non-binary inputs, zero or even round counts where odd is required,
	// or span/fold combinations the transport cannot realize.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedVariant indicates a Variant this package does not
	// implement.
	ErrUnsupportedVariant = errors.New("unsupported protocol variant")

	// ErrMalformedCounts indicates measurement counts that cannot have
	// come from the circuit being decoded: wrong key width, negative
	// tallies, or no shots at all.
	ErrMalformedCounts = errors.New("malformed counts")

	// ErrInvalidTarget indicates a target error rate outside (0, 1).
	ErrInvalidTarget = errors.New("invalid target error rate")

	// ErrTargetUnreachable indicates a target error rate that is valid but
	// beyond what the cost search is willing to price: no round count
	// within the search cap meets it.
	ErrTargetUnreachable = errors.New("target error rate unreachable")
)

// A Variant selects one of the implemented AND protocols.
type Variant uint8

const (
	// MultiQubitSwap is the reflection-based protocol of
	// https://arxiv.org/abs/1505.03110: Alice reflects her qubit about a
	// rotated axis, the qubit travels to Bob and back each round, and Bob
	// applies a phase flip when his bit is set. Requires an odd number of
	// rounds.
	MultiQubitSwap Variant = iota

	// SingleQubit is the damping-based protocol of
	// https://arxiv.org/abs/1801.02771: Alice nudges a single qubit
	// toward |1> when her bit is set, and Bob resets it whenever his bit
	// is clear.
	SingleQubit
)

// String returns the variant's wire name, as stored in records and accepted
// by ParseVariant.
func (v Variant) String() string {
	switch v {
	case MultiQubitSwap:
		return "multiqubit_swap"
	case SingleQubit:
		return "single_qubit"
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseVariant maps a name to a Variant. It accepts the String form and the
// short aliases "swap" and "single".
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "multiqubit_swap", "swap":
		return MultiQubitSwap, nil
	case "single_qubit", "single":
		return SingleQubit, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedVariant, s)
}

// A Transport selects how the protocol qubit travels between Alice's and
// Bob's ends of the wire when they are more than one qubit apart.
type Transport uint8

const (
	// TransportEntangle moves the state by entanglement swapping: an EPR
	// pair is prepared mid-wire, a Bell measurement consumes it, and
	// classically conditioned X/Z corrections fix up the received state.
	// Requires an even span of at least four qubits.
	TransportEntangle Transport = iota

	// TransportCNOT walks the state down a CNOT chain and uncomputes the
	// chain behind it. Requires a span of at least two qubits.
	TransportCNOT
)

// String returns the transport's wire name.
func (t Transport) String() string {
	switch t {
	case TransportEntangle:
		return "entangle"
	case TransportCNOT:
		return "cnot"
	}
	return fmt.Sprintf("transport(%d)", uint8(t))
}

// ParseTransport maps a name to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "entangle":
		return TransportEntangle, nil
	case "cnot":
		return TransportCNOT, nil
	}
	return 0, fmt.Errorf("%w: unknown transport %q", ErrInvalidInput, s)
}

// An InputPair is one assignment of Alice's and Bob's input bits.
type InputPair struct {
	A uint8
	B uint8
}

// And returns the AND of the pair's bits.
func (p InputPair) And() uint8 { return p.A & p.B }

// Validate checks that both bits are binary.
func (p InputPair) Validate() error {
	if p.A > 1 || p.B > 1 {
		return fmt.Errorf("%w: input pair (%d,%d) is not binary", ErrInvalidInput, p.A, p.B)
	}
	return nil
}

// String returns the pair as "ab", Alice's bit first.
func (p InputPair) String() string { return fmt.Sprintf("%d%d", p.A, p.B) }

// Pairs returns the four input combinations in canonical order 00, 01, 10,
// 11.
func Pairs() [4]InputPair {
	return [4]InputPair{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
}

// Params fixes the shape of a protocol execution.
type Params struct {
	// Rounds is the number of protocol rounds r. Must be positive, and
	// odd for MultiQubitSwap.
	Rounds int

	// Span is the number of qubits between and including Alice's and
	// Bob's positions on the device. A span of 1 places both parties on
	// the same qubit and uses no transport. Defaults to 1 for SingleQubit
	// and to the transport's minimum for MultiQubitSwap.
	Span int

	// Transport moves the state across spans greater than 1.
	Transport Transport

	// Fold packs this many independent protocol instances into one
	// circuit on disjoint wires, so a single execution yields several
	// repetitions. Only single-qubit, span-1 instances fold. Defaults
	// to 1.
	Fold int
}

// WithDefaults fills zero fields with the variant's defaults.
func (p Params) WithDefaults(v Variant) Params {
	if p.Rounds == 0 {
		p.Rounds = DefaultRounds
	}
	if p.Fold == 0 {
		p.Fold = 1
	}
	if p.Span == 0 {
		switch {
		case v == SingleQubit:
			p.Span = 1
		case p.Transport == TransportCNOT:
			p.Span = 2
		default:
			p.Span = 4
		}
	}
	return p
}

// validate checks p against the variant's and transport's constraints.
func (p Params) validate(v Variant) error {
	if v != MultiQubitSwap && v != SingleQubit {
		return fmt.Errorf("%w: %v", ErrUnsupportedVariant, v)
	}
	if p.Rounds < 1 {
		return fmt.Errorf("%w: rounds %d < 1", ErrInvalidInput, p.Rounds)
	}
	if v == MultiQubitSwap && p.Rounds%2 == 0 {
		return fmt.Errorf("%w: rounds %d: reflection protocol needs an odd round count", ErrInvalidInput, p.Rounds)
	}
	if p.Fold < 1 {
		return fmt.Errorf("%w: fold %d < 1", ErrInvalidInput, p.Fold)
	}
	if p.Fold > 1 && (v != SingleQubit || p.Span != 1) {
		return fmt.Errorf("%w: fold %d: only single-qubit span-1 instances fold", ErrInvalidInput, p.Fold)
	}
	switch {
	case p.Span < 1:
		return fmt.Errorf("%w: span %d < 1", ErrInvalidInput, p.Span)
	case p.Span == 1:
	case p.Transport == TransportCNOT:
		// Any span >= 2 walks.
	case p.Transport == TransportEntangle:
		if p.Span < 4 || p.Span%2 != 0 {
			return fmt.Errorf("%w: span %d: entanglement transport needs an even span of at least 4", ErrInvalidInput, p.Span)
		}
	default:
		return fmt.Errorf("%w: unknown transport %v", ErrInvalidInput, p.Transport)
	}
	return nil
}

// An Opts packages together the arguments necessary to construct an
// Evaluator. Executor has no reasonable default and must be non-nil.
type Opts struct {
	// Executor runs the protocol circuits. Must be non-nil.
	Executor quantum.Executor

	// Variant selects the protocol. Defaults to MultiQubitSwap.
	Variant Variant

	// Params fixes rounds, span, transport, and fold. Zero fields take
	// the variant's defaults.
	Params Params

	// Shots is the number of measurement records collected per circuit
	// execution. Defaults to DefaultShots.
	Shots int

	// Repetitions is the number of circuit executions per input pair;
	// the final verdict is a majority vote across them. Defaults to
	// DefaultRepetitions.
	Repetitions int

	// Workers bounds concurrent executions. Defaults to DefaultWorkers.
	Workers int

	// Logger receives progress events. Defaults to a nop logger.
	Logger *zap.Logger
}

// An Evaluator runs an AND protocol across the four input combinations and
// reports how often it decodes correctly.
type Evaluator struct {
	ex      quantum.Executor
	variant Variant
	params  Params
	shots   int
	reps    int
	workers int
	log     *zap.Logger
}

// NewEvaluator returns an Evaluator configured in accordance with opts, or an
// error if the options are nonsensical.
func NewEvaluator(opts Opts) (*Evaluator, error) {
	if opts.Executor == nil {
		return nil, errors.New("must provide Executor")
	}
	params := opts.Params.WithDefaults(opts.Variant)
	if err := params.validate(opts.Variant); err != nil {
		return nil, err
	}
	if opts.Shots < 0 {
		return nil, fmt.Errorf("%w: shots %d < 0", ErrInvalidInput, opts.Shots)
	}
	if opts.Shots == 0 {
		opts.Shots = DefaultShots
	}
	if opts.Repetitions < 0 {
		return nil, fmt.Errorf("%w: repetitions %d < 0", ErrInvalidInput, opts.Repetitions)
	}
	if opts.Repetitions == 0 {
		opts.Repetitions = DefaultRepetitions
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("%w: workers %d < 1", ErrInvalidInput, opts.Workers)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Evaluator{
		ex:      opts.Executor,
		variant: opts.Variant,
		params:  params,
		shots:   opts.Shots,
		reps:    opts.Repetitions,
		workers: opts.Workers,
		log:     opts.Logger,
	}, nil
}
