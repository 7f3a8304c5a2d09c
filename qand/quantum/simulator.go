package quantum

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"time"
)

// SimOpts parameterizes a Simulator.
type SimOpts struct {
	// MaxQubits caps circuit width. Zero means the 24-qubit default.
	MaxQubits int

	// Seed fixes the base RNG seed; successive Execute calls derive
	// distinct per-call seeds from it. Zero seeds from the clock.
	Seed int64

	// Noise, when enabled, inserts depolarizing errors after every gate
	// and flips recorded measurement outcomes at the readout rate. The
	// zero model simulates a perfect device.
	Noise NoiseModel
}

// A Simulator executes circuits by dense statevector simulation, sampling
// every shot as an independent trajectory. Mid-circuit measurement collapses
// the state, reset measures and corrects, and conditioned corrections read
// the classical bits recorded earlier in the same shot, so circuits behave
// exactly as they would on hardware.
//
// A Simulator is safe for concurrent use; each Execute call owns its own
// state and RNG.
type Simulator struct {
	opts  SimOpts
	calls atomic.Int64
}

// NewSimulator returns a Simulator with the given options.
func NewSimulator(o SimOpts) *Simulator {
	if o.MaxQubits == 0 {
		o.MaxQubits = 24
	}
	return &Simulator{opts: o}
}

// Execute implements Executor.
func (s *Simulator) Execute(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	if c == nil {
		return nil, errors.New("nil circuit")
	}
	if shots < 1 {
		return nil, fmt.Errorf("shots %d < 1", shots)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid circuit: %w", err)
	}
	if c.Qubits > s.opts.MaxQubits || c.Qubits > 30 {
		return nil, fmt.Errorf("%w: %d qubits exceeds simulator cap %d", ErrCircuitTooLarge, c.Qubits, s.opts.MaxQubits)
	}

	rng := rand.New(rand.NewSource(s.callSeed()))
	st := newState(c.Qubits)
	cl := make([]uint8, c.Clbits)
	key := make([]byte, c.Clbits)
	counts := make(Counts)
	for shot := 0; shot < shots; shot++ {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w after %d/%d shots", ErrExecutionTimeout, shot, shots)
			}
			return nil, err
		}
		st.zero()
		for i := range cl {
			cl[i] = 0
		}
		s.trajectory(c, st, cl, rng)
		// Key is most significant classical bit first.
		for i, b := range cl {
			key[len(key)-1-i] = '0' + b
		}
		counts[string(key)]++
	}
	return counts, nil
}

// callSeed derives a fresh deterministic seed for one Execute call.
func (s *Simulator) callSeed() int64 {
	base := s.opts.Seed
	if base == 0 {
		base = time.Now().UnixNano()
	}
	return base + s.calls.Add(1)
}

func (s *Simulator) trajectory(c *Circuit, st *state, cl []uint8, rng *rand.Rand) {
	noise := s.opts.Noise
	noisy := noise.Enabled()
	for _, op := range c.Ops {
		q := op.Qubits[0]
		switch op.Kind {
		case KindBarrier:
			continue
		case KindMeasure:
			m := st.measure(q, rng)
			if noisy && rng.Float64() < noise.readout(physical(c, q)) {
				m ^= 1
			}
			cl[op.CBit] = m
			continue
		case KindReset:
			if st.measure(q, rng) == 1 {
				st.x(q)
			}
			continue
		case KindCondX:
			if cl[op.CBit] == 0 {
				continue
			}
			st.x(q)
		case KindCondZ:
			if cl[op.CBit] == 0 {
				continue
			}
			st.z(q)
		case KindH:
			st.h(q)
		case KindX:
			st.x(q)
		case KindY:
			st.y(q)
		case KindZ:
			st.z(q)
		case KindRX:
			st.rx(q, op.Arg)
		case KindRY:
			st.ry(q, op.Arg)
		case KindCX:
			st.cx(q, op.Qubits[1])
		case KindSwap:
			st.swap(q, op.Qubits[1])
		}
		if !noisy {
			continue
		}
		p := noise.Depol1
		if op.Kind.arity() == 2 {
			p = noise.Depol2
		}
		for j := 0; j < op.Kind.arity(); j++ {
			if rng.Float64() < p {
				st.pauli(rng.Intn(3), op.Qubits[j])
			}
		}
	}
}

// physical maps logical qubit q to its device position.
func physical(c *Circuit, q int) int {
	if len(c.Layout) == c.Qubits {
		return c.Layout[q]
	}
	return q
}

// state is a dense statevector over n qubits. Amplitude i belongs to the
// computational basis ket whose qubit q reads (i>>q)&1.
type state struct {
	amp []complex128
	buf []complex128
}

func newState(n int) *state {
	st := &state{
		amp: make([]complex128, 1<<n),
		buf: make([]complex128, 1<<n),
	}
	st.amp[0] = 1
	return st
}

// zero returns the state to |0...0>.
func (s *state) zero() {
	for i := range s.amp {
		s.amp[i] = 0
	}
	s.amp[0] = 1
}

func (s *state) h(q int) {
	bit := 1 << q
	f := complex(1/math.Sqrt2, 0)
	for i := range s.amp {
		if i&bit == 0 {
			j := i | bit
			s.buf[i] = f * (s.amp[i] + s.amp[j])
			s.buf[j] = f * (s.amp[i] - s.amp[j])
		}
	}
	s.amp, s.buf = s.buf, s.amp
}

func (s *state) x(q int) {
	bit := 1 << q
	for i := range s.amp {
		if i&bit == 0 {
			j := i | bit
			s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
		}
	}
}

func (s *state) y(q int) {
	bit := 1 << q
	for i := range s.amp {
		if i&bit == 0 {
			j := i | bit
			ai, aj := s.amp[i], s.amp[j]
			s.amp[i] = complex(0, -1) * aj
			s.amp[j] = complex(0, 1) * ai
		}
	}
}

func (s *state) z(q int) {
	bit := 1 << q
	for i := range s.amp {
		if i&bit != 0 {
			s.amp[i] = -s.amp[i]
		}
	}
}

func (s *state) rx(q int, theta float64) {
	bit := 1 << q
	c := complex(math.Cos(theta/2), 0)
	js := complex(0, -math.Sin(theta/2))
	for i := range s.amp {
		if i&bit == 0 {
			j := i | bit
			s.buf[i] = c*s.amp[i] + js*s.amp[j]
			s.buf[j] = js*s.amp[i] + c*s.amp[j]
		}
	}
	s.amp, s.buf = s.buf, s.amp
}

func (s *state) ry(q int, theta float64) {
	bit := 1 << q
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	for i := range s.amp {
		if i&bit == 0 {
			j := i | bit
			s.buf[i] = c*s.amp[i] - sn*s.amp[j]
			s.buf[j] = sn*s.amp[i] + c*s.amp[j]
		}
	}
	s.amp, s.buf = s.buf, s.amp
}

func (s *state) cx(ctrl, tgt int) {
	cBit, tBit := 1<<ctrl, 1<<tgt
	for i := range s.amp {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
		}
	}
}

func (s *state) swap(a, b int) {
	aBit, bBit := 1<<a, 1<<b
	for i := range s.amp {
		if i&aBit != 0 && i&bBit == 0 {
			j := (i &^ aBit) | bBit
			s.amp[i], s.amp[j] = s.amp[j], s.amp[i]
		}
	}
}

// pauli applies X, Y, or Z to q for k = 0, 1, 2. Used by the depolarizing
// channel.
func (s *state) pauli(k, q int) {
	switch k {
	case 0:
		s.x(q)
	case 1:
		s.y(q)
	default:
		s.z(q)
	}
}

// measure samples qubit q in the computational basis, collapses the state,
// renormalizes, and returns the outcome.
func (s *state) measure(q int, rng *rand.Rand) uint8 {
	bit := 1 << q
	p1 := 0.0
	for i, a := range s.amp {
		if i&bit != 0 {
			p1 += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	var m uint8
	norm := math.Sqrt(1 - p1)
	if rng.Float64() < p1 {
		m = 1
		norm = math.Sqrt(p1)
	}
	for i := range s.amp {
		if (i&bit != 0) != (m == 1) {
			s.amp[i] = 0
		} else {
			s.amp[i] /= complex(norm, 0)
		}
	}
	return m
}
