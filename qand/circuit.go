package qand

import (
	"fmt"
	"math"

	"github.com/qclab/qand/go/qand/quantum"
)

// swapTheta is the reflection half-angle for an r-round run; the protocol
// walks Alice's qubit from |0> to |1> in r+1 reflections of 4*theta each.
func swapTheta(r int) float64 { return math.Pi / float64(4*(r+1)) }

// singleTheta is the per-round nudge angle for the damping protocol.
func singleTheta(r int) float64 { return math.Pi / float64(r) }

// circuitWidth returns the register sizes Build will use for the given
// parameters. Output bits occupy the top Fold classical bits; anything below
// them is transport scratch.
func circuitWidth(v Variant, p Params) (qubits, clbits int) {
	if p.Span == 1 {
		return p.Fold, p.Fold
	}
	if v == MultiQubitSwap || v == SingleQubit {
		if p.Transport == TransportEntangle {
			return p.Span, p.Span - 1
		}
		return p.Span, 1
	}
	return 0, 0
}

// Build constructs the circuit that evaluates variant v on pair, determined
// entirely by its arguments. The repetition index shifts the physical-qubit
// window so successive repetitions land on fresh device qubits; topology is
// unaffected.
func Build(v Variant, pair InputPair, repetition int, p Params) (*quantum.Circuit, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	if repetition < 0 {
		return nil, fmt.Errorf("%w: repetition %d < 0", ErrInvalidInput, repetition)
	}
	p = p.WithDefaults(v)
	if err := p.validate(v); err != nil {
		return nil, err
	}

	qubits, clbits := circuitWidth(v, p)
	c := quantum.NewCircuit(qubits, clbits)
	c.Layout = make([]int, qubits)
	for i := range c.Layout {
		c.Layout[i] = repetition*qubits + i
	}

	switch v {
	case MultiQubitSwap:
		buildSwap(c, pair, p)
	case SingleQubit:
		buildSingle(c, pair, p)
	}
	return c, nil
}

// reflection applies Alice's reflection about the axis rotated by theta from
// |0>. Two reflections cancel, which is what makes even round counts
// useless.
func reflection(c *quantum.Circuit, q int, theta float64) {
	c.RY(q, -2*theta)
	c.Z(q)
	c.RY(q, 2*theta)
}

func buildSwap(c *quantum.Circuit, pair InputPair, p Params) {
	theta := swapTheta(p.Rounds)
	alice, bob := 0, c.Qubits-1
	for round := 0; round < p.Rounds; round++ {
		if pair.A == 1 {
			reflection(c, alice, theta)
		}
		c.Barrier()
		transportForward(c, p)
		if pair.B == 1 {
			c.Z(bob)
		}
		c.Barrier()
		transportBack(c, p)
	}
	if pair.A == 1 {
		reflection(c, alice, theta)
	}
	c.Measure(alice, c.Clbits-1)
}

func buildSingle(c *quantum.Circuit, pair InputPair, p Params) {
	theta := singleTheta(p.Rounds)
	if p.Span == 1 {
		// Fold independent instances onto disjoint wires.
		for round := 0; round < p.Rounds; round++ {
			if pair.A == 1 {
				for w := 0; w < p.Fold; w++ {
					c.RX(w, theta)
				}
			}
			c.Barrier()
			if pair.B == 0 {
				for w := 0; w < p.Fold; w++ {
					c.Reset(w)
				}
			}
			c.Barrier()
		}
		for w := 0; w < p.Fold; w++ {
			c.Measure(w, w)
		}
		return
	}
	alice, bob := 0, c.Qubits-1
	for round := 0; round < p.Rounds; round++ {
		if pair.A == 1 {
			c.RX(alice, theta)
		}
		c.Barrier()
		transportForward(c, p)
		if pair.B == 0 {
			c.Reset(bob)
		}
		c.Barrier()
		transportBack(c, p)
	}
	c.Measure(alice, c.Clbits-1)
}

// transportForward moves the state on qubit 0 to qubit span-1, and
// transportBack returns it. Spans of 1 need no transport.
func transportForward(c *quantum.Circuit, p Params) {
	if p.Span == 1 {
		return
	}
	if p.Transport == TransportCNOT {
		chainForward(c, p.Span)
		c.Barrier()
		return
	}
	for k := 0; k+3 < p.Span; k += 2 {
		teleport(c, k, k+1, k+2, k, k+1)
	}
	c.Swap(p.Span-2, p.Span-1)
	c.Barrier()
}

func transportBack(c *quantum.Circuit, p Params) {
	if p.Span == 1 {
		return
	}
	if p.Transport == TransportCNOT {
		chainBack(c, p.Span)
		c.Barrier()
		return
	}
	for k := p.Span - 1; k >= 3; k -= 2 {
		teleport(c, k, k-1, k-2, k-2, k-3)
	}
	c.Swap(1, 0)
	c.Barrier()
}

// teleport moves the state on src two positions to dst: mid and dst are
// entangled into an EPR pair, a Bell measurement of (src, mid) lands in the
// scratch bits, and conditioned corrections fix up dst. src and mid come out
// reset, so scratch bits and wire positions are reusable within the same
// circuit.
func teleport(c *quantum.Circuit, src, mid, dst, cbSrc, cbMid int) {
	c.H(mid)
	c.CX(mid, dst)
	c.CX(src, mid)
	c.H(src)
	c.Measure(src, cbSrc)
	c.Measure(mid, cbMid)
	c.Reset(src)
	c.Reset(mid)
	c.CondX(dst, cbMid)
	c.CondZ(dst, cbSrc)
}

// chainForward walks the state on qubit 0 down a CNOT chain to qubit n-1;
// chainBack is its inverse. Intermediate qubits must be |0> and are
// returned to |0>.
func chainForward(c *quantum.Circuit, n int) {
	for i := 0; i < n-1; i++ {
		c.CX(i, i+1)
	}
	for i := 0; i < n-1; i++ {
		c.CX(i+1, i)
	}
}

func chainBack(c *quantum.Circuit, n int) {
	for i := n - 2; i >= 0; i-- {
		c.CX(i+1, i)
	}
	for i := n - 2; i >= 0; i-- {
		c.CX(i, i+1)
	}
}
