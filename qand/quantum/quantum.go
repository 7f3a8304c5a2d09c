// Package quantum provides the circuit model and execution backends that the
// qand protocol engine runs against.
//
// A Circuit is an ordered operation list over logical qubits and classical
// bits, structured the way cloud providers accept OpenQASM programs:
// mid-circuit measurement, reset, and classically conditioned corrections are
// first-class operations rather than terminal ones. Executors consume a
// Circuit plus a shot count and return aggregated measurement Counts.
package quantum

import (
	"fmt"
	"strings"
)

// A Kind identifies a single circuit operation.
type Kind uint8

const (
	// KindH applies a Hadamard gate to Qubits[0].
	KindH Kind = iota
	// KindX applies a Pauli X gate to Qubits[0].
	KindX
	// KindY applies a Pauli Y gate to Qubits[0].
	KindY
	// KindZ applies a Pauli Z gate to Qubits[0].
	KindZ
	// KindRX rotates Qubits[0] about the X axis by Arg radians.
	KindRX
	// KindRY rotates Qubits[0] about the Y axis by Arg radians.
	KindRY
	// KindCX applies a controlled-X with control Qubits[0] and target
	// Qubits[1].
	KindCX
	// KindSwap exchanges the states of Qubits[0] and Qubits[1].
	KindSwap
	// KindMeasure measures Qubits[0] in the computational basis and stores
	// the outcome in classical bit CBit.
	KindMeasure
	// KindReset measures Qubits[0], discards the outcome, and flips the
	// qubit back to |0> if the measurement found |1>.
	KindReset
	// KindCondX applies a Pauli X to Qubits[0] iff classical bit CBit
	// holds 1.
	KindCondX
	// KindCondZ applies a Pauli Z to Qubits[0] iff classical bit CBit
	// holds 1.
	KindCondZ
	// KindBarrier is a scheduling fence. Simulators treat it as a no-op.
	KindBarrier
)

// String returns the OpenQASM-style mnemonic for k.
func (k Kind) String() string {
	switch k {
	case KindH:
		return "h"
	case KindX:
		return "x"
	case KindY:
		return "y"
	case KindZ:
		return "z"
	case KindRX:
		return "rx"
	case KindRY:
		return "ry"
	case KindCX:
		return "cx"
	case KindSwap:
		return "swap"
	case KindMeasure:
		return "measure"
	case KindReset:
		return "reset"
	case KindCondX:
		return "if_x"
	case KindCondZ:
		return "if_z"
	case KindBarrier:
		return "barrier"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// arity returns the number of qubit operands k expects.
func (k Kind) arity() int {
	switch k {
	case KindCX, KindSwap:
		return 2
	case KindBarrier:
		return 0
	}
	return 1
}

// usesCBit reports whether k reads or writes a classical bit.
func (k Kind) usesCBit() bool {
	switch k {
	case KindMeasure, KindCondX, KindCondZ:
		return true
	}
	return false
}

// An Op is one operation in a circuit. Qubits holds logical qubit operands,
// Arg the rotation angle for parameterized gates, and CBit the classical bit
// read or written by measurement and conditioned operations.
type Op struct {
	Kind   Kind
	Qubits [2]int
	Arg    float64
	CBit   int
}

// A Circuit is an ordered operation list over Qubits logical qubits and
// Clbits classical bits.
//
// Layout optionally maps logical qubit i to a physical qubit Layout[i] on
// the target device. Executors that model per-qubit characteristics index
// their calibration data by physical position; executors without such data
// ignore Layout entirely.
type Circuit struct {
	Qubits int
	Clbits int
	Ops    []Op
	Layout []int
}

// NewCircuit returns an empty circuit over the given register sizes.
func NewCircuit(qubits, clbits int) *Circuit {
	return &Circuit{Qubits: qubits, Clbits: clbits}
}

func (c *Circuit) add(op Op) *Circuit {
	c.Ops = append(c.Ops, op)
	return c
}

// H appends a Hadamard gate on q.
func (c *Circuit) H(q int) *Circuit { return c.add(Op{Kind: KindH, Qubits: [2]int{q, -1}}) }

// X appends a Pauli X gate on q.
func (c *Circuit) X(q int) *Circuit { return c.add(Op{Kind: KindX, Qubits: [2]int{q, -1}}) }

// Y appends a Pauli Y gate on q.
func (c *Circuit) Y(q int) *Circuit { return c.add(Op{Kind: KindY, Qubits: [2]int{q, -1}}) }

// Z appends a Pauli Z gate on q.
func (c *Circuit) Z(q int) *Circuit { return c.add(Op{Kind: KindZ, Qubits: [2]int{q, -1}}) }

// RX appends a rotation of theta radians about the X axis on q.
func (c *Circuit) RX(q int, theta float64) *Circuit {
	return c.add(Op{Kind: KindRX, Qubits: [2]int{q, -1}, Arg: theta})
}

// RY appends a rotation of theta radians about the Y axis on q.
func (c *Circuit) RY(q int, theta float64) *Circuit {
	return c.add(Op{Kind: KindRY, Qubits: [2]int{q, -1}, Arg: theta})
}

// CX appends a controlled-X gate with control ctrl and target tgt.
func (c *Circuit) CX(ctrl, tgt int) *Circuit {
	return c.add(Op{Kind: KindCX, Qubits: [2]int{ctrl, tgt}})
}

// Swap appends a swap of qubits a and b.
func (c *Circuit) Swap(a, b int) *Circuit {
	return c.add(Op{Kind: KindSwap, Qubits: [2]int{a, b}})
}

// Measure appends a computational-basis measurement of q into classical
// bit cb.
func (c *Circuit) Measure(q, cb int) *Circuit {
	return c.add(Op{Kind: KindMeasure, Qubits: [2]int{q, -1}, CBit: cb})
}

// Reset appends a reset of q to |0>.
func (c *Circuit) Reset(q int) *Circuit { return c.add(Op{Kind: KindReset, Qubits: [2]int{q, -1}}) }

// CondX appends a Pauli X on q conditioned on classical bit cb holding 1.
func (c *Circuit) CondX(q, cb int) *Circuit {
	return c.add(Op{Kind: KindCondX, Qubits: [2]int{q, -1}, CBit: cb})
}

// CondZ appends a Pauli Z on q conditioned on classical bit cb holding 1.
func (c *Circuit) CondZ(q, cb int) *Circuit {
	return c.add(Op{Kind: KindCondZ, Qubits: [2]int{q, -1}, CBit: cb})
}

// Barrier appends a scheduling fence across the whole register.
func (c *Circuit) Barrier() *Circuit { return c.add(Op{Kind: KindBarrier, Qubits: [2]int{-1, -1}}) }

// Validate checks that every operand index in the circuit is within the
// declared register sizes and that Layout, if present, covers every logical
// qubit exactly once.
func (c *Circuit) Validate() error {
	if c.Qubits < 1 {
		return fmt.Errorf("circuit has %d qubits", c.Qubits)
	}
	if c.Clbits < 0 {
		return fmt.Errorf("circuit has %d classical bits", c.Clbits)
	}
	for i, op := range c.Ops {
		for j := 0; j < op.Kind.arity(); j++ {
			if q := op.Qubits[j]; q < 0 || q >= c.Qubits {
				return fmt.Errorf("op %d (%v): qubit %d out of range [0,%d)", i, op.Kind, q, c.Qubits)
			}
		}
		if op.Kind.usesCBit() && (op.CBit < 0 || op.CBit >= c.Clbits) {
			return fmt.Errorf("op %d (%v): classical bit %d out of range [0,%d)", i, op.Kind, op.CBit, c.Clbits)
		}
	}
	if c.Layout != nil {
		if len(c.Layout) != c.Qubits {
			return fmt.Errorf("layout maps %d qubits, circuit has %d", len(c.Layout), c.Qubits)
		}
		seen := make(map[int]bool, len(c.Layout))
		for i, p := range c.Layout {
			if p < 0 {
				return fmt.Errorf("layout maps qubit %d to negative position %d", i, p)
			}
			if seen[p] {
				return fmt.Errorf("layout maps two qubits to position %d", p)
			}
			seen[p] = true
		}
	}
	return nil
}

// Depth returns the number of non-barrier operations in the circuit.
func (c *Circuit) Depth() int {
	n := 0
	for _, op := range c.Ops {
		if op.Kind != KindBarrier {
			n++
		}
	}
	return n
}

// String renders the circuit one mnemonic per line, for logs and tests.
func (c *Circuit) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "qubits %d clbits %d\n", c.Qubits, c.Clbits)
	for _, op := range c.Ops {
		switch {
		case op.Kind == KindBarrier:
			b.WriteString("barrier\n")
		case op.Kind == KindRX || op.Kind == KindRY:
			fmt.Fprintf(&b, "%v(%.6f) q%d\n", op.Kind, op.Arg, op.Qubits[0])
		case op.Kind.arity() == 2:
			fmt.Fprintf(&b, "%v q%d q%d\n", op.Kind, op.Qubits[0], op.Qubits[1])
		case op.Kind == KindMeasure:
			fmt.Fprintf(&b, "measure q%d -> c%d\n", op.Qubits[0], op.CBit)
		case op.Kind.usesCBit():
			fmt.Fprintf(&b, "%v q%d ? c%d\n", op.Kind, op.Qubits[0], op.CBit)
		default:
			fmt.Fprintf(&b, "%v q%d\n", op.Kind, op.Qubits[0])
		}
	}
	return b.String()
}

// Counts aggregates the measurement outcomes of a multi-shot execution. Keys
// are fixed-width bitstrings over the circuit's classical register with the
// most significant (highest-index) classical bit first, matching the key
// convention of the major cloud providers. Values are shot tallies.
type Counts map[string]int

// Total returns the summed shot tally across all outcomes.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Width returns the common key width, or -1 if keys disagree or c is empty.
func (c Counts) Width() int {
	w := -1
	for k := range c {
		if w == -1 {
			w = len(k)
		} else if len(k) != w {
			return -1
		}
	}
	return w
}
