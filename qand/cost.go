package qand

import (
	"fmt"
	"math"
)

// A CostEstimate prices a protocol run against a target error rate.
type CostEstimate struct {
	Variant     Variant
	TargetError float64

	// Rounds is the smallest round count whose error bound meets the
	// target, honoring the variant's parity constraint.
	Rounds int

	// Qubits is the number of qubit exchanges those rounds take, one in
	// each direction per round.
	Qubits int

	// InfoBits is the protocol's information cost in bits at Rounds.
	InfoBits float64

	// ErrorBound is the bound actually achieved at Rounds, at most
	// TargetError.
	ErrorBound float64
}

// costParams carries a variant's theory constants. The per-round angle is
// pi / (thetaDiv * (r + thetaShift)); forms and parities are protocol
// theory, not tunables.
type costParams struct {
	thetaDiv   float64
	thetaShift float64

	// damping selects the residual-error form: (1 - cos^r(theta/2)) / 2
	// for the damping protocol, sin^2(theta) for the reflection protocol.
	damping bool

	// oddRounds restricts the search to odd round counts.
	oddRounds bool

	// perRound scales the information cost by r+1 message exchanges
	// instead of one.
	perRound bool

	// exchanges is the number of qubit exchanges per round.
	exchanges int
}

var costTable = map[Variant]costParams{
	MultiQubitSwap: {thetaDiv: 4, thetaShift: 1, oddRounds: true, perRound: true, exchanges: 2},
	SingleQubit:    {thetaDiv: 1, thetaShift: 0, damping: true, exchanges: 2},
}

// maxCostRounds caps the bound search. Targets the cap cannot reach are
// rejected rather than approximated.
const maxCostRounds = int64(1) << 46

// theta returns the per-round angle at round count r.
func (cp costParams) theta(r int64) float64 {
	return math.Pi / (cp.thetaDiv * (float64(r) + cp.thetaShift))
}

// errProb returns the residual error probability after r rounds. It is
// monotone non-increasing in r for both forms.
func (cp costParams) errProb(r int64) float64 {
	th := cp.theta(r)
	if !cp.damping {
		s := math.Sin(th)
		return s * s
	}
	// (1 - cos^r(th/2)) / 2 via log1p/expm1: for large r the cosine is
	// within double rounding of 1 and the direct form collapses to 0.
	// cos(th/2) = 1 - 2 sin^2(th/4); rounding can push the sine term a
	// hair over 1 at r = 1, where the true value is exactly 1.
	s := math.Sin(th / 4)
	x := 2 * s * s
	if x > 1 {
		x = 1
	}
	return -0.5 * math.Expm1(float64(r)*math.Log1p(-x))
}

// infoBits returns the information cost, in bits, of an r-round run.
func (cp costParams) infoBits(r int64) float64 {
	h := binaryEntropy(cp.errProb(r))
	if cp.perRound {
		return float64(r+1) * h
	}
	return h
}

// binaryEntropy returns H2(p) in bits.
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// ErrorBound returns the residual error bound of variant v at r rounds, or
// an error for invalid arguments.
func ErrorBound(v Variant, r int) (float64, error) {
	cp, ok := costTable[v]
	if !ok {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedVariant, v)
	}
	if r < 1 {
		return 0, fmt.Errorf("%w: rounds %d < 1", ErrInvalidInput, r)
	}
	if cp.oddRounds && r%2 == 0 {
		return 0, fmt.Errorf("%w: rounds %d: variant needs an odd round count", ErrInvalidInput, r)
	}
	return cp.errProb(int64(r)), nil
}

// Estimate returns the cheapest configuration of variant v whose error bound
// meets targetError. Targets outside (0, 1) fail with ErrInvalidTarget;
// targets so small that no searchable round count reaches them fail with
// ErrTargetUnreachable.
func Estimate(v Variant, targetError float64) (CostEstimate, error) {
	cp, ok := costTable[v]
	if !ok {
		return CostEstimate{}, fmt.Errorf("%w: %v", ErrUnsupportedVariant, v)
	}
	if math.IsNaN(targetError) || targetError <= 0 || targetError >= 1 {
		return CostEstimate{}, fmt.Errorf("%w: %v not in (0,1)", ErrInvalidTarget, targetError)
	}

	// Bracket by doubling, then binary search the monotone bound.
	lo, hi := int64(1), int64(1)
	for cp.errProb(hi) > targetError {
		lo = hi + 1
		hi *= 2
		if hi > maxCostRounds {
			return CostEstimate{}, fmt.Errorf("%w: %v needs more than %d rounds", ErrTargetUnreachable, targetError, maxCostRounds)
		}
	}
	for lo < hi {
		mid := lo + (hi-lo)/2
		if cp.errProb(mid) <= targetError {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	r := lo
	if cp.oddRounds && r%2 == 0 {
		r++
	}

	return CostEstimate{
		Variant:     v,
		TargetError: targetError,
		Rounds:      int(r),
		Qubits:      int(r) * cp.exchanges,
		InfoBits:    cp.infoBits(r),
		ErrorBound:  cp.errProb(r),
	}, nil
}
