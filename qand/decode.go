package qand

import (
	"fmt"

	"github.com/qclab/qand/go/qand/quantum"
)

// A DecodedResult is the AND verdict extracted from one protocol repetition:
// the majority bit across that repetition's shots, with the raw vote split
// retained for shot-level statistics.
type DecodedResult struct {
	Pair       InputPair
	Repetition int

	// And is the decoded verdict. Exact ties between the shot votes
	// resolve to 0.
	And uint8

	// Ones is the number of shots whose combined answer bits read 1;
	// Shots is the repetition's total.
	Ones  int
	Shots int
}

// answerGroups returns, per repetition packed into a circuit, the classical
// bit positions whose XOR forms that repetition's raw per-shot prediction.
// Output bits sit above the transport scratch, so the groups are the top
// Fold positions.
func answerGroups(v Variant, p Params) [][]int {
	_, clbits := circuitWidth(v, p)
	groups := make([][]int, p.Fold)
	for t := range groups {
		groups[t] = []int{clbits - p.Fold + t}
	}
	return groups
}

// bit returns classical bit cb of a counts key. Keys are most significant
// bit first, so cb indexes from the right.
func bit(key string, cb int) uint8 {
	return key[len(key)-1-cb] - '0'
}

// majority returns 1 iff ones is a strict majority of total. Exact ties
// resolve to 0.
func majority(ones, total int) uint8 {
	if 2*ones > total {
		return 1
	}
	return 0
}

// Decode turns the measurement counts of one execution into per-repetition
// AND verdicts. A circuit built with fold f yields f results; baseRep is the
// repetition index of the first. Counts that cannot have come from the
// described circuit fail with ErrMalformedCounts.
func Decode(v Variant, pair InputPair, p Params, baseRep int, counts quantum.Counts) ([]DecodedResult, error) {
	if err := pair.Validate(); err != nil {
		return nil, err
	}
	p = p.WithDefaults(v)
	if err := p.validate(v); err != nil {
		return nil, err
	}
	_, clbits := circuitWidth(v, p)

	total := 0
	for key, n := range counts {
		if len(key) != clbits {
			return nil, fmt.Errorf("%w: key %q has width %d, circuit has %d classical bits", ErrMalformedCounts, key, len(key), clbits)
		}
		for i := 0; i < len(key); i++ {
			if key[i] != '0' && key[i] != '1' {
				return nil, fmt.Errorf("%w: key %q is not a bitstring", ErrMalformedCounts, key)
			}
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: key %q has negative count %d", ErrMalformedCounts, key, n)
		}
		total += n
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no shots", ErrMalformedCounts)
	}

	groups := answerGroups(v, p)
	ones := make([]int, len(groups))
	for key, n := range counts {
		for t, group := range groups {
			var x uint8
			for _, cb := range group {
				x ^= bit(key, cb)
			}
			if x == 1 {
				ones[t] += n
			}
		}
	}

	results := make([]DecodedResult, len(groups))
	for t := range results {
		results[t] = DecodedResult{
			Pair:       pair,
			Repetition: baseRep + t,
			And:        majority(ones[t], total),
			Ones:       ones[t],
			Shots:      total,
		}
	}
	return results, nil
}
