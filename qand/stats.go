package qand

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/qclab/qand/go/qand/quantum"
)

// PairStats counts decode outcomes for one input pair. Repetition counts
// tally whole decoded verdicts; shot counts tally the individual shots
// behind them.
type PairStats struct {
	Evaluated    int
	Correct      int
	Incorrect    int
	CorrectShots int
	TotalShots   int
}

// add folds one decoded result into the cell.
func (ps *PairStats) add(r DecodedResult, expected uint8) {
	ps.Evaluated++
	if r.And == expected {
		ps.Correct++
	} else {
		ps.Incorrect++
	}
	if expected == 1 {
		ps.CorrectShots += r.Ones
	} else {
		ps.CorrectShots += r.Shots - r.Ones
	}
	ps.TotalShots += r.Shots
}

// RunStatistics aggregates decode outcomes across the four input pairs.
// Cells is indexed [a][b]. The zero value is an empty tally.
type RunStatistics struct {
	Cells [2][2]PairStats
}

// Aggregate tallies a batch of decoded results for one input pair against
// the expected AND value. Results for other pairs are ignored so that mixed
// batches cannot contaminate a cell.
func Aggregate(pair InputPair, expected uint8, results []DecodedResult) RunStatistics {
	var s RunStatistics
	if pair.Validate() != nil {
		return s
	}
	cell := &s.Cells[pair.A][pair.B]
	for _, r := range results {
		if r.Pair != pair {
			continue
		}
		cell.add(r, expected&1)
	}
	return s
}

// Combine merges tallies cell by cell. It is associative and commutative,
// so partial statistics from concurrent workers can be merged in any order.
func Combine(stats ...RunStatistics) RunStatistics {
	var out RunStatistics
	for _, s := range stats {
		for a := 0; a < 2; a++ {
			for b := 0; b < 2; b++ {
				c := &out.Cells[a][b]
				in := s.Cells[a][b]
				c.Evaluated += in.Evaluated
				c.Correct += in.Correct
				c.Incorrect += in.Incorrect
				c.CorrectShots += in.CorrectShots
				c.TotalShots += in.TotalShots
			}
		}
	}
	return out
}

// Cell returns the tally for one input pair.
func (s RunStatistics) Cell(p InputPair) PairStats {
	if p.Validate() != nil {
		return PairStats{}
	}
	return s.Cells[p.A][p.B]
}

// SuccessRate returns the fraction of decoded verdicts that were correct
// across all pairs. ok is false when nothing has been evaluated, so an empty
// tally can never yield NaN.
func (s RunStatistics) SuccessRate() (rate float64, ok bool) {
	correct, evaluated := 0, 0
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			correct += s.Cells[a][b].Correct
			evaluated += s.Cells[a][b].Evaluated
		}
	}
	if evaluated == 0 {
		return 0, false
	}
	return float64(correct) / float64(evaluated), true
}

// PairRate returns the per-pair verdict success rate.
func (s RunStatistics) PairRate(p InputPair) (rate float64, ok bool) {
	cell := s.Cell(p)
	if cell.Evaluated == 0 {
		return 0, false
	}
	return float64(cell.Correct) / float64(cell.Evaluated), true
}

// ShotRate returns the fraction of individual shots whose raw prediction was
// correct across all pairs.
func (s RunStatistics) ShotRate() (rate float64, ok bool) {
	correct, total := 0, 0
	for a := 0; a < 2; a++ {
		for b := 0; b < 2; b++ {
			correct += s.Cells[a][b].CorrectShots
			total += s.Cells[a][b].TotalShots
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(correct) / float64(total), true
}

// ConfidenceInterval returns a conf-level interval for the pair's shot
// success probability under the normal approximation, clamped to [0, 1].
// ok is false when the pair has no shots or conf lies outside (0, 1).
func (s RunStatistics) ConfidenceInterval(p InputPair, conf float64) (lo, hi float64, ok bool) {
	if conf <= 0 || conf >= 1 {
		return 0, 0, false
	}
	cell := s.Cell(p)
	if cell.TotalShots == 0 {
		return 0, 0, false
	}
	n := float64(cell.TotalShots)
	rate := float64(cell.CorrectShots) / n
	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - (1-conf)/2)
	d := z * math.Sqrt(rate*(1-rate)/n)
	lo, hi = rate-d, rate+d
	if lo < 0 {
		lo = 0
	}
	if hi > 1 {
		hi = 1
	}
	return lo, hi, true
}

// Divergence returns the Jensen-Shannon divergence, in nats, between two
// count distributions over the union of their outcomes. Identical
// distributions score 0; disjoint ones log 2.
func Divergence(a, b quantum.Counts) float64 {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range b {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pa := make([]float64, len(keys))
	pb := make([]float64, len(keys))
	for i, k := range keys {
		pa[i] = float64(a[k])
		pb[i] = float64(b[k])
	}
	if ta := floats.Sum(pa); ta > 0 {
		floats.Scale(1/ta, pa)
	}
	if tb := floats.Sum(pb); tb > 0 {
		floats.Scale(1/tb, pb)
	}
	return stat.JensenShannon(pa, pb)
}
