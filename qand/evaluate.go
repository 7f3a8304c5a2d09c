package qand

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// A PairVerdict is the final answer for one input pair: the majority vote
// across every decoded repetition, with the repetitions retained.
type PairVerdict struct {
	Pair    InputPair
	And     uint8
	Results []DecodedResult
}

// Correct reports whether the verdict matches the true AND of the inputs.
func (v PairVerdict) Correct() bool { return v.And == v.Pair.And() }

// Run evaluates the protocol on all four input combinations, fanning the
// configured repetitions out across the worker pool, and returns the
// combined statistics. The first failed execution cancels the rest.
func (e *Evaluator) Run(ctx context.Context) (RunStatistics, error) {
	pairs := Pairs()
	results := make([][]DecodedResult, len(pairs))
	for i := range results {
		results[i] = make([]DecodedResult, e.reps*e.params.Fold)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, pair := range pairs {
		for rep := 0; rep < e.reps; rep++ {
			i, pair, rep := i, pair, rep
			g.Go(func() error {
				ds, err := e.evaluateOnce(gctx, pair, rep)
				if err != nil {
					return fmt.Errorf("pair %v execution %d: %w", pair, rep, err)
				}
				copy(results[i][rep*e.params.Fold:], ds)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return RunStatistics{}, err
	}

	tallies := make([]RunStatistics, len(pairs))
	for i, pair := range pairs {
		tallies[i] = Aggregate(pair, pair.And(), results[i])
	}
	stats := Combine(tallies...)
	rate, _ := stats.SuccessRate()
	e.log.Info("evaluation complete",
		zap.Stringer("variant", e.variant),
		zap.Int("rounds", e.params.Rounds),
		zap.Int("executions", len(pairs)*e.reps),
		zap.Float64("success_rate", rate))
	return stats, nil
}

// EvaluatePair runs the configured repetitions for a single input pair and
// majority-votes them into one verdict. Ties resolve to 0.
func (e *Evaluator) EvaluatePair(ctx context.Context, pair InputPair) (PairVerdict, error) {
	if err := pair.Validate(); err != nil {
		return PairVerdict{}, err
	}
	results := make([]DecodedResult, e.reps*e.params.Fold)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for rep := 0; rep < e.reps; rep++ {
		rep := rep
		g.Go(func() error {
			ds, err := e.evaluateOnce(gctx, pair, rep)
			if err != nil {
				return fmt.Errorf("execution %d: %w", rep, err)
			}
			copy(results[rep*e.params.Fold:], ds)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PairVerdict{}, fmt.Errorf("pair %v: %w", pair, err)
	}

	ones := 0
	for _, r := range results {
		if r.And == 1 {
			ones++
		}
	}
	verdict := PairVerdict{
		Pair:    pair,
		And:     majority(ones, len(results)),
		Results: results,
	}
	e.log.Debug("pair decided",
		zap.Stringer("pair", pair),
		zap.Uint8("and", verdict.And),
		zap.Int("repetitions", len(results)))
	return verdict, nil
}

// evaluateOnce builds, executes, and decodes one circuit. Execution rep of a
// fold-f configuration covers repetitions [rep*f, (rep+1)*f).
func (e *Evaluator) evaluateOnce(ctx context.Context, pair InputPair, rep int) ([]DecodedResult, error) {
	c, err := Build(e.variant, pair, rep, e.params)
	if err != nil {
		return nil, err
	}
	counts, err := e.ex.Execute(ctx, c, e.shots)
	if err != nil {
		return nil, fmt.Errorf("executing: %w", err)
	}
	ds, err := Decode(e.variant, pair, e.params, rep*e.params.Fold, counts)
	if err != nil {
		return nil, err
	}
	e.log.Debug("execution decoded",
		zap.Stringer("pair", pair),
		zap.Int("execution", rep),
		zap.Int("outcomes", len(counts)))
	return ds, nil
}
