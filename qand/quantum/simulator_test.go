package quantum

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestSimulatorDeterministicOutcomes(t *testing.T) {
	tcs := []struct {
		name  string
		build func() *Circuit
		want  string
	}{{
		name:  "ground state",
		build: func() *Circuit { return NewCircuit(1, 1).Measure(0, 0) },
		want:  "0",
	}, {
		name:  "bit flip",
		build: func() *Circuit { return NewCircuit(1, 1).X(0).Measure(0, 0) },
		want:  "1",
	}, {
		name:  "full rx rotation",
		build: func() *Circuit { return NewCircuit(1, 1).RX(0, math.Pi).Measure(0, 0) },
		want:  "1",
	}, {
		name:  "double flip",
		build: func() *Circuit { return NewCircuit(1, 1).X(0).X(0).Measure(0, 0) },
		want:  "0",
	}, {
		name:  "reset after flip",
		build: func() *Circuit { return NewCircuit(1, 1).X(0).Reset(0).Measure(0, 0) },
		want:  "0",
	}, {
		name:  "reset after superposition",
		build: func() *Circuit { return NewCircuit(1, 1).H(0).Reset(0).Measure(0, 0) },
		want:  "0",
	}, {
		name: "conditional x fires",
		build: func() *Circuit {
			return NewCircuit(2, 2).X(0).Measure(0, 0).CondX(1, 0).Measure(1, 1)
		},
		want: "11",
	}, {
		name: "conditional x holds",
		build: func() *Circuit {
			return NewCircuit(2, 2).Measure(0, 0).CondX(1, 0).Measure(1, 1)
		},
		want: "00",
	}, {
		name: "swap moves excitation",
		build: func() *Circuit {
			return NewCircuit(2, 2).X(0).Swap(0, 1).Measure(0, 0).Measure(1, 1)
		},
		want: "10",
	}, {
		name: "cx copies in computational basis",
		build: func() *Circuit {
			return NewCircuit(2, 2).X(0).CX(0, 1).Measure(0, 0).Measure(1, 1)
		},
		want: "11",
	}}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			sim := NewSimulator(SimOpts{Seed: 1})
			counts, err := sim.Execute(context.Background(), tc.build(), 200)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counts[tc.want]; got != 200 {
				t.Errorf("counts[%q] == %d, want 200 (counts: %v)", tc.want, got, counts)
			}
		})
	}
}

func TestSimulatorBellPair(t *testing.T) {
	sim := NewSimulator(SimOpts{Seed: 7})
	c := NewCircuit(2, 2).H(0).CX(0, 1).Measure(0, 0).Measure(1, 1)
	counts, err := sim.Execute(context.Background(), c, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.Total() != 1000 {
		t.Errorf("total == %d, want 1000", counts.Total())
	}
	if n := counts["01"] + counts["10"]; n != 0 {
		t.Errorf("saw %d anti-correlated outcomes, want 0 (counts: %v)", n, counts)
	}
	if counts["00"] < 400 || counts["11"] < 400 {
		t.Errorf("expected a roughly even split, got %v", counts)
	}
}

// Teleportation exercises mid-circuit measurement, reset, and conditioned
// corrections together: the output must be deterministic even though the
// scratch bits are random.
func TestSimulatorTeleportation(t *testing.T) {
	c := NewCircuit(3, 3)
	c.X(0)
	c.H(1)
	c.CX(1, 2)
	c.CX(0, 1)
	c.H(0)
	c.Measure(0, 0)
	c.Measure(1, 1)
	c.Reset(0)
	c.Reset(1)
	c.CondX(2, 1)
	c.CondZ(2, 0)
	c.Measure(2, 2)

	sim := NewSimulator(SimOpts{Seed: 11})
	counts, err := sim.Execute(context.Background(), c, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := 0
	for key, n := range counts {
		if key[0] == '1' {
			got += n
		}
	}
	if got != 500 {
		t.Errorf("teleported |1> measured as 1 in %d/500 shots", got)
	}
}

func TestSimulatorSeededDeterminism(t *testing.T) {
	build := func() *Circuit { return NewCircuit(1, 1).H(0).Measure(0, 0) }
	a, err := NewSimulator(SimOpts{Seed: 42}).Execute(context.Background(), build(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := NewSimulator(SimOpts{Seed: 42}).Execute(context.Background(), build(), 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same seed diverged: %v vs %v", a, b)
	}
}

func TestSimulatorReadoutError(t *testing.T) {
	sim := NewSimulator(SimOpts{Seed: 3, Noise: NoiseModel{Readout: 1}})
	c := NewCircuit(1, 1).X(0).Measure(0, 0)
	counts, err := sim.Execute(context.Background(), c, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["0"] != 100 {
		t.Errorf("certain readout flip: counts == %v, want all 0", counts)
	}
}

func TestSimulatorReadoutByLayout(t *testing.T) {
	sim := NewSimulator(SimOpts{Seed: 3, Noise: NoiseModel{ReadoutByQubit: []float64{0, 1}}})
	c := NewCircuit(1, 1).X(0).Measure(0, 0)
	c.Layout = []int{1}
	counts, err := sim.Execute(context.Background(), c, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["0"] != 100 {
		t.Errorf("physical qubit 1 flips readout always: counts == %v, want all 0", counts)
	}
}

func TestSimulatorDepolarizing(t *testing.T) {
	// With certain depolarization after the X, each shot applies a
	// uniform Pauli to |1|: X and Y land in |0|, Z stays in |1|, so ones
	// should sit near a third.
	sim := NewSimulator(SimOpts{Seed: 5, Noise: NoiseModel{Depol1: 1}})
	c := NewCircuit(1, 1).X(0).Measure(0, 0)
	counts, err := sim.Execute(context.Background(), c, 3000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ones := counts["1"]
	if ones < 700 || ones > 1300 {
		t.Errorf("ones == %d want near 1000 of 3000", ones)
	}
}

func TestSimulatorRejects(t *testing.T) {
	sim := NewSimulator(SimOpts{})
	ctx := context.Background()
	if _, err := sim.Execute(ctx, nil, 10); err == nil {
		t.Errorf("nil circuit: expected error, got nil")
	}
	if _, err := sim.Execute(ctx, NewCircuit(1, 1).Measure(0, 0), 0); err == nil {
		t.Errorf("zero shots: expected error, got nil")
	}
	if _, err := sim.Execute(ctx, NewCircuit(1, 1).Measure(0, 5), 10); err == nil {
		t.Errorf("out-of-range classical bit: expected error, got nil")
	}
	if _, err := sim.Execute(ctx, NewCircuit(25, 1).Measure(0, 0), 10); !errors.Is(err, ErrCircuitTooLarge) {
		t.Errorf("oversized circuit: got %v, want ErrCircuitTooLarge", err)
	}
}

func TestSimulatorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := NewSimulator(SimOpts{Seed: 1})
	if _, err := sim.Execute(ctx, NewCircuit(1, 1).Measure(0, 0), 10); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestCircuitValidate(t *testing.T) {
	tcs := []struct {
		name    string
		build   func() *Circuit
		wantErr bool
	}{{
		name:  "well formed",
		build: func() *Circuit { return NewCircuit(2, 1).H(0).CX(0, 1).Measure(1, 0) },
	}, {
		name:    "qubit out of range",
		build:   func() *Circuit { return NewCircuit(2, 1).CX(0, 2) },
		wantErr: true,
	}, {
		name:    "negative qubit",
		build:   func() *Circuit { return NewCircuit(2, 1).H(-1) },
		wantErr: true,
	}, {
		name:    "clbit out of range",
		build:   func() *Circuit { return NewCircuit(2, 1).CondZ(0, 1) },
		wantErr: true,
	}, {
		name: "layout length mismatch",
		build: func() *Circuit {
			c := NewCircuit(2, 1).Measure(0, 0)
			c.Layout = []int{4}
			return c
		},
		wantErr: true,
	}, {
		name: "layout collision",
		build: func() *Circuit {
			c := NewCircuit(2, 1).Measure(0, 0)
			c.Layout = []int{3, 3}
			return c
		},
		wantErr: true,
	}, {
		name:    "no qubits",
		build:   func() *Circuit { return NewCircuit(0, 0) },
		wantErr: true,
	}}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build().Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
