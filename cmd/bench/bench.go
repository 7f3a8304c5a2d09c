// bench.go evaluates a quantum AND protocol for each entry in the cartesian
// product of a collection of tuning parameters, e.g. protocol variant, round
// count, and noise level, and outputs a CSV of decode statistics for each
// combination.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"text/template"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/qclab/qand/go/qand"
	"github.com/qclab/qand/go/qand/quantum"
)

var (
	variants = flag.StringSlice("variant", []string{"swap"},
		"The protocol variants to evaluate: swap (multi-qubit reflection) or single (single-qubit damping).")
	rounds = flag.IntSlice("rounds", []int{qand.DefaultRounds},
		"The protocol round counts to evaluate. The swap variant needs odd counts.")
	shots = flag.IntSlice("shots", []int{qand.DefaultShots},
		"The measurement shots per circuit execution.")
	reps = flag.IntSlice("reps", []int{qand.DefaultRepetitions},
		"The circuit executions per input pair; verdicts are majority votes across them.")
	spans = flag.IntSlice("span", []int{0},
		"The device spans in qubits between Alice and Bob. 0 picks the variant default.")
	folds = flag.IntSlice("fold", []int{0},
		"The protocol instances packed per circuit. Only single-qubit span-1 runs fold. 0 picks 1.")
	transports = flag.StringSlice("transport", []string{"entangle"},
		"The state transports for spans above 1: entangle or cnot.")
	backends = flag.StringSlice("backend", []string{"ideal"},
		"The execution backends: ideal, noisy, or hardware.")
	depol1 = flag.Float64Slice("depol1", []float64{0.001},
		"The depolarizing probabilities after one-qubit gates, noisy backend only.")
	depol2 = flag.Float64Slice("depol2", []float64{0.01},
		"The depolarizing probabilities after two-qubit gates, noisy backend only.")
	readout = flag.Float64Slice("readout", []float64{0.02},
		"The readout flip probabilities, noisy backend only.")

	configPath = flag.String("config", "", "Path to a YAML backend config. Swept flags override its fields.")
	records    = flag.String("records", "", "Write framed run records to this file.")
	workers    = flag.Int("workers", qand.DefaultWorkers, "Maximum concurrent circuit executions.")
	seed       = flag.Int64("seed", 1234, "Simulator RNG seed.")
	timeout    = flag.Duration("timeout", 0, "Wall-clock bound per experiment. 0 means unbounded.")
	targetErr  = flag.Float64("targetError", 0, "If positive, annotate rows with the cost estimate for this error rate.")
	verbose    = flag.BoolP("verbose", "v", false, "Log evaluation progress to stderr.")
)

var (
	inputs = []string{"variant", "rounds", "shots", "reps", "span", "fold",
		"transport", "backend", "depol1", "depol2", "readout"}
	columns = []string{"Variant", "Rounds", "Shots", "Reps", "Span", "Fold",
		"Transport", "Backend", "Depol1", "Depol2", "Readout", "SuccessRate",
		"ShotRate", "Rate00", "Rate01", "Rate10", "Rate11", "EstRounds",
		"EstQubits", "EstInfoBits", "Succeeded"}
)

// An Experiment packages together the result of evaluating a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Variant   string
	Rounds    int
	Shots     int
	Reps      int
	Span      int
	Fold      int
	Transport string
	Backend   string
	Depol1    float64
	Depol2    float64
	Readout   float64

	// Fields corresponding to experiment results
	SuccessRate float64
	ShotRate    float64
	Rate00      float64
	Rate01      float64
	Rate10      float64
	Rate11      float64
	EstRounds   int
	EstQubits   int
	EstInfoBits float64
	Succeeded   bool
}

func main() {
	flag.Parse()
	zlog := zap.NewNop()
	if *verbose {
		var err error
		if zlog, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Building logger: %v", err)
		}
	}
	base, err := quantum.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Loading config: %v", err)
	}
	var recW *qand.RecordWriter
	if *records != "" {
		f, err := os.Create(*records)
		if err != nil {
			log.Fatalf("Creating records file: %v", err)
		}
		defer f.Close()
		recW = qand.NewRecordWriter(f)
	}

	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Variant:   args[inpIndex("variant")].(string),
			Rounds:    args[inpIndex("rounds")].(int),
			Shots:     args[inpIndex("shots")].(int),
			Reps:      args[inpIndex("reps")].(int),
			Span:      args[inpIndex("span")].(int),
			Fold:      args[inpIndex("fold")].(int),
			Transport: args[inpIndex("transport")].(string),
			Backend:   args[inpIndex("backend")].(string),
			Depol1:    args[inpIndex("depol1")].(float64),
			Depol2:    args[inpIndex("depol2")].(float64),
			Readout:   args[inpIndex("readout")].(float64),
		}
		if err := bench(exp, base, zlog, recW); err != nil {
			log.Printf("Benching %v: %v", exp, err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

func bench(exp *Experiment, base *quantum.Config, zlog *zap.Logger, recW *qand.RecordWriter) error {
	variant, err := qand.ParseVariant(exp.Variant)
	if err != nil {
		return err
	}
	transport, err := qand.ParseTransport(exp.Transport)
	if err != nil {
		return err
	}

	cfg := *base
	cfg.Backend = exp.Backend
	cfg.Seed = *seed
	if exp.Backend == quantum.BackendNoisy {
		cfg.Noise = quantum.NoiseModel{Depol1: exp.Depol1, Depol2: exp.Depol2, Readout: exp.Readout}
	}
	// Without provider credentials, back the hardware path with an in-process
	// queue so the submission machinery still gets exercised.
	var client quantum.JobClient
	if exp.Backend == quantum.BackendHardware && cfg.Token == "" {
		client = quantum.NewLocalClient(quantum.NewSimulator(quantum.SimOpts{
			MaxQubits: cfg.MaxQubits,
			Seed:      *seed,
			Noise:     cfg.Noise,
		}))
		zlog.Info("no provider token; hardware jobs run on the local queue")
	}
	ex, err := quantum.New(&cfg, client, zlog)
	if err != nil {
		return err
	}

	params := qand.Params{
		Rounds:    exp.Rounds,
		Span:      exp.Span,
		Transport: transport,
		Fold:      exp.Fold,
	}.WithDefaults(variant)
	exp.Span = params.Span
	exp.Fold = params.Fold
	ev, err := qand.NewEvaluator(qand.Opts{
		Executor:    ex,
		Variant:     variant,
		Params:      params,
		Shots:       exp.Shots,
		Repetitions: exp.Reps,
		Workers:     *workers,
		Logger:      zlog,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}
	start := time.Now()
	stats, err := ev.Run(ctx)
	if err != nil {
		return err
	}
	zlog.Debug("experiment finished", zap.Duration("elapsed", time.Since(start)))

	exp.SuccessRate, _ = stats.SuccessRate()
	exp.ShotRate, _ = stats.ShotRate()
	exp.Rate00, _ = stats.PairRate(qand.InputPair{A: 0, B: 0})
	exp.Rate01, _ = stats.PairRate(qand.InputPair{A: 0, B: 1})
	exp.Rate10, _ = stats.PairRate(qand.InputPair{A: 1, B: 0})
	exp.Rate11, _ = stats.PairRate(qand.InputPair{A: 1, B: 1})
	exp.Succeeded = true

	if *targetErr > 0 {
		est, err := qand.Estimate(variant, *targetErr)
		if err != nil {
			return err
		}
		exp.EstRounds = est.Rounds
		exp.EstQubits = est.Qubits
		exp.EstInfoBits = est.InfoBits
		if recW != nil {
			if err := recW.WriteCost(qand.NewCostRecord(est)); err != nil {
				return err
			}
		}
	}
	if recW != nil {
		if err := recW.WriteRun(ev.Record(stats, exp.Backend)); err != nil {
			return err
		}
	}
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetStringSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
