package qand

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/qclab/qand/go/qand/quantum"
)

func sampleRunRecord() RunRecord {
	r := RunRecord{
		RunID:          "b2f1a6de-8c7e-4f7d-9f4e-0123456789ab",
		Variant:        "multiqubit_swap",
		Backend:        "noisy",
		Rounds:         3,
		Shots:          1000,
		Repetitions:    3,
		Span:           4,
		Transport:      "entangle",
		Fold:           1,
		SuccessRate:    0.75,
		SuccessDefined: true,
		UnixTime:       1724600000,
	}
	r.Stats.Cells[0][0] = PairStats{Evaluated: 3, Correct: 3, CorrectShots: 2990, TotalShots: 3000}
	r.Stats.Cells[1][1] = PairStats{Evaluated: 3, Correct: 2, Incorrect: 1, CorrectShots: 2100, TotalShots: 3000}
	return r
}

func TestRecordStreamRoundTrip(t *testing.T) {
	run := sampleRunRecord()
	cost := CostRecord{
		Variant:     "single_qubit",
		TargetError: 0.01,
		Rounds:      62,
		Qubits:      124,
		InfoBits:    0.08,
		ErrorBound:  0.0099,
	}

	var buf bytes.Buffer
	w := NewRecordWriter(&buf)
	if err := w.WriteRun(&run); err != nil {
		t.Fatalf("write run: %v", err)
	}
	if err := w.WriteCost(&cost); err != nil {
		t.Fatalf("write cost: %v", err)
	}
	if err := w.WriteRun(&run); err != nil {
		t.Fatalf("write run: %v", err)
	}

	r := NewRecordReader(&buf)
	rec, err := r.Read()
	if err != nil {
		t.Fatalf("read 1: %v", err)
	}
	if rec.Run == nil || rec.Cost != nil {
		t.Fatalf("read 1: want a run record, got %+v", rec)
	}
	if !reflect.DeepEqual(*rec.Run, run) {
		t.Errorf("run roundtrip:\n got %+v\nwant %+v", *rec.Run, run)
	}

	rec, err = r.Read()
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}
	if rec.Cost == nil || rec.Run != nil {
		t.Fatalf("read 2: want a cost record, got %+v", rec)
	}
	if !reflect.DeepEqual(*rec.Cost, cost) {
		t.Errorf("cost roundtrip:\n got %+v\nwant %+v", *rec.Cost, cost)
	}

	if _, err := r.Read(); err != nil {
		t.Fatalf("read 3: %v", err)
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("end of stream: got %v, want io.EOF", err)
	}
}

func TestRecordZeroValuesSurvive(t *testing.T) {
	// Empty cells and unset optionals are skipped on the wire and must
	// come back as zero values, even for a run that decoded nothing.
	run := RunRecord{Variant: "single_qubit", UnixTime: 1}
	var buf bytes.Buffer
	if err := NewRecordWriter(&buf).WriteRun(&run); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := NewRecordReader(&buf).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(*rec.Run, run) {
		t.Errorf("roundtrip:\n got %+v\nwant %+v", *rec.Run, run)
	}
	if rec.Run.SuccessDefined {
		t.Errorf("SuccessDefined == true, want false")
	}
}

func TestRecordReaderSkipsUnknownFields(t *testing.T) {
	run := sampleRunRecord()
	body := run.marshal()
	body = protowire.AppendTag(body, 99, protowire.VarintType)
	body = protowire.AppendVarint(body, 7)
	var env []byte
	env = protowire.AppendTag(env, 1, protowire.BytesType)
	env = protowire.AppendBytes(env, body)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int32(len(env))); err != nil {
		t.Fatalf("framing: %v", err)
	}
	buf.Write(env)

	rec, err := NewRecordReader(&buf).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(*rec.Run, run) {
		t.Errorf("unknown field disturbed the record:\n got %+v\nwant %+v", *rec.Run, run)
	}
}

func TestRecordReaderRejectsBadFrames(t *testing.T) {
	tcs := []struct {
		name  string
		bytes func() []byte
	}{{
		name: "negative length",
		bytes: func() []byte {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, int32(-5))
			return buf.Bytes()
		},
	}, {
		name: "oversized length",
		bytes: func() []byte {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, int32(1<<27))
			return buf.Bytes()
		},
	}, {
		name: "empty envelope",
		bytes: func() []byte {
			var buf bytes.Buffer
			binary.Write(&buf, binary.LittleEndian, int32(0))
			return buf.Bytes()
		},
	}}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRecordReader(bytes.NewReader(tc.bytes()))
			if _, err := r.Read(); err == nil || errors.Is(err, io.EOF) {
				t.Errorf("got %v, want a frame error", err)
			}
		})
	}
}

func TestRecordReaderTruncatedStream(t *testing.T) {
	run := sampleRunRecord()
	var buf bytes.Buffer
	if err := NewRecordWriter(&buf).WriteRun(&run); err != nil {
		t.Fatalf("write: %v", err)
	}
	full := buf.Bytes()

	r := NewRecordReader(bytes.NewReader(full[:len(full)-3]))
	if _, err := r.Read(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated body: got %v, want io.ErrUnexpectedEOF", err)
	}

	r = NewRecordReader(bytes.NewReader(full[:2]))
	if _, err := r.Read(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated length: got %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestEvaluatorRecord(t *testing.T) {
	ev, err := NewEvaluator(Opts{
		Executor:    quantum.NewSimulator(quantum.SimOpts{Seed: 3}),
		Variant:     SingleQubit,
		Params:      Params{Rounds: 2, Span: 1},
		Shots:       100,
		Repetitions: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, err := ev.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := ev.Record(stats, "ideal")
	if rec.RunID == "" {
		t.Errorf("RunID is empty")
	}
	if rec.Variant != "single_qubit" {
		t.Errorf("Variant == %q, want single_qubit", rec.Variant)
	}
	if rec.Backend != "ideal" {
		t.Errorf("Backend == %q, want ideal", rec.Backend)
	}
	if rec.Rounds != 2 || rec.Shots != 100 || rec.Repetitions != 2 || rec.Span != 1 || rec.Fold != 1 {
		t.Errorf("shape fields == %d/%d/%d/%d/%d, want 2/100/2/1/1",
			rec.Rounds, rec.Shots, rec.Repetitions, rec.Span, rec.Fold)
	}
	if !rec.SuccessDefined || rec.SuccessRate != 1 {
		t.Errorf("success == %v/%v, want 1/true", rec.SuccessRate, rec.SuccessDefined)
	}
	if rec.UnixTime <= 0 {
		t.Errorf("UnixTime == %d, want > 0", rec.UnixTime)
	}
	if other := ev.Record(stats, "ideal"); other.RunID == rec.RunID {
		t.Errorf("two records share run id %s", rec.RunID)
	}

	var buf bytes.Buffer
	if err := NewRecordWriter(&buf).WriteRun(rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewRecordReader(&buf).Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(*got.Run, *rec) {
		t.Errorf("roundtrip:\n got %+v\nwant %+v", *got.Run, *rec)
	}
}

func TestNewCostRecord(t *testing.T) {
	est, err := Estimate(MultiQubitSwap, 0.05)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := NewCostRecord(est)
	if rec.Variant != "multiqubit_swap" {
		t.Errorf("Variant == %q, want multiqubit_swap", rec.Variant)
	}
	if rec.Rounds != est.Rounds || rec.Qubits != est.Qubits {
		t.Errorf("rounds/qubits == %d/%d, want %d/%d", rec.Rounds, rec.Qubits, est.Rounds, est.Qubits)
	}
	if rec.TargetError != 0.05 || rec.ErrorBound != est.ErrorBound || rec.InfoBits != est.InfoBits {
		t.Errorf("float fields did not copy: %+v vs %+v", rec, est)
	}
}
