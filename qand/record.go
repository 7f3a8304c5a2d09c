package qand

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Record streams hold framed Record envelopes from records.proto:
// frame-length | record. Encoding goes directly through protowire so the
// build needs no protoc step; the .proto file is the schema of reference for
// other toolchains reading the same streams.

// A RunRecord snapshots one full evaluation for offline analysis.
type RunRecord struct {
	RunID          string
	Variant        string
	Backend        string
	Rounds         int
	Shots          int
	Repetitions    int
	Span           int
	Transport      string
	Fold           int
	Stats          RunStatistics
	SuccessRate    float64
	SuccessDefined bool
	UnixTime       int64
}

// Record snapshots an evaluation run by e into a RunRecord with a fresh run
// id. backend names the executor configuration the run used.
func (e *Evaluator) Record(stats RunStatistics, backend string) *RunRecord {
	rate, ok := stats.SuccessRate()
	return &RunRecord{
		RunID:          uuid.NewString(),
		Variant:        e.variant.String(),
		Backend:        backend,
		Rounds:         e.params.Rounds,
		Shots:          e.shots,
		Repetitions:    e.reps,
		Span:           e.params.Span,
		Transport:      e.params.Transport.String(),
		Fold:           e.params.Fold,
		Stats:          stats,
		SuccessRate:    rate,
		SuccessDefined: ok,
		UnixTime:       time.Now().Unix(),
	}
}

// A CostRecord snapshots one cost estimate.
type CostRecord struct {
	Variant     string
	TargetError float64
	Rounds      int
	Qubits      int
	InfoBits    float64
	ErrorBound  float64
}

// NewCostRecord converts an estimate into its record form.
func NewCostRecord(est CostEstimate) *CostRecord {
	return &CostRecord{
		Variant:     est.Variant.String(),
		TargetError: est.TargetError,
		Rounds:      est.Rounds,
		Qubits:      est.Qubits,
		InfoBits:    est.InfoBits,
		ErrorBound:  est.ErrorBound,
	}
}

// A Record is one envelope from a record stream. Exactly one field is
// non-nil.
type Record struct {
	Run  *RunRecord
	Cost *CostRecord
}

// A RecordWriter writes framed records to a stream. The frame is trivial:
// record-length | record.
type RecordWriter struct {
	w io.Writer
}

// NewRecordWriter returns a RecordWriter writing to w.
func NewRecordWriter(w io.Writer) *RecordWriter { return &RecordWriter{w: w} }

// WriteRun frames and writes one run record.
func (rw *RecordWriter) WriteRun(r *RunRecord) error {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.marshal())
	return rw.frame(b)
}

// WriteCost frames and writes one cost record.
func (rw *RecordWriter) WriteCost(r *CostRecord) error {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, r.marshal())
	return rw.frame(b)
}

func (rw *RecordWriter) frame(b []byte) error {
	if err := binary.Write(rw.w, binary.LittleEndian, int32(len(b))); err != nil {
		return err
	}
	_, err := rw.w.Write(b)
	return err
}

// A RecordReader reads framed records from a stream. Read returns io.EOF at
// a clean end of stream.
type RecordReader struct {
	r io.Reader
}

// NewRecordReader returns a RecordReader reading from r.
func NewRecordReader(r io.Reader) *RecordReader { return &RecordReader{r: r} }

// maxFrame bounds a single record so corrupt streams cannot ask for
// gigabytes.
const maxFrame = 1 << 26

// Read returns the next record on the stream.
func (rr *RecordReader) Read() (Record, error) {
	var n int32
	if err := binary.Read(rr.r, binary.LittleEndian, &n); err != nil {
		return Record{}, err
	}
	if n < 0 || n > maxFrame {
		return Record{}, fmt.Errorf("record frame length %d out of range", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(rr.r, data); err != nil {
		return Record{}, err
	}

	var rec Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Record{}, protowire.ParseError(n)
		}
		data = data[n:]
		if typ != protowire.BytesType {
			return Record{}, fmt.Errorf("record field %d has wire type %d", num, typ)
		}
		body, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return Record{}, protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			rec.Run = new(RunRecord)
			if err := rec.Run.unmarshal(body); err != nil {
				return Record{}, err
			}
		case 2:
			rec.Cost = new(CostRecord)
			if err := rec.Cost.unmarshal(body); err != nil {
				return Record{}, err
			}
		}
	}
	if rec.Run == nil && rec.Cost == nil {
		return Record{}, fmt.Errorf("empty record envelope")
	}
	return rec, nil
}

func (r *RunRecord) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.RunID)
	b = appendString(b, 2, r.Variant)
	b = appendString(b, 3, r.Backend)
	b = appendUint(b, 4, uint64(r.Rounds))
	b = appendUint(b, 5, uint64(r.Shots))
	b = appendUint(b, 6, uint64(r.Repetitions))
	b = appendUint(b, 7, uint64(r.Span))
	b = appendString(b, 8, r.Transport)
	b = appendUint(b, 9, uint64(r.Fold))
	for a := 0; a < 2; a++ {
		for bb := 0; bb < 2; bb++ {
			cell := r.Stats.Cells[a][bb]
			if cell == (PairStats{}) {
				continue
			}
			b = protowire.AppendTag(b, 10, protowire.BytesType)
			b = protowire.AppendBytes(b, marshalCell(a, bb, cell))
		}
	}
	b = appendDouble(b, 11, r.SuccessRate)
	if r.SuccessDefined {
		b = appendUint(b, 12, 1)
	}
	b = protowire.AppendTag(b, 13, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.UnixTime))
	return b
}

func (r *RunRecord) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num <= 3 || num == 8:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			switch num {
			case 1:
				r.RunID = s
			case 2:
				r.Variant = s
			case 3:
				r.Backend = s
			case 8:
				r.Transport = s
			}
		case num >= 4 && num <= 7 || num == 9 || num == 12 || num == 13:
			v, n, err := consumeUint(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			switch num {
			case 4:
				r.Rounds = int(v)
			case 5:
				r.Shots = int(v)
			case 6:
				r.Repetitions = int(v)
			case 7:
				r.Span = int(v)
			case 9:
				r.Fold = int(v)
			case 12:
				r.SuccessDefined = v != 0
			case 13:
				r.UnixTime = int64(v)
			}
		case num == 10:
			body, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			if err := unmarshalCell(body, &r.Stats); err != nil {
				return err
			}
		case num == 11:
			v, n, err := consumeDouble(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			r.SuccessRate = v
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func marshalCell(a, b int, cell PairStats) []byte {
	var buf []byte
	buf = appendUint(buf, 1, uint64(a))
	buf = appendUint(buf, 2, uint64(b))
	buf = appendUint(buf, 3, uint64(cell.Evaluated))
	buf = appendUint(buf, 4, uint64(cell.Correct))
	buf = appendUint(buf, 5, uint64(cell.Incorrect))
	buf = appendUint(buf, 6, uint64(cell.CorrectShots))
	buf = appendUint(buf, 7, uint64(cell.TotalShots))
	return buf
}

func unmarshalCell(data []byte, stats *RunStatistics) error {
	var a, b uint64
	var cell PairStats
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		v, vn, err := consumeUint(data, typ)
		if err != nil {
			return err
		}
		data = data[vn:]
		switch num {
		case 1:
			a = v
		case 2:
			b = v
		case 3:
			cell.Evaluated = int(v)
		case 4:
			cell.Correct = int(v)
		case 5:
			cell.Incorrect = int(v)
		case 6:
			cell.CorrectShots = int(v)
		case 7:
			cell.TotalShots = int(v)
		}
	}
	if a > 1 || b > 1 {
		return fmt.Errorf("pair cell (%d,%d) is not binary", a, b)
	}
	stats.Cells[a][b] = cell
	return nil
}

func (r *CostRecord) marshal() []byte {
	var b []byte
	b = appendString(b, 1, r.Variant)
	b = appendDouble(b, 2, r.TargetError)
	b = appendUint(b, 3, uint64(r.Rounds))
	b = appendUint(b, 4, uint64(r.Qubits))
	b = appendDouble(b, 5, r.InfoBits)
	b = appendDouble(b, 6, r.ErrorBound)
	return b
}

func (r *CostRecord) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch num {
		case 1:
			s, n, err := consumeString(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			r.Variant = s
		case 3, 4:
			v, n, err := consumeUint(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			if num == 3 {
				r.Rounds = int(v)
			} else {
				r.Qubits = int(v)
			}
		case 2, 5, 6:
			v, n, err := consumeDouble(data, typ)
			if err != nil {
				return err
			}
			data = data[n:]
			switch num {
			case 2:
				r.TargetError = v
			case 5:
				r.InfoBits = v
			case 6:
				r.ErrorBound = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("string field has wire type %d", typ)
	}
	body, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return string(body), n, nil
}

func consumeUint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("varint field has wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeDouble(data []byte, typ protowire.Type) (float64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, fmt.Errorf("double field has wire type %d", typ)
	}
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return math.Float64frombits(v), n, nil
}
