package reporting

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/hxse/pyo3-quant-sub000/internal/domain"
)

// Arrow schema metadata keys.
const (
	ArrowMetaRunID    = "run_id"
	ArrowMetaOptional = "optional_columns"
)

// ErrArrowSchema is returned when an IPC stream does not look like a ledger.
var ErrArrowSchema = errors.New("arrow stream is not a ledger")

func arrowType(col string) arrow.DataType {
	switch col {
	case domain.ColCurrentPosition, domain.ColRiskInBarDir:
		return arrow.PrimitiveTypes.Int8
	case domain.ColFrameState:
		return arrow.PrimitiveTypes.Uint8
	case domain.ColHasLeadingNaN, domain.ColPause:
		return arrow.FixedWidthTypes.Boolean
	}
	return arrow.PrimitiveTypes.Float64
}

// LedgerSchema returns the Arrow schema of lg. NaN float cells are stored as nulls.
func LedgerSchema(lg *domain.Ledger, runID string) *arrow.Schema {
	cols := lg.Columns()
	fields := make([]arrow.Field, 0, len(cols)+1)
	fields = append(fields, arrow.Field{Name: "bar", Type: arrow.PrimitiveTypes.Int64})
	for _, c := range cols {
		t := arrowType(c)
		fields = append(fields, arrow.Field{Name: c, Type: t, Nullable: t == arrow.PrimitiveTypes.Float64})
	}
	md := arrow.NewMetadata(
		[]string{ArrowMetaRunID, ArrowMetaOptional},
		[]string{runID, strings.Join(lg.Optional, ",")},
	)
	return arrow.NewSchema(fields, &md)
}

// WriteLedgerArrow writes lg as a single-batch Arrow IPC stream.
func WriteLedgerArrow(w io.Writer, lg *domain.Ledger, runID string) error {
	mem := memory.NewGoAllocator()
	schema := LedgerSchema(lg, runID)
	n := lg.Len()

	arrays := make([]arrow.Array, 0, len(schema.Fields()))
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	barBuilder := array.NewInt64Builder(mem)
	for i := 0; i < n; i++ {
		barBuilder.Append(int64(i))
	}
	arrays = append(arrays, barBuilder.NewArray())
	barBuilder.Release()

	for _, f := range schema.Fields()[1:] {
		values, _ := lg.Float(f.Name)
		arrays = append(arrays, buildColumn(mem, f.Type, values))
	}

	record := array.NewRecord(schema, arrays, int64(n))
	defer record.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return writer.Close()
}

func buildColumn(mem memory.Allocator, t arrow.DataType, values []float64) arrow.Array {
	switch t {
	case arrow.PrimitiveTypes.Int8:
		b := array.NewInt8Builder(mem)
		defer b.Release()
		for _, v := range values {
			b.Append(int8(v))
		}
		return b.NewArray()
	case arrow.PrimitiveTypes.Uint8:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		for _, v := range values {
			b.Append(uint8(v))
		}
		return b.NewArray()
	case arrow.FixedWidthTypes.Boolean:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		for _, v := range values {
			b.Append(v != 0)
		}
		return b.NewArray()
	}
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	for _, v := range values {
		if math.IsNaN(v) {
			b.AppendNull()
			continue
		}
		b.Append(v)
	}
	return b.NewArray()
}

// ReadLedgerArrow reads a ledger written by WriteLedgerArrow and returns it
// with the run ID from the schema metadata.
func ReadLedgerArrow(r io.Reader) (*domain.Ledger, string, error) {
	mem := memory.NewGoAllocator()
	rdr, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, "", fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()

	schema := rdr.Schema()
	if len(schema.Fields()) == 0 || schema.Field(0).Name != "bar" {
		return nil, "", ErrArrowSchema
	}
	md := schema.Metadata()
	runID := metaValue(md, ArrowMetaRunID)

	names := make([]string, 0, len(schema.Fields())-1)
	for _, f := range schema.Fields()[1:] {
		names = append(names, f.Name)
	}
	data := make([][]float64, len(names))

	for rdr.Next() {
		rec := rdr.Record()
		for c := range names {
			data[c] = appendColumn(data[c], rec.Column(c+1))
		}
	}
	if err := rdr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, "", fmt.Errorf("read arrow stream: %w", err)
	}

	n := 0
	if len(data) > 0 {
		n = len(data[0])
	}
	lg := &domain.Ledger{Rows: make([]domain.LedgerRow, n)}
	for i := range lg.Rows {
		lg.Rows[i] = domain.NewLedgerRow()
	}
	if opt := metaValue(md, ArrowMetaOptional); opt != "" {
		for _, c := range strings.Split(opt, ",") {
			if domain.IsOptionalColumn(c) {
				lg.Optional = append(lg.Optional, c)
			}
		}
	}
	for c, name := range names {
		if !lg.SetFloat(name, data[c]) {
			return nil, "", fmt.Errorf("%w: column %q", ErrArrowSchema, name)
		}
	}
	return lg, runID, nil
}

func appendColumn(dst []float64, col arrow.Array) []float64 {
	switch a := col.(type) {
	case *array.Int8:
		for i := 0; i < a.Len(); i++ {
			dst = append(dst, float64(a.Value(i)))
		}
	case *array.Uint8:
		for i := 0; i < a.Len(); i++ {
			dst = append(dst, float64(a.Value(i)))
		}
	case *array.Boolean:
		for i := 0; i < a.Len(); i++ {
			if a.Value(i) {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}
	case *array.Float64:
		for i := 0; i < a.Len(); i++ {
			if a.IsNull(i) {
				dst = append(dst, math.NaN())
				continue
			}
			dst = append(dst, a.Value(i))
		}
	}
	return dst
}

func metaValue(md arrow.Metadata, key string) string {
	if idx := md.FindKey(key); idx >= 0 {
		return md.Values()[idx]
	}
	return ""
}
