package rpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Request and response fields. Messages are structpb.Struct so the service
// needs no generated code; these keys are the schema.
const (
	fieldCaseID    = "case_id"
	fieldName      = "name"
	fieldFrequency = "frequency"
	fieldLGR       = "lgr"
	fieldChunkSize = "chunk_size"
	fieldRegion    = "region"
	fieldValue     = "value"
	fieldOf        = "of"
	fieldOp        = "op"

	fieldOffset = "offset"
	fieldTotal  = "total"
	fieldDays   = "days"
	fieldValues = "values"
	fieldUnit   = "unit"
	fieldX      = "x"
	fieldY      = "y"
	fieldZ      = "z"
	fieldCount  = "count"
	fieldResult = "result"
)

func numberList(xs []float64) *structpb.Value {
	vals := make([]*structpb.Value, len(xs))
	for n, x := range xs {
		vals[n] = structpb.NewNumberValue(x)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: vals})
}

func stringField(m *structpb.Struct, key string) string {
	return m.GetFields()[key].GetStringValue()
}

func numberField(m *structpb.Struct, key string) float64 {
	return m.GetFields()[key].GetNumberValue()
}

func intField(m *structpb.Struct, key string) int {
	return int(numberField(m, key))
}

// numbersField reads a list of numbers. A missing key is an empty list; a
// non-numeric element is malformed.
func numbersField(m *structpb.Struct, key string) ([]float64, error) {
	items := m.GetFields()[key].GetListValue().GetValues()
	out := make([]float64, len(items))
	for n, v := range items {
		nv, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("field %s[%d] is not a number: %w", key, n, reserr.ErrMalformed)
		}
		out[n] = nv.NumberValue
	}
	return out, nil
}

func newStruct(fields map[string]*structpb.Value) *structpb.Struct {
	return &structpb.Struct{Fields: fields}
}
