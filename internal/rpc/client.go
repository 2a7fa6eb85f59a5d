package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/selection"
	"github.com/banshee-data/reservoir/internal/summary"
)

// Client calls reservoir.v1.CaseService and reassembles streamed chunks.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GridDims is the answer to Dimensions.
type GridDims struct {
	Name        string
	Dims        grid.Dims
	CellCount   int
	ActiveCount int
	LGRs        []GridDims
}

func parseDims(m *structpb.Struct) GridDims {
	d := GridDims{
		Name:        stringField(m, fieldName),
		Dims:        grid.Dims{NX: intField(m, "nx"), NY: intField(m, "ny"), NZ: intField(m, "nz")},
		CellCount:   intField(m, "cell_count"),
		ActiveCount: intField(m, "active_count"),
	}
	for _, v := range m.GetFields()["lgrs"].GetListValue().GetValues() {
		d.LGRs = append(d.LGRs, parseDims(v.GetStructValue()))
	}
	return d
}

// Dimensions describes the main grid of a case, or the named LGR.
func (c *Client) Dimensions(ctx context.Context, caseID, lgr string) (GridDims, error) {
	req := newStruct(map[string]*structpb.Value{
		fieldCaseID: structpb.NewStringValue(caseID),
		fieldLGR:    structpb.NewStringValue(lgr),
	})
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Dimensions", req, out); err != nil {
		return GridDims{}, fromStatus(err)
	}
	return parseDims(out), nil
}

// RegionAggregate reduces property of over the cells where region == value.
func (c *Client) RegionAggregate(ctx context.Context, caseID, region string, value float64, of string, op selection.Op) (count int, result float64, err error) {
	req := newStruct(map[string]*structpb.Value{
		fieldCaseID: structpb.NewStringValue(caseID),
		fieldRegion: structpb.NewStringValue(region),
		fieldValue:  structpb.NewNumberValue(value),
		fieldOf:     structpb.NewStringValue(of),
		fieldOp:     structpb.NewStringValue(op.String()),
	})
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/RegionAggregate", req, out); err != nil {
		return 0, 0, fromStatus(err)
	}
	return intField(out, fieldCount), numberField(out, fieldResult), nil
}

// recvAll opens a server stream and hands every chunk to fn in order.
func (c *Client) recvAll(ctx context.Context, desc *grpc.StreamDesc, req *structpb.Struct, fn func(*structpb.Struct) error) error {
	// Cancelling on return releases the stream when fn stops early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cs, err := c.cc.NewStream(ctx, desc, "/"+serviceName+"/"+desc.StreamName)
	if err != nil {
		return fromStatus(err)
	}
	s := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := s.Send(req); err != nil {
		return fromStatus(err)
	}
	if err := s.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		msg, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fromStatus(err)
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// checkOffset verifies a chunk continues where the last one ended.
func checkOffset(m *structpb.Struct, have int) error {
	if off := intField(m, fieldOffset); off != have {
		return fmt.Errorf("chunk at offset %d, expected %d: %w", off, have, reserr.ErrMalformed)
	}
	return nil
}

// Vector streams one vector resampled at freq. chunkSize <= 0 uses the
// server default.
func (c *Client) Vector(ctx context.Context, caseID, name string, freq summary.Frequency, chunkSize int) (summary.Series, string, error) {
	req := newStruct(map[string]*structpb.Value{
		fieldCaseID:    structpb.NewStringValue(caseID),
		fieldName:      structpb.NewStringValue(name),
		fieldFrequency: structpb.NewStringValue(freq.String()),
		fieldChunkSize: structpb.NewNumberValue(float64(chunkSize)),
	})
	var series summary.Series
	var unit string
	err := c.recvAll(ctx, &serviceDesc.Streams[0], req, func(m *structpb.Struct) error {
		if err := checkOffset(m, series.Len()); err != nil {
			return err
		}
		if series.Len() == 0 {
			unit = stringField(m, fieldUnit)
		}
		days, err := numbersField(m, fieldDays)
		if err != nil {
			return err
		}
		values, err := numbersField(m, fieldValues)
		if err != nil {
			return err
		}
		if len(days) != len(values) {
			return fmt.Errorf("chunk with %d days and %d values: %w", len(days), len(values), reserr.ErrLengthMismatch)
		}
		series.Days = append(series.Days, days...)
		series.Values = append(series.Values, values...)
		return nil
	})
	return series, unit, err
}

// CellCenters streams the center of every active cell of the main grid, or
// of the named LGR, in active order.
func (c *Client) CellCenters(ctx context.Context, caseID, lgr string, chunkSize int) ([]grid.Point3D, error) {
	req := newStruct(map[string]*structpb.Value{
		fieldCaseID:    structpb.NewStringValue(caseID),
		fieldLGR:       structpb.NewStringValue(lgr),
		fieldChunkSize: structpb.NewNumberValue(float64(chunkSize)),
	})
	var out []grid.Point3D
	err := c.recvAll(ctx, &serviceDesc.Streams[1], req, func(m *structpb.Struct) error {
		if err := checkOffset(m, len(out)); err != nil {
			return err
		}
		var xyz [3][]float64
		for n, key := range []string{fieldX, fieldY, fieldZ} {
			vals, err := numbersField(m, key)
			if err != nil {
				return err
			}
			xyz[n] = vals
		}
		if len(xyz[1]) != len(xyz[0]) || len(xyz[2]) != len(xyz[0]) {
			return fmt.Errorf("ragged center chunk: %w", reserr.ErrLengthMismatch)
		}
		for n := range xyz[0] {
			out = append(out, grid.Point3D{X: xyz[0][n], Y: xyz[1][n], Z: xyz[2][n]})
		}
		return nil
	})
	return out, err
}

// StatusError is a failed call. It unwraps to the reserr kind the server
// attached, if any.
type StatusError struct {
	Status *status.Status
	kind   error
}

func (e *StatusError) Error() string {
	return e.Status.Code().String() + ": " + e.Status.Message()
}

func (e *StatusError) Unwrap() error { return e.kind }

// GRPCStatus lets status.FromError and status.Code see through the wrapper.
func (e *StatusError) GRPCStatus() *status.Status { return e.Status }

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	out := &StatusError{Status: st}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			out.kind = reserr.FromText(info.GetReason())
		}
	}
	return out
}
