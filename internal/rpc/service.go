// Package rpc exposes cases over gRPC. Large arrays (summary vectors, cell
// centers) are server-streamed in fixed-size chunks so that neither side
// needs to raise the message size limit.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/selection"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/stream"
	"github.com/banshee-data/reservoir/internal/summary"
	"github.com/banshee-data/reservoir/internal/timeutil"
)

const (
	serviceName = "reservoir.v1.CaseService"
	errorDomain = "reservoir"
)

// CaseServiceServer is the server API of reservoir.v1.CaseService.
type CaseServiceServer interface {
	Dimensions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RegionAggregate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StreamVector(req *structpb.Struct, out grpc.ServerStreamingServer[structpb.Struct]) error
	StreamCellCenters(req *structpb.Struct, out grpc.ServerStreamingServer[structpb.Struct]) error
}

// Ensure Server implements the gRPC interface.
var _ CaseServiceServer = (*Server)(nil)

func unaryHandler(method string, call func(CaseServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CaseServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(CaseServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamHandler(call func(CaseServiceServer, *structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error) grpc.StreamHandler {
	return func(srv interface{}, ss grpc.ServerStream) error {
		in := new(structpb.Struct)
		if err := ss.RecvMsg(in); err != nil {
			return err
		}
		return call(srv.(CaseServiceServer), in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: ss})
	}
}

// serviceDesc is written by hand in place of protoc output.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CaseServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dimensions", Handler: unaryHandler("Dimensions", CaseServiceServer.Dimensions)},
		{MethodName: "RegionAggregate", Handler: unaryHandler("RegionAggregate", CaseServiceServer.RegionAggregate)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamVector", Handler: streamHandler(CaseServiceServer.StreamVector), ServerStreams: true},
		{StreamName: "StreamCellCenters", Handler: streamHandler(CaseServiceServer.StreamCellCenters), ServerStreams: true},
	},
	Metadata: "reservoir/v1/case_service.proto",
}

// RegisterService registers the case service with the gRPC server.
func RegisterService(gs grpc.ServiceRegistrar, s CaseServiceServer) {
	gs.RegisterService(&serviceDesc, s)
}

// Server implements reservoir.v1.CaseService over a case resolver.
type Server struct {
	cases     *simcase.Resolver
	chunkSize int
	frequency summary.Frequency
}

// NewServer creates a server. chunkSize is the default stream chunk length
// and freq the default resampling frequency; requests may override both.
// A requested chunk_size is capped at maxChunkFactor times the default.
func NewServer(cases *simcase.Resolver, chunkSize int, freq summary.Frequency) *Server {
	return &Server{cases: cases, chunkSize: chunkSize, frequency: freq}
}

// maxChunkFactor bounds client chunk sizes relative to the server default.
const maxChunkFactor = 4

func (s *Server) chunk(req *structpb.Struct) int {
	base := s.chunkSize
	if base <= 0 {
		base = stream.DefaultChunkSize
	}
	n := intField(req, fieldChunkSize)
	if n <= 0 {
		return base
	}
	return min(n, base*maxChunkFactor)
}

func (s *Server) resolve(ctx context.Context, req *structpb.Struct) (*simcase.Case, error) {
	id := stringField(req, fieldCaseID)
	if id == "" {
		return nil, fmt.Errorf("missing %s: %w", fieldCaseID, reserr.ErrMalformed)
	}
	return s.cases.Case(ctx, id)
}

func (s *Server) gridFor(ctx context.Context, req *structpb.Struct) (*simcase.Case, *grid.Grid, error) {
	c, err := s.resolve(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	g, err := c.GridFor(simcase.PropertyKey{Grid: stringField(req, fieldLGR)})
	if err != nil {
		return nil, nil, err
	}
	return c, g, nil
}

func dimensionFields(g *grid.Grid) map[string]*structpb.Value {
	d := g.Dimensions()
	return map[string]*structpb.Value{
		fieldName:      structpb.NewStringValue(g.Name()),
		"nx":           structpb.NewNumberValue(float64(d.NX)),
		"ny":           structpb.NewNumberValue(float64(d.NY)),
		"nz":           structpb.NewNumberValue(float64(d.NZ)),
		"cell_count":   structpb.NewNumberValue(float64(g.CellCount())),
		"active_count": structpb.NewNumberValue(float64(g.ActiveCount())),
	}
}

// Dimensions describes the main grid (or ?lgr) and lists its LGRs.
func (s *Server) Dimensions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	_, g, err := s.gridFor(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	fields := dimensionFields(g)
	lgrs := make([]*structpb.Value, 0, g.SubGridCount())
	for n := range g.SubGridCount() {
		sub, err := g.SubGrid(n)
		if err != nil {
			return nil, toStatus(err)
		}
		lgrs = append(lgrs, structpb.NewStructValue(newStruct(dimensionFields(sub))))
	}
	fields["lgrs"] = structpb.NewListValue(&structpb.ListValue{Values: lgrs})
	return newStruct(fields), nil
}

// RegionAggregate reduces property "of" over the cells whose "region"
// property equals "value".
func (s *Server) RegionAggregate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	c, g, err := s.gridFor(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	op, err := selection.ParseOp(stringField(req, fieldOp))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	lgr := stringField(req, fieldLGR)
	regions, err := c.Property(ctx, simcase.PropertyKey{Category: simcase.Static, Name: stringField(req, fieldRegion), Grid: lgr})
	if err != nil {
		return nil, toStatus(err)
	}
	values, err := c.Property(ctx, simcase.PropertyKey{Category: simcase.Static, Name: stringField(req, fieldOf), Grid: lgr})
	if err != nil {
		return nil, toStatus(err)
	}
	sel, err := selection.SelectEqual(g, regions, numberField(req, fieldValue))
	if err != nil {
		return nil, toStatus(err)
	}
	result, err := selection.Aggregate(sel, values, op)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]*structpb.Value{
		fieldCount:  structpb.NewNumberValue(float64(sel.Len())),
		fieldResult: structpb.NewNumberValue(result),
	}), nil
}

// StreamVector sends a resampled vector as chunks of {offset, total, days,
// values}. The first chunk also carries the unit.
func (s *Server) StreamVector(req *structpb.Struct, out grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := out.Context()
	c, err := s.resolve(ctx, req)
	if err != nil {
		return toStatus(err)
	}
	st, err := c.Summary()
	if err != nil {
		return toStatus(err)
	}
	freq := s.frequency
	if raw := stringField(req, fieldFrequency); raw != "" {
		if freq, err = summary.ParseFrequency(raw); err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	name := stringField(req, fieldName)
	series, err := st.Resample(name, freq)
	if err != nil {
		return toStatus(err)
	}
	unit, err := st.Unit(name)
	if err != nil {
		return toStatus(err)
	}

	size := s.chunk(req)
	total := structpb.NewNumberValue(float64(series.Len()))
	for off, values := range stream.Chunks(series.Values, size) {
		if err := ctx.Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		msg := map[string]*structpb.Value{
			fieldOffset: structpb.NewNumberValue(float64(off)),
			fieldTotal:  total,
			fieldDays:   numberList(series.Days[off : off+len(values)]),
			fieldValues: numberList(values),
		}
		if off == 0 {
			msg[fieldUnit] = structpb.NewStringValue(unit)
		}
		if err := out.Send(newStruct(msg)); err != nil {
			return err
		}
	}
	return nil
}

// StreamCellCenters sends the center of every active cell of the main grid
// (or ?lgr) in active order, as chunks of {offset, total, x, y, z}.
func (s *Server) StreamCellCenters(req *structpb.Struct, out grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := out.Context()
	_, g, err := s.gridFor(ctx, req)
	if err != nil {
		return toStatus(err)
	}
	active := make([]int, g.ActiveCount())
	for a := range active {
		active[a] = a
	}

	size := s.chunk(req)
	total := structpb.NewNumberValue(float64(len(active)))
	for off, cells := range stream.Chunks(active, size) {
		if err := ctx.Err(); err != nil {
			return status.FromContextError(err).Err()
		}
		xs := make([]float64, len(cells))
		ys := make([]float64, len(cells))
		zs := make([]float64, len(cells))
		for n, a := range cells {
			p, err := g.CellCenter(a)
			if err != nil {
				return toStatus(err)
			}
			xs[n], ys[n], zs[n] = p.X, p.Y, p.Z
		}
		if err := out.Send(newStruct(map[string]*structpb.Value{
			fieldOffset: structpb.NewNumberValue(float64(off)),
			fieldTotal:  total,
			fieldX:      numberList(xs),
			fieldY:      numberList(ys),
			fieldZ:      numberList(zs),
		})); err != nil {
			return err
		}
	}
	return nil
}

// toStatus maps an error to a gRPC status carrying its kind as ErrorInfo.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	kind := reserr.Kind(err)
	code := codes.Internal
	switch kind {
	case reserr.ErrUnknownCase, reserr.ErrUnknownVector:
		code = codes.NotFound
	case reserr.ErrOutOfRange:
		code = codes.OutOfRange
	case reserr.ErrLengthMismatch, reserr.ErrMalformed:
		code = codes.InvalidArgument
	case reserr.ErrInactiveCell, reserr.ErrInsufficientData, reserr.ErrEmptySelection:
		code = codes.FailedPrecondition
	case reserr.ErrClosed:
		code = codes.Unavailable
	}
	st := status.New(code, err.Error())
	if kind == nil {
		return st.Err()
	}
	detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: kind.Error(), Domain: errorDomain})
	if derr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// LoggingUnaryInterceptor logs each unary call with its duration and code.
func LoggingUnaryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	sw := timeutil.StartStopwatch(timeutil.RealClock{})
	resp, err := handler(ctx, req)
	monitoring.Logf("[gRPC] %s %s %vms", info.FullMethod, status.Code(err), sw.Millis())
	return resp, err
}

// LoggingStreamInterceptor logs each streaming call when it ends.
func LoggingStreamInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	sw := timeutil.StartStopwatch(timeutil.RealClock{})
	err := handler(srv, ss)
	monitoring.Logf("[gRPC] %s %s %vms", info.FullMethod, status.Code(err), sw.Millis())
	return err
}
