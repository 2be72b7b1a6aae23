// Package searcher is the downstream lookup the workers call for every query.
// The service is registered by hand on a gRPC server using well-known wrapper
// messages, so no generated code is needed.
package searcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/wrapperspb"

	loggingpkg "github.com/drblury/relayflow/internal/runtime/logging"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "relayflow.Searcher"

const searchMethod = "/" + ServiceName + "/Search"

// SearcherServer answers Search calls.
type SearcherServer interface {
	Search(ctx context.Context, req *wrapperspb.Int32Value) (*wrapperspb.StringValue, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SearcherServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: searchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "relayflow/searcher.proto",
}

func searchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SearcherServer).Search(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: searchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SearcherServer).Search(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

// Register adds srv to s under ServiceName.
func Register(s grpc.ServiceRegistrar, srv SearcherServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Server answers every id with "Response: <id>".
type Server struct {
	logger loggingpkg.ServiceLogger
}

// NewServer returns a Server logging through logger.
func NewServer(logger loggingpkg.ServiceLogger) *Server {
	return &Server{logger: logger.With(loggingpkg.LogFields{"component": "searcher"})}
}

func (s *Server) Search(_ context.Context, req *wrapperspb.Int32Value) (*wrapperspb.StringValue, error) {
	s.logger.Info("Searching", loggingpkg.LogFields{"id": req.GetValue()})
	return wrapperspb.String(fmt.Sprintf("Response: %d", req.GetValue())), nil
}

// NewGRPCServer builds a traced gRPC server exposing the searcher and the
// standard health service.
func NewGRPCServer(logger loggingpkg.ServiceLogger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	Register(s, NewServer(logger))

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s
}
