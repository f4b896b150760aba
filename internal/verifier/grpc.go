package verifier

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName      = "idkeeper.verifier.Verifier"
	verifyFullMethod = "/" + serviceName + "/Verify"
)

// VerifierServer is the gRPC face of the verifier. Requests and responses
// are structpb.Struct values carrying the same fields as the HTTP API.
type VerifierServer interface {
	Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerifierServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerifierServer).Verify(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the Verifier service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "idkeeper/verifier.proto",
}

// Client calls a remote Verifier service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Verify asks the remote verifier about an encoded bundle.
func (c *Client) Verify(ctx context.Context, assertion, audience string) (Result, error) {
	in, err := structpb.NewStruct(map[string]any{"assertion": assertion, "audience": audience})
	if err != nil {
		return Result{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, verifyFullMethod, in, out); err != nil {
		return Result{}, err
	}
	return resultFromStruct(out), nil
}

// GRPCServer exposes a Verifier over gRPC together with the standard
// health service.
type GRPCServer struct {
	address string
	v       *Verifier
	logger  logging.Logger
}

func NewGRPCServer(address string, v *Verifier, l logging.Logger) *GRPCServer {
	return &GRPCServer{
		address: address,
		v:       v,
		logger:  l.With("module", "grpc_server"),
	}
}

func (s *GRPCServer) Verify(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	assertion := fields["assertion"].GetStringValue()
	audience := fields["audience"].GetStringValue()
	if assertion == "" || audience == "" {
		return nil, status.Error(codes.InvalidArgument, "need assertion and audience")
	}
	return resultToStruct(s.v.Verify(ctx, assertion, audience))
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "rpc served", "method", info.FullMethod, "code", status.Code(err).String(), "duration", time.Since(start))
	return resp, err
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on l until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, l net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	srv.RegisterService(&ServiceDesc, s)

	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", l.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(l); err != nil {
		return err
	}

	return nil
}

func resultToStruct(r Result) (*structpb.Struct, error) {
	m := map[string]any{"status": r.Status}
	if r.OK() {
		m["email"] = r.Email
		m["audience"] = r.Audience
		m["issuer"] = r.Issuer
		m["expires"] = float64(r.Expires)
	} else {
		m["reason"] = r.Reason
	}
	return structpb.NewStruct(m)
}

func resultFromStruct(s *structpb.Struct) Result {
	f := s.GetFields()
	return Result{
		Status:   f["status"].GetStringValue(),
		Email:    f["email"].GetStringValue(),
		Audience: f["audience"].GetStringValue(),
		Issuer:   f["issuer"].GetStringValue(),
		Expires:  int64(f["expires"].GetNumberValue()),
		Reason:   f["reason"].GetStringValue(),
	}
}
