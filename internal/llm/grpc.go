package llm

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// The generator service carries structpb.Struct payloads so no generated code is needed:
// request {"prompt": string, "model": string}, response {"text": string}.
const (
	generatorService = "usagi.llm.v1.Generator"
	generateMethod   = "/" + generatorService + "/Generate"
)

type generatorServer interface {
	Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var generatorServiceDesc = grpc.ServiceDesc{
	ServiceName: generatorService,
	HandlerType: (*generatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "usagi/llm/v1/generator.proto",
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(generatorServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(generatorServer).Generate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server exposes a Backend over gRPC.
type Server struct {
	Backend Backend
}

// Register adds the generator service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&generatorServiceDesc, s)
}

// Generate runs the wrapped backend.
func (s *Server) Generate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Backend == nil {
		return nil, status.Error(codes.Internal, "backend not set")
	}
	fields := in.GetFields()
	prompt := fields["prompt"].GetStringValue()
	if prompt == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}
	text, err := s.Backend.Generate(ctx, prompt, fields["model"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return structpb.NewStruct(map[string]any{"text": text})
}

// GRPC is a Backend that calls a remote generator server.
type GRPC struct {
	// Addr is the server address (e.g. "localhost:50051").
	Addr string
	// DialOptions are used when connecting (e.g. TLS, interceptors).
	DialOptions []grpc.DialOption
}

// Name returns "grpc".
func (g *GRPC) Name() string { return "grpc" }

// Generate calls the remote Generate method.
func (g *GRPC) Generate(ctx context.Context, prompt, model string) (string, error) {
	if g.Addr == "" {
		return "", errors.New("grpc: address is required")
	}
	opts := g.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(g.Addr, opts...)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	in, err := structpb.NewStruct(map[string]any{"prompt": prompt, "model": model})
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, generateMethod, in, out); err != nil {
		return "", err
	}
	return out.GetFields()["text"].GetStringValue(), nil
}
