package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/xela07ax/gridrules/internal/domain"
	"github.com/xela07ax/gridrules/internal/state"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Сервис описан вручную поверх structpb.Struct: отдельный .proto не нужен,
// а кодек gRPC работает с любым proto.Message.
const (
	LegalityServiceName = "gridrules.v1.Legality"
	checkMethod         = "/" + LegalityServiceName + "/Check"
)

// LegalityServer — серверная сторона gridrules.v1.Legality
type LegalityServer interface {
	Check(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var LegalityServiceDesc = grpc.ServiceDesc{
	ServiceName: LegalityServiceName,
	HandlerType: (*LegalityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gridrules/v1/legality",
}

func checkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LegalityServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LegalityServer).Check(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterLegalityServer регистрирует реализацию на gRPC сервере
func RegisterLegalityServer(s grpc.ServiceRegistrar, srv LegalityServer) {
	s.RegisterService(&LegalityServiceDesc, srv)
}

// CheckRequest — тело запроса и для gRPC, и для HTTP.
// Если State задан, снимок из хранилища не читается.
type CheckRequest struct {
	EnvID  string        `json:"env_id"`
	Action domain.Action `json:"action"`
	State  *domain.State `json:"state,omitempty"`
}

type GRPCLegalityServer struct {
	arbiter *Arbiter
}

func NewGRPCLegalityServer(a *Arbiter) *GRPCLegalityServer {
	return &GRPCLegalityServer{arbiter: a}
}

func (s *GRPCLegalityServer) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req CheckRequest
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "bad request: %v", err)
	}

	// Trace-ID из метаданных, как заголовок X-Trace-ID в HTTP
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-trace-id"); len(ids) > 0 {
			ctx = WithTraceID(ctx, ids[0])
		}
	}

	var v domain.Verdict
	if req.State != nil {
		v, err = s.arbiter.CheckState(ctx, *req.State, req.Action)
	} else {
		if req.EnvID == "" {
			return nil, status.Error(codes.InvalidArgument, "env_id or state is required")
		}
		v, err = s.arbiter.Check(ctx, req.EnvID, req.Action)
	}

	if err != nil && v.ID == "" {
		return nil, toStatus(err)
	}
	return verdictStruct(v)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrStateUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

func verdictStruct(v domain.Verdict) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		"verdict_id": v.ID,
		"trace_id":   v.TraceID,
		"env_id":     v.EnvID,
		"step":       v.Step,
		"rules":      v.Rules,
		"legal":      v.Legal,
		"error":      v.Error,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode verdict: %v", err)
	}
	return out, nil
}

// LegalityClient — клиент gridrules.v1.Legality
type LegalityClient struct {
	cc grpc.ClientConnInterface
}

func NewLegalityClient(cc grpc.ClientConnInterface) *LegalityClient {
	return &LegalityClient{cc: cc}
}

func (c *LegalityClient) Check(ctx context.Context, req CheckRequest, opts ...grpc.CallOption) (*structpb.Struct, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, checkMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
