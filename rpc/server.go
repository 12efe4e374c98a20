package rpc

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/model"
	"xdao.co/mcpreg/request"
)

// Service is what the Ledger service exposes. *processor.Processor
// implements it on the server side and *Client on the client side.
type Service interface {
	Submit(ctx context.Context, raw []byte) (model.Receipt, error)
	Record(ctx context.Context, addr address.Address) (model.RecordView, error)
	Balance(ctx context.Context, addr address.Address) (model.BalanceView, error)
	Lamports(ctx context.Context, addr address.Address) (uint64, error)
	Request(ctx context.Context, id string) ([]byte, error)
}

// Server exposes a Service over the Ledger gRPC service.
type Server struct {
	UnimplementedLedgerServer
	Service Service
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	if len(in.GetValue()) > request.MaxSize {
		return nil, status.Error(codes.InvalidArgument, "request too large")
	}
	receipt, err := s.Service.Submit(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return marshal(receipt)
}

func (s *Server) GetRecord(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	addr, err := s.address(in)
	if err != nil {
		return nil, err
	}
	view, err := s.Service.Record(ctx, addr)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return marshal(view)
}

func (s *Server) GetBalance(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	addr, err := s.address(in)
	if err != nil {
		return nil, err
	}
	view, err := s.Service.Balance(ctx, addr)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return marshal(view)
}

func (s *Server) GetLamports(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	addr, err := s.address(in)
	if err != nil {
		return nil, err
	}
	n, err := s.Service.Lamports(ctx, addr)
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return wrapperspb.UInt64(n), nil
}

func (s *Server) GetRequest(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Service == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing service")
	}
	raw, err := s.Service.Request(ctx, in.GetValue())
	if err != nil {
		return nil, mapErr(ctx, err)
	}
	return wrapperspb.Bytes(raw), nil
}

func (s *Server) address(in *wrapperspb.StringValue) (address.Address, error) {
	if s == nil || s.Service == nil {
		return address.Address{}, status.Error(codes.FailedPrecondition, "missing service")
	}
	addr, err := address.Parse(in.GetValue())
	if err != nil {
		return address.Address{}, status.Error(codes.InvalidArgument, "invalid address")
	}
	return addr, nil
}

func marshal(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reply")
	}
	return wrapperspb.Bytes(b), nil
}

type serverOptions struct {
	log         *zap.Logger
	limiter     *PeerLimiter
	maxMsgBytes int
}

type ServerOption func(*serverOptions)

func WithServerLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.log = l }
}

// WithRateLimit throttles each peer independently.
func WithRateLimit(l *PeerLimiter) ServerOption {
	return func(o *serverOptions) { o.limiter = l }
}

// WithMaxMsgBytes sets the maximum message size the server accepts and sends.
func WithMaxMsgBytes(n int) ServerOption {
	return func(o *serverOptions) { o.maxMsgBytes = n }
}

// NewGRPCServer returns a gRPC server with the Ledger service registered.
func NewGRPCServer(svc Service, opts ...ServerOption) *grpc.Server {
	o := serverOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	interceptors := []grpc.UnaryServerInterceptor{logUnary(o.log)}
	if o.limiter != nil {
		interceptors = append(interceptors, o.limiter.UnaryInterceptor())
	}
	grpcOpts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if o.maxMsgBytes > 0 {
		grpcOpts = append(grpcOpts, grpc.MaxRecvMsgSize(o.maxMsgBytes), grpc.MaxSendMsgSize(o.maxMsgBytes))
	}
	srv := grpc.NewServer(grpcOpts...)
	RegisterLedgerServer(srv, &Server{Service: svc})
	return srv
}

func logUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			log.Debug("rpc failed", zap.String("method", info.FullMethod), zap.String("code", status.Code(err).String()))
		}
		return resp, err
	}
}
