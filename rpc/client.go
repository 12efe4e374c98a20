package rpc

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/mcpreg/address"
	"xdao.co/mcpreg/model"
)

// Client implements Service over a Ledger gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client LedgerClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ Service = (*Client)(nil)

type DialOptions struct {
	// Timeout applies per RPC when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options, e.g. a context dialer.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	cc, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewLedgerClient(cc), Timeout: opts.Timeout}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Submit(ctx context.Context, raw []byte) (model.Receipt, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var trailer metadata.MD
	reply, err := c.client.Submit(ctx, wrapperspb.Bytes(raw), grpc.Trailer(&trailer))
	if err != nil {
		return model.Receipt{}, mapRPC(err, trailer)
	}
	var receipt model.Receipt
	if err := json.Unmarshal(reply.GetValue(), &receipt); err != nil {
		return model.Receipt{}, model.NewError(model.ErrInternal, "decode receipt").WithCause(err)
	}
	return receipt, nil
}

func (c *Client) Record(ctx context.Context, addr address.Address) (model.RecordView, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var trailer metadata.MD
	reply, err := c.client.GetRecord(ctx, wrapperspb.String(addr.String()), grpc.Trailer(&trailer))
	if err != nil {
		return model.RecordView{}, mapRPC(err, trailer)
	}
	var view model.RecordView
	if err := json.Unmarshal(reply.GetValue(), &view); err != nil {
		return model.RecordView{}, model.NewError(model.ErrInternal, "decode record").WithCause(err)
	}
	return view, nil
}

func (c *Client) Balance(ctx context.Context, addr address.Address) (model.BalanceView, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var trailer metadata.MD
	reply, err := c.client.GetBalance(ctx, wrapperspb.String(addr.String()), grpc.Trailer(&trailer))
	if err != nil {
		return model.BalanceView{}, mapRPC(err, trailer)
	}
	var view model.BalanceView
	if err := json.Unmarshal(reply.GetValue(), &view); err != nil {
		return model.BalanceView{}, model.NewError(model.ErrInternal, "decode balance").WithCause(err)
	}
	return view, nil
}

func (c *Client) Lamports(ctx context.Context, addr address.Address) (uint64, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var trailer metadata.MD
	reply, err := c.client.GetLamports(ctx, wrapperspb.String(addr.String()), grpc.Trailer(&trailer))
	if err != nil {
		return 0, mapRPC(err, trailer)
	}
	return reply.GetValue(), nil
}

func (c *Client) Request(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	var trailer metadata.MD
	reply, err := c.client.GetRequest(ctx, wrapperspb.String(id), grpc.Trailer(&trailer))
	if err != nil {
		return nil, mapRPC(err, trailer)
	}
	return reply.GetValue(), nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
