package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"xdao.co/mcpreg/model"
)

// Trailer keys carrying the address and identity of a coded error.
const (
	trailerAddress  = "mcpreg-address"
	trailerIdentity = "mcpreg-identity"
)

var toGRPC = map[model.ErrorCode]codes.Code{
	model.ErrAlreadyExists:     codes.AlreadyExists,
	model.ErrNotFound:          codes.NotFound,
	model.ErrUnauthorized:      codes.PermissionDenied,
	model.ErrDelegateFailure:   codes.Aborted,
	model.ErrInsufficientFunds: codes.FailedPrecondition,
	model.ErrInvalidRequest:    codes.InvalidArgument,
	model.ErrInternal:          codes.Internal,
}

var fromGRPC = func() map[codes.Code]model.ErrorCode {
	m := make(map[codes.Code]model.ErrorCode, len(toGRPC))
	for k, v := range toGRPC {
		m[v] = k
	}
	return m
}()

func mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch ctx.Err() {
	case context.Canceled:
		return status.Error(codes.Canceled, err.Error())
	case context.DeadlineExceeded:
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	code := model.CodeOf(err)
	msg := err.Error()
	if ce := codedError(err); ce != nil {
		msg = ce.Message
		md := metadata.MD{}
		if ce.Address != "" {
			md.Set(trailerAddress, ce.Address)
		}
		if ce.Identity != "" {
			md.Set(trailerIdentity, ce.Identity)
		}
		if md.Len() > 0 {
			_ = grpc.SetTrailer(ctx, md)
		}
	}
	return status.Error(toGRPC[code], msg)
}

func codedError(err error) *model.CodedError {
	var ce *model.CodedError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// mapRPC turns a gRPC status back into a *model.CodedError. Statuses outside
// the ledger's code set (transport failures, rate limiting) are returned as-is.
func mapRPC(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	code, ok := fromGRPC[st.Code()]
	if !ok {
		return err
	}
	ce := model.NewError(code, st.Message())
	if v := trailer.Get(trailerAddress); len(v) > 0 {
		ce.Address = v[0]
	}
	if v := trailer.Get(trailerIdentity); len(v) > 0 {
		ce.Identity = v[0]
	}
	return ce
}
