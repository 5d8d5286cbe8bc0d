package cerr

import (
	"context"

	"connectrpc.com/connect"
)

type convertConnectErrorInterceptor struct{}

// NewConvertConnectErrorInterceptor converts errors on both sides of a unary
// call: handlers return *Error and the wire sees a *connect.Error, clients
// receive a *connect.Error and callers see an *Error.
func NewConvertConnectErrorInterceptor() connect.Interceptor {
	return &convertConnectErrorInterceptor{}
}

func (i *convertConnectErrorInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		resp, err := next(ctx, req)
		if req.Spec().IsClient {
			return resp, FromConnectError(err)
		}
		return resp, ExtractConnectError(ctx, err)
	}
}

func (i *convertConnectErrorInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *convertConnectErrorInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		return ExtractConnectError(ctx, next(ctx, conn))
	}
}
