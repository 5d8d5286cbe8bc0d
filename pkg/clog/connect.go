package clog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

type connectConfig struct {
	Filter func(spec connect.Spec) bool
}

type ConnectOption interface {
	apply(*connectConfig)
}

type connectOptionFunc func(*connectConfig)

func (o connectOptionFunc) apply(c *connectConfig) {
	o(c)
}

func WithConnectFilter(filter func(connect.Spec) bool) ConnectOption {
	return connectOptionFunc(func(cfg *connectConfig) {
		cfg.Filter = filter
	})
}

func DefaultConnectHealthCheckUnaryFilter(spec connect.Spec) bool {
	return spec.Procedure != "/grpc.health.v1.Health/Check"
}

// NewSlogConnectInterceptor logs every unary call once it has finished. It
// works on both sides of the wire; spec.IsClient is recorded so client and
// server lines can be told apart. Streams are passed through untouched.
func NewSlogConnectInterceptor(opts ...ConnectOption) connect.Interceptor {
	cfg := connectConfig{}
	for _, opt := range opts {
		opt.apply(&cfg)
	}
	return &slogConnectInterceptor{cfg: cfg}
}

type slogConnectInterceptor struct {
	cfg connectConfig
}

func (s *slogConnectInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		startTime := time.Now()
		newCtx := ContextWithSlog(ctx)
		AddAttributes(newCtx, map[string]any{
			"procedure": req.Spec().Procedure,
			"client":    req.Spec().IsClient,
		})

		resp, err := next(newCtx, req)
		if s.cfg.Filter != nil && !s.cfg.Filter(req.Spec()) {
			return resp, err
		}

		codeStr := "ok"
		var cerr *connect.Error
		if err != nil {
			if !errors.As(err, &cerr) {
				cerr = connect.NewError(connect.CodeUnknown, err)
			}
			codeStr = cerr.Code().String()
		}
		AddAttributes(newCtx, map[string]any{
			"code":     codeStr,
			"duration": time.Since(startTime),
		})
		if cerr == nil {
			slog.DebugContext(newCtx, "Finished")
			return resp, err
		}
		if len(cerr.Details()) > 0 {
			AddAttribute(newCtx, "err_details", len(cerr.Details()))
		}
		logAt(newCtx, ConnectCodeToLevel(cerr.Code()), cerr.Message())
		return resp, err
	}
}

func (s *slogConnectInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (s *slogConnectInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}
