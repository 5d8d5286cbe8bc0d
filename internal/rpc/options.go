package rpc

import (
	"connectrpc.com/connect"

	"github.com/kazz187/trackline/pkg/cerr"
	"github.com/kazz187/trackline/pkg/clog"
)

// ClientOptions is the option set every client of the tracker API uses:
// JSON bodies, bearer auth, request logging and error classification.
func ClientOptions(token string) []connect.ClientOption {
	return []connect.ClientOption{
		connect.WithCodec(JSONCodec{}),
		// The first interceptor is the outermost: errors are classified after
		// they have been logged with their wire code.
		connect.WithInterceptors(
			cerr.NewConvertConnectErrorInterceptor(),
			clog.NewSlogConnectInterceptor(),
			NewAuthInterceptor(token),
		),
	}
}

// HandlerOptions mirrors ClientOptions for handlers.
func HandlerOptions() []connect.HandlerOption {
	return []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(
			clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckUnaryFilter)),
			cerr.NewConvertConnectErrorInterceptor(),
		),
	}
}
