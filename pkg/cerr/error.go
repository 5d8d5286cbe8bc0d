package cerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"

	"github.com/kazz187/trackline/pkg/clog"
)

type Error struct {
	Code    Code
	Msg     string          // message shown to the user together with Code
	Err     error           // underlying error, logged only
	Stack   string          // captured for error-level codes
	Details []proto.Message // machine-readable details sent over the wire
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

// NewConflict builds a Conflict carrying a machine-readable reason.
func NewConflict(reason, msg string, underlying error) *Error {
	err := NewError(Conflict, msg, underlying)
	_ = err.AddDetailMessageWithCode(msg, reason)
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddDetailMessage(msg string) error {
	e.Details = append(e.Details, &validate.Violation{Message: &msg})
	return e
}

func (e *Error) AddDetailMessageWithCode(msg string, code string) error {
	e.Details = append(e.Details, &validate.Violation{
		Message: &msg,
		RuleId:  &code,
	})
	return e
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	for _, detailMsg := range e.Details {
		detail, err := connect.NewErrorDetail(detailMsg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

// FromConnectError turns an error returned by a connect client into an *Error
// of the client taxonomy. Transport failures that never produced a connect
// status are NetworkError; a canceled context stays Canceled.
func FromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return already
	}
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "request canceled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(NetworkError, "the server did not answer in time", err)
	}
	var netErr net.Error
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		if errors.As(err, &netErr) {
			return NewError(NetworkError, "could not reach the server", err)
		}
		return NewError(NetworkError, "request failed", err)
	}

	code := codeFromConnect(connectErr.Code())
	msg := connectErr.Message()
	if msg == "" {
		msg = code.String()
	}
	out := NewError(code, msg, err)
	for _, d := range connectErr.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		out.Details = append(out.Details, v)
	}
	return out
}

// ExtractConnectError is the server-side counterpart used by handlers.
func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return NewError(Canceled, "connection closed", err).ConnectError()
	}
	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr.ConnectError()
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}
	return NewError(Unknown, "unknown error", err).ConnectError()
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// CodeOf returns Unknown for errors outside the taxonomy and OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return Unknown
}

// Reason returns the first machine-readable reason attached to err, if any.
func Reason(err error) string {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return ""
	}
	for _, d := range cerr.Details {
		if v, ok := d.(*validate.Violation); ok && v.GetRuleId() != "" {
			return v.GetRuleId()
		}
	}
	return ""
}

// UserMessage is the text a toast should show for err.
func UserMessage(err error) string {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Msg
	}
	return "something went wrong"
}
