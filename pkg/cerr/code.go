package cerr

import (
	"strconv"

	"connectrpc.com/connect"
)

type Code int

const (
	OK                 = Code(0)
	Canceled           = Code(1)
	Unknown            = Code(2)
	InvalidArgument    = Code(3)
	DeadlineExceeded   = Code(4)
	NotFound           = Code(5)
	AlreadyExists      = Code(6)
	PermissionDenied   = Code(7)
	ResourceExhausted  = Code(8)
	FailedPrecondition = Code(9)
	Aborted            = Code(10)
	OutOfRange         = Code(11)
	Unimplemented      = Code(12)
	Internal           = Code(13)
	Unavailable        = Code(14)
	DataLoss           = Code(15)
	Unauthenticated    = Code(16)

	// InvalidTransition is a sprint state change rejected before any network call.
	InvalidTransition = Code(17)
	// ChannelError is a push connection failure; the reconnect loop absorbs it.
	ChannelError = Code(18)
)

// Client-side names for the wire codes the sync core reports.
const (
	// NetworkError is transient: the optimistic write is rolled back and the
	// user is told, with no automatic retry.
	NetworkError = Unavailable
	// Conflict means the server refused a precondition (for example a
	// completed sprint); the optimistic write is rolled back.
	Conflict = Aborted
)

var codeNames = map[Code]string{
	OK:                 "ok",
	Canceled:           "canceled",
	Unknown:            "unknown",
	InvalidArgument:    "invalid_argument",
	DeadlineExceeded:   "deadline_exceeded",
	NotFound:           "not_found",
	AlreadyExists:      "already_exists",
	PermissionDenied:   "permission_denied",
	ResourceExhausted:  "resource_exhausted",
	FailedPrecondition: "failed_precondition",
	Aborted:            "conflict",
	OutOfRange:         "out_of_range",
	Unimplemented:      "unimplemented",
	Internal:           "internal",
	Unavailable:        "network_error",
	DataLoss:           "data_loss",
	Unauthenticated:    "unauthenticated",
	InvalidTransition:  "invalid_transition",
	ChannelError:       "channel_error",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "code_" + strconv.Itoa(int(c))
}

var codeToConnectCodeMap = map[Code]connect.Code{
	Canceled:           connect.CodeCanceled,
	Unknown:            connect.CodeUnknown,
	InvalidArgument:    connect.CodeInvalidArgument,
	DeadlineExceeded:   connect.CodeDeadlineExceeded,
	NotFound:           connect.CodeNotFound,
	AlreadyExists:      connect.CodeAlreadyExists,
	PermissionDenied:   connect.CodePermissionDenied,
	ResourceExhausted:  connect.CodeResourceExhausted,
	FailedPrecondition: connect.CodeFailedPrecondition,
	Aborted:            connect.CodeAborted,
	OutOfRange:         connect.CodeOutOfRange,
	Unimplemented:      connect.CodeUnimplemented,
	Internal:           connect.CodeInternal,
	Unavailable:        connect.CodeUnavailable,
	DataLoss:           connect.CodeDataLoss,
	Unauthenticated:    connect.CodeUnauthenticated,
	InvalidTransition:  connect.CodeFailedPrecondition,
	ChannelError:       connect.CodeUnavailable,
}

func (c Code) ConnectCode() connect.Code {
	if c == OK {
		return 0
	}
	code, ok := codeToConnectCodeMap[c]
	if !ok {
		return connect.CodeUnknown
	}
	return code
}

// codeFromConnect folds the wire codes into the client taxonomy. Everything
// that says "the server refused this on purpose" becomes Conflict, everything
// that says "we could not get an answer" becomes NetworkError.
func codeFromConnect(cc connect.Code) Code {
	switch cc {
	case connect.CodeNotFound:
		return NotFound
	case connect.CodeFailedPrecondition, connect.CodeAborted, connect.CodeAlreadyExists:
		return Conflict
	case connect.CodeUnavailable, connect.CodeDeadlineExceeded, connect.CodeInternal,
		connect.CodeUnknown, connect.CodeDataLoss, connect.CodeResourceExhausted:
		return NetworkError
	case connect.CodeCanceled:
		return Canceled
	case connect.CodeInvalidArgument, connect.CodeOutOfRange:
		return InvalidArgument
	case connect.CodePermissionDenied:
		return PermissionDenied
	case connect.CodeUnauthenticated:
		return Unauthenticated
	case connect.CodeUnimplemented:
		return Unimplemented
	}
	return Unknown
}
