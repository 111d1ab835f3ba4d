package server

import (
	"github.com/defistate/defistate-dex-go/dex"
)

// ErrorCodeBase is subtracted from a kind's registered code to form its JSON-RPC error
// code, keeping exchange errors inside the server-defined range.
const ErrorCodeBase = -32000

// Error is a typed exchange failure as carried over JSON-RPC. Data holds the kind name,
// e.g. "SlippageExceeded".
type Error struct {
	Code    int
	Kind    string
	Message string
}

func (e *Error) Error() string  { return e.Message }
func (e *Error) ErrorCode() int { return e.Code }
func (e *Error) ErrorData() any { return e.Kind }

// toRPCError converts registered exchange errors into *Error and passes others through.
func toRPCError(err error) error {
	if err == nil {
		return nil
	}
	kind := dex.KindOf(err)
	if kind == nil {
		return err
	}
	return &Error{
		Code:    ErrorCodeBase - int(kind.ABCICode()),
		Kind:    dex.KindName(kind),
		Message: err.Error(),
	}
}
