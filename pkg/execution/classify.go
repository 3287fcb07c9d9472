package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ErrorCode is the class of an execution failure, used to pick repair hints.
type ErrorCode string

const (
	SyntaxError           ErrorCode = "SYNTAX_ERROR"
	UnknownIdentifier     ErrorCode = "UNKNOWN_IDENTIFIER"
	NotAnAggregate        ErrorCode = "NOT_AN_AGGREGATE"
	Timeout               ErrorCode = "TIMEOUT"
	MemoryLimitExceeded   ErrorCode = "MEMORY_LIMIT_EXCEEDED"
	UnknownExecutionError ErrorCode = "UNKNOWN_EXECUTION_ERROR"
)

// ClickHouse server error codes, from src/Common/ErrorCodes.cpp.
var engineCodes = map[int32]ErrorCode{
	62:  SyntaxError,
	47:  UnknownIdentifier,
	46:  UnknownIdentifier, // UNKNOWN_FUNCTION
	60:  UnknownIdentifier, // UNKNOWN_TABLE
	16:  UnknownIdentifier, // NO_SUCH_COLUMN_IN_TABLE
	81:  UnknownIdentifier, // UNKNOWN_DATABASE
	215: NotAnAggregate,
	159: Timeout,
	160: Timeout, // TOO_SLOW
	241: MemoryLimitExceeded,
}

var messagePatterns = []struct {
	substr string
	code   ErrorCode
}{
	{"syntax error", SyntaxError},
	{"unknown identifier", UnknownIdentifier},
	{"missing columns", UnknownIdentifier},
	{"unknown function", UnknownIdentifier},
	{"unknown table", UnknownIdentifier},
	{"not under aggregate function", NotAnAggregate},
	{"timeout exceeded", Timeout},
	{"deadline exceeded", Timeout},
	{"memory limit", MemoryLimitExceeded},
}

// Classify maps an execution failure to an Error. An err that already is an *Error is returned
// as is. A nil err classifies to nil.
func Classify(err error, elapsed time.Duration) *Error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		if ee.ExecutionTime == 0 {
			ee.ExecutionTime = elapsed
		}
		return ee
	}

	out := &Error{
		Code:          UnknownExecutionError,
		Message:       err.Error(),
		ExecutionTime: elapsed,
		Err:           err,
	}

	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		out.EngineCode = ex.Code
		out.Message = ex.Message
		if code, ok := engineCodes[ex.Code]; ok {
			out.Code = code
			return out
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		out.Code = Timeout
		return out
	}
	msg := strings.ToLower(out.Message)
	for _, p := range messagePatterns {
		if strings.Contains(msg, p.substr) {
			out.Code = p.code
			break
		}
	}
	return out
}
