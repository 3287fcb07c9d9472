package querygen

import (
	"fmt"
	"strings"
)

// ErrorKind is the class of a generation failure.
type ErrorKind string

const (
	// KindGateway means the model could not be reached or refused the request.
	KindGateway ErrorKind = "gateway"
	// KindResponseShape means no SQL could be recovered from the model output, even after a retry.
	KindResponseShape ErrorKind = "response_shape"
	// KindValidation means the recovered SQL failed the safety or structure checks.
	KindValidation ErrorKind = "validation"
)

const fragmentLen = 200

// Error is a failed generation. Err is the underlying gateway, parse or validation error.
type Error struct {
	Kind        ErrorKind
	Message     string
	Reasons     []string
	SQLFragment string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error: %s", e.Kind, e.Message)
	if len(e.Reasons) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.Reasons, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fragment(sql string) string {
	sql = strings.TrimSpace(sql)
	r := []rune(sql)
	if len(r) <= fragmentLen {
		return sql
	}
	return string(r[:fragmentLen]) + "..."
}
