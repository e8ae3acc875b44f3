// Package errs defines the error taxonomy shared by every stage of a pivot run.
//
// Every failure that reaches the CLI is one of four kinds:
//
//   - KindConfig: an invalid selector, flag combination or run option. Raised
//     before any record is read.
//   - KindStructural: malformed record framing reported by the reader, e.g.
//     an inconsistent field count. Carries the input line.
//   - KindParse: a non-null value cell that could not be converted to the
//     type the aggregation needs. Carries the raw text, the zero-based record
//     index (header excluded) and the target type.
//   - KindIO: a read or write failure, surfaced verbatim.
//
// All kinds are fatal. Callers use KindOf or errors.As to branch on them.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindStructural
	KindParse
	KindIO
)

// String returns a short lowercase label, used for logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindStructural:
		return "structural"
	case KindParse:
		return "parse"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind Kind

	// Msg is the human-readable detail for config and structural errors.
	Msg string

	// Line is the 1-based input line of a structural error.
	Line int

	// Index is the zero-based record index of a parse error, header excluded.
	Index int

	// Raw is the offending cell text of a parse error.
	Raw string

	// Target names the type the cell was parsed as ("number", "date", ...).
	Target string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConfig:
		return "Could not properly configure the aggregator: " + e.detail()
	case KindStructural:
		return fmt.Sprintf("Malformed record on line %d: %s", e.Line, e.detail())
	case KindParse:
		return fmt.Sprintf("Could not parse record `%s` with index %d: expected %s: %s",
			e.Raw, e.Index, e.Target, e.detail())
	default:
		return e.detail()
	}
}

func (e *Error) detail() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Configf builds a configuration error.
func Configf(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// Structural wraps a reader failure at the given input line.
func Structural(line int, err error) *Error {
	return &Error{Kind: KindStructural, Line: line, Err: err}
}

// Parse wraps a value conversion failure.
func Parse(raw string, index int, target string, err error) *Error {
	return &Error{Kind: KindParse, Raw: raw, Index: index, Target: target, Err: err}
}

// IO wraps a read or write failure. A nil err yields nil.
func IO(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindIO, Err: err}
}

// KindOf reports the Kind of err, or 0 when err carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries an *Error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
