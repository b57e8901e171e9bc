package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hengadev/errsx"
	"github.com/labstack/echo/v4"
)

// Kind classifies an application error for propagation and HTTP mapping.
type Kind int

const (
	// KindValidation marks missing or malformed input. Recoverable; surfaced
	// with field-level detail.
	KindValidation Kind = iota + 1
	// KindConflict marks a uniqueness or invariant violation (duplicate
	// document, occupied bed, patient already admitted).
	KindConflict
	// KindUnauthorized marks a failed session, role, or CSRF check. Surfaced
	// generically so callers cannot tell which check failed.
	KindUnauthorized
	// KindNotFound marks a read against an entity that does not exist.
	KindNotFound
	// KindIntegrity marks a cipher failure or a missing referenced entity
	// during a mutation. Fatal to the current operation, always rolled back.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	}
	return "unknown"
}

// Error is the taxonomy type returned by every core operation that fails.
type Error struct {
	Kind   Kind
	Code   string
	Msg    string
	Fields errsx.Map
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if !e.Fields.IsEmpty() {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Fields.AsError())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a field-detailed validation error. The errsx map carries
// one entry per offending field.
func Validation(msg string, fields errsx.Map) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_input", Msg: msg, Fields: fields}
}

// ValidationField is a shorthand for a single-field validation error.
func ValidationField(field string, err error) *Error {
	var fields errsx.Map
	fields.Set(field, err)
	return Validation("invalid input", fields)
}

func Conflict(code, msg string) *Error {
	return &Error{Kind: KindConflict, Code: code, Msg: msg}
}

func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Code: "unauthorized", Msg: "unauthorized"}
}

func Forbidden() *Error {
	return &Error{Kind: KindUnauthorized, Code: "forbidden", Msg: "forbidden"}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Code: "not_found", Msg: entity + " not found"}
}

func Integrity(msg string, err error) *Error {
	return &Error{Kind: KindIntegrity, Code: "integrity", Msg: msg, Err: err}
}

// KindOf returns the Kind of err, or 0 when err is not a taxonomy error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// HTTP translates a taxonomy error into an echo HTTP error. Unauthorized
// errors are flattened to a generic message so the failing check does not
// leak to the caller.
func HTTP(err error) *echo.HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	switch e.Kind {
	case KindValidation:
		body := map[string]interface{}{"error": e.Code, "message": e.Msg}
		if !e.Fields.IsEmpty() {
			body["fields"] = e.Fields.AsError().Error()
		}
		return echo.NewHTTPError(http.StatusBadRequest, body)
	case KindConflict:
		return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
			"error": e.Code, "message": e.Msg,
		})
	case KindUnauthorized:
		if e.Code == "forbidden" {
			return echo.NewHTTPError(http.StatusForbidden, "forbidden")
		}
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case KindNotFound:
		return echo.NewHTTPError(http.StatusNotFound, e.Msg)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
