package certify

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines certificate error kinds.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindNotFound           ErrorKind = "not_found"
	KindUpstream           ErrorKind = "upstream"
	KindUnavailable        ErrorKind = "unavailable"
	KindContentLoadTimeout ErrorKind = "content_load_timeout"
	KindRenderTimeout      ErrorKind = "render_timeout"
	KindTimeout            ErrorKind = "timeout"
	KindCanceled           ErrorKind = "canceled"
	KindInternal           ErrorKind = "internal"
	KindNotImpl            ErrorKind = "not_implemented"
)

// Error wraps errors with a kind.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new certificate error.
func NewError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindInternal
	msg := err.Error()

	var certErr *Error
	if errors.As(err, &certErr) {
		kind = certErr.Kind
		if certErr.Msg != "" {
			msg = certErr.Msg
		}
	}

	if errors.Is(err, context.DeadlineExceeded) && kind != KindContentLoadTimeout && kind != KindRenderTimeout {
		kind = KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		kind = KindCanceled
	}

	switch kind {
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode(string(kind))
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode(string(kind))
	case KindUpstream, KindUnavailable, KindContentLoadTimeout, KindRenderTimeout, KindTimeout, KindCanceled, KindNotImpl:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode(string(kind))
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode(string(KindInternal))
	}
}

// KindFromError maps an error to its certificate error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var certErr *Error
	if errors.As(err, &certErr) {
		return certErr.Kind
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) && ge.TextCode != "" {
		return ErrorKind(ge.TextCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	return KindInternal
}
