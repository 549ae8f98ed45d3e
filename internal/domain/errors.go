package domain

import "errors"

// Error taxonomy of the realtime core. Callers wrap these with fmt.Errorf
// and classify with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("not allowed")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("invalid request")
	ErrPersistence    = errors.New("storage failure")
	ErrCallExists     = errors.New("call already active")
	ErrUserExists     = errors.New("user already exists")
)

var (
	ErrUserNotFound  = &notFound{what: "user"}
	ErrGroupNotFound = &notFound{what: "group"}
	ErrCallNotFound  = &notFound{what: "call"}
)

type notFound struct{ what string }

func (e *notFound) Error() string { return e.what + " not found" }
func (e *notFound) Unwrap() error { return ErrNotFound }

// ErrorCode is the client-visible code carried by error frames.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "unauthenticated"
	case errors.Is(err, ErrAuthorization):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUsernameEmpty),
		errors.Is(err, ErrUsernameTooLong),
		errors.Is(err, ErrPasswordShort):
		return "bad_request"
	case errors.Is(err, ErrPersistence):
		return "storage_failure"
	case errors.Is(err, ErrCallExists), errors.Is(err, ErrUserExists):
		return "conflict"
	default:
		return "internal"
	}
}
