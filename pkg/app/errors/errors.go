// Package errors classifies vault failures for the API surface.
package errors

import (
	"errors"
	"net/http"
)

// Category groups failures by cause.
type Category int

const (
	// CategoryNone marks a successful call in request tracking.
	CategoryNone Category = iota
	// CategoryAuthorization: caller is not the token's owner, delegate,
	// or the privileged role.
	CategoryAuthorization
	// CategoryStateMismatch: the operation requires a classification the
	// token does not have.
	CategoryStateMismatch
	// CategoryCapacity: a supply cap or minting cutoff was exceeded.
	CategoryCapacity
	// CategoryAccounting: insufficient allowance/balance, or an external
	// transfer reported failure.
	CategoryAccounting
	// CategoryIdentityConflict: crediting an id that already exists, or
	// fusing tokens with duplicate underlying assets.
	CategoryIdentityConflict
	// CategoryMalformedInput: a bridge payload that is not well formed or
	// decodes to the wrong shape.
	CategoryMalformedInput
	// CategoryPolicy: a transfer-restriction or pause violation.
	CategoryPolicy
	// CategoryGeneral: the service failed in an unexpected way.
	CategoryGeneral
)

func (c Category) String() string {
	switch c {
	case CategoryAuthorization:
		return "authorization"
	case CategoryStateMismatch:
		return "state_mismatch"
	case CategoryCapacity:
		return "capacity"
	case CategoryAccounting:
		return "accounting"
	case CategoryIdentityConflict:
		return "identity_conflict"
	case CategoryMalformedInput:
		return "malformed_input"
	case CategoryPolicy:
		return "policy"
	default:
		return "general"
	}
}

// ServiceError pairs a category with the underlying failure. The message is
// user visible; the wrapped error is for logs.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is reports whether err is a ServiceError of the given category.
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

// New wraps err with a category and a user-visible message.
func New(cat Category, err error, message string) error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// General wraps an unexpected failure; the user sees a generic message.
func General(err error) error {
	if err == nil {
		err = errors.New("internal server error")
	}
	return &ServiceError{Category: CategoryGeneral, Message: "Internal Server Error", Err: err}
}

// StatusCode maps the category to an HTTP status.
func (e *ServiceError) StatusCode() int {
	switch e.Category {
	case CategoryAuthorization:
		return http.StatusForbidden
	case CategoryStateMismatch:
		return http.StatusConflict
	case CategoryCapacity:
		return http.StatusUnprocessableEntity
	case CategoryAccounting:
		return http.StatusPaymentRequired
	case CategoryIdentityConflict:
		return http.StatusConflict
	case CategoryMalformedInput:
		return http.StatusBadRequest
	case CategoryPolicy:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
