package accounts

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	// KindOwnership is reported to callers with the same message as KindNotFound.
	KindOwnership ErrorKind = "ownership"
	KindUpstream  ErrorKind = "upstream"
	KindStore     ErrorKind = "store"
)

// Reply messages. Callers match on some of these, so they must not change.
const (
	MsgAccountNotFound    = "Minecraft Account was not found"
	MsgLookupOverloaded   = "Minecraft Account Lookup is overload, please try again in a minute"
	MsgLookupFailed       = "Unknown error when looking up username"
	MsgAlreadyRegistered  = "Minecraft Account is already registered."
	MsgCreateFailed       = "Internal Error creating account."
	MsgRemoveFailed       = "Internal Error removing account."
	MsgUnknownAccount     = "Unknown minecraft account."
	MsgWhitelistFailed    = "Failed to update Minecraft whitelist."
	MsgInvalidRequest     = "Invalid request."
	MsgOwnerRequired      = "A user id or discord id is required."
	MsgIdentifierRequired = "A Minecraft username or uuid is required."
	MsgGetFailed          = "Internal Error fetching account."
	MsgListFailed         = "Internal Error listing accounts."
)

// RequestError is a failure that was reported to the requester.
// Message is the outward text; Err stays in the process.
type RequestError struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed (%s): %s: %v", e.Op, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError creates a new RequestError.
func NewRequestError(op string, kind ErrorKind, message string, err error) *RequestError {
	return &RequestError{
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// outcomeOf labels a handler result for metrics.
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return string(reqErr.Kind)
	}
	return "error"
}
