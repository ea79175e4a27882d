package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoCandidateFile   = errors.New("no candidate file")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrMalformedRecord   = errors.New("malformed record")
	ErrAuthentication    = errors.New("authentication failed")
	ErrTransport         = errors.New("transport failure")
	ErrRemoteRejected    = errors.New("remote rejected")
	ErrAlreadyFinalized  = errors.New("already finalized")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicatePart     = errors.New("part already in a plan")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type RemoteKind int

const (
	RemoteRejected RemoteKind = iota
	RemoteAlreadyFinalized
)

// RemoteError is a non-401 HTTP error answered by the MES.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
	Kind       RemoteKind
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "mes remote error"
	}
	if e.Message == "" {
		return fmt.Sprintf("mes %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("mes %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteRejected:
		return true
	case ErrAlreadyFinalized:
		return e.Kind == RemoteAlreadyFinalized
	}
	return false
}

type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureAlreadyFinalized
	FailureRejected
	FailureTransport
	FailureAuthentication
)

func (c FailureClass) String() string {
	switch c {
	case FailureAlreadyFinalized:
		return "already_finalized"
	case FailureRejected:
		return "rejected"
	case FailureTransport:
		return "transport"
	case FailureAuthentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// Classify maps a submission error onto the failure class the loop reacts to.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureUnknown
	case errors.Is(err, ErrAlreadyFinalized):
		return FailureAlreadyFinalized
	case errors.Is(err, ErrAuthentication):
		return FailureAuthentication
	case errors.Is(err, ErrRemoteRejected):
		return FailureRejected
	case errors.Is(err, ErrTransport):
		return FailureTransport
	default:
		return FailureUnknown
	}
}
