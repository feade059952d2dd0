package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the stable machine-readable category of an error.
type Kind string

const (
	KindValidation             Kind = "validation_error"
	KindPreconditionFailed     Kind = "precondition_failed"
	KindSuppressed             Kind = "suppressed"
	KindRateLimitExceeded      Kind = "rate_limit_exceeded"
	KindProvisionerUnavailable Kind = "provisioner_unavailable"
	KindTransientSendFailure   Kind = "transient_send_failure"
	KindPermanentSendFailure   Kind = "permanent_send_failure"
	KindNotFound               Kind = "not_found"
	KindInternal               Kind = "internal"
)

// Error carries a Kind plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, ErrSuppressed) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrPreconditionFailed     = &Error{Kind: KindPreconditionFailed}
	ErrSuppressed             = &Error{Kind: KindSuppressed}
	ErrRateLimitExceeded      = &Error{Kind: KindRateLimitExceeded}
	ErrProvisionerUnavailable = &Error{Kind: KindProvisionerUnavailable}
	ErrTransientSendFailure   = &Error{Kind: KindTransientSendFailure}
	ErrPermanentSendFailure   = &Error{Kind: KindPermanentSendFailure}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// pgForeignKeyViolation is the SQLSTATE Postgres reports when a referenced
// row does not exist.
const pgForeignKeyViolation = "23503"

func foreignKeyViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return pgErr, true
	}
	return nil, false
}

// domainInsertError maps a foreign key violation to NotFound and wraps
// anything else with the given context.
func domainInsertError(err error, domainID, format string, args ...any) error {
	if pgErr, ok := foreignKeyViolation(err); ok {
		if strings.Contains(pgErr.ConstraintName, "email_account_id") {
			return newError(KindNotFound, err, "email account not found")
		}
		return newError(KindNotFound, err, "domain %s not found", domainID)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human message of the first *Error in err's chain,
// falling back to err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
