package shared

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies failures returned by the core.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindUnbalanced        Kind = "UNBALANCED_ENTRY"
	KindPeriodClosed      Kind = "PERIOD_CLOSED"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindAlreadyPosted     Kind = "ALREADY_POSTED"
	KindNotFound          Kind = "NOT_FOUND"
	KindConflict          Kind = "CONFLICT"
	KindStorage           Kind = "STORAGE"
)

// Error is the typed failure carried across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrUnbalanced        = &Error{Kind: KindUnbalanced, Message: "journal entry is unbalanced"}
	ErrPeriodClosed      = &Error{Kind: KindPeriodClosed, Message: "fiscal period is closed"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrAlreadyPosted     = &Error{Kind: KindAlreadyPosted, Message: "already posted"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "conflict"}
	ErrStorage           = &Error{Kind: KindStorage, Message: "storage failure"}
)

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields reports malformed input with per-field detail.
func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// Unbalanced reports debit and credit totals that differ.
func Unbalanced(debit, credit fmt.Stringer) *Error {
	return &Error{
		Kind:    KindUnbalanced,
		Message: "journal entry is unbalanced",
		Fields:  map[string]string{"debit": debit.String(), "credit": credit.String()},
	}
}

// PeriodClosed reports a posting into a closed or missing period.
func PeriodClosed(format string, args ...any) *Error {
	return &Error{Kind: KindPeriodClosed, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStock reports an outbound movement larger than the quantity on hand.
func InsufficientStock(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

// AlreadyPosted reports a second post of a terminal document.
func AlreadyPosted(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyPosted, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

// Conflict reports a uniqueness or dependency violation.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an infrastructure failure. Existing typed errors pass through
// unchanged. Unique and exclusion violations become conflicts.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return &Error{Kind: KindConflict, Message: op + ": duplicate " + pgErr.ConstraintName, Err: err}
		case "23P01":
			return &Error{Kind: KindConflict, Message: op + ": overlaps existing row (" + pgErr.ConstraintName + ")", Err: err}
		}
	}
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of err. Untyped errors are storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindStorage
}

// IsBusiness reports whether err is an expected rule violation rather than a system fault.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnbalanced, KindPeriodClosed, KindInsufficientStock, KindAlreadyPosted, KindNotFound, KindConflict:
		return true
	default:
		return false
	}
}
