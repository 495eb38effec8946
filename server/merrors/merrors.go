// Package merrors maps MiniSQL's internal error kinds onto the MySQL
// error-code/SQLSTATE/message surface that clients expect in an ERR packet.
package merrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an internal error independently of its eventual MySQL
// error code, matching spec.md §7's error-kind enum.
type Kind int

const (
	KindInternal Kind = iota
	KindProtocolMalformed
	KindAuthFailed
	KindParseError
	KindUnknownTable
	KindUnknownColumn
	KindTypeMismatch
	KindDuplicateKey
	KindConstraintViolation
	KindStorageIO
	KindWalCorrupt
	KindTxnAborted
	KindNotSupported
)

// mapping is the mandatory table from spec.md §4.I plus codes for the
// remaining kinds from §7; only KindInternal uses the generic-server code
// 1105.
type mapping struct {
	code     uint16
	sqlState string
}

var kindMapping = map[Kind]mapping{
	KindUnknownTable:        {1146, "42S02"},
	KindUnknownColumn:       {1054, "42S22"},
	KindDuplicateKey:        {1062, "23000"},
	KindParseError:          {1064, "42000"},
	KindAuthFailed:          {1045, "28000"},
	KindProtocolMalformed:   {2027, "08S01"},
	KindTypeMismatch:        {1366, "HY000"},
	KindConstraintViolation: {1048, "23000"},
	KindStorageIO:           {1030, "HY000"},
	KindWalCorrupt:          {1030, "HY000"},
	KindTxnAborted:          {1180, "HY000"},
	KindNotSupported:        {1235, "42000"},
	KindInternal:            {1105, "HY000"},
}

// Error is a MiniSQL error carrying enough information to be rendered as an
// ERR packet without the connection layer having to know SQL context.
type Error struct {
	Kind     Kind
	Code     uint16
	SQLState string
	Message  string
	cause    error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Format implements fmt.Formatter so %+v on a fatal error prints the
// underlying stack trace captured by pkg/errors when one is attached.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.cause != nil {
			fmt.Fprintf(s, "%s: %+v", e.Message, e.cause)
			return
		}
		fmt.Fprint(s, e.Message)
	default:
		fmt.Fprint(s, e.Message)
	}
}

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	m := kindMapping[kind]
	return &Error{
		Kind:     kind,
		Code:     m.code,
		SQLState: m.sqlState,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap annotates an existing error with a kind and stack trace, keeping the
// original error reachable via errors.Is/errors.As (Unwrap returns it
// wrapped in the stack annotation).
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	m := kindMapping[kind]
	return &Error{
		Kind:     kind,
		Code:     m.code,
		SQLState: m.sqlState,
		Message:  fmt.Sprintf(format, args...),
		cause:    errors.WithStack(cause),
	}
}

// UnknownTable builds the §4.I-mandated "Table 'db.table' doesn't exist"
// message, qualifying the table name with db, or with "minisql" when db is
// empty.
func UnknownTable(db, table string) *Error {
	if db == "" {
		db = "minisql"
	}
	return New(KindUnknownTable, "Table '%s.%s' doesn't exist", db, table)
}

// UnknownColumn builds the §4.I-mandated unknown-column message.
func UnknownColumn(column, context string) *Error {
	return New(KindUnknownColumn, "Unknown column '%s' in '%s'", column, context)
}

// DuplicateKey builds the §4.I-mandated duplicate-entry message.
func DuplicateKey(value, key string) *Error {
	return New(KindDuplicateKey, "Duplicate entry '%s' for key '%s'", value, key)
}

// ParseErrorNear builds the §4.I-mandated syntax-error message.
func ParseErrorNear(near string) *Error {
	return New(KindParseError, "You have an error in your SQL syntax; near '%s'", near)
}

// AccessDenied builds the §4.I-mandated authentication-failure message.
func AccessDenied(user, host string) *Error {
	return New(KindAuthFailed, "Access denied for user '%s'@'%s'", user, host)
}

// As reports whether err (or something it wraps) is a *Error, mirroring the
// standard errors.As contract for convenience at call sites.
func As(err error) (*Error, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// CodeOf returns the MySQL error code/SQLSTATE/message for any error,
// falling back to ER_UNKNOWN_ERROR/HY000 for errors that never went
// through New/Wrap.
func CodeOf(err error) (code uint16, sqlState string, message string) {
	if me, ok := As(err); ok {
		return me.Code, me.SQLState, me.Message
	}
	m := kindMapping[KindInternal]
	return m.code, m.sqlState, err.Error()
}
