package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a failure so callers never have to sniff error strings.
type Kind int

const (
	KindInternal Kind = iota
	KindCredentialUnavailable
	KindAuthExpired
	KindRetriesExhausted
	KindUnsupportedContentType
	KindQuotaExceeded
	KindPolicyRejected
	KindValidation
	KindNotFound
	KindRemote
)

var kindNames = map[Kind]string{
	KindInternal:               "internal",
	KindCredentialUnavailable:  "credential_unavailable",
	KindAuthExpired:            "auth_expired",
	KindRetriesExhausted:       "retries_exhausted",
	KindUnsupportedContentType: "unsupported_content_type",
	KindQuotaExceeded:          "quota_exceeded",
	KindPolicyRejected:         "policy_rejected",
	KindValidation:             "validation",
	KindNotFound:               "not_found",
	KindRemote:                 "remote",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrCredentialUnavailable  = &Error{Kind: KindCredentialUnavailable}
	ErrAuthExpired            = &Error{Kind: KindAuthExpired}
	ErrRetriesExhausted       = &Error{Kind: KindRetriesExhausted}
	ErrUnsupportedContentType = &Error{Kind: KindUnsupportedContentType}
	ErrQuotaExceeded          = &Error{Kind: KindQuotaExceeded}
	ErrPolicyRejected         = &Error{Kind: KindPolicyRejected}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrRemote                 = &Error{Kind: KindRemote}
)

// Error is the tagged failure returned across the core's boundary.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "files.upload".
	Op string
	// Detail is a short human readable description from the remote side.
	Detail string
	// MIMEType is set for KindUnsupportedContentType.
	MIMEType string
	// Status is the upstream HTTP status, when there was one.
	Status int
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.MIMEType != "" {
		fmt.Fprintf(&b, " (%s)", e.MIMEType)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " [status %d]", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match on Kind so that sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates a tagged error.
func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap tags err with kind. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// UnsupportedContentType reports a terminal upload rejection for mimeType.
func UnsupportedContentType(op, mimeType string) *Error {
	return &Error{
		Kind:     KindUnsupportedContentType,
		Op:       op,
		MIMEType: mimeType,
		Detail:   fmt.Sprintf("content type %q is not supported", mimeType),
	}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MIMETypeOf returns the offending MIME type carried by err, if any.
func MIMETypeOf(err error) string {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return ""
		}
		if e.MIMEType != "" {
			return e.MIMEType
		}
		err = e.Err
	}
	return ""
}
