package errors

import (
	"errors"
	"strings"
)

// expiryMarkers are matched case-insensitively against untyped upstream
// error text. Tagged errors never go through this path.
var expiryMarkers = []string{
	"jwt expired",
	"unauthorized",
	"401",
	"403",
}

// LooksExpired reports whether msg carries one of the credential expiry markers.
func LooksExpired(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range expiryMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// IsExpiryShaped reports whether err indicates the credential is no longer
// valid. A tagged *Error decides by Kind alone; only errors that carry no
// tag fall back to marker matching on their text.
func IsExpiryShaped(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindAuthExpired
	}
	return LooksExpired(err.Error())
}

var clientMessages = map[Kind]string{
	KindCredentialUnavailable:  "You are signed out. Please sign in again.",
	KindAuthExpired:            "Your session expired. Please sign in again.",
	KindRetriesExhausted:       "Your session could not be renewed. Please sign in again.",
	KindUnsupportedContentType: "This file type is not supported.",
	KindQuotaExceeded:          "Storage quota exceeded.",
	KindPolicyRejected:         "You do not have permission to do that.",
	KindValidation:             "The request contains invalid parameters.",
	KindNotFound:               "The requested resource was not found.",
	KindRemote:                 "The service is unavailable. Please try again later.",
}

// ClientMessage returns a user facing message for err. Unsupported content
// types name the offending MIME type.
func ClientMessage(err error) string {
	kind := KindOf(err)
	if kind == KindUnsupportedContentType {
		if mt := MIMETypeOf(err); mt != "" {
			return "Files of type " + mt + " are not supported."
		}
	}
	if msg, ok := clientMessages[kind]; ok {
		return msg
	}
	return "An unexpected internal error occurred."
}
