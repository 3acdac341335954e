package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
)

// maxDetailLen caps the raw body kept in an error detail.
const maxDetailLen = 300

// mimeRejection matches storage messages like "mime type image/svg+xml is not supported".
var mimeRejection = regexp.MustCompile(`(?i)mime type ([\w.+-]+/[\w.+-]+) is not supported`)

// mimeToken finds a bare MIME type anywhere in a message.
var mimeToken = regexp.MustCompile(`(?i)\b(?:application|audio|font|image|message|model|multipart|text|video)/[\w.+-]+`)

var (
	quotaMarkers = []string{
		"quota",
		"payload too large",
		"exceeded the maximum allowed size",
		"entitytoolarge",
	}
	policyMarkers = []string{
		"row-level security",
		"row level security",
	}
	// Backend phrasings of an expired or rejected credential beyond the
	// generic markers in the errors package.
	jwtMarkers = []string{
		"invalidjwt",
		"invalid jwt",
		"token is expired",
		"exp\" claim",
		"expiredtoken",
	}
)

// errorBody covers the error envelopes of storage, PostgREST and the edge
// functions.
type errorBody struct {
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Code             string `json:"code"`
}

func classifyResponse(op string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	return Classify(op, resp.StatusCode, string(body))
}

// Classify turns an upstream failure status and body into a tagged error.
// This is the only place that inspects upstream error text.
func Classify(op string, status int, body string) error {
	detail := errorDetail(body)
	lower := strings.ToLower(detail + " " + body)

	if m := mimeRejection.FindStringSubmatch(detail + " " + body); m != nil || status == http.StatusUnsupportedMediaType {
		mimeType := ""
		if m != nil {
			mimeType = m[1]
		}
		e := apperr.UnsupportedContentType(op, mimeType)
		e.Status = status
		return e
	}

	kind := apperr.KindRemote
	switch {
	case status == http.StatusRequestEntityTooLarge || containsAny(lower, quotaMarkers):
		kind = apperr.KindQuotaExceeded
	case containsAny(lower, policyMarkers):
		kind = apperr.KindPolicyRejected
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		containsAny(lower, jwtMarkers) || apperr.LooksExpired(detail):
		kind = apperr.KindAuthExpired
	case status == http.StatusNotFound:
		kind = apperr.KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		kind = apperr.KindValidation
	}
	return &apperr.Error{Kind: kind, Op: op, Status: status, Detail: detail}
}

func errorDetail(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal([]byte(body), &eb); err == nil {
		for _, s := range []string{eb.Message, eb.ErrorDescription, eb.Msg, eb.Error} {
			if s != "" {
				return s
			}
		}
	}
	if len(body) > maxDetailLen {
		cut := maxDetailLen
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		return body[:cut] + "…"
	}
	return body
}

// mimeInMessage extracts the MIME type named by a rejection message, or "".
func mimeInMessage(message string) string {
	if m := mimeRejection.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return mimeToken.FindString(message)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
