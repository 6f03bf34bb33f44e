package oauth

// RedactedToken wraps a sensitive token string to prevent accidental logging.
//
// It prints as "[REDACTED]" through fmt, text and JSON encoding. Use Value
// only where the token is actually sent.
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value. Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// String implements fmt.Stringer. Empty tokens print as the empty string
// so that absence stays visible.
func (t RedactedToken) String() string {
	if t.value == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{" + t.String() + "}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
