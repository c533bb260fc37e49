// Package guid implements the 128-bit interface/type identifiers used
// throughout the IPC fabric, the 32-bit FNV-1a hash used for compact wire
// dispatch, and the 64-bit encoded ObjectId.
package guid

import (
	"strings"

	"github.com/google/uuid"
)

// Guid is a 128-bit interface or type identifier.
type Guid [16]byte

// Nil is the all-zero Guid.
var Nil Guid

// ParseGuid parses the canonical 36-character textual form
// XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX. Length is checked before handing
// off to uuid.Parse so the two failure modes the wire format
// distinguishes (bad length vs bad characters) can be told apart; uuid.Parse
// itself does not make that distinction.
func ParseGuid(text string) (Guid, error) {
	if len(text) != 36 {
		return Nil, &ParseError{Text: text, Code: ErrCodeInvalidStringSize}
	}
	u, err := uuid.Parse(text)
	if err != nil {
		return Nil, &ParseError{Text: text, Code: ErrCodeInvalidString, Inner: err}
	}
	return Guid(u), nil
}

// MustParseGuid parses text and panics on error. Intended for static
// interface-id tables built at init time.
func MustParseGuid(text string) Guid {
	g, err := ParseGuid(text)
	if err != nil {
		panic(err)
	}
	return g
}

// String renders the canonical 36-character textual form.
func (g Guid) String() string {
	return uuid.UUID(g).String()
}

// IsNil reports whether g is the all-zero Guid.
func (g Guid) IsNil() bool {
	return g == Nil
}

// GuidErrorCode enumerates the two ways GUID text can fail to parse.
type GuidErrorCode int

const (
	ErrCodeInvalidString GuidErrorCode = iota
	ErrCodeInvalidStringSize
)

// ParseError is returned by ParseGuid.
type ParseError struct {
	Text  string
	Code  GuidErrorCode
	Inner error
}

func (e *ParseError) Error() string {
	switch e.Code {
	case ErrCodeInvalidStringSize:
		return "guid: invalid string size: " + e.Text
	default:
		return "guid: invalid string: " + e.Text
	}
}

func (e *ParseError) Unwrap() error { return e.Inner }

// normalizeGuidText strips surrounding braces and upper-cases the text,
// matching the original IPC GUID-hashing normalization (Fnv1aHashGuid
// upper-cases before hashing) so that "{abcd...}" and "ABCD..." hash
// identically, and so a hex-letter GUID produces the same interface_id
// as the original implementation.
func normalizeGuidText(text string) string {
	text = strings.TrimPrefix(text, "{")
	text = strings.TrimSuffix(text, "}")
	return strings.ToUpper(text)
}
