package attachment

import "strings"

// RefScheme prefixes indirect attachment references embedded in message
// image parts. The reference form is stored; resolution to a servable link
// happens only at model-call time.
const RefScheme = "chatbot://"

// MakeRef builds the indirect reference for an attachment id.
func MakeRef(id string) string {
	return RefScheme + id
}

// ParseRef extracts the attachment id from an indirect reference. Trailing
// slashes and surrounding whitespace are tolerated. Returns false when the
// value is not a reference or carries no id.
func ParseRef(ref string) (string, bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", false
	}
	id := strings.TrimRight(strings.TrimSpace(strings.TrimPrefix(ref, RefScheme)), "/")
	if id == "" {
		return "", false
	}
	return id, true
}
