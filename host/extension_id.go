package host

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidExtensionID is returned when an extension id is not in a form
// any supported browser issues.
var ErrInvalidExtensionID = errors.New("invalid extension id")

// maxExtensionIDLength bounds Gecko-style ids, which are free-form.
const maxExtensionIDLength = 255

// ValidateExtensionID checks that id looks like a browser-issued extension id:
//   - Chromium: 32 characters in the range a-p
//   - Gecko: an email-like "name@domain" or a braced UUID "{...}"
func ValidateExtensionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidExtensionID)
	}
	if strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidExtensionID, id)
	}
	if len(id) > maxExtensionIDLength {
		return fmt.Errorf("%w: too long (max %d chars)", ErrInvalidExtensionID, maxExtensionIDLength)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", ErrInvalidExtensionID, id)
		}
	}

	switch {
	case isChromiumID(id):
		return nil
	case strings.HasPrefix(id, "{") && strings.HasSuffix(id, "}") && len(id) > 2:
		return nil
	case strings.Count(id, "@") == 1 && !strings.HasPrefix(id, "@") && !strings.HasSuffix(id, "@"):
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidExtensionID, id)
}

func isChromiumID(id string) bool {
	if len(id) != 32 {
		return false
	}
	for _, r := range id {
		if r < 'a' || r > 'p' {
			return false
		}
	}
	return true
}
