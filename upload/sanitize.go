package upload

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

const maxFilenameLength = 255

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename turns a client supplied filename into a name that is safe
// both as a path component in scratch storage and as an object key.
// Directory parts are dropped, unsafe characters become '_' and leading dots
// are stripped.
func SanitizeFilename(name string) (string, error) {
	clean := strings.ReplaceAll(name, `\`, "/")
	clean = strings.Trim(path.Base(clean), "/")
	clean = unsafeFilenameChars.ReplaceAllString(clean, "_")
	clean = strings.TrimLeft(clean, ".")
	if len(clean) > maxFilenameLength {
		clean = clean[:maxFilenameLength]
	}
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return clean, nil
}
