package volume

import (
	"fmt"
	"strings"
)

// NormalizeLetter canonicalizes a drive identifier to a bare uppercase letter.
// Accepted forms are a single ASCII letter optionally suffixed with ":", "\"
// or "/" in any combination ("e", "E:", "e:\", "E/").
func NormalizeLetter(drive string) (string, error) {
	trimmed := strings.TrimSpace(drive)
	trimmed = strings.TrimRight(trimmed, ":\\/")
	if len(trimmed) != 1 {
		return "", fmt.Errorf("invalid drive identifier %q", drive)
	}
	c := trimmed[0]
	switch {
	case c >= 'a' && c <= 'z':
		c -= 'a' - 'A'
	case c >= 'A' && c <= 'Z':
	default:
		return "", fmt.Errorf("invalid drive identifier %q", drive)
	}
	return string(c), nil
}

// Root returns the filesystem root for a normalized letter, e.g. `E:\`.
func Root(letter string) string {
	return letter + `:\`
}

// Prefix returns the path prefix for a normalized letter, e.g. "E:".
func Prefix(letter string) string {
	return letter + ":"
}

// DevicePath returns the raw volume device path, e.g. `\\.\E:`.
func DevicePath(letter string) string {
	return `\\.\` + letter + ":"
}
