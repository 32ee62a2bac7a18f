package storage

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// SanitizeFilename reduces name to ASCII letters, digits, '.', '_' and '-'.
// Path separators and whitespace become '_', leading and trailing dots and
// underscores are dropped. The result may be empty.
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || unicode.IsSpace(r):
			return ' '
		case r > unicode.MaxASCII:
			return -1
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), "_")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-':
			return r
		}
		return -1
	}, name)
	return strings.Trim(name, "._")
}

// SplitExt returns the base and the lower-cased extension of name.
func SplitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), strings.ToLower(ext)
}
