// Package textdecode normalises machine-produced text before parsing.
package textdecode

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns content as valid UTF-8. NUL bytes are dropped and content that
// is not UTF-8 is read as Windows-1252, which is what the Windows machine
// controllers write. It never fails.
func Decode(raw []byte) string {
	clean := bytes.ReplaceAll(raw, []byte{0}, nil)
	clean = bytes.TrimPrefix(clean, utf8BOM)

	if utf8.Valid(clean) {
		return string(clean)
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(clean)
	if err != nil {
		return string(bytes.ToValidUTF8(clean, []byte("�")))
	}
	return string(decoded)
}
