package markup

import (
	"bytes"

	"golang.org/x/text/encoding/charmap"
)

// CodePage selects how literal text is transcoded to printer bytes.
type CodePage int

const (
	// CodePageCP1252 transcodes Unicode text to Windows-1252, substituting
	// '?' for code points the printer's default code page can't represent.
	CodePageCP1252 CodePage = iota
	// CodePageUTF8 leaves text as UTF-8 and emits the protocol's two-command
	// UTF-8 enablement prologue instead of a code-page selector byte.
	CodePageUTF8
)

// prologue returns the document-leading byte sequence that selects the
// code page in effect for the rest of the stream.
func (cp CodePage) prologue() []byte {
	switch cp {
	case CodePageUTF8:
		out := append([]byte{}, cmdUTF8EnablePart1...)
		return append(out, cmdUTF8EnablePart2...)
	default:
		out := append([]byte{}, cmdCodePagePrefix...)
		return append(out, codePageWindows1252)
	}
}

// encode transcodes literal text to printer bytes per the selected code page.
func (cp CodePage) encode(s string) []byte {
	if cp == CodePageUTF8 {
		return []byte(s)
	}
	return encodeCP1252(s)
}

// encodeCP1252 transcodes s to Windows-1252, rune by rune, substituting '?'
// for any rune the code page cannot represent.
func encodeCP1252(s string) []byte {
	enc := charmap.Windows1252.NewEncoder()
	var buf bytes.Buffer
	for _, r := range s {
		out, err := enc.String(string(r))
		if err != nil {
			buf.WriteByte('?')
			continue
		}
		buf.WriteString(out)
	}
	return buf.Bytes()
}
