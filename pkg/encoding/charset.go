// Package encoding provides text encoding utilities for scene files and exported identifiers.
package encoding

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultFallbackCharset is used for scene text that is not valid UTF-8 and
// declares no codeset. Maya on Windows writes the system code page.
const DefaultFallbackCharset = "windows-1252"

// Lookup returns the decoder for a charset name such as "utf-8", "cp1252",
// "shift_jis" or "euc-kr".
func Lookup(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf8", "utf-8":
		return encoding.Nop, nil
	case "cp1252":
		n = "windows-1252"
	case "sjis", "cp932":
		n = "shift_jis"
	case "cp949":
		return korean.EUCKR, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}
	return enc, nil
}

// DecodeText converts scene file bytes to a UTF-8 string. Valid UTF-8 is
// returned as-is; anything else is decoded with the named charset.
// A UTF-8 byte order mark is stripped.
func DecodeText(data []byte, charset string) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	if charset == "" {
		charset = DefaultFallbackCharset
	}
	enc, err := Lookup(charset)
	if err != nil {
		return "", err
	}
	if enc == encoding.Nop {
		// Declared UTF-8 but invalid: keep going with replacement characters.
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	result, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", charset, err)
	}
	return string(result), nil
}

// FoldASCII strips diacritics so "Caméra_01" becomes "Camera_01".
// Characters without an ASCII base form are kept for the caller to sanitise.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
