// Package encoding decodes the legacy Korean text found in RSM model files.
package encoding

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// EUCKRToUTF8 converts EUC-KR encoded bytes to a UTF-8 string.
// ASCII input is returned unchanged; input that fails to decode is returned as-is.
func EUCKRToUTF8(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	result, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil || !utf8.Valid(result) {
		return string(data)
	}
	return string(result)
}

// FixedStringToUTF8 converts a fixed-size, NUL-padded EUC-KR field to UTF-8.
func FixedStringToUTF8(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return EUCKRToUTF8(data)
}

// UTF8ToFixedString encodes s as EUC-KR into a NUL-padded field of the given
// size, truncating if needed. Used to build RSM fixtures.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	encoded, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	if err != nil {
		encoded = []byte(s)
	}
	copy(result, encoded)
	return result
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
