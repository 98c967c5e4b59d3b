// Package textenc guesses the character encoding of file contents and
// transcodes them to UTF-8.
package textenc

import (
	"bytes"
	"io"
	"strings"

	"github.com/gogs/chardet"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// SampleSize is the size of the leading block of a file looked at by Detect
const SampleSize = 8192

// ErrUnknownEncoding is returned when decoding from an encoding which is not supported
var ErrUnknownEncoding = errors.New("unknown encoding")

// longest marks first: the UTF-32LE mark starts with the UTF-16LE one
var boms = []struct {
	mark     []byte
	encoding string
}{
	{mark: []byte{0xff, 0xfe, 0, 0}, encoding: "utf-32"},
	{mark: []byte{0, 0, 0xfe, 0xff}, encoding: "utf-32be"},
	{mark: []byte{0xef, 0xbb, 0xbf}, encoding: "utf-8"},
	{mark: []byte{0xff, 0xfe}, encoding: "utf-16"},
	{mark: []byte{0xfe, 0xff}, encoding: "utf-16be"},
}

// Detect returns the encoding of a block of text: the encoding announced by a byte order mark,
// else the encoding recognized with full confidence. It returns an empty string when unsure.
func Detect(block []byte) string {
	for _, bom := range boms {
		if bytes.HasPrefix(block, bom.mark) {
			return bom.encoding
		}
	}
	if isASCII(block) {
		return "utf-8"
	}

	result, err := chardet.NewTextDetector().DetectBest(block)
	if err != nil || result.Confidence < 100 {
		return ""
	}
	if strings.EqualFold(result.Charset, "ascii") {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// DetectOr is like Detect, with a fallback encoding
func DetectOr(block []byte, fallback string) string {
	if enc := Detect(block); enc != "" {
		return enc
	}
	return fallback
}

func isASCII(block []byte) bool {
	for _, b := range block {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// NewReader transcodes a stream to UTF-8. Byte order marks are dropped.
func NewReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	case "utf-16", "utf-16le":
		return transform.NewReader(r, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()), nil
	case "utf-16be":
		return transform.NewReader(r, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()), nil
	case "utf-32", "utf-32le":
		return transform.NewReader(r, utf32.UTF32(utf32.LittleEndian, utf32.UseBOM).NewDecoder()), nil
	case "utf-32be":
		return transform.NewReader(r, utf32.UTF32(utf32.BigEndian, utf32.UseBOM).NewDecoder()), nil
	}

	decoded, err := charset.NewReaderLabel(encoding, r)
	if err != nil {
		return nil, ErrUnknownEncoding.Wrap(err)
	}
	return decoded, nil
}

// Decode transcodes a block of text to UTF-8
func Decode(block []byte, encoding string) (string, error) {
	r, err := NewReader(bytes.NewReader(block), encoding)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if _, err = io.Copy(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}
