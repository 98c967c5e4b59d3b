package textenc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viewvc/viewvc-sub000/pkg/errors"
)

func TestDetect(t *testing.T) {
	utf8Text := strings.Repeat("Größenänderung für Übergänge, ça déménage. ", 20)

	for _, toPin := range []struct {
		name     string
		block    []byte
		expected string
	}{
		{name: "utf-8 bom", block: []byte("\xef\xbb\xbfhello"), expected: "utf-8"},
		{name: "utf-16 bom", block: []byte("\xff\xfeh\x00i\x00"), expected: "utf-16"},
		{name: "utf-16be bom", block: []byte("\xfe\xff\x00h\x00i"), expected: "utf-16be"},
		{name: "utf-32 bom", block: []byte("\xff\xfe\x00\x00h\x00\x00\x00"), expected: "utf-32"},
		{name: "utf-32be bom", block: []byte("\x00\x00\xfe\xff\x00\x00\x00h"), expected: "utf-32be"},
		{name: "ascii", block: []byte("plain text\n"), expected: "utf-8"},
		{name: "empty", block: nil, expected: "utf-8"},
		{name: "utf-8", block: []byte(utf8Text), expected: "utf-8"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			assert.Equal(t, fixture.expected, Detect(fixture.block))
		})
	}

	assert.Equal(t, "latin1", DetectOr([]byte("\xff"), "latin1"))
}

func TestDecode(t *testing.T) {
	for _, toPin := range []struct {
		name     string
		block    []byte
		encoding string
		expected string
	}{
		{name: "utf-8 bom dropped", block: []byte("\xef\xbb\xbfhé"), encoding: "utf-8", expected: "hé"},
		{name: "utf-16", block: []byte("\xff\xfeh\x00i\x00"), encoding: "utf-16", expected: "hi"},
		{name: "utf-16be", block: []byte("\xfe\xff\x00h\x00i"), encoding: "utf-16be", expected: "hi"},
		{name: "utf-32", block: []byte("\xff\xfe\x00\x00h\x00\x00\x00"), encoding: "utf-32", expected: "h"},
		{name: "latin1", block: []byte("caf\xe9"), encoding: "iso-8859-1", expected: "café"},
		{name: "windows-1252", block: []byte("\x93quoted\x94"), encoding: "windows-1252", expected: "“quoted”"},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			text, err := Decode(fixture.block, fixture.encoding)
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, text)
		})
	}

	_, err := Decode([]byte("x"), "klingon")
	assert.True(t, errors.Is(err, ErrUnknownEncoding))
}
