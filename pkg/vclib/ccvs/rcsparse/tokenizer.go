package rcsparse

import (
	"bufio"
	"bytes"
	"io"
)

const chunkSize = 192 * 512

// tokenStream splits an RCS file into tokens: words, "@" delimited strings
// (with "@@" standing for a literal "@"), and the ";" and ":" punctuation.
type tokenStream struct {
	r      *bufio.Reader
	pushed []byte
	hasPut bool
}

func newTokenStream(r io.Reader) *tokenStream {
	return &tokenStream{r: bufio.NewReaderSize(r, chunkSize)}
}

func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isTerminator(c byte) bool {
	return isWhitespace(c) || c == ';' || c == ':'
}

// get the next token. At end of input, get returns io.EOF.
func (t *tokenStream) get() ([]byte, error) {
	if t.hasPut {
		t.hasPut = false
		return t.pushed, nil
	}

	var c byte
	var err error
	for {
		c, err = t.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if !isWhitespace(c) {
			break
		}
	}

	switch c {
	case ';', ':':
		return []byte{c}, nil
	case '@':
		return t.getString()
	}

	token := []byte{c}
	for {
		c, err = t.r.ReadByte()
		if err == io.EOF {
			// a word cut by the end of the file is not a complete token
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
		if isTerminator(c) {
			_ = t.r.UnreadByte()
			return token, nil
		}
		token = append(token, c)
	}
}

func (t *tokenStream) getString() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := t.r.ReadSlice('@')
		if err == bufio.ErrBufferFull {
			buf.Write(chunk)
			continue
		}
		if err != nil {
			return nil, ErrUnexpectedEOF
		}
		buf.Write(chunk[:len(chunk)-1])

		next, err := t.r.ReadByte()
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		if next != '@' {
			_ = t.r.UnreadByte()
			return buf.Bytes(), nil
		}
		buf.WriteByte('@')
	}
}

// match consumes the next token, which must be the expected one
func (t *tokenStream) match(expected string) error {
	token, err := t.get()
	if err == io.EOF {
		return ErrUnexpectedEOF
	}
	if err != nil {
		return err
	}
	if string(token) != expected {
		return expectedError(expected, token)
	}
	return nil
}

// unget pushes back a token, returned by the next get
func (t *tokenStream) unget(token []byte) {
	t.pushed = token
	t.hasPut = true
}

// mustGet is like get, but the end of input is an error
func (t *tokenStream) mustGet() ([]byte, error) {
	token, err := t.get()
	if err == io.EOF {
		return nil, ErrUnexpectedEOF
	}
	return token, err
}

// untilSemicolon reads all tokens up to the next semicolon, which is consumed
func (t *tokenStream) untilSemicolon() ([][]byte, error) {
	var tokens [][]byte
	for {
		token, err := t.mustGet()
		if err != nil {
			return nil, err
		}
		if string(token) == ";" {
			return tokens, nil
		}
		tokens = append(tokens, token)
	}
}
