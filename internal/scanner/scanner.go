// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package scanner provides a streaming Unicode-aware lexer for arithmetic expressions.
package scanner

import (
	"bufio"
	"io"
	"strings"
	"unicode"

	"nickandperla.net/tally/internal/token"
)

// Scanner tokenizes an expression rune-by-rune.
type Scanner struct {
	reader *bufio.Reader
	buf    strings.Builder
	peeked *Item
	pos    int // Offset in runes of the next unread rune
}

// Item represents a scanned token with its value.
type Item struct {
	Token token.Token
	Value string
	Pos   int // Rune offset where this token started
}

// New creates a new Scanner from an io.Reader.
func New(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReader(r)}
}

// NewFromString creates a new Scanner from a string.
func NewFromString(s string) *Scanner {
	return New(strings.NewReader(s))
}

// Pos returns the rune offset of the next unread rune.
func (s *Scanner) Pos() int {
	return s.pos
}

// Peek returns the next item without consuming it.
func (s *Scanner) Peek() (*Item, error) {
	if s.peeked != nil {
		return s.peeked, nil
	}
	item, err := s.Next()
	if err != nil {
		return nil, err
	}
	s.peeked = item
	return item, nil
}

// Next returns the next token from the input.
func (s *Scanner) Next() (*Item, error) {
	if s.peeked != nil {
		item := s.peeked
		s.peeked = nil
		return item, nil
	}

	if err := s.skipWhitespace(); err != nil {
		return nil, err
	}

	start := s.pos
	r, err := s.read()
	if err == io.EOF {
		return &Item{Token: token.EOF, Pos: start}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case isDigit(r) || r == '.':
		s.unread()
		return s.scanNumber(start)
	case isIdentStart(r):
		s.unread()
		return s.scanIdent(start)
	case r == token.RuneStar:
		// ** is the power operator
		next, err := s.read()
		if err == nil && next == token.RuneStar {
			return &Item{Token: token.POWER, Value: "**", Pos: start}, nil
		}
		if err == nil {
			s.unread()
		} else if err != io.EOF {
			return nil, err
		}
		return &Item{Token: token.STAR, Value: "*", Pos: start}, nil
	case token.IsOperator(r):
		return &Item{Token: token.TokenFromRune(r), Value: string(r), Pos: start}, nil
	}

	return &Item{Token: token.ILLEGAL, Value: string(r), Pos: start}, nil
}

// scanNumber reads a decimal literal with optional fraction and exponent.
// Numbers are ASCII, so it looks ahead with byte peeks instead of unreading runes.
func (s *Scanner) scanNumber(start int) (*Item, error) {
	s.buf.Reset()
	seenDot := false
	seenDigit := false

	for {
		b, err := s.peekByte()
		if err != nil {
			break
		}
		if isDigit(rune(b)) {
			seenDigit = true
		} else if b == '.' && !seenDot {
			seenDot = true
		} else if (b == 'e' || b == 'E') && seenDigit && s.exponentFollows() {
			s.consume(1)
			s.buf.WriteByte(b)
			if sign, _ := s.peekByte(); sign == '+' || sign == '-' {
				s.consume(1)
				s.buf.WriteByte(sign)
			}
			for {
				d, err := s.peekByte()
				if err != nil || !isDigit(rune(d)) {
					break
				}
				s.consume(1)
				s.buf.WriteByte(d)
			}
			break
		} else {
			break
		}
		s.consume(1)
		s.buf.WriteByte(b)
	}

	if !seenDigit {
		return &Item{Token: token.ILLEGAL, Value: s.buf.String(), Pos: start}, nil
	}
	return &Item{Token: token.NUMBER, Value: s.buf.String(), Pos: start}, nil
}

// exponentFollows reports whether the bytes after a pending 'e' form an exponent.
func (s *Scanner) exponentFollows() bool {
	b, _ := s.reader.Peek(3)
	if len(b) < 2 {
		return false
	}
	if isDigit(rune(b[1])) {
		return true
	}
	if (b[1] == '+' || b[1] == '-') && len(b) == 3 {
		return isDigit(rune(b[2]))
	}
	return false
}

// consume discards n already-peeked ASCII bytes.
func (s *Scanner) consume(n int) {
	discarded, _ := s.reader.Discard(n)
	s.pos += discarded
}

func (s *Scanner) peekByte() (byte, error) {
	b, err := s.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// scanIdent reads an identifier: a letter or underscore followed by letters, digits, underscores.
func (s *Scanner) scanIdent(start int) (*Item, error) {
	s.buf.Reset()
	for {
		r, err := s.read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if !isIdentChar(r) {
			s.unread()
			break
		}
		s.buf.WriteRune(r)
	}
	return &Item{Token: token.IDENT, Value: s.buf.String(), Pos: start}, nil
}

func (s *Scanner) skipWhitespace() error {
	for {
		r, err := s.read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !unicode.IsSpace(r) {
			s.unread()
			return nil
		}
	}
}

func (s *Scanner) read() (rune, error) {
	r, _, err := s.reader.ReadRune()
	if err != nil {
		return 0, err
	}
	s.pos++
	return r, nil
}

func (s *Scanner) unread() {
	if s.reader.UnreadRune() == nil {
		s.pos--
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

// isIdentChar returns true if the rune is valid in an identifier (letter, digit, underscore).
func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
