// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package token defines the token kinds of the tally arithmetic grammar.
package token

// Token represents an arithmetic token type.
type Token int

const (
	EOF Token = iota
	ILLEGAL
	NUMBER
	IDENT

	// Operators
	PLUS   // +
	MINUS  // -
	STAR   // *
	SLASH  // /
	MOD    // %
	POWER  // ** (also written ^ before normalization)
	LPAREN // (
	RPAREN // )
	COMMA  // ,
)

// Operator runes recognised by the scanner.
const (
	RunePlus   = '+'
	RuneMinus  = '-'
	RuneStar   = '*'
	RuneSlash  = '/'
	RuneMod    = '%'
	RuneCaret  = '^'
	RuneLParen = '('
	RuneRParen = ')'
	RuneComma  = ','
)

// IsOperator returns true if the rune starts an operator token.
func IsOperator(r rune) bool {
	switch r {
	case RunePlus, RuneMinus, RuneStar, RuneSlash, RuneMod, RuneCaret,
		RuneLParen, RuneRParen, RuneComma:
		return true
	}
	return false
}

// TokenFromRune returns the token type for a single-rune operator.
// A '*' is returned as STAR; the scanner upgrades '**' to POWER.
func TokenFromRune(r rune) Token {
	switch r {
	case RunePlus:
		return PLUS
	case RuneMinus:
		return MINUS
	case RuneStar:
		return STAR
	case RuneSlash:
		return SLASH
	case RuneMod:
		return MOD
	case RuneCaret:
		return POWER
	case RuneLParen:
		return LPAREN
	case RuneRParen:
		return RPAREN
	case RuneComma:
		return COMMA
	}
	return ILLEGAL
}

// String returns the string representation of a token.
func (t Token) String() string {
	switch t {
	case EOF:
		return "EOF"
	case ILLEGAL:
		return "ILLEGAL"
	case NUMBER:
		return "NUMBER"
	case IDENT:
		return "IDENT"
	case PLUS:
		return "+"
	case MINUS:
		return "-"
	case STAR:
		return "*"
	case SLASH:
		return "/"
	case MOD:
		return "%"
	case POWER:
		return "**"
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case COMMA:
		return ","
	}
	return "UNKNOWN"
}

// IsBinary returns true if the token is an infix arithmetic operator.
func (t Token) IsBinary() bool {
	switch t {
	case PLUS, MINUS, STAR, SLASH, MOD, POWER:
		return true
	}
	return false
}

// Precedence returns the binding power of an infix operator, or 0.
func (t Token) Precedence() int {
	switch t {
	case PLUS, MINUS:
		return 1
	case STAR, SLASH, MOD:
		return 2
	case POWER:
		return 4
	}
	return 0
}
