// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

package eval

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"nickandperla.net/tally/internal/expr"
	"nickandperla.net/tally/internal/scanner"
	"nickandperla.net/tally/internal/token"
)

// Limits applied to untrusted expression text.
const (
	MaxLength = 4096 // runes
	MaxDepth  = 64   // nested unary operators, parentheses and calls
)

// unaryPrecedence sits between multiplicative and power operators,
// so -2**2 is -(2**2) and -2*3 is (-2)*3.
const unaryPrecedence = 3

type parser struct {
	scan  *scanner.Scanner
	cur   *scanner.Item
	depth int
}

// Parse parses src into an expression tree.
func Parse(src string) (expr.Expr, error) {
	if utf8.RuneCountInString(src) > MaxLength {
		return nil, fmt.Errorf("%w: input longer than %d characters", ErrTooComplex, MaxLength)
	}
	p := &parser{scan: scanner.NewFromString(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.cur.Token == token.EOF {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}
	e, err := p.parseBinary(1)
	if err != nil {
		return nil, err
	}
	if p.cur.Token != token.EOF {
		return nil, p.unexpected()
	}
	return e, nil
}

func (p *parser) advance() error {
	item, err := p.scan.Next()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	p.cur = item
	return nil
}

func (p *parser) unexpected() error {
	if p.cur.Token == token.EOF {
		return fmt.Errorf("%w: unexpected end of expression", ErrSyntax)
	}
	return fmt.Errorf("%w: unexpected %q at offset %d", ErrSyntax, p.cur.Value, p.cur.Pos)
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return fmt.Errorf("%w: nesting deeper than %d", ErrTooComplex, MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// parseBinary implements precedence climbing over the infix operators.
func (p *parser) parseBinary(minPrec int) (expr.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur.Token
		prec := op.Precedence()
		if !op.IsBinary() || prec < minPrec {
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		next := prec + 1
		if op == token.POWER {
			// right associative
			next = prec
		}
		right, err := p.parseBinary(next)
		if err != nil {
			return nil, err
		}
		left = expr.Binary{Op: op, X: left, Y: right}
	}
}

func (p *parser) parseUnary() (expr.Expr, error) {
	if p.cur.Token != token.PLUS && p.cur.Token != token.MINUS {
		return p.parsePrimary()
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	op := p.cur.Token
	if err := p.advance(); err != nil {
		return nil, err
	}
	x, err := p.parseBinary(unaryPrecedence)
	if err != nil {
		return nil, err
	}
	return expr.Unary{Op: op, X: x}, nil
}

func (p *parser) parsePrimary() (expr.Expr, error) {
	switch p.cur.Token {
	case token.NUMBER:
		v, err := strconv.ParseFloat(p.cur.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad number %q", ErrSyntax, p.cur.Value)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return expr.Number{Value: v}, nil

	case token.IDENT:
		name := p.cur.Value
		next, err := p.scan.Peek()
		if err != nil {
			return nil, err
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if next.Token == token.LPAREN {
			return p.parseCall(name)
		}
		return expr.Ident{Name: name}, nil

	case token.LPAREN:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		if p.cur.Token != token.RPAREN {
			return nil, p.unexpected()
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, p.unexpected()
}

// parseCall parses an argument list; the current token is the opening paren.
func (p *parser) parseCall(name string) (expr.Expr, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	if err := p.advance(); err != nil {
		return nil, err
	}

	call := expr.Call{Name: name}
	if p.cur.Token == token.RPAREN {
		return call, p.advance()
	}
	for {
		arg, err := p.parseBinary(1)
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		switch p.cur.Token {
		case token.COMMA:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case token.RPAREN:
			return call, p.advance()
		default:
			return nil, p.unexpected()
		}
	}
}
