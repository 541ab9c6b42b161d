// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package expr defines the arithmetic expression tree.
package expr

import (
	"strconv"
	"strings"

	"nickandperla.net/tally/internal/token"
)

// Expr is the interface all expression types implement.
type Expr interface {
	// String returns the canonical, fully parenthesised form of the expression.
	String() string
}

// Number is a numeric literal.
type Number struct {
	Value float64
}

func (n Number) String() string { return strconv.FormatFloat(n.Value, 'f', -1, 64) }

// Ident is a reference to a scope binding or a constant.
type Ident struct {
	Name string
}

func (i Ident) String() string { return i.Name }

// Unary is a prefix sign operator.
type Unary struct {
	Op token.Token // PLUS or MINUS
	X  Expr
}

func (u Unary) String() string { return "(" + u.Op.String() + u.X.String() + ")" }

// Binary is an infix arithmetic operator.
type Binary struct {
	Op   token.Token
	X, Y Expr
}

func (b Binary) String() string {
	return "(" + b.X.String() + " " + b.Op.String() + " " + b.Y.String() + ")"
}

// Call is a function call with positional arguments.
type Call struct {
	Name string
	Args []Expr
}

func (c Call) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteString("(")
	for i, a := range c.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// Idents returns the identifier names referenced by e, in first-seen order.
func Idents(e Expr) []string {
	seen := make(map[string]bool)
	var names []string
	Walk(e, func(n Expr) {
		if id, ok := n.(Ident); ok && !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	})
	return names
}

// Walk calls fn for e and every sub-expression, depth first.
func Walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch n := e.(type) {
	case Unary:
		Walk(n.X, fn)
	case Binary:
		Walk(n.X, fn)
		Walk(n.Y, fn)
	case Call:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}
