// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package eval implements the sandboxed arithmetic evaluator.
//
// Expressions are parsed by a restricted recursive-descent grammar: numbers,
// identifiers bound in a Scope, the constants PI and E, + - * / % and **, and
// a fixed set of math functions. Nothing else is reachable from expression text.
package eval

import (
	"errors"
	"fmt"
	"math"

	"nickandperla.net/tally/internal/expr"
	"nickandperla.net/tally/internal/token"
)

var (
	ErrSyntax          = errors.New("syntax error")
	ErrUnbound         = errors.New("unbound identifier")
	ErrNonFinite       = errors.New("non-finite result")
	ErrUnknownFunction = errors.New("unknown function")
	ErrArity           = errors.New("wrong number of arguments")
	ErrTooComplex      = errors.New("expression too complex")
)

// Program is a parsed and statically checked expression.
type Program struct {
	root expr.Expr
}

// Compile parses src and checks every call against the builtin table.
// A compiled Program is syntactically evaluable; it may still fail at
// evaluation time on unbound names or non-finite arithmetic.
func Compile(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	var checkErr error
	expr.Walk(root, func(n expr.Expr) {
		call, ok := n.(expr.Call)
		if !ok || checkErr != nil {
			return
		}
		b, ok := getBuiltin(call.Name)
		if !ok {
			checkErr = fmt.Errorf("%w: %s", ErrUnknownFunction, call.Name)
			return
		}
		if len(call.Args) < b.minArgs || (b.maxArgs >= 0 && len(call.Args) > b.maxArgs) {
			checkErr = fmt.Errorf("%w: %s takes %s, got %d", ErrArity, call.Name, arityString(b), len(call.Args))
		}
	})
	if checkErr != nil {
		return nil, checkErr
	}
	return &Program{root: root}, nil
}

func arityString(b builtin) string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("at least %d", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("%d", b.minArgs)
	}
	return fmt.Sprintf("%d to %d", b.minArgs, b.maxArgs)
}

// String returns the canonical form of the program.
func (p *Program) String() string { return p.root.String() }

// FreeNames returns identifiers that must come from a Scope (constants excluded).
func (p *Program) FreeNames() []string {
	var names []string
	for _, name := range expr.Idents(p.root) {
		if !IsConstant(name) {
			names = append(names, name)
		}
	}
	return names
}

// Eval evaluates the program against scope.
func (p *Program) Eval(scope Scope) (float64, error) {
	v, err := evalNode(p.root, scope)
	if err != nil {
		return 0, err
	}
	if !isFinite(v) {
		return 0, ErrNonFinite
	}
	return v, nil
}

// Eval compiles and evaluates src against scope.
func Eval(src string, scope Scope) (float64, error) {
	p, err := Compile(src)
	if err != nil {
		return 0, err
	}
	return p.Eval(scope)
}

// Evaluate is Eval with failures collapsed to ok=false. It never panics.
func Evaluate(src string, scope Scope) (float64, bool) {
	v, err := Eval(src, scope)
	if err != nil {
		return 0, false
	}
	return v, true
}

func evalNode(n expr.Expr, scope Scope) (float64, error) {
	switch n := n.(type) {
	case expr.Number:
		return n.Value, nil

	case expr.Ident:
		if v, ok := scope.Lookup(n.Name); ok {
			return v, nil
		}
		if v, ok := constants[n.Name]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("%w: %s", ErrUnbound, n.Name)

	case expr.Unary:
		x, err := evalNode(n.X, scope)
		if err != nil {
			return 0, err
		}
		if n.Op == token.MINUS {
			return -x, nil
		}
		return x, nil

	case expr.Binary:
		x, err := evalNode(n.X, scope)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(n.Y, scope)
		if err != nil {
			return 0, err
		}
		return finite(binary(n.Op, x, y))

	case expr.Call:
		b, ok := getBuiltin(n.Name)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownFunction, n.Name)
		}
		if len(n.Args) < b.minArgs || (b.maxArgs >= 0 && len(n.Args) > b.maxArgs) {
			return 0, fmt.Errorf("%w: %s", ErrArity, n.Name)
		}
		args := make([]float64, len(n.Args))
		for i, a := range n.Args {
			v, err := evalNode(a, scope)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return finite(b.fn(args))
	}
	return 0, fmt.Errorf("%w: unsupported node %T", ErrSyntax, n)
}

func binary(op token.Token, x, y float64) float64 {
	switch op {
	case token.PLUS:
		return x + y
	case token.MINUS:
		return x - y
	case token.STAR:
		return x * y
	case token.SLASH:
		if y == 0 {
			return math.NaN()
		}
		return x / y
	case token.MOD:
		return math.Mod(x, y)
	case token.POWER:
		return math.Pow(x, y)
	}
	return math.NaN()
}

func finite(v float64) (float64, error) {
	if !isFinite(v) {
		return 0, ErrNonFinite
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
