// Package rules implements the small condition language used by compliance
// status rules and conditional due-date rules, for example:
//
//	result=='Satisfactory'
//	risk_rating in ['Low','Moderate']
//	result=='Unsatisfactory' || (C1!='' && C1!='0')
//
// Conditions are parsed once into an AST and evaluated against extracted
// field values. A field that was not extracted compares as the empty string.
package rules

import (
	"strconv"
	"strings"
)

// Expr is a parsed condition.
type Expr interface {
	Eval(fields map[string]string) bool
	String() string
}

// Literal is the constant true or false.
type Literal struct {
	Value bool
}

func (l Literal) Eval(map[string]string) bool { return l.Value }

func (l Literal) String() string { return strconv.FormatBool(l.Value) }

// Compare tests a field for equality (or inequality when Negate is set).
type Compare struct {
	Field  string
	Value  string
	Negate bool
}

func (c Compare) Eval(fields map[string]string) bool {
	return (fields[c.Field] == c.Value) != c.Negate
}

func (c Compare) String() string {
	op := "=="
	if c.Negate {
		op = "!="
	}
	return c.Field + op + strconv.Quote(c.Value)
}

// Membership tests whether a field's value is one of Values.
type Membership struct {
	Field  string
	Values []string
}

func (m Membership) Eval(fields map[string]string) bool {
	v := fields[m.Field]
	for _, candidate := range m.Values {
		if v == candidate {
			return true
		}
	}
	return false
}

func (m Membership) String() string {
	quoted := make([]string, len(m.Values))
	for i, v := range m.Values {
		quoted[i] = strconv.Quote(v)
	}
	return m.Field + " in [" + strings.Join(quoted, ",") + "]"
}

// And is true when every operand is true.
type And struct {
	Operands []Expr
}

func (a And) Eval(fields map[string]string) bool {
	for _, op := range a.Operands {
		if !op.Eval(fields) {
			return false
		}
	}
	return true
}

func (a And) String() string { return join(a.Operands, " && ") }

// Or is true when any operand is true.
type Or struct {
	Operands []Expr
}

func (o Or) Eval(fields map[string]string) bool {
	for _, op := range o.Operands {
		if op.Eval(fields) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return join(o.Operands, " || ") }

func join(ops []Expr, sep string) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		parts[i] = op.String()
		if _, nested := op.(Or); nested {
			parts[i] = "(" + parts[i] + ")"
		}
	}
	return strings.Join(parts, sep)
}
