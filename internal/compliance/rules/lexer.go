package rules

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokIn
	tokTrue
	tokFalse
	tokLBrack
	tokRBrack
	tokLParen
	tokRParen
	tokComma
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of condition"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokEq:
		return "'=='"
	case tokNeq:
		return "'!='"
	case tokAnd:
		return "'&&'"
	case tokOr:
		return "'||'"
	case tokIn:
		return "'in'"
	case tokTrue:
		return "'true'"
	case tokFalse:
		return "'false'"
	case tokLBrack:
		return "'['"
	case tokRBrack:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	default:
		return "unknown token"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError describes a condition that could not be tokenized or parsed.
type SyntaxError struct {
	Src string
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("condition %q: %s at offset %d", e.Src, e.Msg, e.Pos)
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, &SyntaxError{Src: src, Pos: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{kind: tokString, text: src[i+1 : i+1+end], pos: i})
			i += end + 2
		case strings.HasPrefix(src[i:], "=="):
			toks = append(toks, token{kind: tokEq, text: "==", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], "!="):
			toks = append(toks, token{kind: tokNeq, text: "!=", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, token{kind: tokAnd, text: "&&", pos: i})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, token{kind: tokOr, text: "||", pos: i})
			i += 2
		case c == '[':
			toks = append(toks, token{kind: tokLBrack, text: "[", pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBrack, text: "]", pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, text: ",", pos: i})
			i++
		case isWordByte(c):
			start := i
			for i < len(src) && isWordByte(src[i]) {
				i++
			}
			word := src[start:i]
			kind := tokIdent
			switch word {
			case "in":
				kind = tokIn
			case "true":
				kind = tokTrue
			case "false":
				kind = tokFalse
			}
			toks = append(toks, token{kind: kind, text: word, pos: start})
		default:
			return nil, &SyntaxError{Src: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isWordByte(c byte) bool {
	r := rune(c)
	return c == '_' || c == '.' || c == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
