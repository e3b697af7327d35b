package predicate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokenEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q", t.text)
}

// lex splits an expression into tokens. String literals may use single or
// double quotes; identifiers may contain any letter so header names survive.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			i++

		case isDigit(c):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
				i++
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			toks = append(toks, token{tokenNumber, src[start:i], start})

		case c == '\'' || c == '"':
			text, n, err := lexString(src[i:], c)
			if err != nil {
				return nil, fmt.Errorf("%s at position %d", err, i)
			}
			toks = append(toks, token{tokenString, text, i})
			i += n

		case isIdentStart(rune(c)) || c >= utf8.RuneSelf:
			start := i
			for i < len(src) {
				r, size := utf8.DecodeRuneInString(src[i:])
				if !isIdentPart(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{tokenIdent, src[start:i], start})

		default:
			if i+1 < len(src) {
				switch two := src[i : i+2]; two {
				case "==", "!=", "<=", ">=", "&&", "||":
					toks = append(toks, token{tokenOp, two, i})
					i += 2
					continue
				}
			}
			switch c {
			case '<', '>', '!', '+', '-', '*', '/', '(', ')', '[', ']', ',', '.':
				toks = append(toks, token{tokenOp, string(c), i})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q at position %d", string(c), i)
			}
		}
	}
	toks = append(toks, token{tokenEOF, "", len(src)})
	return toks, nil
}

func lexString(s string, quote byte) (string, int, error) {
	var b strings.Builder
	i := 1
	for i < len(s) {
		c := s[i]
		if c == quote {
			return b.String(), i + 1, nil
		}
		if c == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
			i++
			continue
		}
		b.WriteByte(c)
		i++
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
