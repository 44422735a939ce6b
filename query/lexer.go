package query

import (
	"fmt"
	"strings"
)

// tokenType represents the type of a token
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenParam
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenColon
	tokenComma
	tokenDot
	tokenStar
	tokenDash
	tokenEQ
	tokenNE
	tokenLT
	tokenLE
	tokenGT
	tokenGE
)

var tokenNames = map[tokenType]string{
	tokenEOF:      "end of query",
	tokenIdent:    "identifier",
	tokenNumber:   "number",
	tokenString:   "string",
	tokenParam:    "parameter",
	tokenLParen:   "'('",
	tokenRParen:   "')'",
	tokenLBracket: "'['",
	tokenRBracket: "']'",
	tokenColon:    "':'",
	tokenComma:    "','",
	tokenDot:      "'.'",
	tokenStar:     "'*'",
	tokenDash:     "'-'",
	tokenEQ:       "'='",
	tokenNE:       "'!='",
	tokenLT:       "'<'",
	tokenLE:       "'<='",
	tokenGT:       "'>'",
	tokenGE:       "'>='",
}

func (t tokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// token is a lexical token. pos is the byte offset in the query text.
type token struct {
	typ   tokenType
	value string
	pos   int
}

// is reports whether the token is the keyword kw, ignoring case.
func (t token) is(kw string) bool {
	return t.typ == tokenIdent && strings.EqualFold(t.value, kw)
}

var singleChar = map[byte]tokenType{
	'(': tokenLParen,
	')': tokenRParen,
	'[': tokenLBracket,
	']': tokenRBracket,
	':': tokenColon,
	',': tokenComma,
	'.': tokenDot,
	'*': tokenStar,
	'-': tokenDash,
	'=': tokenEQ,
	'<': tokenLT,
	'>': tokenGT,
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// tokenize converts query text into tokens ending with tokenEOF. Pattern
// arrows are not tokens of their own: "->" lexes as '-' '>' and the parser
// puts them back together, so "a.x <-1" still reads as a comparison.
func tokenize(text string) ([]token, error) {
	var tokens []token
	i := 0

	emit := func(typ tokenType, value string, pos int) {
		tokens = append(tokens, token{typ: typ, value: value, pos: pos})
	}

	for i < len(text) {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		if i+1 < len(text) {
			switch text[i : i+2] {
			case "!=", "<>":
				emit(tokenNE, "!=", i)
				i += 2
				continue
			case "<=":
				emit(tokenLE, "<=", i)
				i += 2
				continue
			case ">=":
				emit(tokenGE, ">=", i)
				i += 2
				continue
			case "==":
				emit(tokenEQ, "=", i)
				i += 2
				continue
			}
		}

		if typ, ok := singleChar[c]; ok {
			emit(typ, string(c), i)
			i++
			continue
		}

		switch {
		case c == '"' || c == '\'':
			s, next, err := readString(text, i)
			if err != nil {
				return nil, err
			}
			emit(tokenString, s, i)
			i = next

		case c == '$':
			start := i
			i++
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
			if i == start+1 {
				return nil, &ParseError{Pos: start, Msg: "expected parameter name after '$'"}
			}
			emit(tokenParam, text[start+1:i], start)

		case isDigit(c):
			start := i
			for i < len(text) && (isDigit(text[i]) || text[i] == '.') {
				i++
			}
			emit(tokenNumber, text[start:i], start)

		case isIdentStart(c):
			start := i
			for i < len(text) && isIdentPart(text[i]) {
				i++
			}
			emit(tokenIdent, text[start:i], start)

		default:
			return nil, &ParseError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}

	emit(tokenEOF, "", len(text))
	return tokens, nil
}

// readString reads a quoted literal starting at text[start] and returns its
// unescaped value and the offset after the closing quote.
func readString(text string, start int) (string, int, error) {
	quote := text[start]
	var b strings.Builder
	i := start + 1
	for i < len(text) {
		c := text[i]
		switch {
		case c == '\\' && i+1 < len(text):
			switch next := text[i+1]; next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(next)
			}
			i += 2
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &ParseError{Pos: start, Msg: "unterminated string literal"}
}
