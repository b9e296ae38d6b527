// internal/filter/lexer.go
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

/*
 * Tokenizer for filter expressions.
 *
 * Produces a flat token slice consumed by the parser. Recognises:
 *   - numbers: decimal integers and floats ("12", "0.5", ".5")
 *   - strings: single or double quoted, backslash escapes \n \t \\ \' \"
 *   - identifiers: [A-Za-z_$][A-Za-z0-9_$]* ("$username", "$_points", "true")
 *   - punctuation: operators up to three characters, longest match first
 *
 * Keywords (true, false, null, undefined) are lexed as identifiers and
 * resolved by the parser so "$true" style names stay ordinary variables.
 */

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// punctuators ordered longest first so "===" wins over "==" and "=".
var punctuators = []string{
	"===", "!==",
	"==", "!=", "<=", ">=", "&&", "||",
	"<", ">", "!", "+", "-", "*", "/", "%", "(", ")", ".", "?", ":", ",",
}

func isIdentStart(c byte) bool {
	return c == '$' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// lex splits src into tokens. The final token is always tokEOF.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			text := src[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid number %q at %d", types.ErrSyntax, text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, pos: start})

		case c == '\'' || c == '"':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})

		default:
			matched := false
			for _, p := range punctuators {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, token{kind: tokPunct, text: p, pos: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("%w: unexpected character %q at %d", types.ErrSyntax, c, i)
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString reads a quoted literal starting at src[start] and returns the
// unescaped value and the index just past the closing quote.
func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\':
			if i+1 >= len(src) {
				return "", 0, fmt.Errorf("%w: unterminated escape at %d", types.ErrSyntax, i)
			}
			switch esc := src[i+1]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(esc)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string at %d", types.ErrSyntax, start)
}
