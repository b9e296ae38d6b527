// internal/filter/compile.go
package filter

import (
	"fmt"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

/*
 * Filter compilation: source text to AST.
 *
 * Recursive descent parser with one function per precedence level, lowest
 * first:
 *
 *   ternary     := or ( "?" ternary ":" ternary )?
 *   or          := and ( "||" and )*
 *   and         := equality ( "&&" equality )*
 *   equality    := relational ( ("==" | "!=" | "===" | "!==") relational )*
 *   relational  := additive ( ("<" | "<=" | ">" | ">=") additive )*
 *   additive    := multiplicative ( ("+" | "-") multiplicative )*
 *   multiplicative := unary ( ("*" | "/" | "%") unary )*
 *   unary       := ("!" | "-" | "+") unary | postfix
 *   postfix     := primary ( "." ident ( "(" args ")" )? )*
 *   primary     := number | string | ident | "(" ternary ")"
 *
 * Compilation workflow:
 *   1. Reject sources longer than MaxExpressionLength
 *   2. Lex into tokens
 *   3. Parse, counting nodes and tracking depth
 *   4. Reject trailing tokens
 *
 * Method calls are only legal as member calls on a value; there is no free
 * function call syntax, so no host capability is reachable from a filter.
 */

// node is an AST node. Concrete types are below.
type node interface{}

type literalNode struct {
	value any
}

type identNode struct {
	name string
}

type memberNode struct {
	object node
	prop   string
}

type callNode struct {
	object node
	method string
	args   []node
}

type unaryNode struct {
	op      string
	operand node
}

type binaryNode struct {
	op          string
	left, right node
}

type ternaryNode struct {
	test, then, otherwise node
}

// Program is a compiled filter expression, safe for concurrent evaluation.
type Program struct {
	source string
	root   node
	nodes  int
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.source
}

// Nodes returns the AST node count.
func (p *Program) Nodes() int {
	return p.nodes
}

type parser struct {
	toks  []token
	pos   int
	nodes int
	depth int
}

// Compile parses and validates a filter expression.
// Returns a wrapped ErrSyntax, ErrExpressionTooLong, ErrExpressionTooCostly
// or ErrExpressionTooDeep on failure.
func Compile(src string) (*Program, error) {
	if len(src) > MaxExpressionLength {
		return nil, types.ErrExpressionTooLong
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", types.ErrSyntax, tok.text, tok.pos)
	}
	return &Program{source: src, root: root, nodes: p.nodes}, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// accept consumes the next token if it is one of the given punctuators.
func (p *parser) accept(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokPunct {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	if _, ok := p.accept(op); !ok {
		tok := p.peek()
		return fmt.Errorf("%w: expected %q at %d, got %q", types.ErrSyntax, op, tok.pos, tok.text)
	}
	return nil
}

// add registers a new node against the node limit.
func (p *parser) add(n node) (node, error) {
	p.nodes++
	if p.nodes > MaxExpressionNodes {
		return nil, types.ErrExpressionTooCostly
	}
	return n, nil
}

// enter/leave bound recursion depth.
func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxExpressionDepth {
		return types.ErrExpressionTooDeep
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseTernary() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	test, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("?"); !ok {
		return test, nil
	}
	then, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return p.add(&ternaryNode{test: test, then: then, otherwise: otherwise})
}

// binaryLevels lists binary operators by ascending precedence.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"===", "!==", "==", "!="},
	{"<=", ">=", "<", ">"},
	{"+", "-"},
	{"*", "/", "%"},
}

// parseBinary parses a left-associative chain at the given precedence level.
func (p *parser) parseBinary(level int) (node, error) {
	if level == len(binaryLevels) {
		return p.parseUnary()
	}
	left, err := p.parseBinary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept(binaryLevels[level]...)
		if !ok {
			return left, nil
		}
		right, err := p.parseBinary(level + 1)
		if err != nil {
			return nil, err
		}
		left, err = p.add(&binaryNode{op: op, left: left, right: right})
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	op, ok := p.accept("!", "-", "+")
	if !ok {
		return p.parsePostfix()
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return p.add(&unaryNode{op: op, operand: operand})
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept("."); !ok {
			return n, nil
		}
		tok := p.next()
		if tok.kind != tokIdent {
			return nil, fmt.Errorf("%w: expected property name at %d", types.ErrSyntax, tok.pos)
		}
		if _, ok := p.accept("("); ok {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			n, err = p.add(&callNode{object: n, method: tok.text, args: args})
		} else {
			n, err = p.add(&memberNode{object: n, prop: tok.text})
		}
		if err != nil {
			return nil, err
		}
	}
}

// parseArgs parses a comma separated argument list after "(".
func (p *parser) parseArgs() ([]node, error) {
	var args []node
	if _, ok := p.accept(")"); ok {
		return args, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if _, ok := p.accept(")"); ok {
			return args, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return p.add(&literalNode{value: tok.num})
	case tokString:
		return p.add(&literalNode{value: tok.text})
	case tokIdent:
		switch tok.text {
		case "true":
			return p.add(&literalNode{value: true})
		case "false":
			return p.add(&literalNode{value: false})
		case "null":
			return p.add(&literalNode{value: nil})
		case "undefined":
			return p.add(&literalNode{value: undefined})
		}
		return p.add(&identNode{name: tok.text})
	case tokPunct:
		if tok.text == "(" {
			if err := p.enter(); err != nil {
				return nil, err
			}
			defer p.leave()
			inner, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", types.ErrSyntax)
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", types.ErrSyntax, tok.text, tok.pos)
}
