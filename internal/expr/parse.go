package expr

import (
	"strconv"
	"strings"

	"github.com/san-kum/taysim/internal/precision"
)

// maxExponent bounds integer powers; larger ones are almost certainly a
// typo and would bloat series composition.
const maxExponent = 64

type tokKind int

const (
	tokEOF tokKind = iota
	tokNum
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokCaret
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type parser struct {
	src  string
	vars []string
	toks []token
	i    int
}

func (p *parser) fail(pos int, msg string) *ParseError {
	return &ParseError{Src: p.src, Pos: pos, Msg: msg}
}

func (p *parser) parse() (node, error) {
	if err := p.lex(); err != nil {
		return nil, err
	}
	n, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.fail(tok.pos, "unexpected "+describe(tok))
	}
	return n, nil
}

func (p *parser) lex() error {
	s := p.src
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
				i++
			}
			if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
				j := i + 1
				if j < len(s) && (s[j] == '+' || s[j] == '-') {
					j++
				}
				if j < len(s) && s[j] >= '0' && s[j] <= '9' {
					i = j
					for i < len(s) && s[i] >= '0' && s[i] <= '9' {
						i++
					}
				}
			}
			text := s[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return p.fail(start, "bad number "+strconv.Quote(text))
			}
			p.toks = append(p.toks, token{tokNum, text, start})
		case isIdentStart(c):
			start := i
			for i < len(s) && isIdentPart(s[i]) {
				i++
			}
			p.toks = append(p.toks, token{tokIdent, s[start:i], start})
		default:
			var kind tokKind
			switch c {
			case '+':
				kind = tokPlus
			case '-':
				kind = tokMinus
			case '*':
				kind = tokStar
			case '/':
				kind = tokSlash
			case '^':
				kind = tokCaret
			case '(':
				kind = tokLParen
			case ')':
				kind = tokRParen
			default:
				return p.fail(i, "unexpected character "+strconv.QuoteRune(rune(c)))
			}
			p.toks = append(p.toks, token{kind, s[i : i+1], i})
			i++
		}
	}
	p.toks = append(p.toks, token{tokEOF, "", len(s)})
	return nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func describe(tok token) string {
	if tok.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(tok.text)
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) parseSum() (node, error) {
	lhs, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			rhs, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			lhs = &binNode{op: '+', lhs: lhs, rhs: rhs}
		case tokMinus:
			p.next()
			rhs, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			lhs = &binNode{op: '-', lhs: lhs, rhs: rhs}
		default:
			return lhs, nil
		}
	}
}

func (p *parser) parseProduct() (node, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.peek().kind {
		case tokStar:
			p.next()
			rhs, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			lhs = &binNode{op: '*', lhs: lhs, rhs: rhs}
		case tokSlash:
			p.next()
			rhs, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			lhs = &binNode{op: '/', lhs: lhs, rhs: rhs}
		default:
			return lhs, nil
		}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokMinus:
		p.next()
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &negNode{arg: arg}, nil
	case tokPlus:
		p.next()
		return p.parseUnary()
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokCaret {
		return base, nil
	}
	p.next()
	tok := p.next()
	if tok.kind != tokNum || strings.ContainsAny(tok.text, ".eE") {
		return nil, p.fail(tok.pos, "exponent must be a non-negative integer")
	}
	exp, err := strconv.Atoi(tok.text)
	if err != nil || exp > maxExponent {
		return nil, p.fail(tok.pos, "exponent out of range (0.."+strconv.Itoa(maxExponent)+")")
	}
	return &powNode{base: base, exp: exp}, nil
}

func (p *parser) parseAtom() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNum:
		return &numNode{text: tok.text}, nil
	case tokLParen:
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.fail(closing.pos, "missing closing parenthesis")
		}
		return inner, nil
	case tokIdent:
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		return p.resolveIdent(tok)
	default:
		return nil, p.fail(tok.pos, "unexpected "+describe(tok))
	}
}

func (p *parser) parseCall(name token) (node, error) {
	switch name.text {
	case "sin", "cos", "exp", "sqrt":
	default:
		return nil, p.fail(name.pos, "unknown function "+strconv.Quote(name.text))
	}
	p.next() // consume the parenthesis
	arg, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if closing := p.next(); closing.kind != tokRParen {
		return nil, p.fail(closing.pos, "missing closing parenthesis")
	}
	return &callNode{fn: name.text, arg: arg}, nil
}

func (p *parser) resolveIdent(tok token) (node, error) {
	switch tok.text {
	case "t":
		return &timeNode{}, nil
	case "pi":
		return &numNode{text: precision.PiString}, nil
	}
	for i, name := range p.vars {
		if name == tok.text {
			return &varNode{name: tok.text, idx: i}, nil
		}
	}
	if len(p.vars) == 0 {
		return nil, p.fail(tok.pos, "unknown identifier "+strconv.Quote(tok.text))
	}
	return nil, p.fail(tok.pos, "unknown identifier "+strconv.Quote(tok.text)+
		" (variables: "+strings.Join(p.vars, ", ")+")")
}
