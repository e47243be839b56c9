package listfile

import "fmt"

// Messenger receives fatal parse diagnostics with their source position
// (§4.G "Error reporting"). The evaluator's real Messenger collaborator is
// out of this module's scope (§1); tests and the evaluator package supply
// their own.
type Messenger interface {
	FatalError(pos Position, message string)
}

// separationState tracks the argument-separation state machine described
// in §4.G: whether the most recent argument boundary was clean, merely
// triggered a warning, or already failed.
type separationState int

const (
	separationOK separationState = iota
	separationWarning
	separationError
)

// Parser performs the recursive-descent parse described in §4.G: a file
// is a sequence of commands, each an identifier at the start of a line
// followed by a balanced, nested argument list.
type Parser struct {
	file     string
	tokens   []Token
	pos      int
	messages Messenger
	warnings []string
}

// nullMessenger discards FatalError calls; used when callers don't care to
// observe them (they still get a Go error return from Parse).
type nullMessenger struct{}

func (nullMessenger) FatalError(Position, string) {}

// Parse lexes and parses src in one call. msgr may be nil.
func Parse(file string, src []byte, msgr Messenger) (*File, []string, error) {
	if msgr == nil {
		msgr = nullMessenger{}
	}

	lex, _, err := NewLexer(file, src)
	if err != nil {
		msgr.FatalError(Position{File: file, Line: 1, Column: 1}, err.Error())
		return nil, nil, err
	}

	var tokens []Token
	for {
		tok, err := lex.Scan()
		if err != nil {
			msgr.FatalError(Position{File: file, Line: lex.line, Column: lex.col}, err.Error())
			return nil, nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			break
		}
	}

	p := &Parser{file: file, tokens: tokens, messages: msgr}
	lf, err := p.parseFile()
	return lf, p.warnings, err
}

func (p *Parser) cur() Token  { return p.tokens[p.pos] }
func (p *Parser) next() Token { t := p.tokens[p.pos]; p.pos++; return t }

func (p *Parser) fatal(pos Position, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	p.messages.FatalError(pos, msg)
	return fmt.Errorf("%s: %s", pos, msg)
}

func (p *Parser) parseFile() (*File, error) {
	lf := &File{Path: p.file}
	haveNewline := true

	for {
		tok := p.cur()
		switch tok.Kind {
		case TokenEOF:
			return lf, nil
		case TokenSpace, TokenCommentBracket:
			p.next()
		case TokenNewline:
			haveNewline = true
			p.next()
		case TokenWord:
			if !haveNewline {
				return lf, p.fatal(Position{File: p.file, Line: tok.Line, Column: tok.Column},
					"parse error: expected a newline, got identifier %q", tok.Text)
			}
			haveNewline = false
			fn, err := p.parseFunction(tok)
			if err != nil {
				return lf, err
			}
			lf.Functions = append(lf.Functions, *fn)
		default:
			return lf, p.fatal(Position{File: p.file, Line: tok.Line, Column: tok.Column},
				"parse error: unexpected token")
		}
	}
}

// parseFunction parses one command starting at the already-consumed
// identifier token `name`.
func (p *Parser) parseFunction(name Token) (*Function, error) {
	p.next() // consume the identifier

	// A space between the command name and '(' is tolerated.
	p.skipSpaceOnly()

	if p.cur().Kind != TokenParenL {
		return nil, p.fatal(Position{File: p.file, Line: p.cur().Line, Column: p.cur().Column},
			"parse error: expected '(' after %q", name.Text)
	}
	openTok := p.next()

	fn := &Function{
		Name:            name.Text,
		OpenParenLine:   openTok.Line,
		OpenParenColumn: openTok.Column,
	}

	depth := 0
	sep := separationOK

	for {
		tok := p.cur()

		switch tok.Kind {
		case TokenEOF:
			return nil, p.fatal(Position{File: p.file, Line: tok.Line, Column: tok.Column},
				"parse error: unterminated argument list for %q", name.Text)

		case TokenSpace, TokenNewline, TokenCommentBracket:
			p.next()
			sep = separationOK

		case TokenParenL:
			depth++
			fn.Arguments = append(fn.Arguments, Argument{Value: "(", Delimiter: Unquoted, Line: tok.Line})
			p.next()
			sep = separationOK

		case TokenParenR:
			if depth == 0 {
				p.next()
				fn.CloseParenLine = tok.Line
				fn.CloseParenColumn = tok.Column
				return fn, nil
			}
			depth--
			fn.Arguments = append(fn.Arguments, Argument{Value: ")", Delimiter: Unquoted, Line: tok.Line})
			p.next()
			sep = separationOK

		case TokenWord:
			if err := p.checkSeparation(&sep, tok, false); err != nil {
				return nil, err
			}
			fn.Arguments = append(fn.Arguments, Argument{Value: tok.Text, Delimiter: Unquoted, Line: tok.Line})
			p.next()

		case TokenQuoted:
			if err := p.checkSeparation(&sep, tok, false); err != nil {
				return nil, err
			}
			fn.Arguments = append(fn.Arguments, Argument{Value: tok.Text, Delimiter: Quoted, Line: tok.Line})
			p.next()

		case TokenBracket:
			if err := p.checkSeparation(&sep, tok, true); err != nil {
				return nil, err
			}
			fn.Arguments = append(fn.Arguments, Argument{Value: tok.Text, Delimiter: Bracket, Line: tok.Line})
			p.next()

		default:
			return nil, p.fatal(Position{File: p.file, Line: tok.Line, Column: tok.Column},
				"parse error: unexpected token in argument list")
		}
	}
}

// checkSeparation implements §4.G's argument-separation rule. isBracket
// selects the stricter (always-error) branch for bracket-delimited
// arguments. It inspects the raw token immediately preceding the current
// position to decide whether whitespace/newline intervened.
func (p *Parser) checkSeparation(sep *separationState, tok Token, isBracket bool) error {
	separated := p.pos == 0 || isSeparatorKind(p.tokens[p.pos-1].Kind)

	if separated {
		*sep = separationOK
		return nil
	}

	if isBracket || *sep == separationError {
		*sep = separationError
		return p.fatal(Position{File: p.file, Line: tok.Line, Column: tok.Column},
			"parse error: missing separation before argument")
	}

	*sep = separationWarning
	p.warnings = append(p.warnings, fmt.Sprintf("%s:%d: warning: missing whitespace before argument",
		p.file, tok.Line))
	return nil
}

func isSeparatorKind(k TokenKind) bool {
	switch k {
	case TokenSpace, TokenNewline, TokenCommentBracket, TokenParenL:
		return true
	}
	return false
}

// skipSpaceOnly consumes a run of TokenSpace tokens (not newlines) and
// reports whether any were consumed.
func (p *Parser) skipSpaceOnly() bool {
	consumed := false
	for p.cur().Kind == TokenSpace {
		p.next()
		consumed = true
	}
	return consumed
}
