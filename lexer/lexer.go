// Package lexer implements the state-aware tokeniser. Classification
// depends on whether the parser expects a value or an operator next;
// the lexer tracks that state itself from the tokens it emits, so the
// compiler receives unambiguous token kinds.
package lexer

import (
	"kalk/errors"
	"kalk/symbols"
	"kalk/token"
)

// ValIdent is a numeric-literal recogniser. It inspects the start of
// rest and, when it recognises a literal, returns its value and the
// number of runes consumed. Recognisers are tried in order; the first
// one consuming at least one rune wins.
type ValIdent func(rest string) (val symbols.Value, length int, ok bool)

// Lexer scans one expression. It is created per compilation and holds
// a reference to the symbol table for name resolution and the
// operator tries.
type Lexer struct {
	characters []rune
	totalChars int

	// The index of the next character to be read.
	pos int

	tab       *symbols.Table
	valIdents []ValIdent

	// True while the grammar expects a value (literal, variable,
	// function call, prefix operator or open parenthesis) rather
	// than a binary/postfix operator or structural token.
	expectValue bool

	// Kind of the previously emitted token. A closing parenthesis is
	// legal in value position only directly after an opening one
	// (the empty argument list of a nullary function call).
	prevKind token.Kind
	started  bool
}

// New creates a Lexer over input. The value-identifier callbacks are
// tried in slice order.
func New(input string, tab *symbols.Table, valIdents []ValIdent) *Lexer {
	lexer := &Lexer{
		characters:  []rune(input),
		tab:         tab,
		valIdents:   valIdents,
		expectValue: true,
	}
	lexer.totalChars = len(lexer.characters)
	return lexer
}

func isWhiteSpace(char rune) bool {
	return char == ' ' || char == '\r' || char == '\t' || char == '\n'
}

func (lexer *Lexer) isFinished() bool {
	return lexer.pos >= lexer.totalChars
}

func (lexer *Lexer) skipWhiteSpace() {
	for !lexer.isFinished() && isWhiteSpace(lexer.characters[lexer.pos]) {
		lexer.pos++
	}
}

// rest returns the unread remainder of the input as a string.
func (lexer *Lexer) rest() string {
	return string(lexer.characters[lexer.pos:])
}

// readIllegal captures the substring an error should report: from
// startPos up to the next whitespace character or end of input.
func (lexer *Lexer) readIllegal(startPos int) string {
	end := startPos
	for end < lexer.totalChars && !isWhiteSpace(lexer.characters[end]) {
		end++
	}
	return string(lexer.characters[startPos:end])
}

// readName consumes a maximal identifier run starting at the current
// position. The caller has checked the first character.
func (lexer *Lexer) readName() string {
	start := lexer.pos
	lexer.pos++
	for !lexer.isFinished() && lexer.tab.IsNameChar(lexer.characters[lexer.pos]) {
		lexer.pos++
	}
	return string(lexer.characters[start:lexer.pos])
}

// emit finalises a token: records the state the next classification
// step runs under and hands the token out.
func (lexer *Lexer) emit(tok token.Token) (token.Token, error) {
	switch tok.Kind {
	case token.Number, token.Variable, token.String, token.RParen, token.PostOprt:
		lexer.expectValue = false
	default:
		// Function is followed by its argument parenthesis, every
		// operator and structural token by a value.
		lexer.expectValue = true
	}
	lexer.prevKind = tok.Kind
	lexer.started = true
	return tok, nil
}

// Next classifies the next lexeme. At end of input it returns an EOE
// token when an operator was expected, and UNEXPECTED_EOF otherwise.
func (lexer *Lexer) Next() (token.Token, error) {
	lexer.skipWhiteSpace()

	if lexer.isFinished() {
		if lexer.expectValue {
			return token.Token{}, errors.New(errors.UnexpectedEOF, lexer.pos, "")
		}
		return lexer.emit(token.Token{Kind: token.EOE, Pos: lexer.pos})
	}

	if lexer.expectValue {
		return lexer.nextValue()
	}
	return lexer.nextOprt()
}

// nextValue classifies a lexeme in value position.
func (lexer *Lexer) nextValue() (token.Token, error) {
	pos := lexer.pos
	char := lexer.characters[pos]

	if char == '"' {
		return lexer.readString()
	}

	// An unknown name is reported on its own, not with what follows it.
	unknownName := ""
	if lexer.tab.IsNameStart(char) {
		name := lexer.readName()
		unknownName = name
		if variable, ok := lexer.tab.Vars[name]; ok {
			return lexer.emit(token.Token{Kind: token.Variable, Ident: name, Pos: pos, Var: variable})
		}
		if val, ok := lexer.tab.Consts[name]; ok {
			return lexer.emit(token.Token{Kind: token.Number, Ident: name, Pos: pos, Val: val})
		}
		if str, ok := lexer.tab.StrConsts[name]; ok {
			return lexer.emit(token.Token{Kind: token.String, Ident: name, Pos: pos, Str: str})
		}
		if fun, ok := lexer.tab.Funs[name]; ok {
			return lexer.emit(token.Token{Kind: token.Function, Ident: name, Pos: pos, Fun: fun})
		}
		// The name may still be an infix operator spelled with
		// letters if the infix character set was extended.
		lexer.pos = pos
	}

	// Infix operators are classified before numeric literals so that
	// a sign in front of a literal stays an operator: -2^2 must read
	// as -(2^2), not (-2)^2.
	if length := lexer.tab.InfixTrie().LongestMatch(lexer.characters, pos); length > 0 {
		name := string(lexer.characters[pos : pos+length])
		lexer.pos = pos + length
		entry := lexer.tab.InfixOprts[name]
		return lexer.emit(token.Token{Kind: token.InfixOprt, Ident: name, Pos: pos, UnOprt: entry})
	}

	for _, identFn := range lexer.valIdents {
		val, length, ok := identFn(lexer.rest())
		if ok && length > 0 {
			lexer.pos += length
			ident := string(lexer.characters[pos:lexer.pos])
			return lexer.emit(token.Token{Kind: token.Number, Ident: ident, Pos: pos, Val: val})
		}
	}

	switch char {
	case '(':
		lexer.pos++
		return lexer.emit(token.Token{Kind: token.LParen, Ident: "(", Pos: pos})
	case ')':
		// Only the empty argument list of a function call may put a
		// closing parenthesis in value position; the compiler checks
		// that the parenthesis actually belongs to a function.
		if lexer.started && lexer.prevKind == token.LParen {
			lexer.pos++
			return lexer.emit(token.Token{Kind: token.RParen, Ident: ")", Pos: pos})
		}
		return token.Token{}, errors.New(errors.UnexpectedParens, pos, ")")
	case ',':
		return token.Token{}, errors.New(errors.UnexpectedComma, pos, ",")
	case '?', ':':
		return token.Token{}, errors.New(errors.UnexpectedConditional, pos, string(char))
	}

	if unknownName != "" {
		return token.Token{}, errors.New(errors.UnassignableToken, pos, unknownName)
	}
	return token.Token{}, errors.New(errors.UnassignableToken, pos, lexer.readIllegal(pos))
}

// nextOprt classifies a lexeme in operator position.
func (lexer *Lexer) nextOprt() (token.Token, error) {
	pos := lexer.pos
	char := lexer.characters[pos]

	if length := lexer.matchBounded(lexer.tab.PostTrie(), pos); length > 0 {
		name := string(lexer.characters[pos : pos+length])
		lexer.pos = pos + length
		entry := lexer.tab.PostOprts[name]
		return lexer.emit(token.Token{Kind: token.PostOprt, Ident: name, Pos: pos, UnOprt: entry})
	}

	if length := lexer.matchBounded(lexer.tab.BinTrie(), pos); length > 0 {
		name := string(lexer.characters[pos : pos+length])
		lexer.pos = pos + length
		entry := lexer.tab.LookupOprt(name)
		if entry.IsAssign {
			return lexer.emit(token.Token{Kind: token.Assign, Ident: name, Pos: pos, Oprt: entry})
		}
		return lexer.emit(token.Token{Kind: token.BinOprt, Ident: name, Pos: pos, Oprt: entry})
	}

	switch char {
	case ',':
		lexer.pos++
		return lexer.emit(token.Token{Kind: token.Comma, Ident: ",", Pos: pos})
	case ')':
		lexer.pos++
		return lexer.emit(token.Token{Kind: token.RParen, Ident: ")", Pos: pos})
	case '?':
		lexer.pos++
		return lexer.emit(token.Token{Kind: token.Question, Ident: "?", Pos: pos})
	case ':':
		lexer.pos++
		return lexer.emit(token.Token{Kind: token.Colon, Ident: ":", Pos: pos})
	case '(':
		return token.Token{}, errors.New(errors.UnexpectedParens, pos, "(")
	case '"':
		return token.Token{}, errors.New(errors.UnexpectedVal, pos, lexer.readIllegal(pos))
	}

	if char >= '0' && char <= '9' || char == '.' {
		return token.Token{}, errors.New(errors.UnexpectedVal, pos, lexer.readIllegal(pos))
	}

	if lexer.tab.IsNameStart(char) {
		name := lexer.readName()
		if _, ok := lexer.tab.Vars[name]; ok {
			return token.Token{}, errors.New(errors.UnexpectedVal, pos, name)
		}
		if _, ok := lexer.tab.Consts[name]; ok {
			return token.Token{}, errors.New(errors.UnexpectedVal, pos, name)
		}
		if _, ok := lexer.tab.StrConsts[name]; ok {
			return token.Token{}, errors.New(errors.UnexpectedVal, pos, name)
		}
		if _, ok := lexer.tab.Funs[name]; ok {
			return token.Token{}, errors.New(errors.UnexpectedFun, pos, name)
		}
		return token.Token{}, errors.New(errors.UnassignableToken, pos, name)
	}

	return token.Token{}, errors.New(errors.UnassignableToken, pos, lexer.readIllegal(pos))
}

// matchBounded performs a longest-match trie lookup, rejecting a
// match whose spelling ends in an identifier character while the
// input continues with one. That boundary rule lets "3000meg" read as
// the number 3000 followed by the postfix operator "meg", while
// refusing to split an identifier like "megx" after "meg".
func (lexer *Lexer) matchBounded(trie *symbols.Trie, pos int) int {
	length := trie.LongestMatch(lexer.characters, pos)
	if length == 0 {
		return 0
	}
	last := lexer.characters[pos+length-1]
	if pos+length < lexer.totalChars && lexer.tab.IsNameChar(last) &&
		lexer.tab.IsNameChar(lexer.characters[pos+length]) {
		return 0
	}
	return length
}

// readString scans a double-quoted string literal with \" and \\
// escapes. The token's Str payload holds the unescaped value.
func (lexer *Lexer) readString() (token.Token, error) {
	pos := lexer.pos
	i := pos + 1
	var value []rune
	for i < lexer.totalChars {
		char := lexer.characters[i]
		if char == '\\' && i+1 < lexer.totalChars {
			next := lexer.characters[i+1]
			if next == '"' || next == '\\' {
				value = append(value, next)
				i += 2
				continue
			}
		}
		if char == '"' {
			lexer.pos = i + 1
			ident := string(lexer.characters[pos:lexer.pos])
			return lexer.emit(token.Token{Kind: token.String, Ident: ident, Pos: pos, Str: string(value)})
		}
		value = append(value, char)
		i++
	}
	return token.Token{}, errors.New(errors.UnterminatedString, pos, string(lexer.characters[pos:]))
}
