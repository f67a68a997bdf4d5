// Package token defines the lexeme classification produced by the
// tokeniser and consumed by the bytecode compiler.
package token

import (
	"fmt"

	"kalk/symbols"
)

type Kind int

// Token kinds. The tokeniser decides between the value-position and
// operator-position kinds from its own state; the compiler never has
// to disambiguate.
const (
	// value position
	Number   Kind = iota // numeric literal (or named constant value)
	Variable             // bound variable reference
	String               // string literal or named string constant
	Function             // function name; must be followed by LPAREN

	// operators
	BinOprt   // binary operator, built-in or user defined
	InfixOprt // prefix operator; read in value position
	PostOprt
	Assign // the assignment operator

	// structure
	LParen
	RParen
	Comma
	Question // ternary "?"
	Colon    // ternary ":"

	EOE // end of expression
)

var kindNames = map[Kind]string{
	Number:    "NUMBER",
	Variable:  "VARIABLE",
	String:    "STRING",
	Function:  "FUNCTION",
	BinOprt:   "BIN_OPRT",
	InfixOprt: "INFIX_OPRT",
	PostOprt:  "POSTFIX_OPRT",
	Assign:    "ASSIGN",
	LParen:    "LPAREN",
	RParen:    "RPAREN",
	Comma:     "COMMA",
	Question:  "QUESTION",
	Colon:     "COLON",
	EOE:       "EOE",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return name
}

// Token is one classified lexeme. Ident holds the source spelling and
// Pos the 0-based rune index where it starts. At most one payload
// field is set, matching Kind.
type Token struct {
	Kind  Kind
	Ident string
	Pos   int

	Val    symbols.Value
	Str    string
	Var    *symbols.Variable
	Fun    *symbols.FunEntry
	Oprt   *symbols.OprtEntry
	UnOprt *symbols.UnOprtEntry
}

func (t Token) String() string {
	return fmt.Sprintf("Token {Kind: %s, Ident: %q, Pos: %d}", t.Kind, t.Ident, t.Pos)
}
