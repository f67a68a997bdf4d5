// Package errors defines the error taxonomy shared by the tokeniser,
// the compiler and the evaluator. Every fallible operation in kalk
// surfaces one of these, carrying the error kind, the offending token
// substring and the 0-based rune position within the expression.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type Kind int

// Error kinds. The numbering is stable so hosts can switch on it.
const (
	UnassignableToken Kind = iota
	UnexpectedOperator
	UnexpectedEOF
	UnexpectedParens
	UnexpectedVal
	UnexpectedFun
	UnexpectedComma
	UnexpectedConditional
	MisplacedColon
	MissingElseClause
	MissingParens
	TooFewParams
	TooManyParams
	InvalidName
	NameConflict
	StringExpected
	ValExpected
	OprtTypeConflict
	UnterminatedString
	StrResult
	DivByZero
	DomainError
	Generic
)

var messages = map[Kind]string{
	UnassignableToken:     "undefined token",
	UnexpectedOperator:    "unexpected operator",
	UnexpectedEOF:         "unexpected end of expression",
	UnexpectedParens:      "unexpected parenthesis",
	UnexpectedVal:         "unexpected value",
	UnexpectedFun:         "unexpected function",
	UnexpectedComma:       "unexpected comma",
	UnexpectedConditional: "unexpected if-then-else operator",
	MisplacedColon:        "misplaced colon",
	MissingElseClause:     "if-then-else operator is missing an else clause",
	MissingParens:         "missing parenthesis",
	TooFewParams:          "too few parameters passed to function",
	TooManyParams:         "too many parameters passed to function",
	InvalidName:           "invalid function, variable or constant name",
	NameConflict:          "name is already in use",
	StringExpected:        "string function called with a non string type of argument",
	ValExpected:           "numeric function called with a non value type of argument",
	OprtTypeConflict:      "binary operator applied to a string argument",
	UnterminatedString:    "unterminated string literal",
	StrResult:             "string value used where a numerical value is expected",
	DivByZero:             "division by zero",
	DomainError:           "function argument is outside its domain",
	Generic:               "parser error",
}

// Error is the tagged error value returned across the kalk core
// boundary. Pos is a 0-based rune index into the expression, or -1
// when no position applies.
type Error struct {
	Kind  Kind
	Token string
	Pos   int
}

// New creates an Error for the given kind, position and offending
// token substring. Pass pos -1 and token "" when they do not apply.
func New(kind Kind, pos int, token string) *Error {
	return &Error{Kind: kind, Token: token, Pos: pos}
}

func (e *Error) Error() string {
	msg, ok := messages[e.Kind]
	if !ok {
		msg = messages[Generic]
	}
	var b strings.Builder
	b.WriteString(msg)
	if e.Token != "" {
		fmt.Fprintf(&b, " %q", e.Token)
	}
	if e.Pos >= 0 {
		fmt.Fprintf(&b, " at position %d", e.Pos)
	}
	return b.String()
}

// Is reports whether err is a kalk error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}
