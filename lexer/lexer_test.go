package lexer

import (
	"strconv"
	"testing"

	"kalk/errors"
	"kalk/symbols"
	"kalk/token"
)

// testTable builds a symbol table with a representative slice of
// every name category.
func testTable(t *testing.T, cells map[string]*symbols.Value) *symbols.Table {
	t.Helper()
	tab := symbols.NewTable()

	noop2 := func(a, b symbols.Value) (symbols.Value, error) { return a + b, nil }
	noop1 := func(v symbols.Value) (symbols.Value, error) { return v, nil }

	tab.SetBuiltIns([]*symbols.OprtEntry{
		{Name: "=", Prec: symbols.PrecAssign, Assoc: symbols.AssocRight, IsAssign: true},
		{Name: "==", Prec: symbols.PrecEqual, Fn: noop2},
		{Name: "+", Prec: symbols.PrecAddSub, Fn: noop2},
		{Name: "-", Prec: symbols.PrecAddSub, Fn: noop2},
		{Name: "*", Prec: symbols.PrecMulDiv, Fn: noop2},
	})

	for name, cell := range cells {
		if err := tab.DefineVar(name, cell); err != nil {
			t.Fatalf("DefineVar(%q): %v", name, err)
		}
	}
	if err := tab.DefineConst("pi", 3.14); err != nil {
		t.Fatalf("DefineConst: %v", err)
	}
	if err := tab.DefineStrConst("str1", "1.11"); err != nil {
		t.Fatalf("DefineStrConst: %v", err)
	}
	if err := tab.DefineFun(&symbols.FunEntry{Name: "sin", Argc: 1}); err != nil {
		t.Fatalf("DefineFun: %v", err)
	}
	if err := tab.DefineOprt(&symbols.OprtEntry{Name: "add", Prec: 0, Fn: noop2}); err != nil {
		t.Fatalf("DefineOprt: %v", err)
	}
	for _, name := range []string{"m", "meg", "{m}"} {
		if err := tab.DefinePostfixOprt(&symbols.UnOprtEntry{Name: name, Fn: noop1}); err != nil {
			t.Fatalf("DefinePostfixOprt(%q): %v", name, err)
		}
	}
	for _, name := range []string{"~", "~~"} {
		if err := tab.DefineInfixOprt(&symbols.UnOprtEntry{Name: name, Fn: noop1, Prec: symbols.PrecInfix}); err != nil {
			t.Fatalf("DefineInfixOprt(%q): %v", name, err)
		}
	}
	return tab
}

// decimalIdent is a plain decimal reader for lexer tests; the real
// configurable one lives in the facade.
func decimalIdent(rest string) (symbols.Value, int, bool) {
	rs := []rune(rest)
	i := 0
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-') {
		i++
	}
	digits := 0
	for i < len(rs) && (rs[i] >= '0' && rs[i] <= '9' || rs[i] == '.') {
		if rs[i] != '.' {
			digits++
		}
		i++
	}
	if digits == 0 {
		return 0, 0, false
	}
	val, err := strconv.ParseFloat(string(rs[:i]), 64)
	if err != nil {
		return 0, 0, false
	}
	return val, i, true
}

func scan(t *testing.T, tab *symbols.Table, input string) ([]token.Token, error) {
	t.Helper()
	lex := New(input, tab, []ValIdent{decimalIdent})
	var tokens []token.Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == token.EOE {
			return tokens, nil
		}
	}
}

func kinds(tokens []token.Token) []token.Kind {
	result := make([]token.Kind, len(tokens))
	for i, tok := range tokens {
		result[i] = tok.Kind
	}
	return result
}

func assertKinds(t *testing.T, got []token.Token, want ...token.Kind) {
	t.Helper()
	gotKinds := kinds(got)
	if len(gotKinds) != len(want) {
		t.Fatalf("token count mismatch - got %v, want %v", gotKinds, want)
	}
	for i := range want {
		if gotKinds[i] != want[i] {
			t.Fatalf("token %d: got %s, want %s (all: %v)", i, gotKinds[i], want[i], gotKinds)
		}
	}
}

func TestScanBasicExpression(t *testing.T) {
	var a symbols.Value = 1
	tab := testTable(t, map[string]*symbols.Value{"a": &a})

	tokens, err := scan(t, tab, "(1+ 2*a)")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	assertKinds(t, tokens,
		token.LParen, token.Number, token.BinOprt, token.Number,
		token.BinOprt, token.Variable, token.RParen, token.EOE)

	if tokens[1].Val != 1 || tokens[3].Val != 2 {
		t.Errorf("number payloads wrong: %v, %v", tokens[1].Val, tokens[3].Val)
	}
	if tokens[5].Var == nil || tokens[5].Var.Name != "a" {
		t.Errorf("variable payload wrong: %v", tokens[5])
	}
}

func TestScanClassification(t *testing.T) {
	var a symbols.Value = 1
	tab := testTable(t, map[string]*symbols.Value{"a": &a})

	tests := []struct {
		input string
		want  []token.Kind
	}{
		// "-" is not an infix operator in this table, so the literal
		// reader consumes the sign in value position
		{"-8", []token.Kind{token.Number, token.EOE}},
		{"2+-4", []token.Kind{token.Number, token.BinOprt, token.Number, token.EOE}},
		// registered infix operators are read as such, whatever follows
		{"~a", []token.Kind{token.InfixOprt, token.Variable, token.EOE}},
		{"~~ 12", []token.Kind{token.InfixOprt, token.Number, token.EOE}},
		// alphabetic binary operator
		{"a add a", []token.Kind{token.Variable, token.BinOprt, token.Variable, token.EOE}},
		{"1 add 2", []token.Kind{token.Number, token.BinOprt, token.Number, token.EOE}},
		// postfix operators, longest match and name boundary
		{"3000meg", []token.Kind{token.Number, token.PostOprt, token.EOE}},
		{"3000m", []token.Kind{token.Number, token.PostOprt, token.EOE}},
		{"3{m}", []token.Kind{token.Number, token.PostOprt, token.EOE}},
		{"1000 {m}", []token.Kind{token.Number, token.PostOprt, token.EOE}},
		// assignment vs equality
		{"a=1", []token.Kind{token.Variable, token.Assign, token.Number, token.EOE}},
		{"a==1", []token.Kind{token.Variable, token.BinOprt, token.Number, token.EOE}},
		// constants, string constants, functions
		{"pi", []token.Kind{token.Number, token.EOE}},
		{"sin(a)", []token.Kind{token.Function, token.LParen, token.Variable, token.RParen, token.EOE}},
		{"str1", []token.Kind{token.String, token.EOE}},
		// ternary
		{"a=1?2:3", []token.Kind{token.Variable, token.Assign, token.Number, token.Question,
			token.Number, token.Colon, token.Number, token.EOE}},
		// empty call parenthesis
		{"sin()", []token.Kind{token.Function, token.LParen, token.RParen, token.EOE}},
		// string literal
		{`"abc"`, []token.Kind{token.String, token.EOE}},
	}

	for _, tt := range tests {
		tokens, err := scan(t, tab, tt.input)
		if err != nil {
			t.Errorf("scan(%q) failed: %v", tt.input, err)
			continue
		}
		assertKinds(t, tokens, tt.want...)
	}
}

func TestPostfixLongestMatch(t *testing.T) {
	var a symbols.Value = 1
	tab := testTable(t, map[string]*symbols.Value{"a": &a})

	tokens, err := scan(t, tab, "2*3000meg+2")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	assertKinds(t, tokens,
		token.Number, token.BinOprt, token.Number, token.PostOprt,
		token.BinOprt, token.Number, token.EOE)
	if tokens[3].Ident != "meg" {
		t.Errorf("longest postfix match: got %q, want %q", tokens[3].Ident, "meg")
	}
}

func TestStringLiteralEscapes(t *testing.T) {
	tab := testTable(t, nil)

	tokens, err := scan(t, tab, `"\"abc\""`)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if tokens[0].Str != `"abc"` {
		t.Errorf("unescaped payload: got %q, want %q", tokens[0].Str, `"abc"`)
	}
}

func TestScanErrors(t *testing.T) {
	var a symbols.Value = 1
	tab := testTable(t, map[string]*symbols.Value{"a": &a})

	tests := []struct {
		input string
		kind  errors.Kind
	}{
		{"", errors.UnexpectedEOF},
		{"3+", errors.UnexpectedEOF},
		{"8*", errors.UnexpectedEOF},
		{"1,", errors.UnexpectedEOF},
		{"ksdfj", errors.UnassignableToken},
		{"sin(3)xyz", errors.UnassignableToken},
		{"{m}4", errors.UnassignableToken},
		{"4 + {m}", errors.UnassignableToken},
		{"sin(3)3", errors.UnexpectedVal},
		{"sin(3)pi", errors.UnexpectedVal},
		{"sin(3)a", errors.UnexpectedVal},
		{"sin(3)sin(3)", errors.UnexpectedFun},
		{"3+)", errors.UnexpectedParens},
		{"2(a)", errors.UnexpectedParens},
		{",3", errors.UnexpectedComma},
		{"? 1 : 2", errors.UnexpectedConditional},
		{":3", errors.UnexpectedConditional},
		{`"abc`, errors.UnterminatedString},
	}

	for _, tt := range tests {
		_, err := scan(t, tab, tt.input)
		if err == nil {
			t.Errorf("scan(%q) should have failed with kind %d", tt.input, tt.kind)
			continue
		}
		if !errors.Is(err, tt.kind) {
			t.Errorf("scan(%q): got %v, want kind %d", tt.input, err, tt.kind)
		}
	}
}

func TestErrorPositions(t *testing.T) {
	tab := testTable(t, nil)

	_, err := scan(t, tab, "1 + ksdfj")
	if err == nil {
		t.Fatal("expected an error")
	}
	kerr, ok := err.(*errors.Error)
	if !ok {
		t.Fatalf("expected *errors.Error, got %T", err)
	}
	if kerr.Pos != 4 {
		t.Errorf("error position: got %d, want 4", kerr.Pos)
	}
	if kerr.Token != "ksdfj" {
		t.Errorf("error token: got %q, want %q", kerr.Token, "ksdfj")
	}
}
