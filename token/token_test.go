package token

import "testing"

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Number, "NUMBER"},
		{Variable, "VARIABLE"},
		{BinOprt, "BIN_OPRT"},
		{Assign, "ASSIGN"},
		{Question, "QUESTION"},
		{EOE, "EOE"},
		{Kind(99), "Kind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}

func TestTokenString(t *testing.T) {
	tok := Token{Kind: Number, Ident: "123", Pos: 3, Val: 123}
	want := `Token {Kind: NUMBER, Ident: "123", Pos: 3}`
	if got := tok.String(); got != want {
		t.Errorf("Token.String() = %q, want %q", got, want)
	}
}
