package errors

import (
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{New(UnassignableToken, 4, "ksdfj"), `undefined token "ksdfj" at position 4`},
		{New(MissingParens, -1, ""), "missing parenthesis"},
		{New(UnexpectedEOF, 3, ""), "unexpected end of expression at position 3"},
		{New(DivByZero, -1, "/"), `division by zero "/"`},
		{New(Kind(1000), -1, ""), "parser error"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestIs(t *testing.T) {
	err := New(TooManyParams, 0, "sin")
	if !Is(err, TooManyParams) {
		t.Error("Is should match the error's own kind")
	}
	if Is(err, TooFewParams) {
		t.Error("Is should not match a different kind")
	}
	if Is(fmt.Errorf("plain"), TooManyParams) {
		t.Error("Is should not match a non-kalk error")
	}
	wrapped := fmt.Errorf("compile: %w", err)
	if !Is(wrapped, TooManyParams) {
		t.Error("Is should unwrap")
	}
}
