package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"kalk/errors"
	"kalk/parser"
	"kalk/symbols"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&evalCmd{}, "")
	subcommands.Register(&bytecodeCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

// session wraps a parser with a variable factory: any undefined name
// the tokeniser trips over becomes a fresh variable initialised to
// zero, so `x=2, x*x` just works at the prompt.
type session struct {
	parser *parser.Parser
	vars   map[string]*symbols.Value
}

func newSession() *session {
	return &session{
		parser: parser.New(),
		vars:   make(map[string]*symbols.Value),
	}
}

// setExpr compiles expr, creating variables for unknown identifiers
// until compilation stops complaining about them.
func (s *session) setExpr(expr string) error {
	for {
		err := s.parser.SetExpr(expr)
		if err == nil {
			return nil
		}
		kerr, ok := err.(*errors.Error)
		if !ok || kerr.Kind != errors.UnassignableToken {
			return err
		}
		if defineErr := s.defineVar(kerr.Token); defineErr != nil {
			return err
		}
	}
}

func (s *session) defineVar(name string) error {
	if _, exists := s.vars[name]; exists {
		// Defining it again would not change anything; bail out so
		// setExpr cannot loop forever.
		return os.ErrInvalid
	}
	cell := new(symbols.Value)
	if err := s.parser.DefineVar(name, cell); err != nil {
		return err
	}
	s.vars[name] = cell
	return nil
}
