package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
)

// evalCmd evaluates one expression given on the command line.
type evalCmd struct{}

func (*evalCmd) Name() string     { return "eval" }
func (*evalCmd) Synopsis() string { return "Evaluate an expression and print its result" }
func (*evalCmd) Usage() string {
	return `kalk eval 'expression':
  Evaluate the expression. Comma-separated compound expressions print
  one result per line.
`
}

func (cmd *evalCmd) SetFlags(f *flag.FlagSet) {}

func (cmd *evalCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 No expression provided\n")
		return subcommands.ExitUsageError
	}
	expr := strings.Join(args, " ")

	sess := newSession()
	if err := sess.setExpr(expr); err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}

	results, err := sess.parser.EvalMulti()
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}
	for _, result := range results {
		fmt.Printf("%v\n", result)
	}
	return subcommands.ExitSuccess
}
