// Command detention-calc evaluates detention for ad hoc appointment times
// without a running server.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"fleetdetention/internal/buildinfo"
)

// Context is passed to every command's Run.
type Context struct {
	Out io.Writer
	Now func() time.Time
}

type CLI struct {
	Version kong.VersionFlag `help:"Print version and exit."`

	StopTypes StopTypesCmd `cmd:"" name:"stop-types" help:"List stop types and their detention rules."`
	Evaluate  EvaluateCmd  `cmd:"" help:"Show the detention clock for an appointment."`
	Final     FinalCmd     `cmd:"" help:"Compute frozen detention for a departure."`
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("detention-calc"),
		kong.Description("Detention calculator for fleet appointments"),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.Version},
	}, opts...)...)
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	if err := ctx.Run(&Context{Out: os.Stdout, Now: time.Now}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
