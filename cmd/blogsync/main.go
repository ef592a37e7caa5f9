package main

import (
	"log/slog"

	"git.home.luguber.info/inful/blogsync/cmd/blogsync/commands"
	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/version"
	"github.com/alecthomas/kong"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("blogsync"),
		kong.Description("Export, publish and reconcile posts across multiple blog repositories."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	if err := parser.Run(&commands.Global{Logger: slog.Default()}, cli); err != nil {
		foundationerrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
