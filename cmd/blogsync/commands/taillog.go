package commands

import (
	"os"

	"git.home.luguber.info/inful/blogsync/internal/logtail"
)

// TailLogCmd implements the 'tail-log' command. It follows a sync logfile
// until interrupted.
type TailLogCmd struct {
	Path      string `arg:"" help:"Logfile to follow (printed by 'sync' as log:)"`
	FromStart bool   `name:"from-start" help:"Print the existing content before following"`
}

func (t *TailLogCmd) Run(_ *Global, _ *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()
	return logtail.Follow(ctx, t.Path, os.Stdout, t.FromStart)
}
