package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/blogsync/internal/logfields"
)

// ExportCmd implements the 'export' command.
type ExportCmd struct {
	IDs []int64 `arg:"" name:"post-id" help:"Posts to export"`
}

func (e *ExportCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	exporter := s.exporter()
	var firstErr error
	for _, id := range e.IDs {
		res, err := exporter.Export(ctx, id)
		if err != nil {
			slog.Error("Export failed", logfields.PostID(id), logfields.Error(err))
			if res.DiagnosticBranch != "" {
				fmt.Printf("post %d: changes parked on %s", id, res.DiagnosticBranch)
				if res.PullRequestURL != "" {
					fmt.Printf(" (%s)", res.PullRequestURL)
				}
				fmt.Println()
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !res.Changed() {
			fmt.Printf("post %d: %s unchanged\n", id, res.Path)
			continue
		}
		fmt.Printf("post %d: %s committed %s", id, res.Path, res.CommitSHA)
		if res.Moved {
			fmt.Printf(" (moved from %s)", res.PreviousPath)
		}
		fmt.Println()
	}
	return firstErr
}
