package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/editorial"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// PostCmd groups editorial subcommands.
type PostCmd struct {
	SetStatus PostSetStatusCmd `cmd:"" name:"set-status" help:"Change a post's status and run the post-save export hook"`
}

// PostSetStatusCmd saves a status change through the editorial service. A
// scheduled export runs in the background and the command waits for it.
type PostSetStatusCmd struct {
	ID      int64         `arg:"" help:"Post ID"`
	Status  string        `arg:"" enum:"draft,review,published" help:"New status (draft, review, published)"`
	Timeout time.Duration `default:"5m" help:"Upper bound for the scheduled export"`
}

func (c *PostSetStatusCmd) Run(_ *PostCmd, _ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	scheduler := editorial.NewScheduler(s.exporter(), c.Timeout)
	svc := s.editor(editorial.WithScheduler(scheduler))

	post, decision, err := svc.SetStatus(ctx, c.ID, store.Status(c.Status))
	if err != nil {
		return err
	}
	fmt.Printf("post %d (%s) is %s; export %s", post.ID, post.Slug, post.Status, decision.Outcome)
	if decision.Reason != "" {
		fmt.Printf(" (%s)", decision.Reason)
	}
	fmt.Println()

	waitCtx, waitCancel := context.WithTimeout(ctx, c.Timeout+time.Minute)
	defer waitCancel()
	if err := scheduler.StopAndWait(waitCtx); err != nil {
		slog.Warn("Scheduled export still running at exit", logfields.PostID(post.ID), logfields.Error(err))
	}
	return nil
}
