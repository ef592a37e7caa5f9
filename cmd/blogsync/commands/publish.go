package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/publish"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct {
	IDs []int64 `arg:"" name:"post-id" help:"Posts to publish"`
}

func (p *PublishCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	publisher := s.publisher()
	var firstErr error
	for _, id := range p.IDs {
		res, err := publisher.Publish(ctx, id)
		if err != nil {
			slog.Error("Publish failed", logfields.PostID(id), logfields.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if res.NoChanges {
			fmt.Printf("post %d: %s no changes\n", id, res.Path)
			continue
		}
		fmt.Printf("post %d: %s published in %s\n", id, res.Path, res.CommitSHA)
	}
	return firstErr
}

// RefreshCmd implements the 'refresh' command.
type RefreshCmd struct {
	IDs         []int64 `arg:"" name:"post-id" help:"Posts to compare"`
	FailOnDrift bool    `name:"fail-on-drift" help:"Exit with status 2 when any post drifted or failed"`
}

func (r *RefreshCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.publisher().Refresh(ctx, r.IDs)
	if err != nil {
		return err
	}
	if err := printJSON(results); err != nil {
		return err
	}
	if !r.FailOnDrift {
		return nil
	}
	drifted := 0
	for _, res := range results {
		if res.Status != publish.DriftOK {
			drifted++
		}
	}
	if drifted > 0 {
		return foundationerrors.ValidationError(fmt.Sprintf("%d post(s) out of sync with the remote", drifted)).Build()
	}
	return nil
}

// DeleteCmd implements the 'delete' command.
type DeleteCmd struct {
	ID    int64  `arg:"" name:"post-id" help:"Post to delete"`
	Mode  string `default:"db-only" enum:"db-only,repo-and-db" help:"What to delete (db-only, repo-and-db)"`
	Force bool   `help:"Allow repo-and-db even when delete.allow_repo_delete is off"`
}

func (d *DeleteCmd) Run(_ *Global, root *CLI) error {
	mode, err := publish.ParseDeleteMode(d.Mode)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.publisher().Delete(ctx, d.ID, mode, d.Force)
	if err != nil {
		return err
	}
	if res.Mode == publish.DeleteDBOnly {
		fmt.Printf("post %d deleted from the database\n", res.PostID)
		return nil
	}
	fmt.Printf("post %d deleted; remote %s: %s", res.PostID, res.Path, res.RemoteStatus)
	if res.CommitSHA != "" {
		fmt.Printf(" in %s", res.CommitSHA)
	}
	fmt.Println()
	return nil
}

// BackfillCmd implements 'backfill-last-published-hash'.
type BackfillCmd struct {
	Site   string `help:"Limit to one site slug"`
	DryRun bool   `name:"dry-run" help:"Report without writing"`
	Force  bool   `help:"Recompute hashes that are already set"`
}

func (b *BackfillCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	siteID, err := s.siteID(ctx, b.Site)
	if err != nil {
		return err
	}
	rep, err := s.publisher().BackfillLastPublishedHash(ctx, siteID, b.DryRun, b.Force)
	if err != nil {
		return err
	}
	return printJSON(rep)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
