package commands

import (
	"errors"
	"fmt"
	"sort"

	"git.home.luguber.info/inful/blogsync/internal/publish"
	"git.home.luguber.info/inful/blogsync/internal/reposync"
)

// SyncCmd implements the 'sync' command. Without --apply it is a dry run;
// the report and logfile paths are printed either way.
type SyncCmd struct {
	Sites      []string `sep:"," help:"Comma separated site slugs (default: every site)"`
	DryRun     bool     `name:"dry-run" xor:"mode" help:"Plan and report without writing (default)"`
	Apply      bool     `xor:"mode" help:"Apply the plan unless slug or taxonomy warnings are found"`
	Local      bool     `help:"Scan local working copies even for sites with remote coordinates"`
	DeletePKs  []int64  `name:"delete-pks" sep:"," help:"Post IDs to delete after the scan"`
	Confirm    bool     `help:"Confirm the deletion requested with --delete-pks"`
	DeleteMode string   `name:"delete-mode" default:"db-only" enum:"db-only,repo-and-db" help:"Deletion mode (db-only, repo-and-db)"`
	RunID      string   `name:"run-id" help:"Use this run identifier instead of a generated one"`
}

func (c *SyncCmd) Run(_ *Global, root *CLI) error {
	mode, err := publish.ParseDeleteMode(c.DeleteMode)
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

	opts := []reposync.Option{
		reposync.WithLocker(s.locker),
		reposync.WithEditor(s.editor()),
		reposync.WithRecorder(s.recorder),
	}
	if !c.Local {
		opts = append(opts, reposync.WithRemote(s.forgeClient()))
	}
	syncer := reposync.New(s.store, s.cfg, opts...)

	res, runErr := syncer.Run(ctx, reposync.Request{
		Sites:      c.Sites,
		Apply:      c.Apply,
		DeletePKs:  c.DeletePKs,
		Confirm:    c.Confirm,
		DeleteMode: mode,
		RunID:      c.RunID,
	})
	printSyncSummary(res)
	if errors.Is(runErr, reposync.ErrAuditGate) {
		fmt.Println("apply skipped: resolve the slug and taxonomy warnings listed in the report")
	}
	return runErr
}

func printSyncSummary(res reposync.Result) {
	if res.RunID == "" {
		return
	}
	fmt.Printf("run: %s\n", res.RunID)
	if res.LogPath != "" {
		fmt.Printf("log: %s\n", res.LogPath)
	}
	if res.Report.RunID != "" {
		fmt.Printf("report: %s\n", res.ReportPath)
	}

	slugs := make([]string, 0, len(res.Report.Sites))
	for slug := range res.Report.Sites {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		sr := res.Report.Sites[slug]
		fmt.Printf("%s (%s): create=%d update=%d unchanged=%d invalid=%d warnings=%d applied=%t\n",
			slug, sr.Source, len(sr.Created), len(sr.Updated), len(sr.Unchanged),
			len(sr.Invalid), len(sr.Warnings), sr.Applied)
		if sr.Error != "" {
			fmt.Printf("  error: %s\n", sr.Error)
		}
	}
	if d := res.Report.Deleted; d != nil {
		fmt.Printf("deleted %d post(s) (%s)", len(d.PostIDs), d.Mode)
		if d.BackupPath != "" {
			fmt.Printf(", backup %s", d.BackupPath)
		}
		fmt.Println()
	}
}
