package commands

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"git.home.luguber.info/inful/blogsync/internal/logfields"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// SitesCmd groups site management subcommands.
type SitesCmd struct {
	Apply SitesApplyCmd `cmd:"" help:"Upsert the sites defined in the configuration file"`
	List  SitesListCmd  `cmd:"" default:"1" help:"List configured sites"`
}

// SitesApplyCmd upserts cfg.Sites into the store.
type SitesApplyCmd struct{}

func (a *SitesApplyCmd) Run(_ *SitesCmd, _ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(s.cfg.Sites) == 0 {
		fmt.Println("no sites defined in configuration")
		return nil
	}
	for _, sc := range s.cfg.Sites {
		site, err := s.store.UpsertSite(ctx, store.Site{
			Slug:          sc.Slug,
			Name:          sc.Name,
			RepoOwner:     sc.RepoOwner,
			RepoName:      sc.RepoName,
			DefaultBranch: sc.DefaultBranch,
			RepoPath:      sc.RepoPath,
			PostsDir:      sc.PostsDir,
			MediaDir:      sc.MediaDir,
			BaseURL:       sc.BaseURL,
			Domain:        sc.Domain,
		})
		if err != nil {
			return err
		}
		slog.Info("Site applied", logfields.Site(site.Slug), slog.Int64("site_id", site.ID))
	}
	fmt.Printf("applied %d site(s)\n", len(s.cfg.Sites))
	return nil
}

// SitesListCmd prints the sites stored in the database.
type SitesListCmd struct{}

func (l *SitesListCmd) Run(_ *SitesCmd, _ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	sites, err := s.store.ListSites(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSLUG\tREPOSITORY\tBRANCH\tPOSTS DIR\tBASE URL")
	for _, site := range sites {
		repo := "-"
		if site.HasRemote() {
			repo = site.RepoOwner + "/" + site.RepoName
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", site.ID, site.Slug, repo, site.DefaultBranch, site.PostsDir, site.BaseURL)
	}
	return tw.Flush()
}
