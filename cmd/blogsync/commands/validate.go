package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	foundationerrors "git.home.luguber.info/inful/blogsync/internal/foundation/errors"
	"git.home.luguber.info/inful/blogsync/internal/links"
	"git.home.luguber.info/inful/blogsync/internal/publish"
	"git.home.luguber.info/inful/blogsync/internal/store"
)

// ExportValidatorCmd implements the 'export-validator' command. It exits
// with status 2 when any violation is found.
type ExportValidatorCmd struct {
	Site string `help:"Limit to one site slug"`
}

func (v *ExportValidatorCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	violations, err := publish.ValidateExports(ctx, s.store, v.Site)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		fmt.Println("all exported filenames are valid")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POST\tSITE\tKIND\tPATH\tMESSAGE")
	for _, vi := range violations {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", vi.PostID, vi.Site, vi.Kind, vi.Path, vi.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return foundationerrors.ValidationError(fmt.Sprintf("%d export violation(s)", len(violations))).Build()
}

// LinkLintCmd implements the 'link-lint' command.
type LinkLintCmd struct {
	Site       string `required:"" help:"Site slug to lint"`
	FailOnWarn bool   `name:"fail-on-warn" help:"Exit with status 2 when any finding is reported"`
	Format     string `short:"f" default:"text" enum:"text,json" help:"Output format (text or json)"`
}

func (l *LinkLintCmd) Run(_ *Global, root *CLI) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, root)
	if err != nil {
		return err
	}
	defer s.Close()

	site, err := s.store.SiteBySlug(ctx, l.Site)
	if err != nil {
		return err
	}
	posts, err := s.store.ListPosts(ctx, store.PostFilter{SiteID: site.ID})
	if err != nil {
		return err
	}

	linter := links.NewLinter(s.resolver())
	findings := []links.Finding{}
	for _, post := range posts {
		findings = append(findings, linter.LintPost(ctx, site, post)...)
	}

	if l.Format == "json" {
		if err := printJSON(findings); err != nil {
			return err
		}
	} else {
		for _, f := range findings {
			fmt.Printf("%s: post %d (%s): %s\n", f.Kind, f.PostID, f.Slug, f.Message)
		}
		fmt.Printf("%d post(s) checked, %d finding(s)\n", len(posts), len(findings))
	}

	if l.FailOnWarn && len(findings) > 0 {
		return foundationerrors.NewError(foundationerrors.CategoryLinks,
			fmt.Sprintf("%d link finding(s) on site %s", len(findings), site.Slug)).Build()
	}
	return nil
}
