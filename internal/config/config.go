package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// Environment variables recognised as overrides of the file configuration.
const (
	EnvGitToken            = "GIT_TOKEN"
	EnvGitHubToken         = "GITHUB_TOKEN"
	EnvRepoBase            = "BLOG_REPO_BASE"
	EnvExportEnabled       = "EXPORT_ENABLED"
	EnvAllowRepoDelete     = "ALLOW_REPO_DELETE"
	EnvLinkResolverEnabled = "LINK_RESOLVER_ENABLED"
	EnvCrossSitePolicy     = "CROSS_SITE_POLICY"
	EnvSyncLogPath         = "SYNC_LOG_PATH"
	EnvDatabase            = "BLOGSYNC_DATABASE"
)

// Load reads the YAML configuration at path, then applies environment overrides.
//
// A missing file is not an error: the defaults plus environment are returned so
// the CLI works in environment-only deployments.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{
		Export: ExportConfig{Enabled: true},
		Links:  LinksConfig{Enabled: true},
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "failed to parse configuration").
				WithContext("path", path).
				Build()
		}
	case os.IsNotExist(err):
		slog.Debug("Configuration file not found, using defaults", slog.String("path", path))
	default:
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to read configuration").
			WithContext("path", path).
			Build()
	}

	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env/.env.local without overriding variables that are already set.
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", slog.String("path", name), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Loaded environment variables", slog.String("path", name))
	}
}

// ApplyEnv overlays environment variables onto cfg. lookup is os.LookupEnv in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvGitToken); ok && v != "" {
		cfg.Forge.Token = v
	} else if v, ok := lookup(EnvGitHubToken); ok && v != "" {
		cfg.Forge.Token = v
	}
	if v, ok := lookup(EnvRepoBase); ok && v != "" {
		cfg.RepoBase = v
	}
	if v, ok := lookup(EnvDatabase); ok && v != "" {
		cfg.Database = v
	}
	if v, ok := lookup(EnvSyncLogPath); ok && v != "" {
		cfg.Sync.LogPath = v
	}
	if v, ok := lookup(EnvCrossSitePolicy); ok && v != "" {
		cfg.Links.CrossSitePolicy = CrossSitePolicy(v)
		if p, ok := crossSitePolicies.Lookup(v); ok {
			cfg.Links.CrossSitePolicy = p
		}
	}

	bools := []struct {
		key    string
		target *bool
	}{
		{EnvExportEnabled, &cfg.Export.Enabled},
		{EnvAllowRepoDelete, &cfg.Delete.AllowRepoDelete},
		{EnvLinkResolverEnabled, &cfg.Links.Enabled},
	}
	for _, b := range bools {
		v, ok := lookup(b.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := parseBool(v)
		if err != nil {
			return errors.WrapError(err, errors.CategoryConfig, "invalid boolean environment variable").
				WithContext("variable", b.key).
				Build()
		}
		*b.target = parsed
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(raw))
}

// Validate rejects configurations the core cannot act on.
func Validate(cfg *Config) error {
	var err error
	if cfg.Export.CollisionPolicy, err = collisionPolicies.Parse(string(cfg.Export.CollisionPolicy)); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid export.collision_policy").Build()
	}
	if cfg.Links.CrossSitePolicy, err = crossSitePolicies.Parse(string(cfg.Links.CrossSitePolicy)); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid links.cross_site_policy").Build()
	}
	if cfg.Forge.RetryBackoff, err = retryBackoffs.Parse(string(cfg.Forge.RetryBackoff)); err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid forge.retry_backoff").Build()
	}
	seen := make(map[string]bool, len(cfg.Sites))
	for _, s := range cfg.Sites {
		if s.Slug == "" {
			return errors.ConfigError("site entry without slug").Build()
		}
		if seen[s.Slug] {
			return errors.ConfigError(fmt.Sprintf("duplicate site slug %q", s.Slug)).Build()
		}
		seen[s.Slug] = true
	}
	return nil
}

// Init writes an example configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", path)).Build()
	}
	example := Default()
	example.Forge.Token = "${GITHUB_TOKEN}"
	example.Sites = []SiteConfig{{
		Slug:          "main-blog",
		Name:          "Main blog",
		RepoOwner:     "example",
		RepoName:      "main-blog",
		DefaultBranch: DefaultBranch,
		PostsDir:      DefaultPostsDir,
		MediaDir:      DefaultMediaDir,
		BaseURL:       "https://blog.example.com",
		Domain:        "blog.example.com",
	}}
	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal example configuration").Build()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write configuration").Build()
	}
	return nil
}
