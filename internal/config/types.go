package config

// CollisionPolicy decides what the exporter does when the destination file
// already belongs to another post.
type CollisionPolicy string

const (
	CollisionIncrement CollisionPolicy = "increment"
	CollisionFail      CollisionPolicy = "fail"
)

// CrossSitePolicy decides how shortcodes pointing at another site resolve.
type CrossSitePolicy string

const (
	CrossSiteAbsolute CrossSitePolicy = "absolute"
	CrossSiteBlock    CrossSitePolicy = "block"
)

// Config is the process-wide configuration for the blogsync core.
type Config struct {
	Database string       `yaml:"database"`
	RepoBase string       `yaml:"repo_base"`
	Export   ExportConfig `yaml:"export"`
	Links    LinksConfig  `yaml:"links"`
	Delete   DeleteConfig `yaml:"delete"`
	Forge    ForgeConfig  `yaml:"forge"`
	Sync     SyncConfig   `yaml:"sync"`
	Sites    []SiteConfig `yaml:"sites,omitempty"`
}

// ExportConfig controls the exporter and the post-save hook.
type ExportConfig struct {
	Enabled         bool            `yaml:"enabled"`
	CollisionPolicy CollisionPolicy `yaml:"collision_policy"`
	PushUser        string          `yaml:"push_user"`
	CommitAuthor    string          `yaml:"commit_author,omitempty"`
	OpenConflictPR  bool            `yaml:"open_conflict_pr"`
}

// LinksConfig controls shortcode expansion in the renderer.
type LinksConfig struct {
	Enabled         bool            `yaml:"enabled"`
	CrossSitePolicy CrossSitePolicy `yaml:"cross_site_policy"`
}

// DeleteConfig gates repository-side deletion.
type DeleteConfig struct {
	AllowRepoDelete bool `yaml:"allow_repo_delete"`
}

// ForgeConfig configures the remote host API client.
type ForgeConfig struct {
	APIURL            string           `yaml:"api_url"`
	Token             string           `yaml:"token,omitempty"`
	RequestsPerSecond float64          `yaml:"requests_per_second"`
	Burst             int              `yaml:"burst"`
	MaxRetries        int              `yaml:"max_retries"`
	RetryBackoff      RetryBackoffMode `yaml:"retry_backoff"`
	RetryInitialDelay string           `yaml:"retry_initial_delay"`
	RetryMaxDelay     string           `yaml:"retry_max_delay"`
}

// SyncConfig controls where sync runs write reports and logs.
type SyncConfig struct {
	ReportDir string `yaml:"report_dir"`
	LogPath   string `yaml:"log_path,omitempty"`
}

// SiteConfig seeds a Site row (see `sites apply`).
type SiteConfig struct {
	Slug          string `yaml:"slug"`
	Name          string `yaml:"name"`
	RepoOwner     string `yaml:"repo_owner,omitempty"`
	RepoName      string `yaml:"repo_name,omitempty"`
	DefaultBranch string `yaml:"default_branch,omitempty"`
	RepoPath      string `yaml:"repo_path,omitempty"`
	PostsDir      string `yaml:"posts_dir,omitempty"`
	MediaDir      string `yaml:"media_dir,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty"`
	Domain        string `yaml:"domain,omitempty"`
}
