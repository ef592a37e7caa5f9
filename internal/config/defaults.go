package config

const (
	DefaultDatabase       = "blogsync.db"
	DefaultPostsDir       = "_posts"
	DefaultMediaDir       = "assets"
	DefaultBranch         = "main"
	DefaultPushUser       = "x-access-token"
	DefaultForgeAPIURL    = "https://api.github.com"
	DefaultReportDir      = "sync-reports"
	defaultRequestsPerSec = 5
	defaultBurst          = 5
	defaultMaxRetries     = 2
	defaultRetryInitial   = "500ms"
	defaultRetryMaxDelay  = "10s"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{
		Export: ExportConfig{Enabled: true},
		Links:  LinksConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.Export.CollisionPolicy == "" {
		cfg.Export.CollisionPolicy = CollisionIncrement
	}
	if cfg.Export.PushUser == "" {
		cfg.Export.PushUser = DefaultPushUser
	}
	if cfg.Links.CrossSitePolicy == "" {
		cfg.Links.CrossSitePolicy = CrossSiteAbsolute
	}
	if cfg.Forge.APIURL == "" {
		cfg.Forge.APIURL = DefaultForgeAPIURL
	}
	if cfg.Forge.RequestsPerSecond <= 0 {
		cfg.Forge.RequestsPerSecond = defaultRequestsPerSec
	}
	if cfg.Forge.Burst <= 0 {
		cfg.Forge.Burst = defaultBurst
	}
	if cfg.Forge.MaxRetries == 0 {
		cfg.Forge.MaxRetries = defaultMaxRetries
	}
	if cfg.Forge.RetryBackoff == "" {
		cfg.Forge.RetryBackoff = RetryBackoffExponential
	}
	if cfg.Forge.RetryInitialDelay == "" {
		cfg.Forge.RetryInitialDelay = defaultRetryInitial
	}
	if cfg.Forge.RetryMaxDelay == "" {
		cfg.Forge.RetryMaxDelay = defaultRetryMaxDelay
	}
	if cfg.Sync.ReportDir == "" {
		cfg.Sync.ReportDir = DefaultReportDir
	}
	for i := range cfg.Sites {
		s := &cfg.Sites[i]
		if s.PostsDir == "" {
			s.PostsDir = DefaultPostsDir
		}
		if s.MediaDir == "" {
			s.MediaDir = DefaultMediaDir
		}
		if s.DefaultBranch == "" {
			s.DefaultBranch = DefaultBranch
		}
		if s.Name == "" {
			s.Name = s.Slug
		}
	}
}
