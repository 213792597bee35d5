package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Project option flags recognized in the registry.
const (
	OptionTrackUpstream = "track-upstream"
	OptionNoGerrit      = "no-gerrit"
)

// Defaults holds the run-wide settings from the [projects] section of the
// ini registry file.
type Defaults struct {
	GerritHost      string `ini:"gerrit-host"`
	GerritPort      int    `ini:"gerrit-port"`
	GerritUser      string `ini:"gerrit-user"`
	GerritKey       string `ini:"gerrit-key"`
	GerritCommitter string `ini:"gerrit-committer"`
	LocalGitDir     string `ini:"local-git-dir"`
	CacheDir        string `ini:"cache-dir"`
	ACLDir          string `ini:"acl-dir"`
	SystemUser      string `ini:"gerrit-system-user"`
	SystemGroup     string `ini:"gerrit-system-group"`
}

// Project is one declared unit of work from the yaml registry.
type Project struct {
	Name           string            `yaml:"project"`
	Options        []string          `yaml:"options"`
	Description    string            `yaml:"description"`
	Upstream       string            `yaml:"upstream"`
	UpstreamPrefix string            `yaml:"upstream-prefix"`
	ACLConfig      string            `yaml:"acl-config"`
	ACLParameters  map[string]string `yaml:"acl-parameters"`
}

// HasOption reports whether the given option flag is declared.
func (p Project) HasOption(name string) bool {
	for _, o := range p.Options {
		if o == name {
			return true
		}
	}
	return false
}

// TrackUpstream reports whether the project mirrors an upstream repository.
func (p Project) TrackUpstream() bool {
	return p.HasOption(OptionTrackUpstream)
}

// NoGerrit reports whether the project opted out of review-server
// management entirely.
func (p Project) NoGerrit() bool {
	return p.HasOption(OptionNoGerrit)
}

// ACLFile returns the policy template filename for the project, defaulting
// to <name>.config.
func (p Project) ACLFile() string {
	if p.ACLConfig != "" {
		return p.ACLConfig
	}
	return p.Name + ".config"
}

// Config is the fully loaded registry: run defaults plus the ordered
// project list.
type Config struct {
	Defaults Defaults
	Projects []Project

	byName map[string]*Project
}

// Load reads the ini defaults file and the yaml project list. Both files
// must exist.
func Load(iniPath, yamlPath string) (*Config, error) {
	cfg := &Config{}

	iniFile, err := ini.Load(os.ExpandEnv(iniPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file: %w", err)
	}
	if err := iniFile.Section("projects").MapTo(&cfg.Defaults); err != nil {
		return nil, fmt.Errorf("failed to parse defaults file: %w", err)
	}

	data, err := os.ReadFile(os.ExpandEnv(yamlPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read project list: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg.Projects); err != nil {
		return nil, fmt.Errorf("failed to parse project list: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.byName = make(map[string]*Project, len(cfg.Projects))
	for i := range cfg.Projects {
		cfg.byName[cfg.Projects[i].Name] = &cfg.Projects[i]
	}

	return cfg, nil
}

// expandEnv expands environment variables in all path-like fields.
func (c *Config) expandEnv() {
	c.Defaults.GerritKey = os.ExpandEnv(c.Defaults.GerritKey)
	c.Defaults.LocalGitDir = os.ExpandEnv(c.Defaults.LocalGitDir)
	c.Defaults.CacheDir = os.ExpandEnv(c.Defaults.CacheDir)
	c.Defaults.ACLDir = os.ExpandEnv(c.Defaults.ACLDir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Defaults.GerritPort == 0 {
		c.Defaults.GerritPort = 29418
	}
	if c.Defaults.LocalGitDir == "" {
		c.Defaults.LocalGitDir = "/var/lib/git"
	}
	if c.Defaults.CacheDir == "" {
		c.Defaults.CacheDir = "/var/tmp/cache"
	}
	if c.Defaults.SystemUser == "" {
		c.Defaults.SystemUser = "gerrit2"
	}
	if c.Defaults.SystemGroup == "" {
		c.Defaults.SystemGroup = "gerrit2"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Defaults.GerritHost == "" {
		return fmt.Errorf("gerrit-host is required")
	}
	if c.Defaults.GerritUser == "" {
		return fmt.Errorf("gerrit-user is required")
	}
	if c.Defaults.GerritKey == "" {
		return fmt.Errorf("gerrit-key is required")
	}
	if !filepath.IsAbs(c.Defaults.LocalGitDir) {
		return fmt.Errorf("local-git-dir must be an absolute path: %s", c.Defaults.LocalGitDir)
	}
	if !filepath.IsAbs(c.Defaults.CacheDir) {
		return fmt.Errorf("cache-dir must be an absolute path: %s", c.Defaults.CacheDir)
	}

	seen := make(map[string]bool, len(c.Projects))
	for _, p := range c.Projects {
		if p.Name == "" {
			return fmt.Errorf("project entry without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate project: %s", p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// Project returns the declared project by name, or nil if not declared.
func (c *Config) Project(name string) *Project {
	return c.byName[name]
}

// RemoteURL returns the review server remote for a project.
func (c *Config) RemoteURL(name string) string {
	return fmt.Sprintf("ssh://%s:%d/%s", c.Defaults.GerritHost, c.Defaults.GerritPort, name)
}

// RepoPath returns the local working copy path for a project.
func (c *Config) RepoPath(name string) string {
	return filepath.Join(c.Defaults.CacheDir, name)
}

// MirrorPath returns the local bare mirror path for a project.
func (c *Config) MirrorPath(name string) string {
	return filepath.Join(c.Defaults.LocalGitDir, name+".git")
}
