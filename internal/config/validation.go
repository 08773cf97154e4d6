package config

import (
	"fmt"
	"path"
	"time"
)

// Validate checks the pipeline definition for structural problems. Called
// automatically by Parse; exported for reload paths that mutate in place.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return fmt.Errorf("project.name is required")
	}
	if c.Project.URL == "" {
		return fmt.Errorf("project.url is required")
	}

	if c.Trigger.TagPattern == "" {
		return fmt.Errorf("trigger.tag_pattern is required")
	}
	// path.Match is the matcher used at trigger evaluation time; reject
	// patterns it cannot parse up front.
	if _, err := path.Match(c.Trigger.TagPattern, "v0.0.0"); err != nil {
		return fmt.Errorf("trigger.tag_pattern %q is not a valid glob: %w", c.Trigger.TagPattern, err)
	}

	if c.Build.EntryPoint == "" {
		return fmt.Errorf("build.entry_point is required")
	}
	if c.Build.OutputName == "" {
		return fmt.Errorf("build.output_name is required")
	}

	if len(c.Platforms) == 0 {
		return fmt.Errorf("at least one platform is required")
	}
	seen := make(map[string]string, len(c.Platforms))
	for i, p := range c.Platforms {
		if p.OS == "" {
			return fmt.Errorf("platforms[%d].os is required", i)
		}
		if p.Executable == "" {
			return fmt.Errorf("platforms[%d].executable is required", i)
		}
		if p.Asset == "" {
			return fmt.Errorf("platforms[%d].asset is required", i)
		}
		// Asset names key both the uploaded artifact and the release asset
		// filename, so they must be unique within a run.
		if prev, dup := seen[p.Asset]; dup {
			return fmt.Errorf("duplicate asset name %q (platforms %s and %s)", p.Asset, prev, p.OS)
		}
		seen[p.Asset] = p.OS
	}

	if c.Storage.SweepInterval != "" {
		if _, err := time.ParseDuration(c.Storage.SweepInterval); err != nil {
			return fmt.Errorf("storage.sweep_interval %q is not a valid duration: %w", c.Storage.SweepInterval, err)
		}
	}

	if c.Forge != nil {
		switch c.Forge.Type {
		case ForgeGitHub, ForgeGitLab, ForgeForgejo:
		default:
			return fmt.Errorf("unsupported forge type: %q", c.Forge.Type)
		}
		if c.Forge.Owner == "" || c.Forge.Repo == "" {
			return fmt.Errorf("forge.owner and forge.repo are required")
		}
	}

	if c.Notify != nil && c.Notify.Enabled {
		if c.Notify.URL == "" {
			return fmt.Errorf("notify.url is required when notifications are enabled")
		}
		if c.Notify.Subject == "" {
			return fmt.Errorf("notify.subject is required when notifications are enabled")
		}
	}

	return nil
}

// SweepInterval returns the parsed retention sweep interval.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.Storage.SweepInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// Retention returns the artifact retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}
