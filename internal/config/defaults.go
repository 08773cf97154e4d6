package config

// DefaultTagPattern matches version tags like v1.2.3.
const DefaultTagPattern = "v*"

func (c *Config) applyDefaults() {
	if c.Trigger.TagPattern == "" {
		c.Trigger.TagPattern = DefaultTagPattern
	}

	if c.Runtime.Tool == "" {
		c.Runtime.Tool = "python3"
	}

	if c.Build.Packager == "" {
		c.Build.Packager = "pyinstaller"
	}
	if c.Build.OutputName == "" {
		c.Build.OutputName = c.Project.Name
	}

	if len(c.Platforms) == 0 {
		c.Platforms = DefaultPlatforms(c.Project.Name)
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = "./artifacts"
	}
	if c.Storage.RetentionDays <= 0 {
		c.Storage.RetentionDays = 30
	}
	if c.Storage.SweepInterval == "" {
		c.Storage.SweepInterval = "1h"
	}

	if c.Daemon.Listen == "" {
		c.Daemon.Listen = ":8080"
	}
	if c.Daemon.QueueSize <= 0 {
		c.Daemon.QueueSize = 100
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = "./relforge-data"
	}

	if c.Forge != nil {
		c.Forge.applyDefaults()
	}
}

// DefaultPlatforms returns the standard three-platform matrix for a project.
func DefaultPlatforms(name string) []PlatformConfig {
	if name == "" {
		name = "app"
	}
	return []PlatformConfig{
		{OS: "linux", Executable: name, Asset: name + "-linux"},
		{OS: "windows", Executable: name + ".exe", Asset: name + "-windows"},
		{OS: "darwin", Executable: name, Asset: name + "-macos"},
	}
}
