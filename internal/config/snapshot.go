package config

// Snapshot returns a copy of the configuration safe for logging or API
// exposure: credentials are redacted, everything else is preserved.
func (c *Config) Snapshot() Config {
	snap := *c

	snap.Platforms = make([]PlatformConfig, len(c.Platforms))
	copy(snap.Platforms, c.Platforms)

	if c.Forge != nil {
		forge := *c.Forge
		if c.Forge.Auth != nil {
			auth := *c.Forge.Auth
			if auth.Token != "" {
				auth.Token = "[REDACTED]"
			}
			forge.Auth = &auth
		}
		snap.Forge = &forge
	}

	if c.Notify != nil {
		notify := *c.Notify
		snap.Notify = &notify
	}

	if snap.Daemon.WebhookSecret != "" {
		snap.Daemon.WebhookSecret = "[REDACTED]"
	}

	return snap
}
