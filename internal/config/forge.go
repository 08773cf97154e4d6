package config

import "os"

// ForgeType identifies a forge platform.
type ForgeType string

const (
	ForgeGitHub  ForgeType = "github"
	ForgeGitLab  ForgeType = "gitlab"
	ForgeForgejo ForgeType = "forgejo"
)

// AuthType identifies a forge authentication mechanism.
type AuthType string

const (
	AuthTypeToken AuthType = "token"
)

// ForgeConfig describes the forge instance that hosts releases for the
// project. The credential must be scoped to repository-content write access.
type ForgeConfig struct {
	Type    ForgeType        `yaml:"type"`
	BaseURL string           `yaml:"base_url,omitempty"`
	APIURL  string           `yaml:"api_url,omitempty"`
	Owner   string           `yaml:"owner"`
	Repo    string           `yaml:"repo"`
	Auth    *ForgeAuthConfig `yaml:"auth,omitempty"`
}

// ForgeAuthConfig holds the publish credential. Token may be given inline
// (usually via ${VAR} expansion) or resolved from TokenEnv at load time.
type ForgeAuthConfig struct {
	Type     AuthType `yaml:"type"`
	Token    string   `yaml:"token,omitempty"`
	TokenEnv string   `yaml:"token_env,omitempty"`
}

func (f *ForgeConfig) applyDefaults() {
	if f.Auth != nil {
		if f.Auth.Type == "" {
			f.Auth.Type = AuthTypeToken
		}
		if f.Auth.Token == "" && f.Auth.TokenEnv != "" {
			f.Auth.Token = os.Getenv(f.Auth.TokenEnv)
		}
	}
}

// HasCredential reports whether a publish credential is available.
func (f *ForgeConfig) HasCredential() bool {
	return f != nil && f.Auth != nil && f.Auth.Token != ""
}
