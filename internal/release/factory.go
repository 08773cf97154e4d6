package release

import (
	"fmt"

	"git.home.luguber.info/inful/relforge/internal/config"
)

// NewPublisher creates a publisher for the configured forge instance.
func NewPublisher(fg *config.ForgeConfig) (Publisher, error) {
	if fg == nil {
		return nil, fmt.Errorf("forge configuration is required")
	}

	switch fg.Type {
	case config.ForgeGitHub:
		return NewGitHubPublisher(fg)
	case config.ForgeForgejo:
		return NewForgejoPublisher(fg)
	case config.ForgeGitLab:
		return NewGitLabPublisher(fg)
	default:
		return nil, fmt.Errorf("unsupported forge type: %s", fg.Type)
	}
}
