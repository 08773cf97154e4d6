// Package release publishes archives as release assets on a forge.
package release

import (
	"context"
	"time"

	"git.home.luguber.info/inful/relforge/internal/config"
)

// Type re-exports config.ForgeType for convenience within this package.
type Type = config.ForgeType

const (
	TypeGitHub  Type = config.ForgeGitHub
	TypeGitLab  Type = config.ForgeGitLab
	TypeForgejo Type = config.ForgeForgejo
)

// Release represents a release object on a forge.
type Release struct {
	ID        string    `json:"id"`
	TagName   string    `json:"tag_name"`
	Name      string    `json:"name"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Asset represents a file attached to a release.
type Asset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url,omitempty"`
}

// Publisher is the release-publishing interface. Attachment is idempotent per
// unique filename: attaching a filename that already exists on the release
// fails with an already_exists classified error rather than overwriting.
type Publisher interface {
	// GetType returns the forge type of this publisher.
	GetType() Type

	// EnsureRelease returns the release for tag, creating it if absent.
	// body is used only on creation.
	EnsureRelease(ctx context.Context, tag, body string) (*Release, error)

	// AttachAsset attaches payload to the release for tag under the given
	// filename. Fails with an already_exists error when the filename is
	// already attached, and an authorization error when the credential is
	// missing or underscoped.
	AttachAsset(ctx context.Context, tag, filename string, payload []byte) (*Asset, error)

	// ListAssets returns the assets currently attached to the release for tag.
	ListAssets(ctx context.Context, tag string) ([]*Asset, error)

	// ValidateWebhook validates a webhook request signature.
	ValidateWebhook(payload []byte, signature, secret string) bool

	// ParsePushRef extracts the pushed ref from a webhook push payload.
	ParsePushRef(payload []byte) (string, error)
}
