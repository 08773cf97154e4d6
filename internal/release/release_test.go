package release

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorySelectsByType(t *testing.T) {
	tests := []struct {
		forgeType cfg.ForgeType
		wantErr   bool
	}{
		{cfg.ForgeGitHub, false},
		{cfg.ForgeGitLab, false},
		{cfg.ForgeForgejo, false},
		{cfg.ForgeType("sourcehut"), true},
	}

	for _, tc := range tests {
		fc := &cfg.ForgeConfig{
			Type:    tc.forgeType,
			BaseURL: "https://forge.example.com",
			Owner:   "example",
			Repo:    "chatifier",
			Auth:    &cfg.ForgeAuthConfig{Type: cfg.AuthTypeToken, Token: "t"},
		}
		p, err := NewPublisher(fc)
		if tc.wantErr {
			assert.Error(t, err, "type %s", tc.forgeType)
			continue
		}
		require.NoError(t, err, "type %s", tc.forgeType)
		assert.Equal(t, tc.forgeType, p.GetType())
	}
}

func TestFactoryNilConfig(t *testing.T) {
	_, err := NewPublisher(nil)
	require.Error(t, err)
}

func TestGitHubWebhookSignature(t *testing.T) {
	p, err := NewGitHubPublisher(&cfg.ForgeConfig{
		Type:  cfg.ForgeGitHub,
		Owner: "example", Repo: "chatifier",
		Auth: &cfg.ForgeAuthConfig{Type: cfg.AuthTypeToken, Token: "t"},
	})
	require.NoError(t, err)

	payload := []byte(`{"ref":"refs/tags/v1.2.3"}`)
	secret := "hooksecret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, p.ValidateWebhook(payload, sig, secret))
	assert.False(t, p.ValidateWebhook(payload, sig, "wrong"))
	assert.False(t, p.ValidateWebhook(payload, "sha256=deadbeef", secret))
	assert.False(t, p.ValidateWebhook(payload, "", secret))
}

func TestParsePushRef(t *testing.T) {
	p, err := NewGitHubPublisher(&cfg.ForgeConfig{
		Type:  cfg.ForgeGitHub,
		Owner: "example", Repo: "chatifier",
		Auth: &cfg.ForgeAuthConfig{Type: cfg.AuthTypeToken, Token: "t"},
	})
	require.NoError(t, err)

	ref, err := p.ParsePushRef([]byte(`{"ref":"refs/tags/v1.2.3"}`))
	require.NoError(t, err)
	assert.Equal(t, "refs/tags/v1.2.3", ref)

	_, err = p.ParsePushRef([]byte(`{}`))
	assert.Error(t, err)

	_, err = p.ParsePushRef([]byte(`not json`))
	assert.Error(t, err)
}

func TestMockAttachRejectsDuplicateFilename(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	_, err := m.AttachAsset(ctx, "v1.0.0", "chatifier-linux.zip", []byte("zip"))
	require.NoError(t, err)

	// Re-running the pipeline for the same tag must fail the attach for
	// filenames that already exist; no silent overwrite.
	_, err = m.AttachAsset(ctx, "v1.0.0", "chatifier-linux.zip", []byte("zip2"))
	require.Error(t, err)
	assert.True(t, rferrors.IsCategory(err, rferrors.CategoryAlreadyExists))

	// A different filename on the same release is fine.
	_, err = m.AttachAsset(ctx, "v1.0.0", "chatifier-windows.zip", []byte("zip"))
	require.NoError(t, err)

	assets, err := m.ListAssets(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Len(t, assets, 2)
}

func TestMockUnauthorized(t *testing.T) {
	m := NewMockPublisher()
	m.Authorized = false

	_, err := m.AttachAsset(context.Background(), "v1.0.0", "a.zip", []byte("zip"))
	require.Error(t, err)
	assert.True(t, rferrors.IsCategory(err, rferrors.CategoryAuthorization))
}

func TestMissingCredentialIsAuthorizationError(t *testing.T) {
	p, err := NewGitHubPublisher(&cfg.ForgeConfig{
		Type:  cfg.ForgeGitHub,
		Owner: "example", Repo: "chatifier",
	})
	require.NoError(t, err)

	_, err = p.EnsureRelease(context.Background(), "v1.0.0", "")
	require.Error(t, err)
	assert.True(t, rferrors.IsCategory(err, rferrors.CategoryAuthorization))
}
