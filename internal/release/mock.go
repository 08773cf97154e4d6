package release

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
)

// MockPublisher is an in-memory Publisher for tests. It mirrors the
// attachment semantics of the real forges: unique filenames per release,
// creation-on-demand, credential enforcement.
type MockPublisher struct {
	mu       sync.Mutex
	releases map[string]*Release
	assets   map[string][]*Asset // tag -> attached assets
	nextID   int

	// Authorized gates every publishing call; false simulates a missing or
	// underscoped credential.
	Authorized bool

	// AttachErr, when set, is returned by every AttachAsset call.
	AttachErr error
}

// NewMockPublisher creates an authorized in-memory publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		releases:   make(map[string]*Release),
		assets:     make(map[string][]*Asset),
		Authorized: true,
	}
}

// GetType returns a forge type for the mock.
func (m *MockPublisher) GetType() Type { return cfg.ForgeForgejo }

func (m *MockPublisher) EnsureRelease(ctx context.Context, tag, body string) (*Release, error) {
	if !m.Authorized {
		return nil, rferrors.AuthorizationError("publish credential missing").Build()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rel, ok := m.releases[tag]; ok {
		return rel, nil
	}
	m.nextID++
	rel := &Release{
		ID:        fmt.Sprintf("%d", m.nextID),
		TagName:   tag,
		Name:      tag,
		Body:      body,
		CreatedAt: time.Now(),
	}
	m.releases[tag] = rel
	return rel, nil
}

func (m *MockPublisher) AttachAsset(ctx context.Context, tag, filename string, payload []byte) (*Asset, error) {
	if m.AttachErr != nil {
		return nil, m.AttachErr
	}
	if !m.Authorized {
		return nil, rferrors.AuthorizationError("publish credential missing").Build()
	}
	if _, err := m.EnsureRelease(ctx, tag, ""); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.assets[tag] {
		if a.Name == filename {
			return nil, rferrors.AlreadyExistsError("asset filename already attached to release").
				WithContext("tag", tag).
				WithContext("filename", filename).
				Build()
		}
	}

	m.nextID++
	asset := &Asset{
		ID:   fmt.Sprintf("%d", m.nextID),
		Name: filename,
		Size: int64(len(payload)),
	}
	m.assets[tag] = append(m.assets[tag], asset)
	return asset, nil
}

func (m *MockPublisher) ListAssets(ctx context.Context, tag string) ([]*Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Asset{}, m.assets[tag]...), nil
}

func (m *MockPublisher) ValidateWebhook(payload []byte, signature, secret string) bool {
	return signature == secret && secret != ""
}

func (m *MockPublisher) ParsePushRef(payload []byte) (string, error) {
	var event struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	return event.Ref, nil
}
