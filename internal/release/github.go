package release

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- legacy webhook signature fallback
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
)

// GitHubPublisher implements Publisher for GitHub.
type GitHubPublisher struct {
	config     *cfg.ForgeConfig
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	token      string
}

// NewGitHubPublisher creates a new GitHub publisher.
func NewGitHubPublisher(fg *cfg.ForgeConfig) (*GitHubPublisher, error) {
	if fg.Type != cfg.ForgeGitHub {
		return nil, fmt.Errorf("invalid forge type for GitHub publisher: %s", fg.Type)
	}

	p := &GitHubPublisher{
		config:     fg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     fg.APIURL,
	}
	if p.apiURL == "" {
		p.apiURL = "https://api.github.com"
	}
	if p.apiURL == "https://api.github.com" {
		p.uploadURL = "https://uploads.github.com"
	} else {
		// GitHub Enterprise hosts uploads under the API root.
		p.uploadURL = p.apiURL
	}

	if fg.Auth != nil && fg.Auth.Type == cfg.AuthTypeToken {
		p.token = fg.Auth.Token
	}

	return p, nil
}

// GetType returns the forge type.
func (p *GitHubPublisher) GetType() Type { return cfg.ForgeGitHub }

type githubRelease struct {
	ID        int       `json:"id"`
	TagName   string    `json:"tag_name"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

type githubAsset struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"browser_download_url"`
}

// EnsureRelease returns the release for tag, creating it if absent.
func (p *GitHubPublisher) EnsureRelease(ctx context.Context, tag, body string) (*Release, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/releases/tags/%s", p.config.Owner, p.config.Repo, url.PathEscape(tag))
	var existing githubRelease
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &existing)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return convertGitHubRelease(&existing), nil
	}
	if status != http.StatusNotFound {
		return nil, p.apiError("lookup release", status)
	}

	createBody := map[string]any{
		"tag_name": tag,
		"name":     tag,
		"body":     body,
	}
	var created githubRelease
	status, err = p.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/releases", p.config.Owner, p.config.Repo),
		createBody, &created)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, p.apiError("create release", status)
	}
	return convertGitHubRelease(&created), nil
}

// AttachAsset attaches payload to the release for tag under filename.
func (p *GitHubPublisher) AttachAsset(ctx context.Context, tag, filename string, payload []byte) (*Asset, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	rel, err := p.EnsureRelease(ctx, tag, "")
	if err != nil {
		return nil, err
	}

	// No silent overwrite: a duplicate filename fails the attach.
	assets, err := p.ListAssets(ctx, tag)
	if err != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Name == filename {
			return nil, rferrors.AlreadyExistsError("asset filename already attached to release").
				WithContext("tag", tag).
				WithContext("filename", filename).
				Build()
		}
	}

	uploadEndpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%s/assets?name=%s",
		p.uploadURL, p.config.Owner, p.config.Repo, rel.ID, url.QueryEscape(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/zip")
	req.Header.Set("Accept", "application/vnd.github+json")
	req.ContentLength = int64(len(payload))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, rferrors.ForgeError("asset upload failed").WithCause(err).Build()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, p.underscopedCredential(resp.StatusCode)
	case http.StatusUnprocessableEntity:
		// GitHub reports duplicate asset names as 422.
		return nil, rferrors.AlreadyExistsError("asset filename already attached to release").
			WithContext("tag", tag).
			WithContext("filename", filename).
			Build()
	default:
		return nil, p.apiError("upload asset", resp.StatusCode)
	}

	var uploaded githubAsset
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decode asset response: %w", err)
	}
	return &Asset{
		ID:   strconv.Itoa(uploaded.ID),
		Name: uploaded.Name,
		Size: uploaded.Size,
		URL:  uploaded.URL,
	}, nil
}

// ListAssets returns assets attached to the release for tag.
func (p *GitHubPublisher) ListAssets(ctx context.Context, tag string) ([]*Asset, error) {
	rel, err := p.EnsureRelease(ctx, tag, "")
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/releases/%s/assets", p.config.Owner, p.config.Repo, rel.ID)
	var raw []githubAsset
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &raw)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, p.apiError("list assets", status)
	}

	assets := make([]*Asset, 0, len(raw))
	for _, a := range raw {
		assets = append(assets, &Asset{
			ID:   strconv.Itoa(a.ID),
			Name: a.Name,
			Size: a.Size,
			URL:  a.URL,
		})
	}
	return assets, nil
}

// ValidateWebhook validates a GitHub webhook signature.
func (p *GitHubPublisher) ValidateWebhook(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	// Preferred SHA-256 format: sha256=<hash>
	if strings.HasPrefix(signature, "sha256=") {
		expected := signature[len("sha256="):]
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	// Fallback legacy SHA-1 format: sha1=<hash>
	if strings.HasPrefix(signature, "sha1=") {
		expected := signature[len("sha1="):]
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(payload)
		calc := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(expected), []byte(calc))
	}

	return false
}

// ParsePushRef extracts the pushed ref from a GitHub push payload.
func (p *GitHubPublisher) ParsePushRef(payload []byte) (string, error) {
	var event struct {
		Ref string `json:"ref"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", fmt.Errorf("parse push event: %w", err)
	}
	if event.Ref == "" {
		return "", fmt.Errorf("push event has no ref")
	}
	return event.Ref, nil
}

func (p *GitHubPublisher) doJSON(ctx context.Context, method, endpoint string, body, result any) (int, error) {
	u, err := url.Parse(p.apiURL)
	if err != nil {
		return 0, err
	}
	u.Path = path.Join(u.Path, endpoint)

	var reader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "relforge/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, rferrors.ForgeError("GitHub API request failed").WithCause(err).Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return resp.StatusCode, p.underscopedCredential(resp.StatusCode)
	}

	if result != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (p *GitHubPublisher) apiError(op string, status int) error {
	return rferrors.ForgeError("GitHub API error").
		WithContext("operation", op).
		WithContext("status", status).
		Build()
}

func (p *GitHubPublisher) missingCredential() error {
	return rferrors.AuthorizationError("publish credential missing").
		WithContext("forge", "github").
		Build()
}

func (p *GitHubPublisher) underscopedCredential(status int) error {
	return rferrors.AuthorizationError("publish credential rejected (requires contents:write)").
		WithContext("forge", "github").
		WithContext("status", status).
		Build()
}

func convertGitHubRelease(r *githubRelease) *Release {
	return &Release{
		ID:        strconv.Itoa(r.ID),
		TagName:   r.TagName,
		Name:      r.Name,
		Body:      r.Body,
		URL:       r.HTMLURL,
		CreatedAt: r.CreatedAt,
	}
}
