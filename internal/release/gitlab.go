package release

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
)

// GitLabPublisher implements Publisher for GitLab. GitLab has no direct
// release-asset upload: the archive is uploaded to the project and then
// attached to the release as an asset link.
type GitLabPublisher struct {
	config     *cfg.ForgeConfig
	httpClient *http.Client
	apiURL     string
	baseURL    string
	token      string
	projectID  string // URL-encoded owner/repo
}

// NewGitLabPublisher creates a new GitLab publisher.
func NewGitLabPublisher(fg *cfg.ForgeConfig) (*GitLabPublisher, error) {
	if fg.Type != cfg.ForgeGitLab {
		return nil, fmt.Errorf("invalid forge type for GitLab publisher: %s", fg.Type)
	}

	p := &GitLabPublisher{
		config:     fg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     fg.APIURL,
		baseURL:    fg.BaseURL,
		projectID:  url.PathEscape(fg.Owner + "/" + fg.Repo),
	}
	if p.baseURL == "" {
		p.baseURL = "https://gitlab.com"
	}
	if p.apiURL == "" {
		p.apiURL = p.baseURL + "/api/v4"
	}
	if fg.Auth != nil && fg.Auth.Type == cfg.AuthTypeToken {
		p.token = fg.Auth.Token
	}
	return p, nil
}

// GetType returns the forge type.
func (p *GitLabPublisher) GetType() Type { return cfg.ForgeGitLab }

type gitlabRelease struct {
	TagName   string    `json:"tag_name"`
	Name      string    `json:"name"`
	Body      string    `json:"description"`
	CreatedAt time.Time `json:"created_at"`
	Links     struct {
		Self string `json:"self"`
	} `json:"_links"`
	Assets struct {
		Links []gitlabAssetLink `json:"links"`
	} `json:"assets"`
}

type gitlabAssetLink struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// EnsureRelease returns the release for tag, creating it if absent.
func (p *GitLabPublisher) EnsureRelease(ctx context.Context, tag, body string) (*Release, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	endpoint := fmt.Sprintf("%s/projects/%s/releases/%s", p.apiURL, p.projectID, url.PathEscape(tag))
	var existing gitlabRelease
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &existing)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return convertGitLabRelease(&existing), nil
	}
	if status != http.StatusNotFound {
		return nil, p.apiError("lookup release", status)
	}

	createBody := map[string]any{
		"tag_name":    tag,
		"name":        tag,
		"description": body,
	}
	var created gitlabRelease
	status, err = p.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/projects/%s/releases", p.apiURL, p.projectID),
		createBody, &created)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, p.apiError("create release", status)
	}
	return convertGitLabRelease(&created), nil
}

// AttachAsset uploads the payload to the project and links it to the release.
func (p *GitLabPublisher) AttachAsset(ctx context.Context, tag, filename string, payload []byte) (*Asset, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	if _, err := p.EnsureRelease(ctx, tag, ""); err != nil {
		return nil, err
	}

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

	uploadURL, err := p.uploadFile(ctx, filename, payload)
	if err != nil {
		return nil, err
	}

	linkBody := map[string]any{
		"name": filename,
		"url":  uploadURL,
	}
	var link gitlabAssetLink
	status, err := p.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("%s/projects/%s/releases/%s/assets/links", p.apiURL, p.projectID, url.PathEscape(tag)),
		linkBody, &link)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated:
	case http.StatusConflict:
		return nil, rferrors.AlreadyExistsError("asset filename already attached to release").
			WithContext("tag", tag).
			WithContext("filename", filename).
			Build()
	default:
		return nil, p.apiError("create asset link", status)
	}

	return &Asset{
		ID:   strconv.Itoa(link.ID),
		Name: link.Name,
		Size: int64(len(payload)),
		URL:  link.URL,
	}, nil
}

// uploadFile pushes the payload into the project uploads area and returns its
// public URL.
func (p *GitLabPublisher) uploadFile(ctx context.Context, filename string, payload []byte) (string, error) {
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(payload); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/projects/%s/uploads", p.apiURL, p.projectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &form)
	if err != nil {
		return "", err
	}
	req.Header.Set("PRIVATE-TOKEN", p.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", rferrors.ForgeError("project upload failed").WithCause(err).Build()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", p.underscopedCredential(resp.StatusCode)
	default:
		return "", p.apiError("project upload", resp.StatusCode)
	}

	var uploaded struct {
		URL      string `json:"url"`
		FullPath string `json:"full_path"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.FullPath != "" {
		return p.baseURL + uploaded.FullPath, nil
	}
	return p.baseURL + uploaded.URL, nil
}

// ListAssets returns asset links on the release for tag.
func (p *GitLabPublisher) ListAssets(ctx context.Context, tag string) ([]*Asset, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/releases/%s", p.apiURL, p.projectID, url.PathEscape(tag))
	var rel gitlabRelease
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &rel)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, p.apiError("lookup release", status)
	}

	assets := make([]*Asset, 0, len(rel.Assets.Links))
	for _, link := range rel.Assets.Links {
		assets = append(assets, &Asset{
			ID:   strconv.Itoa(link.ID),
			Name: link.Name,
			URL:  link.URL,
		})
	}
	return assets, nil
}

// ValidateWebhook validates a GitLab webhook token (X-Gitlab-Token carries
// the shared secret verbatim, not an HMAC).
func (p *GitLabPublisher) ValidateWebhook(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) == 1
}

// ParsePushRef extracts the pushed ref from a GitLab push payload.
func (p *GitLabPublisher) ParsePushRef(payload []byte) (string, error) {
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

func (p *GitLabPublisher) doJSON(ctx context.Context, method, fullURL string, body, result any) (int, error) {
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

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("PRIVATE-TOKEN", p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, rferrors.ForgeError("GitLab API request failed").WithCause(err).Build()
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

func (p *GitLabPublisher) apiError(op string, status int) error {
	return rferrors.ForgeError("GitLab API error").
		WithContext("operation", op).
		WithContext("status", status).
		Build()
}

func (p *GitLabPublisher) missingCredential() error {
	return rferrors.AuthorizationError("publish credential missing").
		WithContext("forge", "gitlab").
		Build()
}

func (p *GitLabPublisher) underscopedCredential(status int) error {
	return rferrors.AuthorizationError("publish credential rejected (requires api scope)").
		WithContext("forge", "gitlab").
		WithContext("status", status).
		Build()
}

func convertGitLabRelease(r *gitlabRelease) *Release {
	return &Release{
		ID:        r.TagName,
		TagName:   r.TagName,
		Name:      r.Name,
		Body:      r.Body,
		URL:       r.Links.Self,
		CreatedAt: r.CreatedAt,
	}
}
