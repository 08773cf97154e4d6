package release

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	cfg "git.home.luguber.info/inful/relforge/internal/config"
	rferrors "git.home.luguber.info/inful/relforge/internal/errors"
)

// ForgejoPublisher implements Publisher for Forgejo/Gitea instances.
type ForgejoPublisher struct {
	config     *cfg.ForgeConfig
	httpClient *http.Client
	apiURL     string
	token      string
}

// NewForgejoPublisher creates a new Forgejo publisher.
func NewForgejoPublisher(fg *cfg.ForgeConfig) (*ForgejoPublisher, error) {
	if fg.Type != cfg.ForgeForgejo {
		return nil, fmt.Errorf("invalid forge type for Forgejo publisher: %s", fg.Type)
	}
	if fg.APIURL == "" && fg.BaseURL == "" {
		return nil, fmt.Errorf("forgejo requires api_url or base_url")
	}

	p := &ForgejoPublisher{
		config:     fg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     fg.APIURL,
	}
	if p.apiURL == "" {
		p.apiURL = fg.BaseURL + "/api/v1"
	}
	if fg.Auth != nil && fg.Auth.Type == cfg.AuthTypeToken {
		p.token = fg.Auth.Token
	}
	return p, nil
}

// GetType returns the forge type.
func (p *ForgejoPublisher) GetType() Type { return cfg.ForgeForgejo }

type forgejoRelease struct {
	ID        int       `json:"id"`
	TagName   string    `json:"tag_name"`
	Name      string    `json:"name"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
}

type forgejoAttachment struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"browser_download_url"`
}

// EnsureRelease returns the release for tag, creating it if absent.
func (p *ForgejoPublisher) EnsureRelease(ctx context.Context, tag, body string) (*Release, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/releases/tags/%s", p.config.Owner, p.config.Repo, url.PathEscape(tag))
	var existing forgejoRelease
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &existing)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return convertForgejoRelease(&existing), nil
	}
	if status != http.StatusNotFound {
		return nil, p.apiError("lookup release", status)
	}

	createBody := map[string]any{
		"tag_name": tag,
		"name":     tag,
		"body":     body,
	}
	var created forgejoRelease
	status, err = p.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/releases", p.config.Owner, p.config.Repo),
		createBody, &created)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, p.apiError("create release", status)
	}
	return convertForgejoRelease(&created), nil
}

// AttachAsset attaches payload as a release attachment. Forgejo accepts
// multipart uploads on the release attachments endpoint.
func (p *ForgejoPublisher) AttachAsset(ctx context.Context, tag, filename string, payload []byte) (*Asset, error) {
	if p.token == "" {
		return nil, p.missingCredential()
	}

	rel, err := p.EnsureRelease(ctx, tag, "")
	if err != nil {
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

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("attachment", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/%d/assets?name=%s",
		p.apiURL, p.config.Owner, p.config.Repo, mustAtoi(rel.ID), url.QueryEscape(filename))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &form)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "token "+p.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, rferrors.ForgeError("attachment upload failed").WithCause(err).Build()
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, p.underscopedCredential(resp.StatusCode)
	default:
		return nil, p.apiError("upload attachment", resp.StatusCode)
	}

	var uploaded forgejoAttachment
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decode attachment response: %w", err)
	}
	return &Asset{
		ID:   strconv.Itoa(uploaded.ID),
		Name: uploaded.Name,
		Size: uploaded.Size,
		URL:  uploaded.URL,
	}, nil
}

// ListAssets returns assets attached to the release for tag.
func (p *ForgejoPublisher) ListAssets(ctx context.Context, tag string) ([]*Asset, error) {
	rel, err := p.EnsureRelease(ctx, tag, "")
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/releases/%d/assets", p.config.Owner, p.config.Repo, mustAtoi(rel.ID))
	var raw []forgejoAttachment
	status, err := p.doJSON(ctx, http.MethodGet, endpoint, nil, &raw)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, p.apiError("list attachments", status)
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

// ValidateWebhook validates a Forgejo/Gitea webhook signature
// (X-Gitea-Signature: hex HMAC-SHA256, no prefix).
func (p *ForgejoPublisher) ValidateWebhook(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	calc := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(calc))
}

// ParsePushRef extracts the pushed ref from a Forgejo push payload.
func (p *ForgejoPublisher) ParsePushRef(payload []byte) (string, error) {
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

func (p *ForgejoPublisher) doJSON(ctx context.Context, method, endpoint string, body, result any) (int, error) {
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
	req.Header.Set("Authorization", "token "+p.token)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, rferrors.ForgeError("Forgejo API request failed").WithCause(err).Build()
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

func (p *ForgejoPublisher) apiError(op string, status int) error {
	return rferrors.ForgeError("Forgejo API error").
		WithContext("operation", op).
		WithContext("status", status).
		Build()
}

func (p *ForgejoPublisher) missingCredential() error {
	return rferrors.AuthorizationError("publish credential missing").
		WithContext("forge", "forgejo").
		Build()
}

func (p *ForgejoPublisher) underscopedCredential(status int) error {
	return rferrors.AuthorizationError("publish credential rejected (requires repository write)").
		WithContext("forge", "forgejo").
		WithContext("status", status).
		Build()
}

func convertForgejoRelease(r *forgejoRelease) *Release {
	return &Release{
		ID:        strconv.Itoa(r.ID),
		TagName:   r.TagName,
		Name:      r.Name,
		Body:      r.Body,
		URL:       r.HTMLURL,
		CreatedAt: r.CreatedAt,
	}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
