package gist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/klauern/agentsync/internal/logging"
)

const (
	userAgent   = "agentsync"
	apiVersion  = "2022-11-28"
	listPerPage = 100
	// maxListPages bounds List for accounts with very many gists.
	maxListPages = 30
)

// Client talks to the GitHub Gist API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ Remote = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, such as GitHub Enterprise.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient creates a client authenticating with token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiMessage struct {
	Message string `json:"message"`
}

type writeRequest struct {
	Description string               `json:"description,omitempty"`
	Public      bool                 `json:"public"`
	Files       map[string]writeFile `json:"files"`
}

type writeFile struct {
	Content string `json:"content"`
}

func newWriteRequest(description string, files map[string]string) writeRequest {
	req := writeRequest{Description: description, Files: make(map[string]writeFile, len(files))}
	for name, content := range files {
		req.Files[name] = writeFile{Content: content}
	}
	return req
}

// do sends a request to the API and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gist %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("gist %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" && c.sameHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logging.WithContext(ctx).Debug("gist request", logging.Operation(op), "method", method, "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gist %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("gist %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg apiMessage
		_ = json.Unmarshal(data, &msg)
		return resp, newAPIError(op, resp, msg.Message)
	}

	if out == nil {
		return resp, nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return resp, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp, fmt.Errorf("gist %s: decode response: %w", op, err)
	}
	return resp, nil
}

// sameHost reports whether u points at the API host. The token is only
// sent there; raw_url links may live on another host.
func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(base.Scheme, u.Scheme) && strings.EqualFold(base.Host, u.Host)
}

// Create makes a new secret gist.
func (c *Client) Create(ctx context.Context, description string, files map[string]string) (*Gist, error) {
	var g Gist
	if _, err := c.do(ctx, "create", http.MethodPost, "/gists", newWriteRequest(description, files), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Get fetches a gist, following raw_url for files the API truncated.
func (c *Client) Get(ctx context.Context, id string) (*Gist, error) {
	var g Gist
	if _, err := c.do(ctx, "get", http.MethodGet, "/gists/"+id, nil, &g); err != nil {
		return nil, err
	}

	for name, f := range g.Files {
		if !f.Truncated || f.RawURL == "" {
			continue
		}
		var raw []byte
		if _, err := c.do(ctx, "get raw", http.MethodGet, f.RawURL, nil, &raw); err != nil {
			return nil, err
		}
		f.Content = string(raw)
		f.Truncated = false
		g.Files[name] = f
	}
	return &g, nil
}

// Update replaces the content of the given files. Files not named are kept.
func (c *Client) Update(ctx context.Context, id, description string, files map[string]string) (*Gist, error) {
	var g Gist
	if _, err := c.do(ctx, "update", http.MethodPatch, "/gists/"+id, newWriteRequest(description, files), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns the authenticated user's sync gists. File contents are not
// included; use Get for those.
func (c *Client) List(ctx context.Context) ([]Gist, error) {
	var out []Gist
	for page := 1; page <= maxListPages; page++ {
		var batch []Gist
		path := fmt.Sprintf("/gists?per_page=%d&page=%d", listPerPage, page)
		resp, err := c.do(ctx, "list", http.MethodGet, path, nil, &batch)
		if err != nil {
			return nil, err
		}
		for _, g := range batch {
			if IsSyncGist(g.Description) {
				out = append(out, g)
			}
		}
		if !hasNextPage(resp.Header.Get("Link")) || len(batch) == 0 {
			break
		}
	}
	return out, nil
}

func hasNextPage(link string) bool {
	for _, part := range strings.Split(link, ",") {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

// ValidateToken checks the token can read the user and use gists. It never
// modifies anything.
func (c *Client) ValidateToken(ctx context.Context) (*TokenInfo, error) {
	var user struct {
		Login string `json:"login"`
	}
	resp, err := c.do(ctx, "validate token", http.MethodGet, "/user", nil, &user)
	if err != nil {
		return nil, err
	}
	info := &TokenInfo{Login: user.Login}

	header, classic := resp.Header["X-Oauth-Scopes"]
	if classic && len(header) > 0 {
		for _, s := range strings.Split(header[0], ",") {
			if s = strings.TrimSpace(s); s != "" {
				info.Scopes = append(info.Scopes, s)
			}
		}
		for _, s := range info.Scopes {
			if s == "gist" {
				return info, nil
			}
		}
		return info, ErrMissingScope
	}

	// Fine-grained tokens report no scopes; probe gist access instead.
	info.FineGrained = true
	var probe []Gist
	if _, err := c.do(ctx, "validate token", http.MethodGet, "/gists?per_page=1", nil, &probe); err != nil {
		return info, err
	}
	return info, nil
}
