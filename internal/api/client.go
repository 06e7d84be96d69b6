package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/secho/egnyte-client-linux/internal/logging"
)

const (
	fsEndpoint        = "/pubapi/v1/fs"
	fsContentEndpoint = "/pubapi/v1/fs-content"
	searchEndpoint    = "/pubapi/v1/search"

	defaultRequestTimeout = 60 * time.Second
)

// TokenProvider supplies bearer tokens for API calls. Refresh is
// invoked at most once per request when the server answers 401.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Client talks to the Egnyte public API for one domain. All calls go
// through the shared rate limiter before touching the network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenProvider
	limiter    *RateLimiter
	logger     logging.Logger
}

// NewClient creates an API client for the given Egnyte domain
func NewClient(domain string, tokens TokenProvider, limiter *RateLimiter, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if limiter == nil {
		limiter = NewRateLimiter(1)
	}
	return &Client{
		baseURL:    fmt.Sprintf("https://%s.egnyte.com", domain),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
	}
}

// SetBaseURL overrides the API origin, used by tests
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// Limiter returns the shared rate limiter
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// request performs one rate-limited call, refreshing the token and
// retrying once on 401. The payload is buffered so the retry can
// resend it.
func (c *Client) request(ctx context.Context, method, endpoint string, query url.Values, payload []byte, contentType string) (*http.Response, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil || token == "" {
		return nil, ErrNotAuthenticated
	}

	resp, err := c.send(ctx, method, endpoint, query, payload, contentType, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		c.logger.WithContext(ctx).Warn("Access token rejected, refreshing", logging.F("endpoint", endpoint))
		token, err = c.tokens.Refresh(ctx)
		if err != nil || token == "" {
			return nil, ErrNotAuthenticated
		}
		resp, err = c.send(ctx, method, endpoint, query, payload, contentType, token)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.errorFromResponse(resp, endpoint)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload []byte, contentType, token string) (*http.Response, error) {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.WithContext(ctx).Debug("API request", logging.F("method", method), logging.F("endpoint", endpoint))
	return c.httpClient.Do(req)
}

func (c *Client) errorFromResponse(resp *http.Response, endpoint string) error {
	msg := resp.Status
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var parsed struct {
			ErrorMessage string `json:"errorMessage"`
			Error        string `json:"error"`
		}
		if json.Unmarshal(data, &parsed) == nil {
			if parsed.ErrorMessage != "" {
				msg = parsed.ErrorMessage
			} else if parsed.Error != "" {
				msg = parsed.Error
			}
		}
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg, Path: endpoint}
}

// escapePath percent-encodes a remote path while keeping separators
func escapePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	u := url.URL{Path: p}
	return u.EscapedPath()
}

// ListFolder lists the immediate contents of a remote folder,
// folders first, matching the API's response ordering
func (c *Client) ListFolder(ctx context.Context, remotePath string) ([]Metadata, error) {
	if remotePath == "" {
		remotePath = "/"
	}
	resp, err := c.request(ctx, http.MethodGet, fsEndpoint+escapePath(remotePath), nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding folder listing: %w", err)
	}

	items := make([]Metadata, 0, len(listing.Folders)+len(listing.Files))
	for _, folder := range listing.Folders {
		folder.IsFolder = true
		items = append(items, withPath(folder, remotePath))
	}
	for _, file := range listing.Files {
		items = append(items, withPath(file, remotePath))
	}
	return items, nil
}

// withPath fills in a missing Path from the parent folder and name
func withPath(m Metadata, parent string) Metadata {
	if m.Path == "" && m.Name != "" {
		m.Path = path.Join("/", parent, m.Name)
	}
	return m
}

// GetFileInfo fetches metadata for one remote path
func (c *Client) GetFileInfo(ctx context.Context, remotePath string) (Metadata, error) {
	resp, err := c.request(ctx, http.MethodGet, fsEndpoint+escapePath(remotePath), nil, nil, "")
	if err != nil {
		return Metadata{}, err
	}
	defer resp.Body.Close()

	var info Metadata
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Metadata{}, fmt.Errorf("decoding file info: %w", err)
	}
	if info.Path == "" {
		info.Path = remotePath
	}
	return info, nil
}

// DownloadFile fetches a file's content. When localPath is non-empty
// the content is also written there, creating parent directories.
func (c *Client) DownloadFile(ctx context.Context, remotePath, localPath string) ([]byte, error) {
	resp, err := c.request(ctx, http.MethodGet, fsContentEndpoint+escapePath(remotePath), nil, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download: %w", err)
	}

	if localPath != "" {
		if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(localPath, content, 0644); err != nil {
			return nil, err
		}
	}
	return content, nil
}

// UploadFile uploads a local file to a remote path
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, overwrite, createFolders bool) (Metadata, error) {
	// A remote path ending in / names a folder; keep the local filename
	if strings.HasSuffix(remotePath, "/") {
		remotePath = strings.TrimRight(remotePath, "/") + "/" + filepath.Base(localPath)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return Metadata{}, err
	}
	return c.UploadBytes(ctx, remotePath, data, overwrite, createFolders)
}

// UploadBytes uploads content as a whole-file write to a remote path.
// On a 409 conflict with overwrite enabled the upload is retried as a
// PUT, which Egnyte accepts for replacing existing files.
func (c *Client) UploadBytes(ctx context.Context, remotePath string, data []byte, overwrite, createFolders bool) (Metadata, error) {
	// Files cannot live directly under /Shared; redirect to Documents
	if strings.HasPrefix(remotePath, "/Shared/") && strings.Count(remotePath, "/") == 2 {
		remotePath = "/Shared/Documents/" + path.Base(remotePath)
		if createFolders {
			_ = c.CreateFolder(ctx, "/Shared/Documents")
		}
	}

	if createFolders {
		if parent := path.Dir(remotePath); parent != "" && parent != "/" {
			// Folder may already exist; conflict is fine
			_ = c.CreateFolder(ctx, parent)
		}
	}

	endpoint := fsContentEndpoint + escapePath(remotePath)
	resp, err := c.request(ctx, http.MethodPost, endpoint, nil, data, "application/octet-stream")
	if err != nil {
		var apiErr *Error
		if overwrite && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			resp, err = c.request(ctx, http.MethodPut, endpoint, nil, data, "application/octet-stream")
		}
		if err != nil {
			return Metadata{}, err
		}
	}
	defer resp.Body.Close()

	var info Metadata
	_ = json.NewDecoder(resp.Body).Decode(&info)
	if info.Path == "" {
		info.Path = remotePath
	}
	return info, nil
}

// CreateFolder creates a remote folder. Existing folders answer with a
// conflict, which callers typically ignore.
func (c *Client) CreateFolder(ctx context.Context, remotePath string) error {
	resp, err := c.request(ctx, http.MethodPost, fsEndpoint+escapePath(remotePath), nil, []byte("{}"), "application/json")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DeleteFile deletes a remote file or folder
func (c *Client) DeleteFile(ctx context.Context, remotePath string) error {
	resp, err := c.request(ctx, http.MethodDelete, fsEndpoint+escapePath(remotePath), nil, nil, "")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// MoveFile moves or renames a remote file or folder
func (c *Client) MoveFile(ctx context.Context, sourcePath, destinationPath string) error {
	return c.fsAction(ctx, sourcePath, "move", destinationPath)
}

// CopyFile copies a remote file or folder
func (c *Client) CopyFile(ctx context.Context, sourcePath, destinationPath string) error {
	return c.fsAction(ctx, sourcePath, "copy", destinationPath)
}

func (c *Client) fsAction(ctx context.Context, sourcePath, action, destinationPath string) error {
	payload, err := json.Marshal(map[string]string{
		"action":      action,
		"destination": destinationPath,
	})
	if err != nil {
		return err
	}
	resp, err := c.request(ctx, http.MethodPost, fsEndpoint+escapePath(sourcePath), nil, payload, "application/json")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// Search queries the domain for files and folders matching query
func (c *Client) Search(ctx context.Context, query, folder string) ([]Metadata, error) {
	params := url.Values{}
	params.Set("query", query)
	if folder != "" {
		params.Set("folder", folder)
	}
	resp, err := c.request(ctx, http.MethodGet, searchEndpoint, params, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding search results: %w", err)
	}
	return results.Results, nil
}
