// Package drive is a minimal Google Drive v3 client for photo folders and
// uploads.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultBaseURL   = "https://www.googleapis.com/drive/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
	defaultTimeout   = 60 * time.Second

	FolderMimeType = "application/vnd.google-apps.folder"
	Scope          = "https://www.googleapis.com/auth/drive"

	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
)

// Credentials is the OAuth client plus a long-lived refresh token, stored as
// JSON in the parameter store.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	TokenURL     string `json:"token_url,omitempty"`
}

func (c Credentials) validate() error {
	switch {
	case strings.TrimSpace(c.ClientID) == "":
		return errors.New("drive: client_id is required")
	case strings.TrimSpace(c.ClientSecret) == "":
		return errors.New("drive: client_secret is required")
	case strings.TrimSpace(c.RefreshToken) == "":
		return errors.New("drive: refresh_token is required")
	}
	return nil
}

// OAuthHTTPClient returns an *http.Client that refreshes access tokens from
// creds as needed.
func OAuthHTTPClient(ctx context.Context, creds Credentials) (*http.Client, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauth2.Endpoint{AuthURL: googleAuthURL, TokenURL: tokenURL},
		Scopes:       []string{Scope},
	}
	hc := cfg.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	hc.Timeout = defaultTimeout
	return hc, nil
}

// HTTPStatusError captures non-2xx Drive responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("drive: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURLs points the client at other API and upload roots.
func WithBaseURLs(baseURL, uploadURL string) Option {
	return func(c *Client) {
		if s := strings.TrimRight(strings.TrimSpace(baseURL), "/"); s != "" {
			c.baseURL = s
		}
		if s := strings.TrimRight(strings.TrimSpace(uploadURL), "/"); s != "" {
			c.uploadURL = s
		}
	}
}

func New(httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, errors.New("drive: http client must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		uploadURL:  defaultUploadURL,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type fileList struct {
	Files []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"files"`
}

type fileMeta struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

// FindOrCreateFolder returns the id of the folder called name directly under
// parentID, creating it when missing.
func (c *Client) FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(parentID) == "" {
		return "", errors.New("drive: folder name and parent id are required")
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), FolderMimeType))
	q.Set("fields", "files(id,name)")
	q.Set("spaces", "drive")
	q.Set("supportsAllDrives", "true")
	q.Set("includeItemsFromAllDrives", "true")

	var list fileList
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/files?"+q.Encode(), nil, "", &list); err != nil {
		return "", fmt.Errorf("drive: find folder %q: %w", name, err)
	}
	if len(list.Files) > 0 && list.Files[0].ID != "" {
		return list.Files[0].ID, nil
	}

	body, err := json.Marshal(fileMeta{Name: name, MimeType: FolderMimeType, Parents: []string{parentID}})
	if err != nil {
		return "", fmt.Errorf("drive: marshal folder: %w", err)
	}
	var created fileMeta
	createURL := c.baseURL + "/files?fields=id&supportsAllDrives=true"
	if err := c.doJSON(ctx, http.MethodPost, createURL, body, "application/json", &created); err != nil {
		return "", fmt.Errorf("drive: create folder %q: %w", name, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("drive: create folder %q: empty id", name)
	}
	return created.ID, nil
}

// UploadFile stores data as a JPEG called name inside folderID.
func (c *Client) UploadFile(ctx context.Context, folderID string, data []byte, name string) (string, error) {
	if strings.TrimSpace(folderID) == "" {
		return "", errors.New("drive: folder id is required")
	}
	meta, err := json.Marshal(fileMeta{Name: name, Parents: []string{folderID}})
	if err != nil {
		return "", fmt.Errorf("drive: marshal file metadata: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", fmt.Errorf("drive: build upload: %w", err)
	}
	_, _ = metaPart.Write(meta)
	mediaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
	if err != nil {
		return "", fmt.Errorf("drive: build upload: %w", err)
	}
	_, _ = mediaPart.Write(data)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("drive: build upload: %w", err)
	}

	var created fileMeta
	uploadURL := c.uploadURL + "/files?uploadType=multipart&fields=id&supportsAllDrives=true"
	if err := c.doJSON(ctx, http.MethodPost, uploadURL, buf.Bytes(), "multipart/related; boundary="+mw.Boundary(), &created); err != nil {
		return "", fmt.Errorf("drive: upload %q: %w", name, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("drive: upload %q: empty id", name)
	}
	return created.ID, nil
}

func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return errors.New("drive: file id is required")
	}
	u := c.baseURL + "/files/" + url.PathEscape(fileID) + "?supportsAllDrives=true"
	if err := c.doJSON(ctx, http.MethodDelete, u, nil, "", nil); err != nil {
		return fmt.Errorf("drive: delete %s: %w", fileID, err)
	}
	return nil
}

// FileLink is the browser view link for a file id.
func (c *Client) FileLink(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view"
}

func (c *Client) doJSON(ctx context.Context, method, u string, body []byte, contentType string, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: req.URL.Path, Body: string(buf)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
