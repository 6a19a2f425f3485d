// Package client is a typed HTTP client for the postboard API.
package client

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
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/postboard/internal/domain"
)

// ErrNotAuthenticated is returned by calls that need a token when none is
// available.
var ErrNotAuthenticated = errors.New("not authenticated: log in first")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d)", e.Status)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}

// TokenSource returns the current bearer token, or "" when logged out.
type TokenSource func() string

// Client talks to a postboard server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		token: func() string { return "" },
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetTokenSource sets where authenticated calls get their token from.
func (c *Client) SetTokenSource(ts TokenSource) {
	if ts == nil {
		ts = func() string { return "" }
	}
	c.token = ts
}

// Session is the result of a login or token refresh.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      domain.Identity
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req domain.SignupRequest) error {
	body := signupRequest{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/signup", "", body, nil); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/login", "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return resp.session(time.Now()), nil
}

// Refresh exchanges a still valid token for a new one.
func (c *Client) Refresh(ctx context.Context, token string) (*Session, error) {
	var resp tokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/user/refresh", token, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return resp.session(time.Now()), nil
}

// FetchPosts returns page pageIndex (1-based) of size pageSize.
func (c *Client) FetchPosts(ctx context.Context, pageSize, pageIndex int) (*domain.PostPage, error) {
	q := url.Values{}
	q.Set("pagesize", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(pageIndex))

	var resp listResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	page := &domain.PostPage{Posts: make([]domain.Post, 0, len(resp.Posts)), Total: resp.Total}
	for _, p := range resp.Posts {
		page.Posts = append(page.Posts, p.toDomain())
	}
	return page, nil
}

// GetPost returns a single post.
func (c *Client) GetPost(ctx context.Context, postID string) (*domain.Post, error) {
	var resp postResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts/"+url.PathEscape(postID), "", nil, &resp); err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	post := resp.toDomain()
	return &post, nil
}

// CreatePost publishes a post. image may be nil.
func (c *Client) CreatePost(ctx context.Context, content string, image *domain.Image) (*domain.Post, error) {
	token := c.token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp postMessageResponse
	if err := c.doForm(ctx, http.MethodPost, "/api/posts", token, content, image, false, &resp); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	post := resp.Post.toDomain()
	return &post, nil
}

// EditPost replaces the content of a post and optionally its image.
func (c *Client) EditPost(ctx context.Context, postID string, upd domain.PostUpdate) (*domain.Post, error) {
	token := c.token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp postMessageResponse
	path := "/api/posts/" + url.PathEscape(postID)
	if err := c.doForm(ctx, http.MethodPut, path, token, upd.Content, upd.Image, upd.DeleteImage, &resp); err != nil {
		return nil, fmt.Errorf("edit post: %w", err)
	}
	post := resp.Post.toDomain()
	return &post, nil
}

// DeletePost deletes a post and returns the server's message.
func (c *Client) DeletePost(ctx context.Context, postID string) (string, error) {
	token := c.token()
	if token == "" {
		return "", ErrNotAuthenticated
	}

	var resp messageResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/posts/"+url.PathEscape(postID), token, nil, &resp); err != nil {
		return "", fmt.Errorf("delete post: %w", err)
	}
	return resp.Message, nil
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body any, result any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, result)
}

func (c *Client) doForm(ctx context.Context, method, path, token, content string, image *domain.Image, deleteImage bool, result any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("content", content); err != nil {
		return fmt.Errorf("write form: %w", err)
	}
	if deleteImage {
		if err := mw.WriteField("deleteImage", "true"); err != nil {
			return fmt.Errorf("write form: %w", err)
		}
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="image"`)
		h.Set("Content-Type", image.MimeType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return fmt.Errorf("write form: %w", err)
		}
		if _, err := part.Write(image.Binary); err != nil {
			return fmt.Errorf("write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, token, result)
}

func (c *Client) send(req *http.Request, token string, result any) error {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e errorResponse
		if json.Unmarshal(respBody, &e) == nil && e.Message != "" {
			apiErr.Code, apiErr.Message = e.Error, e.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
