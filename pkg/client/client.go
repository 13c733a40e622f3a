// Package client is the Go client of the topicnote HTTP API.
//
// [Client] is the remote store of the sync engine: it implements
// [github.com/topicnote/topicnote/pkg/store.RemoteStore] on top of the topic
// endpoints, scoped to the signed-in user by a bearer token. It also covers
// sign-up, sign-in and the sharing endpoints.
//
// Every call that needs a session returns
// [github.com/topicnote/topicnote/pkg/store.ErrNotAuthenticated] without
// touching the network when no token is set, and maps a 401 answer from the
// server to the same error.
//
// Basic use:
//
//	c := client.NewClient("http://localhost:8080")
//	if _, err := c.SignIn(ctx, "ana@example.com", "hunter22"); err != nil {
//		return err
//	}
//	rows, err := c.ListTopics(ctx)
//
// The underlying HTTP client times out after 30 seconds. Client instances are
// safe for concurrent use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/store"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, message=%s", e.StatusCode, e.Message)
}

// Client talks to one topicnote server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

var _ store.RemoteStore = (*Client)(nil)

// NewClient creates a client for baseURL, e.g. "http://localhost:8080",
// without a trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken sets the session token sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current session token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// Authenticated reports whether a session token is set.
func (c *Client) Authenticated() bool { return c.AuthToken() != "" }

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// doAuthed is doRequest for endpoints that need a session.
func (c *Client) doAuthed(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if !c.Authenticated() {
		return nil, store.ErrNotAuthenticated
	}
	return c.doRequest(ctx, method, path, body)
}

// decodeResponse decodes the JSON response into the target struct
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", store.ErrNotAuthenticated, apiErr)
		}
		return apiErr
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Topics

// ListTopics returns the signed-in user's topics, most recently updated first.
func (c *Client) ListTopics(ctx context.Context) ([]models.RemoteTopic, error) {
	resp, err := c.doAuthed(ctx, http.MethodGet, "/api/topics", nil)
	if err != nil {
		return nil, err
	}

	var result []models.RemoteTopic
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// UpsertTopics writes a batch of topics.
func (c *Client) UpsertTopics(ctx context.Context, topics []models.RemoteTopic) error {
	if !c.Authenticated() {
		return store.ErrNotAuthenticated
	}
	if len(topics) == 0 {
		return nil
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/topics/batch", topics)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// DeleteTopics removes topics by id.
func (c *Client) DeleteTopics(ctx context.Context, ids []string) error {
	if !c.Authenticated() {
		return store.ErrNotAuthenticated
	}
	if len(ids) == 0 {
		return nil
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/topics/delete", map[string][]string{"ids": ids})
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// Sharing

// CreateShare shares one of the user's topics.
func (c *Client) CreateShare(ctx context.Context, req models.ShareRequest) (*models.SharedTopic, error) {
	resp, err := c.doAuthed(ctx, http.MethodPost, "/api/shares", req)
	if err != nil {
		return nil, err
	}

	var result models.SharedTopic
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListTopicShares lists the shares of a topic.
func (c *Client) ListTopicShares(ctx context.Context, topicID string) ([]models.SharedTopic, error) {
	resp, err := c.doAuthed(ctx, http.MethodGet, fmt.Sprintf("/api/topics/%s/shares", url.PathEscape(topicID)), nil)
	if err != nil {
		return nil, err
	}

	var result []models.SharedTopic
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateShareVisibility makes a share public or private.
func (c *Client) UpdateShareVisibility(ctx context.Context, shareID string, isPublic bool) error {
	resp, err := c.doAuthed(ctx, http.MethodPut, fmt.Sprintf("/api/shares/%s/visibility", url.PathEscape(shareID)),
		map[string]bool{"is_public": isPublic})
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// DeleteShare removes a share.
func (c *Client) DeleteShare(ctx context.Context, shareID string) error {
	resp, err := c.doAuthed(ctx, http.MethodDelete, fmt.Sprintf("/api/shares/%s", url.PathEscape(shareID)), nil)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// ResolveShare fetches what a public token points to. It needs no session and
// returns (nil, nil) for unknown or private tokens.
func (c *Client) ResolveShare(ctx context.Context, token string) (*models.ResolvedShare, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/public/%s", url.PathEscape(token)), nil)
	if err != nil {
		return nil, err
	}

	var result models.ResolvedShare
	if err := decodeResponse(resp, &result); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &result, nil
}
