package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/topicnote/topicnote/pkg/models"
)

// SignUp creates a new user account
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/signup", email, password)
}

// SignIn authenticates an existing user
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/signin", email, password)
}

// SignOut forgets the session token. Tokens are stateless, so the server is
// not involved.
func (c *Client) SignOut() {
	c.SetAuthToken("")
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	resp, err := c.doAuthed(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return nil, err
	}

	var result models.User
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*models.AuthResponse, error) {
	req := models.Credentials{Email: email, Password: password}

	resp, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}

	var result models.AuthResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	// Automatically set the auth token for subsequent requests
	c.SetAuthToken(result.Token)

	return &result, nil
}
