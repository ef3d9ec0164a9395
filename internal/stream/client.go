// Package stream talks to the hosted chat and video provider: it mints user
// tokens and mirrors user identities into the provider's directory.
package stream

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
	"time"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/services"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTimeout = 5 * time.Second

// Client is a minimal server-side client for the Stream chat REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  []byte
}

func NewClient(cfg config.StreamConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.APISecret) == "" {
		return nil, errors.New("stream api key and secret are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  []byte(cfg.APISecret),
	}, nil
}

// APIKey returns the public key clients need alongside a user token.
func (c *Client) APIKey() string {
	return c.apiKey
}

type userClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// CreateToken returns a user token for the chat and video SDKs.
func (c *Client) CreateToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("user id is required")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, userClaims{UserID: userID})
	return token.SignedString(c.apiSecret)
}

func (c *Client) serverToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"server": true})
	return token.SignedString(c.apiSecret)
}

type upsertUsersRequest struct {
	Users map[string]services.DirectoryUser `json:"users"`
}

// UpsertUser creates or replaces the user in the provider's directory.
func (c *Client) UpsertUser(ctx context.Context, user services.DirectoryUser) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("user id is required")
	}

	body, err := json.Marshal(upsertUsersRequest{
		Users: map[string]services.DirectoryUser{user.ID: user},
	})
	if err != nil {
		return fmt.Errorf("encode upsert: %w", err)
	}

	token, err := c.serverToken()
	if err != nil {
		return fmt.Errorf("sign server token: %w", err)
	}

	endpoint := c.baseURL + "/users?" + url.Values{"api_key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)
	req.Header.Set("Stream-Auth-Type", "jwt")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", user.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("upsert user %s: stream responded %d: %s", user.ID, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
