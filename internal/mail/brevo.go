package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/connectify/apiserver/config"
)

// BrevoClient sends transactional email through the Brevo HTTP API.
type BrevoClient struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	senderEmail string
	senderName  string
}

func NewBrevoClient(cfg config.MailConfig) (*BrevoClient, error) {
	if cfg.BrevoAPIKey == "" {
		return nil, errors.New("BREVO_API_KEY is required for the brevo mail backend")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BrevoClient{
		httpClient:  &http.Client{Timeout: timeout},
		url:         cfg.BrevoURL,
		apiKey:      cfg.BrevoAPIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
	}, nil
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoMessage struct {
	Sender      brevoAddress   `json:"sender"`
	To          []brevoAddress `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

func (c *BrevoClient) Send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(brevoMessage{
		Sender:      brevoAddress{Email: c.senderEmail, Name: c.senderName},
		To:          []brevoAddress{{Email: to}},
		Subject:     subject,
		HTMLContent: html,
	})
	if err != nil {
		return fmt.Errorf("encode brevo message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build brevo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send brevo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("brevo responded %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}
