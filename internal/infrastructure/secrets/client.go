package secrets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"optexity/internal/application/port/output"
)

var _ output.SecretsPort = (*Client)(nil)

type Config struct {
	ServerURL     string
	APIKey        string
	EmailEndpoint string
	SlackEndpoint string
	// Timeout bounds one request; the server itself may hold it while it
	// waits for the message to arrive.
	Timeout time.Duration
}

func DefaultConfig(serverURL, apiKey string) Config {
	return Config{
		ServerURL:     serverURL,
		APIKey:        apiKey,
		EmailEndpoint: "api/v1/fetch_email_two_fa",
		SlackEndpoint: "api/v1/fetch_slack_two_fa",
		Timeout:       6 * time.Minute,
	}
}

// Client asks the secrets server for a one-time code delivered by email or Slack.
type Client struct {
	cfg    Config
	http   *http.Client
	logger output.LoggerPort
}

func New(cfg Config, logger output.LoggerPort) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type fetchRequest struct {
	IntegrationID string    `json:"integration_id"`
	EmailAddress  string    `json:"email_address,omitempty"`
	ChannelID     string    `json:"channel_id,omitempty"`
	Start         time.Time `json:"start_2fa_time"`
	End           time.Time `json:"end_2fa_time"`
}

type fetchResponse struct {
	MessageID   string `json:"message_id"`
	MessageText string `json:"message_text"`
	OTP         string `json:"otp"`
}

func (c *Client) FetchTwoFactorCode(ctx context.Context, req output.TwoFactorRequest) (*output.TwoFactorCode, error) {
	endpoint := c.cfg.EmailEndpoint
	if req.Channel == output.TwoFactorSlack {
		endpoint = c.cfg.SlackEndpoint
	}
	target, err := joinURL(c.cfg.ServerURL, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(fetchRequest{
		IntegrationID: req.IntegrationID,
		EmailAddress:  req.EmailAddress,
		ChannelID:     req.ChannelID,
		Start:         req.Start.UTC(),
		End:           req.End.UTC(),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch 2fa code: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read 2fa response: %w", err)
	}
	c.logger.Debug("2FA response", "channel", req.Channel, "status", resp.StatusCode, "elapsed", time.Since(start))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch 2fa code: status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out fetchResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode 2fa response: %w", err)
	}
	return &output.TwoFactorCode{MessageID: out.MessageID, MessageText: out.MessageText, Code: out.OTP}, nil
}

func joinURL(base, endpoint string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("secrets server url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("secrets endpoint: %w", err)
	}
	if u.Path != "" && u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	return u.ResolveReference(ref).String(), nil
}
