package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "https://open.feishu.cn"

// Client calls the Feishu open platform APIs with static app credentials.
// Tenant tokens are fetched per call and never cached.
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	http      *http.Client
}

// NewClient creates a Client for the given app credentials. An empty
// baseURL selects the production endpoint.
func NewClient(appID, appSecret, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   baseURL,
		http:      &http.Client{},
	}
}

type tenantTokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tenantTokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
}

// TenantAccessToken requests a short-lived tenant-scoped token from the
// internal token-issuance endpoint.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(tenantTokenRequest{
		AppID:     c.appID,
		AppSecret: c.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling token request: %w", err)
	}

	url := c.baseURL + "/open-apis/v3/auth/tenant_access_token/internal/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting tenant token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	var tokenResp tenantTokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
	if tokenResp.Code != 0 {
		return "", fmt.Errorf("token endpoint error %d: %s", tokenResp.Code, tokenResp.Msg)
	}
	if tokenResp.TenantAccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty tenant_access_token")
	}

	return tokenResp.TenantAccessToken, nil
}

type replyRequest struct {
	Content string `json:"content"`
	MsgType string `json:"msg_type"`
}

type replyResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Reply posts text as a reply to the given message id, authenticated with
// the tenant token.
func (c *Client) Reply(ctx context.Context, messageID, text, tenantToken string) error {
	content, err := EncodeTextContent(text)
	if err != nil {
		return err
	}

	body, err := json.Marshal(replyRequest{
		Content: content,
		MsgType: "text",
	})
	if err != nil {
		return fmt.Errorf("marshalling reply request: %w", err)
	}

	url := fmt.Sprintf("%s/open-apis/im/v1/messages/%s/reply", c.baseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tenantToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting reply: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading reply response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reply endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var replyResp replyResponse
	if err := json.Unmarshal(respBody, &replyResp); err != nil {
		return fmt.Errorf("decoding reply response: %w", err)
	}
	if replyResp.Code != 0 {
		return fmt.Errorf("reply endpoint error %d: %s", replyResp.Code, replyResp.Msg)
	}

	return nil
}
