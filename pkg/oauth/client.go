package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GraphScope is the application scope for Microsoft Graph
const GraphScope = "https://graph.microsoft.com/.default"

// expirySkew refreshes tokens slightly before the identity platform does
const expirySkew = 60 * time.Second

// Client obtains and caches app-only access tokens via the client credentials grant
type Client struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scope        string
	HTTPClient   *http.Client
	Logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	now         func() time.Time
}

// TokenResponse represents the response from the OAuth token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// MicrosoftTokenURL is the v2 token endpoint for an Entra ID tenant
func MicrosoftTokenURL(tenantID string) string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(tenantID))
}

// NewClient creates a new OAuth client instance. An empty scope defaults to Graph.
func NewClient(tokenURL, clientID, clientSecret, scope string, logger *zap.Logger) *Client {
	if scope == "" {
		scope = GraphScope
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		TokenURL:     tokenURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        scope,
		HTTPClient:   &http.Client{Timeout: 10 * time.Second},
		Logger:       logger,
		now:          time.Now,
	}
}

// Token returns a cached access token, requesting a new one when it is missing or about to expire
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	c.Logger.Info("Access token not available or expired, requesting new token",
		zap.String("client_id", c.ClientID),
		zap.String("scope", c.Scope))

	tokenResp, err := c.GetClientCredentialsToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - expirySkew)
	c.Logger.Info("New access token acquired", zap.Time("expiry", c.tokenExpiry))
	return c.accessToken, nil
}

// Invalidate drops the cached token so the next call re-authenticates
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// GetClientCredentialsToken obtains an access token using the client credentials grant
func (c *Client) GetClientCredentialsToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.ClientID)
	data.Set("client_secret", c.ClientSecret)
	data.Set("scope", c.Scope)

	return c.requestToken(ctx, data)
}

// Helper function to make token requests
func (c *Client) requestToken(ctx context.Context, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		c.Logger.Error("Failed to create token request", zap.Error(err))
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Token request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Logger.Error("Failed to read token response", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
			c.Logger.Error("Failed to parse error response",
				zap.Int("status_code", resp.StatusCode),
				zap.String("response", string(body)))
			return nil, fmt.Errorf("error requesting token: %d %s", resp.StatusCode, string(body))
		}
		c.Logger.Error("Token request error",
			zap.String("error", errorResp.Error),
			zap.String("description", errorResp.ErrorDescription))
		return nil, fmt.Errorf("error requesting token: %s - %s", errorResp.Error, errorResp.ErrorDescription)
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		c.Logger.Error("Failed to parse token response", zap.Error(err))
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("error requesting token: empty access_token")
	}

	return &tokenResp, nil
}
