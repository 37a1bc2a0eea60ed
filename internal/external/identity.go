package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tiergate/internal/types"
)

// maxProfileBytes bounds how much of an identity response is read.
const maxProfileBytes = 1 << 20

// IdentityClientConfig configures IdentityClient.
type IdentityClientConfig struct {
	BaseURL string
	APIKey  types.SecretString
	Logger  *slog.Logger
}

// IdentityClient looks users up through the platform's REST API.
type IdentityClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewIdentityClient creates an IdentityClient. The HTTP client's timeout
// bounds each attempt; BaseClient adds retries and the breaker.
func NewIdentityClient(httpClient *http.Client, cfg IdentityClientConfig, opts ...BaseClientOption) *IdentityClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := RetryPolicy{
		MaxRetries: 2,
		MinWait:    200 * time.Millisecond,
		MaxWait:    2 * time.Second,
	}
	return &IdentityClient{
		base:    NewBaseClient(httpClient, "identity", policy, "tiergate/1.0", opts...),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

type profileResponse struct {
	ID       string  `json:"id"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

// FetchProfile implements IdentityProvider.
func (c *IdentityClient) FetchProfile(ctx context.Context, externalUserID string) (*types.UserProfile, error) {
	if c.apiKey.IsEmpty() {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity API key is not configured", nil)
	}

	endpoint := fmt.Sprintf("%s/api/v5/users/%s", c.baseURL, url.PathEscape(externalUserID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build identity request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Accept", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity lookup failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundUser, "user not found on platform", nil,
			map[string]any{"external_user_id": externalUserID})
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamIdentity,
			fmt.Sprintf("identity lookup returned %d", resp.StatusCode), nil,
			map[string]any{"body": string(body)})
	}

	var pr profileResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&pr); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity response is not valid JSON", err)
	}

	profile := &types.UserProfile{}
	if pr.Username != nil {
		profile.Username = *pr.Username
	}
	if pr.Email != nil {
		profile.Email = *pr.Email
	}

	c.logger.DebugContext(ctx, "identity profile fetched",
		"external_user_id", externalUserID,
		"has_username", profile.Username != "",
		"has_email", profile.Email != "",
	)
	return profile, nil
}

var _ IdentityProvider = (*IdentityClient)(nil)
