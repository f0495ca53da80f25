package tools

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// AppClient is a thin client for app-level Graph API operations:
// OAuth code exchange, token escalation/introspection and app webhook
// subscriptions. These calls authenticate with the app credentials, not
// with a user token.
type AppClient struct {
	AppID      string
	AppSecret  string
	ApiVersion string // e.g. v24.0
	BaseURL    string
}

// appToken is the "{app_id}|{app_secret}" access token Meta accepts for
// app-authorized endpoints.
func (c AppClient) appToken() string {
	return strings.TrimSpace(c.AppID) + "|" + strings.TrimSpace(c.AppSecret)
}

func (c AppClient) graph(token string) GraphClient {
	return GraphClient{AccessToken: token, ApiVersion: c.ApiVersion, BaseURL: c.BaseURL}
}

// TokenResponse is the provider's answer to a code or token exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ExpiresAt converts ExpiresIn into an absolute timestamp; nil when the
// provider reported no expiry (long-lived system tokens).
func (t TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}

// ExchangeCode trades an embedded-signup authorization code for a
// short-lived user access token.
func (c AppClient) ExchangeCode(ctx context.Context, redirectURI, code string) (TokenResponse, error) {
	q := url.Values{}
	q.Set("client_id", c.AppID)
	q.Set("client_secret", c.AppSecret)
	q.Set("redirect_uri", redirectURI)
	q.Set("code", code)

	var resp TokenResponse
	err := c.graph("").Get(ctx, "oauth/access_token", q, &resp)
	return resp, err
}

// ExtendToken escalates a short-lived token to a long-lived one.
func (c AppClient) ExtendToken(ctx context.Context, shortLived string) (TokenResponse, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.AppID)
	q.Set("client_secret", c.AppSecret)
	q.Set("fb_exchange_token", shortLived)

	var resp TokenResponse
	err := c.graph("").Get(ctx, "oauth/access_token", q, &resp)
	return resp, err
}

// GranularScope is one granted permission with the node ids it covers.
type GranularScope struct {
	Scope     string   `json:"scope"`
	TargetIDs []string `json:"target_ids"`
}

// TokenDebug is the introspection result for an access token.
type TokenDebug struct {
	AppID          string          `json:"app_id"`
	UserID         string          `json:"user_id"`
	IsValid        bool            `json:"is_valid"`
	Scopes         []string        `json:"scopes"`
	GranularScopes []GranularScope `json:"granular_scopes"`
}

// DebugToken introspects inputToken with the app token. The granular
// scopes carry WABA and business ids granted during embedded signup,
// which lets account discovery skip extra round-trips.
func (c AppClient) DebugToken(ctx context.Context, inputToken string) (TokenDebug, error) {
	q := url.Values{}
	q.Set("input_token", inputToken)

	var resp struct {
		Data TokenDebug `json:"data"`
	}
	err := c.graph(c.appToken()).Get(ctx, "debug_token", q, &resp)
	return resp.Data, err
}

// RegisterSubscription creates the app-level webhook subscription so the
// provider pushes WABA events to callbackURL.
func (c AppClient) RegisterSubscription(ctx context.Context, callbackURL, verifyToken string) error {
	body := map[string]any{
		"object":       "whatsapp_business_account",
		"callback_url": callbackURL,
		"verify_token": verifyToken,
		"fields":       "messages,message_template_status_update",
	}
	return c.graph(c.appToken()).Post(ctx, strings.TrimSpace(c.AppID)+"/subscriptions", body, nil)
}
