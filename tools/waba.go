package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// WabaClient is a thin client for WABA-level Graph API operations.
// Example: /{waba_id}/subscribed_apps
type WabaClient struct {
	AccessToken string
	ApiVersion  string // e.g. v24.0
	BaseURL     string
	WabaID      string
}

func (c WabaClient) graph() GraphClient {
	return GraphClient{AccessToken: c.AccessToken, ApiVersion: c.ApiVersion, BaseURL: c.BaseURL}
}

func (c WabaClient) node(path string) string {
	return strings.TrimSpace(c.WabaID) + "/" + strings.TrimPrefix(path, "/")
}

// SubscribeApp subscribes the current app to receive webhook updates for this WABA.
func (c WabaClient) SubscribeApp(ctx context.Context) error {
	if strings.TrimSpace(c.WabaID) == "" {
		return fmt.Errorf("waba_id é obrigatório")
	}
	return c.graph().Post(ctx, c.node("subscribed_apps"), nil, nil)
}

// PhoneNumber is one phone identity registered under a WABA.
type PhoneNumber struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

// ListPhoneNumbers returns the phone identities under this WABA.
// An empty list is a legitimate answer for a freshly created account.
func (c WabaClient) ListPhoneNumbers(ctx context.Context) ([]PhoneNumber, error) {
	if strings.TrimSpace(c.WabaID) == "" {
		return nil, fmt.Errorf("waba_id é obrigatório")
	}
	var resp struct {
		Data []PhoneNumber `json:"data"`
	}
	q := url.Values{}
	q.Set("fields", "id,display_phone_number,verified_name")
	if err := c.graph().Get(ctx, c.node("phone_numbers"), q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateTemplate submits a new message template for provider review and
// returns the provider template id. Approval arrives later by webhook.
func (c WabaClient) CreateTemplate(ctx context.Context, name, language, category, bodyText string) (string, error) {
	if strings.TrimSpace(c.WabaID) == "" {
		return "", fmt.Errorf("waba_id é obrigatório")
	}
	body := map[string]any{
		"name":     name,
		"language": language,
		"category": category,
		"components": []map[string]any{
			{"type": "BODY", "text": bodyText},
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.graph().Post(ctx, c.node("message_templates"), body, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}
