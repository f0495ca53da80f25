package tools

import (
	"context"
	"fmt"
	"strings"
)

// WhatsAppClient is a thin client for WhatsApp Cloud API calls that are
// scoped to one phone number.
type WhatsAppClient struct {
	AccessToken   string
	ApiVersion    string // e.g. v24.0
	BaseURL       string
	PhoneNumberID string
}

func (c WhatsAppClient) graph() GraphClient {
	return GraphClient{AccessToken: c.AccessToken, ApiVersion: c.ApiVersion, BaseURL: c.BaseURL}
}

func (c WhatsAppClient) node(path string) string {
	return strings.TrimSpace(c.PhoneNumberID) + "/" + strings.TrimPrefix(path, "/")
}

// SendText sends a text message and returns the provider message id
// (wamid), which keys the local Message row.
func (c WhatsAppClient) SendText(ctx context.Context, to string, text string) (string, error) {
	if strings.TrimSpace(c.PhoneNumberID) == "" {
		return "", fmt.Errorf("phone_number_id é obrigatório")
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"body": text,
		},
	}
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.graph().Post(ctx, c.node("messages"), body, &resp); err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp api: resposta sem message id")
	}
	return resp.Messages[0].ID, nil
}

// RequestCode requests a verification code via SMS/VOICE.
func (c WhatsAppClient) RequestCode(ctx context.Context, method string, language string) error {
	if strings.TrimSpace(method) == "" {
		method = "SMS"
	}
	if strings.TrimSpace(language) == "" {
		language = "pt_BR"
	}
	return c.graph().Post(ctx, c.node("request_code"), map[string]any{
		"code_method": method,
		"language":    language,
	}, nil)
}

// Register registers the phone number in Cloud API using the PIN received by the user.
func (c WhatsAppClient) Register(ctx context.Context, pin string) error {
	return c.graph().Post(ctx, c.node("register"), map[string]any{
		"messaging_product": "whatsapp",
		"pin":               pin,
	}, nil)
}
