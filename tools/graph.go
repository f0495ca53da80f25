package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const GraphBaseURL = "https://graph.facebook.com"
const DefaultApiVersion = "v24.0"

// GraphCallTimeout bounds every single Graph API attempt. Retries are a
// separate concern (see retry.go); each attempt gets its own budget.
const GraphCallTimeout = 60 * time.Second

var graphHTTPClient = &http.Client{Timeout: GraphCallTimeout}

// GraphAPIError is a non-2xx response from the Graph API.
type GraphAPIError struct {
	StatusCode int
	Body       string
}

func (e GraphAPIError) Error() string {
	return fmt.Sprintf("graph api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying (5xx only;
// a 4xx is an application error and will not get better on its own).
func (e GraphAPIError) Transient() bool {
	return e.StatusCode >= 500
}

// GraphClient issues raw Graph API calls with a bearer token. The typed
// clients (WabaClient, WhatsAppClient, AppClient) build on it; the signup
// discovery strategies use it directly.
type GraphClient struct {
	AccessToken string
	ApiVersion  string // e.g. v24.0
	BaseURL     string // override in tests; empty means graph.facebook.com
}

func (c GraphClient) URL(path string, query url.Values) string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = GraphBaseURL
	}
	apiVersion := strings.TrimSpace(c.ApiVersion)
	if apiVersion == "" {
		apiVersion = DefaultApiVersion
	}
	u := fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), apiVersion, strings.TrimPrefix(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get performs a GET on path and decodes the JSON response into out
// (out may be nil when the body doesn't matter).
func (c GraphClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return graphDo(ctx, http.MethodGet, c.URL(path, query), c.AccessToken, nil, out)
}

// Post performs a JSON POST on path.
func (c GraphClient) Post(ctx context.Context, path string, body any, out any) error {
	return graphDo(ctx, http.MethodPost, c.URL(path, nil), c.AccessToken, body, out)
}

func graphDo(ctx context.Context, method, rawURL, token string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := graphHTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return GraphAPIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("graph api: decode response: %w", err)
		}
	}
	return nil
}
