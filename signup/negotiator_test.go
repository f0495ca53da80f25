package signup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalvaZapV2/salva-zap-official/tools"
)

// fakeGraph is a scriptable Graph API stand-in. Unhandled paths return
// 404, which discovery treats as "nothing found here".
type fakeGraph struct {
	server    *httptest.Server
	exchanges int
	requests  int
	handlers  map[string]http.HandlerFunc
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()
	f := &fakeGraph{handlers: map[string]http.HandlerFunc{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests++
		if r.URL.Path == "/v24.0/oauth/access_token" && r.URL.Query().Get("grant_type") == "" {
			f.exchanges++
		}
		if h, ok := f.handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.Error(w, `{"error":{"message":"unknown node"}}`, http.StatusNotFound)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGraph) on(path string, status int, body any) {
	f.handlers["/v24.0/"+strings.TrimPrefix(path, "/")] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (f *fakeGraph) negotiator() *Negotiator {
	return &Negotiator{
		App: tools.AppClient{
			AppID:      "12345",
			AppSecret:  "shhh",
			ApiVersion: "v24.0",
			BaseURL:    f.server.URL,
		},
		Codes:       NewMemoryCodeStore(),
		RedirectURI: "https://app.example/connect/callback",
		ConfigID:    "cfg-789",
		Scopes:      []string{"whatsapp_business_management", "business_management"},
	}
}

func grantsResponse(wabaIDs, businessIDs []string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"is_valid": true,
			"granular_scopes": []map[string]any{
				{"scope": "whatsapp_business_management", "target_ids": wabaIDs},
				{"scope": "business_management", "target_ids": businessIDs},
			},
		},
	}
}

func stateFor(mode string) string {
	return ConnectState{ShopID: 7, Mode: mode}.Encode()
}

func TestNegotiateHappyPath(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 200, map[string]any{"access_token": "short-token", "expires_in": 3600})
	f.on("debug_token", 200, grantsResponse([]string{"waba-1"}, []string{"biz-1"}))
	f.on("waba-1", 200, map[string]any{"id": "waba-1", "name": "Loja"})
	f.on("waba-1/phone_numbers", 200, map[string]any{
		"data": []map[string]any{
			{"id": "phone-1", "display_phone_number": "+55 11 91234-5678", "verified_name": "Loja"},
		},
	})

	n := f.negotiator()
	res, err := n.Negotiate(context.Background(), "code-abc", stateFor(ModeExisting))
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.ShopID)
	assert.False(t, res.NeedsSignup)
	assert.Equal(t, "waba-1", res.WabaID)
	assert.Equal(t, "biz-1", res.BusinessID)
	assert.NotEmpty(t, res.AccessToken)
	require.NotNil(t, res.Phone)
	assert.Equal(t, "phone-1", res.Phone.ID)

	// The same code cannot be exchanged twice, and the second attempt
	// must not reach the provider at all.
	before := f.exchanges
	_, err = n.Negotiate(context.Background(), "code-abc", stateFor(ModeExisting))
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)
	assert.Equal(t, before, f.exchanges)
}

func TestNegotiateTokenEscalationIsBestEffort(t *testing.T) {
	f := newFakeGraph(t)
	// Exchange succeeds, escalation blows up: negotiation proceeds with
	// the short-lived token. The fake distinguishes by grant_type.
	f.handlers["/v24.0/oauth/access_token"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("grant_type") == "fb_exchange_token" {
			http.Error(w, `{"error":{"message":"nope"}}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "short-token", "expires_in": 3600})
	}
	f.on("debug_token", 200, grantsResponse([]string{"waba-1"}, nil))
	f.on("waba-1", 200, map[string]any{"id": "waba-1"})
	f.on("waba-1/phone_numbers", 200, map[string]any{"data": []any{}})

	res, err := f.negotiator().Negotiate(context.Background(), "code-x", stateFor(ModeExisting))
	require.NoError(t, err)
	assert.Equal(t, "short-token", res.AccessToken)
}

func TestNegotiateExchangeFailureLeavesCodeUsable(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 400, map[string]any{"error": map[string]any{"message": "code expired"}})

	n := f.negotiator()
	_, err := n.Negotiate(context.Background(), "code-dead", stateFor(ModeExisting))
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Error(), "code expired")

	// Compensation: the provider never consumed the code, so a retry
	// must be able to claim it again.
	claimed, cerr := n.Codes.Claim(context.Background(), "code-dead")
	require.NoError(t, cerr)
	assert.True(t, claimed)
}

func TestNegotiateDiscoveryFallsBackToBusinessListing(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 200, map[string]any{"access_token": "tok"})
	f.on("debug_token", 200, grantsResponse([]string{"waba-gone"}, []string{"biz-1"}))
	// probe of waba-gone 404s (no handler); business listing wins.
	f.on("biz-1/owned_whatsapp_business_accounts", 200, map[string]any{
		"data": []map[string]any{{"id": "waba-2"}},
	})
	f.on("waba-2/phone_numbers", 200, map[string]any{"data": []any{}})

	res, err := f.negotiator().Negotiate(context.Background(), "code-1", stateFor(ModeExisting))
	require.NoError(t, err)
	assert.Equal(t, "waba-2", res.WabaID)
	// No phone number yet is a legitimate, displayable state.
	assert.Nil(t, res.Phone)
}

func TestNegotiateDiscoveryFallsBackToIdentityListing(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 200, map[string]any{"access_token": "tok"})
	f.on("debug_token", 200, grantsResponse(nil, nil))
	f.on("me/businesses", 200, map[string]any{
		"data": []map[string]any{{"id": "biz-9"}},
	})
	f.on("biz-9/owned_whatsapp_business_accounts", 200, map[string]any{
		"data": []map[string]any{{"id": "waba-3"}},
	})
	f.on("waba-3/phone_numbers", 200, map[string]any{"data": []any{}})

	res, err := f.negotiator().Negotiate(context.Background(), "code-2", stateFor(ModeExisting))
	require.NoError(t, err)
	assert.Equal(t, "waba-3", res.WabaID)
}

func TestNegotiateNewModeWithoutAccountRedirectsToSignup(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 200, map[string]any{"access_token": "tok"})
	f.on("debug_token", 200, grantsResponse(nil, nil))
	f.on("me/businesses", 200, map[string]any{"data": []any{}})

	res, err := f.negotiator().Negotiate(context.Background(), "code-3", stateFor(ModeNew))
	require.NoError(t, err)
	assert.True(t, res.NeedsSignup)
	assert.Contains(t, res.SignupURL, "config_id=cfg-789")
	assert.Contains(t, res.SignupURL, "state=")
	assert.Empty(t, res.WabaID)
}

func TestNegotiateExistingModeWithoutAccountFails(t *testing.T) {
	f := newFakeGraph(t)
	f.on("oauth/access_token", 200, map[string]any{"access_token": "tok"})
	f.on("debug_token", 200, grantsResponse(nil, nil))
	f.on("me/businesses", 200, map[string]any{"data": []any{}})

	n := f.negotiator()
	_, err := n.Negotiate(context.Background(), "code-4", stateFor(ModeExisting))
	require.ErrorIs(t, err, ErrAccountNotDirectlyAccessible)

	// The code must be usable again so the user can retry after fixing
	// their access.
	claimed, cerr := n.Codes.Claim(context.Background(), "code-4")
	require.NoError(t, cerr)
	assert.True(t, claimed)
}

func TestNegotiateRejectsBadState(t *testing.T) {
	f := newFakeGraph(t)
	n := f.negotiator()

	_, err := n.Negotiate(context.Background(), "code-5", "not-base64")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, f.requests)
}
