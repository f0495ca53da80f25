package signup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/tools"
)

// Exchange retry policy: the code exchange is the one call that must not
// fail on a hiccup, so it goes through the retrying client.
const (
	exchangeMaxAttempts = 3
	exchangeBaseDelay   = 2 * time.Second
)

// Negotiator turns an embedded-signup authorization code into a durable
// credential plus the WABA it grants access to.
type Negotiator struct {
	App         tools.AppClient
	Codes       CodeStore
	RedirectURI string
	// ConfigID is the embedded-signup configuration id used when we have
	// to send the user back to finish provider-side account creation.
	ConfigID string
	// Scopes requested on the signup URL. Configurable on purpose: the
	// provider's required scope set still changes between API versions.
	Scopes []string
}

// Result is a successful negotiation outcome. Either NeedsSignup is set
// (with a fresh SignupURL to redirect the user to) or the account fields
// are populated.
type Result struct {
	ShopID int64
	Mode   string

	NeedsSignup bool
	SignupURL   string

	WabaID         string
	BusinessID     string
	AccessToken    string
	TokenExpiresAt *time.Time
	// Phone is nil when the WABA has no phone identity yet. That is a
	// displayable state, not an error.
	Phone *tools.PhoneNumber
}

func (n *Negotiator) userGraph(token string) tools.GraphClient {
	return tools.GraphClient{AccessToken: token, ApiVersion: n.App.ApiVersion, BaseURL: n.App.BaseURL}
}

// Negotiate runs the full exchange: replay check, code-for-token
// exchange, best-effort token escalation and introspection, account
// discovery and phone lookup.
//
// Code lifecycle: the code is claimed atomically before any network
// call, so concurrent duplicates see ErrCodeAlreadyUsed. It is released
// again when the exchange itself fails (the provider never consumed it)
// and when negotiation fails after the exchange (so the user can retry);
// persistence failures after a successful Negotiate are compensated by
// the caller via ReleaseCode.
func (n *Negotiator) Negotiate(ctx context.Context, code, rawState string) (*Result, error) {
	st, err := DecodeConnectState(rawState)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidState
	}

	claimed, err := n.Codes.Claim(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("signup: reserva do código: %w", err)
	}
	if !claimed {
		return nil, ErrCodeAlreadyUsed
	}

	var tok tools.TokenResponse
	err = tools.ExecuteWithRetry(ctx, exchangeMaxAttempts, exchangeBaseDelay, func(ctx context.Context) error {
		var callErr error
		tok, callErr = n.App.ExchangeCode(ctx, n.RedirectURI, code)
		return callErr
	})
	if err != nil {
		// The provider never consumed the code; leave it usable.
		n.ReleaseCode(ctx, code)
		return nil, wrapProviderError("troca do código de autorização", err)
	}

	token := tok.AccessToken
	expiresAt := tok.ExpiresAt(time.Now())

	// Best-effort escalation to a long-lived token; the short-lived one
	// still works if this fails.
	if long, err := n.App.ExtendToken(ctx, token); err != nil {
		logrus.Warnf("signup: extensão para token longo falhou, seguindo com token curto: %v", err)
	} else if long.AccessToken != "" {
		token = long.AccessToken
		expiresAt = long.ExpiresAt(time.Now())
	}

	grants := n.introspectGrants(ctx, token)

	wabaID := n.discoverAccount(ctx, token, grants)
	if wabaID == "" {
		if st.Mode == ModeNew {
			// Mid embedded-signup there may simply be no WABA yet; send
			// the user back to finish creating one.
			return &Result{
				ShopID:      st.ShopID,
				Mode:        st.Mode,
				NeedsSignup: true,
				SignupURL:   n.SignupURL(st),
			}, nil
		}
		n.ReleaseCode(ctx, code)
		return nil, ErrAccountNotDirectlyAccessible
	}

	res := &Result{
		ShopID:         st.ShopID,
		Mode:           st.Mode,
		WabaID:         wabaID,
		AccessToken:    token,
		TokenExpiresAt: expiresAt,
	}
	if len(grants.BusinessIDs) > 0 {
		res.BusinessID = grants.BusinessIDs[0]
	}

	// Best-effort phone lookup; a WABA without a phone number connects
	// fine and is flagged as messaging-limited.
	waba := tools.WabaClient{AccessToken: token, ApiVersion: n.App.ApiVersion, BaseURL: n.App.BaseURL, WabaID: wabaID}
	phones, err := waba.ListPhoneNumbers(ctx)
	if err != nil {
		logrus.Warnf("signup: listagem de telefones da waba %s falhou: %v", wabaID, err)
	} else if len(phones) > 0 {
		res.Phone = &phones[0]
	}

	return res, nil
}

// ReleaseCode returns code to the unused set. Callers use it to
// compensate persistence failures after a successful Negotiate.
func (n *Negotiator) ReleaseCode(ctx context.Context, code string) {
	if err := n.Codes.Release(ctx, code); err != nil {
		logrus.Errorf("signup: liberação do código falhou: %v", err)
	}
}

// SignupURL builds a fresh embedded-signup dialog URL carrying st.
func (n *Negotiator) SignupURL(st ConnectState) string {
	q := url.Values{}
	q.Set("client_id", n.App.AppID)
	q.Set("redirect_uri", n.RedirectURI)
	q.Set("state", st.Encode())
	q.Set("response_type", "code")
	if n.ConfigID != "" {
		q.Set("config_id", n.ConfigID)
	}
	if len(n.Scopes) > 0 {
		q.Set("scope", strings.Join(n.Scopes, ","))
	}
	apiVersion := n.App.ApiVersion
	if apiVersion == "" {
		apiVersion = tools.DefaultApiVersion
	}
	return fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth?%s", apiVersion, q.Encode())
}

// wrapProviderError keeps known Graph errors intact and wraps the rest
// so the raw message survives to the logs.
func wrapProviderError(op string, err error) error {
	var apiErr tools.GraphAPIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Op: op, Err: apiErr}
	}
	return &ProviderError{Op: op, Err: err}
}
