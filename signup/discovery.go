package signup

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/tools"
)

// Scope names whose granular grants carry the node ids we care about.
const (
	scopeWhatsAppManagement = "whatsapp_business_management"
	scopeBusinessManagement = "business_management"
)

// grantInfo is what token introspection told us about the credential:
// candidate WABA ids and parent business ids, straight from the granted
// scopes, with no extra discovery round-trip.
type grantInfo struct {
	WabaIDs     []string
	BusinessIDs []string
}

// introspectGrants is best-effort: an introspection failure only costs
// us the shortcut, not the negotiation.
func (n *Negotiator) introspectGrants(ctx context.Context, token string) grantInfo {
	var info grantInfo
	debug, err := n.App.DebugToken(ctx, token)
	if err != nil {
		logrus.Warnf("signup: introspecção do token falhou: %v", err)
		return info
	}
	for _, gs := range debug.GranularScopes {
		switch gs.Scope {
		case scopeWhatsAppManagement:
			info.WabaIDs = append(info.WabaIDs, gs.TargetIDs...)
		case scopeBusinessManagement:
			info.BusinessIDs = append(info.BusinessIDs, gs.TargetIDs...)
		}
	}
	return info
}

// discoveryStrategy is one way of resolving the connected WABA id. An
// empty id with nil error means "nothing found, try the next one".
type discoveryStrategy struct {
	name string
	run  func(ctx context.Context, g tools.GraphClient, grants grantInfo) (string, error)
}

// discoverAccount tries each strategy in priority order until one yields
// a WABA id. A strategy failing is logged and skipped; only exhausting
// all of them comes back empty.
func (n *Negotiator) discoverAccount(ctx context.Context, token string, grants grantInfo) string {
	g := n.userGraph(token)

	strategies := []discoveryStrategy{
		{"probe das contas concedidas", probeGrantedAccounts},
		{"listagem via business", listBusinessOwned},
		{"listagem via identidade", listIdentityOwned},
	}

	for _, s := range strategies {
		id, err := s.run(ctx, g, grants)
		if err != nil {
			logrus.Warnf("signup: estratégia %q falhou: %v", s.name, err)
			continue
		}
		if id != "" {
			logrus.Infof("signup: waba resolvida via %s", s.name)
			return id
		}
	}
	return ""
}

// probeGrantedAccounts confirms a WABA id taken from the granular scopes
// by reading the node directly.
func probeGrantedAccounts(ctx context.Context, g tools.GraphClient, grants grantInfo) (string, error) {
	q := url.Values{}
	q.Set("fields", "id,name")
	for _, id := range grants.WabaIDs {
		var node struct {
			ID string `json:"id"`
		}
		if err := g.Get(ctx, id, q, &node); err != nil {
			logrus.Warnf("signup: probe da waba %s falhou: %v", id, err)
			continue
		}
		if node.ID != "" {
			return node.ID, nil
		}
	}
	return "", nil
}

// listBusinessOwned lists the WABAs owned by each granted parent
// business and takes the first one.
func listBusinessOwned(ctx context.Context, g tools.GraphClient, grants grantInfo) (string, error) {
	q := url.Values{}
	q.Set("fields", "id")
	q.Set("limit", "1")
	for _, bid := range grants.BusinessIDs {
		var resp struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := g.Get(ctx, strings.TrimSpace(bid)+"/owned_whatsapp_business_accounts", q, &resp); err != nil {
			logrus.Warnf("signup: listagem de wabas do business %s falhou: %v", bid, err)
			continue
		}
		if len(resp.Data) > 0 && resp.Data[0].ID != "" {
			return resp.Data[0].ID, nil
		}
	}
	return "", nil
}

// listIdentityOwned walks the businesses of the authenticated identity
// itself. Slowest path; last resort.
func listIdentityOwned(ctx context.Context, g tools.GraphClient, _ grantInfo) (string, error) {
	var businesses struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	bq := url.Values{}
	bq.Set("fields", "id")
	bq.Set("limit", "25")
	if err := g.Get(ctx, "me/businesses", bq, &businesses); err != nil {
		return "", err
	}

	wq := url.Values{}
	wq.Set("fields", "id")
	wq.Set("limit", "1")
	for _, b := range businesses.Data {
		var resp struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := g.Get(ctx, b.ID+"/owned_whatsapp_business_accounts", wq, &resp); err != nil {
			logrus.Warnf("signup: listagem de wabas do business %s falhou: %v", b.ID, err)
			continue
		}
		if len(resp.Data) > 0 && resp.Data[0].ID != "" {
			return resp.Data[0].ID, nil
		}
	}
	return "", nil
}
