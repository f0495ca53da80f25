package signup

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

const (
	// ModeNew: the user is creating a brand new WABA through embedded
	// signup; finding no accessible account is expected mid-flow.
	ModeNew = "new"
	// ModeExisting: the user is connecting an account that should
	// already exist; failing to resolve one is a terminal error.
	ModeExisting = "existing"
)

// ConnectState rides the OAuth state parameter through the provider's
// redirect: it carries the local shop and the connection mode.
type ConnectState struct {
	ShopID int64  `json:"shop_id"`
	Mode   string `json:"mode"`
}

// Encode serializes the state as base64url JSON.
func (s ConnectState) Encode() string {
	b, _ := json.Marshal(s)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeConnectState parses the state parameter. Unknown modes fall back
// to ModeExisting, the conservative choice (it surfaces errors instead
// of silently sending users into account creation).
func DecodeConnectState(raw string) (ConnectState, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ConnectState{}, ErrInvalidState
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return ConnectState{}, ErrInvalidState
	}
	var s ConnectState
	if err := json.Unmarshal(b, &s); err != nil || s.ShopID <= 0 {
		return ConnectState{}, ErrInvalidState
	}
	if s.Mode != ModeNew && s.Mode != ModeExisting {
		s.Mode = ModeExisting
	}
	return s, nil
}
