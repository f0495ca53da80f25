package models

import "time"

/************************************************
/**** MARK: ACCOUNT ****/
/************************************************/

const NO_PHONE_NUMBER_PLACEHOLDER = "sem número"

// Account is one connected WhatsApp Business account (WABA).
// There is exactly one row per WabaID across all shops: reconnecting the
// same WABA updates the existing row instead of creating a second one.
type Account struct {
	ID             int64  `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	ShopID         int64  `gorm:"not null;index" json:"shop_id"`
	WabaID         string `gorm:"not null;unique_index" json:"waba_id"`
	BusinessID     string `gorm:"default:''" json:"business_id"`
	PhoneNumberID  string `gorm:"default:''" json:"phone_number_id"`
	DisplayNumber  string `gorm:"default:''" json:"display_number"`
	// AccessToken holds the ciphertext produced by tools.TokenCipher.
	// Plaintext tokens are never stored or logged.
	AccessToken      string     `gorm:"type:text" json:"-"`
	TokenExpiresAt   *time.Time `json:"token_expires_at"`
	WebhookVerified  bool       `gorm:"default:false" json:"webhook_verified"`
	MessagingEnabled bool       `gorm:"default:false" json:"messaging_enabled"`
	NeedsPhoneNumber bool       `gorm:"default:false" json:"needs_phone_number"`
	CreatedAt        *time.Time `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
}
