package accounts

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/signup"
	"github.com/SalvaZapV2/salva-zap-official/tools"
)

// Resolver maps a negotiated provider account onto the local Account row
// and owns credential storage. Tokens pass through the cipher before
// they touch the database and are only decrypted transiently for
// outbound calls.
type Resolver struct {
	DB        *gorm.DB
	Cipher    *tools.TokenCipher
	Registrar *signup.Registrar
}

// UpsertParams carries everything a negotiation discovered.
type UpsertParams struct {
	ShopID         int64
	WabaID         string
	BusinessID     string
	PhoneNumberID  string
	DisplayNumber  string
	AccessToken    string // plaintext; encrypted here
	TokenExpiresAt *time.Time
}

// ParamsFromNegotiation maps a signup result onto upsert params.
func ParamsFromNegotiation(res *signup.Result) UpsertParams {
	p := UpsertParams{
		ShopID:         res.ShopID,
		WabaID:         res.WabaID,
		BusinessID:     res.BusinessID,
		AccessToken:    res.AccessToken,
		TokenExpiresAt: res.TokenExpiresAt,
	}
	if res.Phone != nil {
		p.PhoneNumberID = res.Phone.ID
		p.DisplayNumber = res.Phone.DisplayPhoneNumber
	}
	return p
}

// Upsert finds the Account by WABA id and updates it in place, or
// creates it. Reconnecting an account refreshes stale data instead of
// duplicating the row. After a successful upsert the webhook registrar
// fires asynchronously; its failure never reaches the caller.
func (r *Resolver) Upsert(p UpsertParams) (*models.Account, error) {
	if strings.TrimSpace(p.WabaID) == "" {
		return nil, fmt.Errorf("accounts: waba_id vazio")
	}

	ciphertext, err := r.Cipher.Encrypt(p.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("accounts: criptografia do token: %w", err)
	}

	display := tools.FormatDisplayNumber(p.DisplayNumber)
	needsPhone := strings.TrimSpace(p.PhoneNumberID) == ""
	if needsPhone {
		display = models.NO_PHONE_NUMBER_PLACEHOLDER
	}

	var account models.Account
	err = r.DB.Where("waba_id = ?", p.WabaID).First(&account).Error
	switch {
	case gorm.IsRecordNotFoundError(err):
		account = models.Account{
			ShopID:           p.ShopID,
			WabaID:           p.WabaID,
			BusinessID:       p.BusinessID,
			PhoneNumberID:    p.PhoneNumberID,
			DisplayNumber:    display,
			AccessToken:      ciphertext,
			TokenExpiresAt:   p.TokenExpiresAt,
			NeedsPhoneNumber: needsPhone,
			MessagingEnabled: !needsPhone,
		}
		if err := r.DB.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("accounts: criação da conta: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("accounts: busca da conta: %w", err)
	default:
		updates := map[string]any{
			"shop_id":            p.ShopID,
			"business_id":        p.BusinessID,
			"phone_number_id":    p.PhoneNumberID,
			"display_number":     display,
			"access_token":       ciphertext,
			"token_expires_at":   p.TokenExpiresAt,
			"needs_phone_number": needsPhone,
			"messaging_enabled":  !needsPhone,
		}
		if err := r.DB.Model(&models.Account{}).Where("id = ?", account.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("accounts: atualização da conta: %w", err)
		}
		if err := r.DB.First(&account, account.ID).Error; err != nil {
			return nil, err
		}
	}

	if r.Registrar != nil {
		r.Registrar.RegisterAsync(account.WabaID, p.AccessToken)
	}

	return &account, nil
}

// AccessToken decrypts the stored credential for an outbound call.
func (r *Resolver) AccessToken(account *models.Account) (string, error) {
	return r.Cipher.Decrypt(account.AccessToken)
}

// SaveCredential stores a refreshed token. It re-reads the row first and
// refuses to replace a credential whose recorded expiry is later than
// the new one, so a slow refresher can't clobber a fresher token.
func (r *Resolver) SaveCredential(accountID int64, token string, expiresAt *time.Time) error {
	var current models.Account
	if err := r.DB.First(&current, accountID).Error; err != nil {
		return err
	}
	if current.TokenExpiresAt != nil && expiresAt != nil && current.TokenExpiresAt.After(*expiresAt) {
		logrus.Warnf("accounts: refresh da conta %d descartado, token armazenado expira depois", accountID)
		return nil
	}
	ciphertext, err := r.Cipher.Encrypt(token)
	if err != nil {
		return err
	}
	return r.DB.Model(&models.Account{}).Where("id = ?", accountID).Updates(map[string]any{
		"access_token":     ciphertext,
		"token_expires_at": expiresAt,
	}).Error
}

// Disconnect removes the account and everything hanging off it.
// WebhookEvent rows stay: they are the audit trail.
func (r *Resolver) Disconnect(accountID int64) error {
	tx := r.DB.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	for _, del := range []error{
		tx.Where("account_id = ?", accountID).Delete(&models.Message{}).Error,
		tx.Where("account_id = ?", accountID).Delete(&models.Conversation{}).Error,
		tx.Where("account_id = ?", accountID).Delete(&models.Template{}).Error,
		tx.Where("id = ?", accountID).Delete(&models.Account{}).Error,
	} {
		if del != nil {
			tx.Rollback()
			return del
		}
	}
	return tx.Commit().Error
}
