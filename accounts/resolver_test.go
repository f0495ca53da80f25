package accounts

import (
	"testing"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/tools"
)

func testResolver(t *testing.T) (*Resolver, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(
		&models.Account{},
		&models.Conversation{},
		&models.Message{},
		&models.Template{},
	)

	cipher, err := tools.NewTokenCipher("test-secret")
	require.NoError(t, err)

	return &Resolver{DB: db, Cipher: cipher}, db
}

func TestUpsertCreatesAccountWithEncryptedToken(t *testing.T) {
	r, db := testResolver(t)

	expires := time.Now().Add(60 * 24 * time.Hour)
	account, err := r.Upsert(UpsertParams{
		ShopID:         1,
		WabaID:         "waba-1",
		BusinessID:     "biz-1",
		PhoneNumberID:  "phone-1",
		DisplayNumber:  "+55 11 91234-5678",
		AccessToken:    "plain-token",
		TokenExpiresAt: &expires,
	})
	require.NoError(t, err)

	assert.NotEqual(t, "plain-token", account.AccessToken)
	plain, err := r.AccessToken(account)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", plain)

	assert.False(t, account.NeedsPhoneNumber)
	assert.True(t, account.MessagingEnabled)

	var count int
	require.NoError(t, db.Model(&models.Account{}).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestUpsertReconnectUpdatesInsteadOfDuplicating(t *testing.T) {
	r, db := testResolver(t)

	first, err := r.Upsert(UpsertParams{ShopID: 1, WabaID: "waba-1", AccessToken: "old-token"})
	require.NoError(t, err)

	second, err := r.Upsert(UpsertParams{
		ShopID:        2,
		WabaID:        "waba-1",
		PhoneNumberID: "phone-9",
		DisplayNumber: "+55 21 99999-0000",
		AccessToken:   "new-token",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(2), second.ShopID)
	assert.Equal(t, "phone-9", second.PhoneNumberID)

	plain, err := r.AccessToken(second)
	require.NoError(t, err)
	assert.Equal(t, "new-token", plain)

	var count int
	require.NoError(t, db.Model(&models.Account{}).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestUpsertWithoutPhoneConnectsAsMessagingLimited(t *testing.T) {
	r, _ := testResolver(t)

	account, err := r.Upsert(UpsertParams{ShopID: 1, WabaID: "waba-1", AccessToken: "tok"})
	require.NoError(t, err)

	assert.True(t, account.NeedsPhoneNumber)
	assert.False(t, account.MessagingEnabled)
	assert.Equal(t, models.NO_PHONE_NUMBER_PLACEHOLDER, account.DisplayNumber)
}

func TestSaveCredentialRefusesStaleToken(t *testing.T) {
	r, db := testResolver(t)

	fresh := time.Now().Add(48 * time.Hour)
	account, err := r.Upsert(UpsertParams{ShopID: 1, WabaID: "waba-1", AccessToken: "fresh-token", TokenExpiresAt: &fresh})
	require.NoError(t, err)

	stale := time.Now().Add(1 * time.Hour)
	require.NoError(t, r.SaveCredential(account.ID, "stale-token", &stale))

	var reread models.Account
	require.NoError(t, db.First(&reread, account.ID).Error)
	plain, err := r.AccessToken(&reread)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", plain)

	later := time.Now().Add(90 * 24 * time.Hour)
	require.NoError(t, r.SaveCredential(account.ID, "renewed-token", &later))
	require.NoError(t, db.First(&reread, account.ID).Error)
	plain, err = r.AccessToken(&reread)
	require.NoError(t, err)
	assert.Equal(t, "renewed-token", plain)
}

func TestDisconnectRemovesDependents(t *testing.T) {
	r, db := testResolver(t)

	account, err := r.Upsert(UpsertParams{ShopID: 1, WabaID: "waba-1", AccessToken: "tok"})
	require.NoError(t, err)

	conv := models.Conversation{AccountID: account.ID, ContactNumber: "5511999990000"}
	require.NoError(t, db.Create(&conv).Error)
	require.NoError(t, db.Create(&models.Message{
		ConversationID: conv.ID, AccountID: account.ID, WamID: "wam-1",
		Direction: models.MESSAGE_DIRECTION_INBOUND, Status: models.MESSAGE_STATUS_DELIVERED,
	}).Error)
	require.NoError(t, db.Create(&models.Template{AccountID: account.ID, Name: "promo"}).Error)

	require.NoError(t, r.Disconnect(account.ID))

	for _, probe := range []struct {
		name  string
		model any
	}{
		{"accounts", &models.Account{}},
		{"conversations", &models.Conversation{}},
		{"messages", &models.Message{}},
		{"templates", &models.Template{}},
	} {
		var count int
		require.NoError(t, db.Model(probe.model).Count(&count).Error)
		assert.Zero(t, count, probe.name)
	}
}
