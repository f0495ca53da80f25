package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbpkg "github.com/SalvaZapV2/salva-zap-official/db"
	"github.com/SalvaZapV2/salva-zap-official/models"
)

const testWebhookSecret = "segredo-de-teste"

func webhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("WEBHOOK_APP_SECRET", testWebhookSecret)

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.AutoMigrate(&models.WebhookEvent{})

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(db))
	r.GET("/webhooks/whatsapp", WebhookVerify)
	r.POST("/webhooks/whatsapp", WebhookUpdate)
	r.POST("/api/webhook-events/:id/replay", ReplayWebhookEvent)
	return r, db
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(r *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const webhookBody = `{"object":"whatsapp_business_account","entry":[{"id":"waba-1","changes":[{"field":"messages","value":{"messages":[{"from":"5511988887777","id":"wamid.1","type":"text","text":{"body":"oi"}}]}}]}]}`

func TestWebhookUpdatePersistsEvent(t *testing.T) {
	r, db := webhookRouter(t)

	w := postWebhook(r, webhookBody, signBody(testWebhookSecret, []byte(webhookBody)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())

	var ev models.WebhookEvent
	require.NoError(t, db.First(&ev).Error)
	assert.Equal(t, "waba-1", ev.WabaID)
	assert.Equal(t, models.WEBHOOK_EVENT_STATUS_RECEIVED, ev.Status)
	assert.Equal(t, webhookBody, ev.Payload)
	assert.Contains(t, ev.EventKey, "waba-1/")
}

func TestWebhookUpdateDedupsRedelivery(t *testing.T) {
	r, db := webhookRouter(t)
	sig := signBody(testWebhookSecret, []byte(webhookBody))

	require.Equal(t, http.StatusOK, postWebhook(r, webhookBody, sig).Code)
	require.Equal(t, http.StatusOK, postWebhook(r, webhookBody, sig).Code)

	var count int
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, 1, count)
}

func TestWebhookUpdateRejectsBadSignature(t *testing.T) {
	r, db := webhookRouter(t)

	w := postWebhook(r, webhookBody, signBody("outro-segredo", []byte(webhookBody)))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postWebhook(r, webhookBody, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var count int
	require.NoError(t, db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebhookVerifyHandshake(t *testing.T) {
	r, _ := webhookRouter(t)
	t.Setenv("WEBHOOK_VERIFY_TOKEN", "token-de-verificacao")

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=token-de-verificacao&hub.challenge=12345", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	req = httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=errado&hub.challenge=12345", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReplayResetsProcessedEvent(t *testing.T) {
	r, db := webhookRouter(t)

	ev := models.WebhookEvent{
		EventKey:  "waba-1/abc",
		WabaID:    "waba-1",
		Payload:   webhookBody,
		Status:    models.WEBHOOK_EVENT_STATUS_PROCESSED,
		Processed: true,
		Attempts:  models.WebhookEventMaxAttempts,
		LastError: "alguma falha",
	}
	require.NoError(t, db.Create(&ev).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook-events/1/replay", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.First(&ev, ev.ID).Error)
	assert.Equal(t, models.WEBHOOK_EVENT_STATUS_RECEIVED, ev.Status)
	assert.False(t, ev.Processed)
	assert.Zero(t, ev.Attempts)
	assert.Empty(t, ev.LastError)
	assert.Nil(t, ev.ScheduledAt)
}

func TestReplayRefusesUnfinishedEvent(t *testing.T) {
	r, db := webhookRouter(t)

	ev := models.WebhookEvent{
		EventKey: "waba-1/abc",
		WabaID:   "waba-1",
		Payload:  webhookBody,
		Status:   models.WEBHOOK_EVENT_STATUS_PROCESSING,
	}
	require.NoError(t, db.Create(&ev).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook-events/1/replay", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
