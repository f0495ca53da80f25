package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"

	dbpkg "github.com/SalvaZapV2/salva-zap-official/db"
	"github.com/SalvaZapV2/salva-zap-official/models"
)

// webhookEnvelope is the minimal shape the receiver needs: the entry
// identity. Business interpretation of the payload belongs to the
// processor, never to the receiver.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID string `json:"id"`
	} `json:"entry"`
}

// verifyMetaSignature validates the request body against Meta's signature header.
//
// WhatsApp/Graph Webhooks typically send: X-Hub-Signature-256: sha256=<hex>
// The secret should be your Meta App Secret (NOT the WhatsApp access token).
func verifyMetaSignature(c *gin.Context, rawBody []byte) (bool, string) {
	// Prefer a dedicated env var for webhook signature secret.
	// Keep multiple names for ops convenience.
	secret := strings.TrimSpace(os.Getenv("WEBHOOK_APP_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("WHATSAPP_APP_SECRET"))
	}
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("META_APP_SECRET"))
	}
	if secret == "" {
		return false, "missing WEBHOOK_APP_SECRET/WHATSAPP_APP_SECRET/META_APP_SECRET"
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		// Some products also send X-Hub-Signature (sha1), but we enforce sha256.
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	providedHex := strings.TrimPrefix(sig, "sha256=")
	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return false, "signature mismatch"
	}

	return true, ""
}

// GET /webhooks/whatsapp
// Provider verification handshake (hub.mode/hub.verify_token/hub.challenge).
func WebhookVerify(c *gin.Context) {
	verifyToken := os.Getenv("WEBHOOK_VERIFY_TOKEN")
	if verifyToken == "" {
		RespondError(c, "WEBHOOK_VERIFY_TOKEN not set", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) == 1 && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}

	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /webhooks/whatsapp
// Receives one provider callback: validates, dedups by event identity
// and persists the durable WebhookEvent row the worker consumes. No
// business logic happens here.
func WebhookUpdate(c *gin.Context) {
	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db não configurado no contexto", http.StatusInternalServerError)
		return
	}

	// Read raw body once so we can validate Meta signature.
	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	if ok, reason := verifyMetaSignature(c, raw); !ok {
		RespondError(c, "forbidden: "+reason, http.StatusForbidden)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}
	if len(envelope.Entry) == 0 {
		// Nothing to do, but the provider still expects a 200.
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	wabaID := strings.TrimSpace(envelope.Entry[0].ID)
	key := dedupKey(wabaID, raw)

	ev := models.WebhookEvent{
		EventKey: key,
		WabaID:   wabaID,
		Payload:  string(raw),
		Status:   models.WEBHOOK_EVENT_STATUS_RECEIVED,
	}
	if err := db.Create(&ev).Error; err != nil {
		if isDuplicateEvent(db, key) {
			// Redelivery of something we already have; acknowledge it so
			// the provider stops resending.
			c.String(http.StatusOK, "EVENT_RECEIVED")
			return
		}
		logrus.Errorf("webhook receiver: persistência do evento falhou: %v", err)
		RespondError(c, "internal error", http.StatusInternalServerError)
		return
	}

	// The row is the enqueue: the worker polls for received events. A
	// crash after this point loses nothing.
	c.String(http.StatusOK, "EVENT_RECEIVED")
}

// dedupKey identifies one callback: the entry id plus a structural hash
// of the raw body. The entry id alone is just the WABA id, so the hash
// carries the per-event identity.
func dedupKey(entryID string, raw []byte) string {
	sum := sha256.Sum256(raw)
	if entryID == "" {
		return hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%s/%s", entryID, hex.EncodeToString(sum[:16]))
}

func isDuplicateEvent(db *gorm.DB, key string) bool {
	var count int
	if err := db.Model(&models.WebhookEvent{}).Where("event_key = ?", key).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// POST /api/webhook-events/:id/replay
// Operator re-drive: moves a processed event back to received so the
// worker picks it up again with a fresh retry budget.
func ReplayWebhookEvent(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db não configurado no contexto", http.StatusInternalServerError)
		return
	}

	var ev models.WebhookEvent
	if err := db.First(&ev, id).Error; err != nil {
		RespondError(c, "evento não encontrado", http.StatusNotFound)
		return
	}
	if ev.Status != models.WEBHOOK_EVENT_STATUS_PROCESSED {
		RespondError(c, "evento ainda não finalizado", http.StatusConflict)
		return
	}

	if err := db.Model(&models.WebhookEvent{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":       models.WEBHOOK_EVENT_STATUS_RECEIVED,
		"processed":    false,
		"attempts":     0,
		"last_error":   "",
		"scheduled_at": nil,
		"processed_at": nil,
	}).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, true)
}
