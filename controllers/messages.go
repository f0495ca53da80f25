package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"

	dbpkg "github.com/SalvaZapV2/salva-zap-official/db"
	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/tools"
)

func whatsAppClientFor(c *gin.Context, account *models.Account) (tools.WhatsAppClient, bool) {
	token, err := resolver.AccessToken(account)
	if err != nil {
		RespondError(c, "credencial da conta ilegível", http.StatusInternalServerError)
		return tools.WhatsAppClient{}, false
	}
	return tools.WhatsAppClient{
		AccessToken:   token,
		ApiVersion:    tools.DefaultApiVersion,
		PhoneNumberID: account.PhoneNumberID,
	}, true
}

func accountByID(c *gin.Context) (*gorm.DB, *models.Account, bool) {
	id, ok := ParamID(c, "id")
	if !ok {
		return nil, nil, false
	}
	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db não configurado no contexto", http.StatusInternalServerError)
		return nil, nil, false
	}
	var account models.Account
	if err := db.First(&account, id).Error; err != nil {
		RespondError(c, "conta não encontrada", http.StatusNotFound)
		return nil, nil, false
	}
	return db, &account, true
}

type sendMessageReq struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// POST /api/whatsapp/accounts/:id/messages
// Sends a text message and records the outbound Message; delivery status
// arrives later via webhook.
func SendMessage(c *gin.Context) {
	db, account, ok := accountByID(c)
	if !ok {
		return
	}
	if !account.MessagingEnabled || account.NeedsPhoneNumber {
		RespondError(c, "conta sem número de telefone habilitado para envio", http.StatusConflict)
		return
	}

	var req sendMessageReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	to, err := tools.NormalizeWhatsAppTo(req.To)
	if err != nil {
		RespondError(c, "telefone de destino inválido", http.StatusBadRequest)
		return
	}

	client, ok := whatsAppClientFor(c, account)
	if !ok {
		return
	}

	wamID, err := client.SendText(c.Request.Context(), to, req.Text)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}

	var conv models.Conversation
	err = db.Where("account_id = ? AND contact_number = ?", account.ID, to).First(&conv).Error
	if gorm.IsRecordNotFoundError(err) {
		conv = models.Conversation{AccountID: account.ID, ContactNumber: to}
		err = db.Create(&conv).Error
	}
	if err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	raw, _ := json.Marshal(gin.H{"to": to, "text": req.Text})
	msg := models.Message{
		ConversationID: conv.ID,
		AccountID:      account.ID,
		WamID:          wamID,
		Direction:      models.MESSAGE_DIRECTION_OUTBOUND,
		Status:         models.MESSAGE_STATUS_PENDING,
		Body:           strings.TrimSpace(req.Text),
		RawPayload:     string(raw),
	}
	if err := db.Create(&msg).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	_ = db.Model(&models.Conversation{}).Where("id = ?", conv.ID).
		Update("last_message_at", &now).Error

	RespondSuccess(c, msg)
}

type requestCodeReq struct {
	CodeMethod string `json:"code_method"` // SMS | VOICE
	Language   string `json:"language"`    // pt_BR
}

// POST /api/whatsapp/accounts/:id/phone/request-code
// Requests a verification code to the business phone number.
func PhoneRequestCode(c *gin.Context) {
	_, account, ok := accountByID(c)
	if !ok {
		return
	}
	if account.NeedsPhoneNumber {
		RespondError(c, "conta ainda não tem número de telefone", http.StatusConflict)
		return
	}

	var req requestCodeReq
	_ = c.Bind(&req) // optional body

	client, ok := whatsAppClientFor(c, account)
	if !ok {
		return
	}
	if err := client.RequestCode(c.Request.Context(), strings.TrimSpace(req.CodeMethod), strings.TrimSpace(req.Language)); err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}

	RespondSuccess(c, true)
}

type registerPhoneReq struct {
	Pin string `json:"pin" binding:"required"`
}

// POST /api/whatsapp/accounts/:id/phone/register
// Registers the phone in Cloud API with the PIN and enables messaging.
func PhoneRegister(c *gin.Context) {
	db, account, ok := accountByID(c)
	if !ok {
		return
	}

	var req registerPhoneReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	client, ok := whatsAppClientFor(c, account)
	if !ok {
		return
	}
	if err := client.Register(c.Request.Context(), strings.TrimSpace(req.Pin)); err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}

	if err := db.Model(&models.Account{}).Where("id = ?", account.ID).
		Update("messaging_enabled", true).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, true)
}
