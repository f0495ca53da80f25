package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/tools"
)

type createTemplateReq struct {
	Name     string `json:"name" binding:"required"`
	Language string `json:"language"`
	Category string `json:"category"`
	Body     string `json:"body" binding:"required"`
}

// POST /api/whatsapp/accounts/:id/templates
// Submits a new message template for provider review and records it
// locally as pending. Approval/rejection arrives later via webhook.
func CreateTemplate(c *gin.Context) {
	db, account, ok := accountByID(c)
	if !ok {
		return
	}

	var req createTemplateReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	name := strings.ToLower(strings.TrimSpace(req.Name))
	if req.Language == "" {
		req.Language = "pt_BR"
	}
	if req.Category == "" {
		req.Category = "UTILITY"
	}

	var count int
	if err := db.Model(&models.Template{}).
		Where("account_id = ? AND name = ?", account.ID, name).
		Count(&count).Error; err == nil && count > 0 {
		RespondError(c, "já existe um template com esse nome", http.StatusConflict)
		return
	}

	token, err := resolver.AccessToken(account)
	if err != nil {
		RespondError(c, "credencial da conta ilegível", http.StatusInternalServerError)
		return
	}
	waba := tools.WabaClient{AccessToken: token, ApiVersion: tools.DefaultApiVersion, WabaID: account.WabaID}
	if _, err := waba.CreateTemplate(c.Request.Context(), name, req.Language, req.Category, req.Body); err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}

	now := time.Now()
	tpl := models.Template{
		AccountID: account.ID,
		Name:      name,
		Language:  req.Language,
		Category:  req.Category,
		Status:    models.TEMPLATE_STATUS_PENDING,
	}
	tpl.AppendHistory(models.TemplateHistoryEntry{Event: "SUBMITTED", EmittedAt: &now})
	if err := db.Create(&tpl).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, tpl)
}

// GET /api/whatsapp/accounts/:id/templates
func GetTemplates(c *gin.Context) {
	db, account, ok := accountByID(c)
	if !ok {
		return
	}

	var templates []models.Template
	if err := db.Where("account_id = ?", account.ID).
		Order("name asc").
		Find(&templates).Error; err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, templates)
}
