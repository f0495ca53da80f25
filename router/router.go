package router

import (
	"github.com/gin-gonic/gin"

	"github.com/SalvaZapV2/salva-zap-official/config"
	"github.com/SalvaZapV2/salva-zap-official/controllers"
	"github.com/SalvaZapV2/salva-zap-official/middleware"
)

// Initialize wires all routes and middlewares. Authentication/session
// handling for the /api group is an external collaborator and is plugged
// in front of this router in deployments.
func Initialize(r *gin.Engine, cfg config.Configuration) {
	_ = cfg

	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())

	// Provider webhook endpoint: verification handshake + event intake.
	// Unauthenticated at the transport layer; protected by the Meta
	// signature check inside the handler.
	r.GET("/webhooks/whatsapp", controllers.WebhookVerify)
	r.POST("/webhooks/whatsapp", controllers.WebhookUpdate)

	api := r.Group("/api")

	// Embedded signup / connection flow
	api.GET("/whatsapp/connect/start", Logger(), controllers.ConnectStart)
	api.GET("/whatsapp/connect/callback", Logger(), controllers.ConnectCallback)

	// Connected account management
	api.POST("/whatsapp/accounts/:id/resubscribe", Logger(), controllers.ResubscribeAccount)
	api.DELETE("/whatsapp/accounts/:id", Logger(), controllers.DisconnectAccount)
	api.POST("/whatsapp/accounts/:id/phone/request-code", Logger(), controllers.PhoneRequestCode)
	api.POST("/whatsapp/accounts/:id/phone/register", Logger(), controllers.PhoneRegister)

	// Messaging
	api.POST("/whatsapp/accounts/:id/messages", Logger(), controllers.SendMessage)

	// Templates
	api.POST("/whatsapp/accounts/:id/templates", Logger(), controllers.CreateTemplate)
	api.GET("/whatsapp/accounts/:id/templates", Logger(), controllers.GetTemplates)

	// Operator tooling
	api.POST("/webhook-events/:id/replay", Logger(), controllers.ReplayWebhookEvent)
}
