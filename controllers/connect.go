package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/accounts"
	dbpkg "github.com/SalvaZapV2/salva-zap-official/db"
	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/signup"
)

var (
	negotiator *signup.Negotiator
	resolver   *accounts.Resolver
	registrar  *signup.Registrar
)

// SetConnectionDeps wires the signup collaborators; called once from the
// router setup.
func SetConnectionDeps(n *signup.Negotiator, r *accounts.Resolver, reg *signup.Registrar) {
	negotiator = n
	resolver = r
	registrar = reg
}

// GET /api/whatsapp/connect/start?shop_id=&mode=
// Hands the frontend a fresh embedded-signup URL carrying the state.
func ConnectStart(c *gin.Context) {
	shopID, ok := QueryID(c, "shop_id")
	if !ok {
		return
	}
	mode := c.Query("mode")
	if mode != signup.ModeNew {
		mode = signup.ModeExisting
	}

	st := signup.ConnectState{ShopID: shopID, Mode: mode}
	RespondSuccess(c, gin.H{"signup_url": negotiator.SignupURL(st)})
}

// GET /api/whatsapp/connect/callback?code=&state=
// The provider redirect target: negotiates the code, resolves the WABA
// and upserts the local Account.
func ConnectCallback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")

	ctx := c.Request.Context()
	res, err := negotiator.Negotiate(ctx, code, state)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, signup.ErrCodeAlreadyUsed),
			errors.Is(err, signup.ErrInvalidState):
			status = http.StatusBadRequest
		case errors.Is(err, signup.ErrAccountNotDirectlyAccessible):
			status = http.StatusForbidden
		}
		logrus.Warnf("connect: negociação falhou: %v", err)
		RespondError(c, err.Error(), status)
		return
	}

	if res.NeedsSignup {
		// Not a failure: the user still has to finish creating the
		// account on the provider side.
		RespondSuccess(c, gin.H{
			"status":     "needs_further_signup",
			"signup_url": res.SignupURL,
		})
		return
	}

	account, err := resolver.Upsert(accounts.ParamsFromNegotiation(res))
	if err != nil {
		// The code was consumed but nothing was persisted; release it so
		// the user can retry the whole flow.
		negotiator.ReleaseCode(ctx, code)
		logrus.Errorf("connect: persistência da conta falhou: %v", err)
		RespondError(c, "falha ao salvar a conta conectada; tente novamente", http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, gin.H{
		"status":  "connected",
		"account": account,
	})
}

// POST /api/whatsapp/accounts/:id/resubscribe
// Explicit re-registration of the webhook subscriptions. Unlike the
// fire-and-forget path after a connection, failures propagate here.
func ResubscribeAccount(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db não configurado no contexto", http.StatusInternalServerError)
		return
	}

	var account models.Account
	if err := db.First(&account, id).Error; err != nil {
		RespondError(c, "conta não encontrada", http.StatusNotFound)
		return
	}

	token, err := resolver.AccessToken(&account)
	if err != nil {
		RespondError(c, "credencial da conta ilegível", http.StatusInternalServerError)
		return
	}

	if err := registrar.Register(c.Request.Context(), account.WabaID, token); err != nil {
		RespondError(c, err.Error(), http.StatusBadGateway)
		return
	}

	RespondSuccess(c, true)
}

// DELETE /api/whatsapp/accounts/:id
// Explicit disconnect: removes the account and its conversations,
// messages and templates.
func DisconnectAccount(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	if err := resolver.Disconnect(id); err != nil {
		RespondError(c, err.Error(), http.StatusInternalServerError)
		return
	}

	RespondSuccess(c, true)
}
