package signup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/models"
	"github.com/SalvaZapV2/salva-zap-official/tools"
)

// Registrar subscribes a freshly connected WABA to webhook delivery.
// Two independent sub-steps: the app-level subscription (app secret
// pair) and the WABA-level subscribed_apps call (user token); either may
// fail without aborting the other.
type Registrar struct {
	App         tools.AppClient
	DB          *gorm.DB
	CallbackURL string
	VerifyToken string
}

// Register runs both subscription steps and flips the account's
// webhook-verified flag on WABA-level success. Synchronous callers get
// the combined failure; use RegisterAsync after a connection so a
// subscription hiccup never fails an already-successful connect.
func (r *Registrar) Register(ctx context.Context, wabaID, accessToken string) error {
	var appErr, wabaErr error

	if appErr = r.App.RegisterSubscription(ctx, r.CallbackURL, r.VerifyToken); appErr != nil {
		logrus.Errorf("registrar: assinatura app-level falhou: %v", appErr)
		appErr = fmt.Errorf("assinatura app-level: %w", appErr)
	}

	waba := tools.WabaClient{AccessToken: accessToken, ApiVersion: r.App.ApiVersion, BaseURL: r.App.BaseURL, WabaID: wabaID}
	if wabaErr = waba.SubscribeApp(ctx); wabaErr != nil {
		logrus.Errorf("registrar: subscribed_apps da waba %s falhou: %v", wabaID, wabaErr)
		wabaErr = fmt.Errorf("assinatura da waba: %w", wabaErr)
	} else if r.DB != nil {
		if err := r.DB.Model(&models.Account{}).
			Where("waba_id = ?", wabaID).
			Update("webhook_verified", true).Error; err != nil {
			logrus.Errorf("registrar: não foi possível marcar webhook_verified da waba %s: %v", wabaID, err)
		}
	}

	return errors.Join(appErr, wabaErr)
}

// RegisterAsync fires Register on a detached goroutine with its own
// timeout. Failure is only ever logged; there is no caller-visible error
// channel because the connection already succeeded.
func (r *Registrar) RegisterAsync(wabaID, accessToken string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := r.Register(ctx, wabaID, accessToken); err != nil {
			logrus.Errorf("registrar: registro assíncrono da waba %s falhou: %v", wabaID, err)
		}
	}()
}
