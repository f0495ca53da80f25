package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/accounts"
	"github.com/SalvaZapV2/salva-zap-official/config"
	"github.com/SalvaZapV2/salva-zap-official/controllers"
	dbpkg "github.com/SalvaZapV2/salva-zap-official/db"
	"github.com/SalvaZapV2/salva-zap-official/router"
	"github.com/SalvaZapV2/salva-zap-official/signup"
	"github.com/SalvaZapV2/salva-zap-official/tools"
	"github.com/SalvaZapV2/salva-zap-official/workers"
)

// =====================
// ENV esperadas
// =====================
//
// Server
// - CONFIG_PATH                   (default: config/config.json)
// - WEBHOOK_VERIFY_TOKEN          (string configurada no painel do provedor; gerada se ausente)
// - WEBHOOK_APP_SECRET            (App Secret para validar X-Hub-Signature-256)
//
// WhatsApp / Meta
// - WHATSAPP_APP_ID
// - WHATSAPP_APP_SECRET
//
// Infra
// - REDIS_ADDR                    (habilita o code store compartilhado)
// - TOKEN_CIPHER_SECRET           (chave dos tokens em repouso)
// - AUTOMIGRATE=1                 (dev)
//
// =====================

func main() {
	// .env é opcional; em produção as vars vêm do ambiente.
	_ = godotenv.Load()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configPath := getenv("CONFIG_PATH", "config/config.json")
	cfg := config.Get(configPath)

	if os.Getenv("WEBHOOK_VERIFY_TOKEN") == "" {
		token := cfg.WhatsApp.WebhookVerifyToken
		if token == "" {
			// Conveniência de dev: sem token configurado, gera um por boot.
			token = uuid.NewString()
			logrus.Warnf("WEBHOOK_VERIFY_TOKEN ausente; usando token gerado %s", token)
		}
		_ = os.Setenv("WEBHOOK_VERIFY_TOKEN", token)
	}

	dbpkg.SetConfigurations(cfg)
	database, err := dbpkg.Connect()
	if err != nil {
		logrus.Fatalf("falha ao conectar no banco: %v", err)
	}
	defer database.Close()

	cipher, err := tools.NewTokenCipher(cfg.Security.TokenCipherSecret)
	if err != nil {
		logrus.Fatalf("token cipher: %v", err)
	}

	appClient := tools.AppClient{
		AppID:      cfg.WhatsApp.AppID,
		AppSecret:  cfg.WhatsApp.AppSecret,
		ApiVersion: cfg.WhatsApp.ApiVersion,
	}

	var codes signup.CodeStore = signup.NewMemoryCodeStore()
	if cfg.RedisAddr != "" {
		codes = signup.NewRedisCodeStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
		logrus.Infof("signup: code store compartilhado via redis em %s", cfg.RedisAddr)
	}

	negotiator := &signup.Negotiator{
		App:         appClient,
		Codes:       codes,
		RedirectURI: cfg.WhatsApp.RedirectURI,
		ConfigID:    cfg.WhatsApp.SignupConfigID,
		Scopes:      cfg.WhatsApp.Scopes,
	}
	registrar := &signup.Registrar{
		App:         appClient,
		DB:          database,
		CallbackURL: cfg.WhatsApp.WebhookCallbackURL,
		VerifyToken: os.Getenv("WEBHOOK_VERIFY_TOKEN"),
	}
	resolver := &accounts.Resolver{
		DB:        database,
		Cipher:    cipher,
		Registrar: registrar,
	}
	controllers.SetConnectionDeps(negotiator, resolver, registrar)

	workers.StartEventProcessor(database)

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(database))
	router.Initialize(r, cfg)

	logrus.Infof("SalvaZap escutando em :%s", cfg.ApiPort)
	if err := r.Run(":" + cfg.ApiPort); err != nil {
		logrus.Fatal(err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
