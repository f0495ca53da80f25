package config

import (
	"encoding/json"
	"os"

	"github.com/sirupsen/logrus"
)

type Configuration struct {
	ApiPort string `json:"api_port"`
	LogPath string `json:"log_path"`

	Database string `json:"database"` // "sqlite3" ou "postgres"
	DbHost   string `json:"db_host"`
	DbPort   string `json:"db_port"`
	DbUser   string `json:"db_user"`
	DbName   string `json:"db_name"`
	DbPass   string `json:"db_pass"`

	// RedisAddr habilita o code store compartilhado entre instâncias.
	// Vazio = store em memória (apenas single-instance).
	RedisAddr string `json:"redis_addr"`

	Security struct {
		// TokenCipherSecret deriva a chave que protege os access tokens
		// armazenados.
		TokenCipherSecret string `json:"token_cipher_secret"`
	} `json:"security"`

	WhatsApp struct {
		AppID          string `json:"app_id"`
		AppSecret      string `json:"app_secret"`
		ApiVersion     string `json:"api_version"`
		RedirectURI    string `json:"redirect_uri"`
		SignupConfigID string `json:"signup_config_id"`
		// Scopes é configurável de propósito: o conjunto exigido pelo
		// provedor ainda muda entre versões da API.
		Scopes             []string `json:"scopes"`
		WebhookCallbackURL string   `json:"webhook_callback_url"`
		WebhookVerifyToken string   `json:"webhook_verify_token"`
	} `json:"whatsapp"`
}

func Get(path string) Configuration {
	b, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("config: leitura de %s: %v", path, err)
	}
	var c Configuration
	if err := json.Unmarshal(b, &c); err != nil {
		logrus.Fatalf("config: parse de %s: %v", path, err)
	}

	// defaults (pra evitar nil/zero chato)
	if c.ApiPort == "" {
		c.ApiPort = "8080"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/server.log"
	}
	if c.Database == "" {
		c.Database = "sqlite3"
	}
	if c.WhatsApp.ApiVersion == "" {
		c.WhatsApp.ApiVersion = "v24.0"
	}
	if len(c.WhatsApp.Scopes) == 0 {
		c.WhatsApp.Scopes = []string{
			"whatsapp_business_management",
			"whatsapp_business_messaging",
			"business_management",
		}
	}
	if c.Security.TokenCipherSecret == "" {
		c.Security.TokenCipherSecret = "CHANGE_ME"
	}

	// Env vence o arquivo para segredos.
	if v := os.Getenv("WHATSAPP_APP_ID"); v != "" {
		c.WhatsApp.AppID = v
	}
	if v := os.Getenv("WHATSAPP_APP_SECRET"); v != "" {
		c.WhatsApp.AppSecret = v
	}
	if v := os.Getenv("TOKEN_CIPHER_SECRET"); v != "" {
		c.Security.TokenCipherSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}

	return c
}
