package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Respostas padronizadas da API: erro sempre em {"error": ...},
// sucesso devolve o payload direto.

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
