package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/service"
)

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// serviceError maps service failures onto status codes.
func serviceError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrInvalidSymbol) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	internalError(c, err)
}
