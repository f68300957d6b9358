package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/service"
)

type MarketHandler struct {
	marketService *service.MarketService
}

func NewMarketHandler(service *service.MarketService) *MarketHandler {
	return &MarketHandler{marketService: service}
}

func (h *MarketHandler) GetRecent(c *gin.Context) {
	records, err := h.marketService.GetRecent(c.Request.Context(), c.Param("symbol"), c.Query("interval"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *MarketHandler) GetExtrema(c *gin.Context) {
	extrema, err := h.marketService.GetExtrema(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, extrema)
}
