package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/service"
)

type TradeHandler struct {
	tradeService *service.TradesService
}

func NewTradeHandler(service *service.TradesService) *TradeHandler {
	return &TradeHandler{
		tradeService: service,
	}
}

func (h *TradeHandler) GetLatest(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	trades, err := h.tradeService.GetLatestTrades(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (h *TradeHandler) GetCount(c *gin.Context) {
	symbol := c.Query("symbol")
	count, err := h.tradeService.GetCountTrades(c.Request.Context(), symbol)
	if err != nil {
		internalError(c, err)
		return
	}
	if symbol != "" {
		c.JSON(http.StatusOK, gin.H{service.NormalizeSymbol(symbol): count})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *TradeHandler) GetLatestKlines(c *gin.Context) {
	interval := c.Query("interval")
	if interval == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval is required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	klines, err := h.tradeService.GetLatestKlines(c.Request.Context(), c.Param("symbol"), interval, limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, klines)
}
