package router

import (
	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/handler"
)

type Config struct {
	TradeHandler  *handler.TradeHandler
	WatchHandler  *handler.WatchHandler
	MarketHandler *handler.MarketHandler
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/v1/")
	registerTradeRoutes(api, cfg.TradeHandler)
	registerWatchRoutes(api, cfg.WatchHandler)
	registerMarketRoutes(api, cfg.MarketHandler)

	return router
}
