package router

import (
	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/handler"
)

func registerTradeRoutes(router *gin.RouterGroup, tradeHandler *handler.TradeHandler) {
	trades := router.Group("/trades")
	{
		trades.GET("/latest", tradeHandler.GetLatest)
		trades.GET("/count", tradeHandler.GetCount)
	}
	router.GET("/klines/:symbol", tradeHandler.GetLatestKlines)
}

func registerWatchRoutes(router *gin.RouterGroup, watchHandler *handler.WatchHandler) {
	watches := router.Group("/watches")
	{
		watches.GET("", watchHandler.List)
		watches.POST("/:symbol", watchHandler.Add)
		watches.DELETE("/:symbol", watchHandler.Remove)
	}
}

func registerMarketRoutes(router *gin.RouterGroup, marketHandler *handler.MarketHandler) {
	router.GET("/recent/:symbol", marketHandler.GetRecent)
	router.GET("/extrema/:symbol", marketHandler.GetExtrema)
}
