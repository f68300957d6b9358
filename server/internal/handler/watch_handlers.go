package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navid-fn/minions/server/internal/service"
)

type WatchHandler struct {
	watchService *service.WatchService
}

func NewWatchHandler(service *service.WatchService) *WatchHandler {
	return &WatchHandler{watchService: service}
}

func (h *WatchHandler) List(c *gin.Context) {
	watches, err := h.watchService.GetWatches(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"watches": watches})
}

// Add and Remove only publish the command; the orchestrator applies it.
func (h *WatchHandler) Add(c *gin.Context) {
	cmd, err := h.watchService.AddWatch(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}

func (h *WatchHandler) Remove(c *gin.Context) {
	cmd, err := h.watchService.RemoveWatch(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, cmd)
}
