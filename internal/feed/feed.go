// Package feed is the ingestion boundary for trade ticks. The upstream
// market-data pipeline posts batches here; everything downstream of this
// handler is the engine's evaluation path.
package feed

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/trigger-engine/internal/engine"
	"github.com/ksred/trigger-engine/internal/types"
	"github.com/ksred/trigger-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for tick ingestion
type GinHandlers struct {
	engine *engine.Engine
}

func NewGinHandlers(eng *engine.Engine) *GinHandlers {
	return &GinHandlers{engine: eng}
}

// IngestHandler handles POST requests carrying a batch of trade ticks.
// Delivery upstream is at-least-once, so replays are expected and safe.
func (h *GinHandlers) IngestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ticks []types.TradeTick
		if err := c.ShouldBindJSON(&ticks); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		h.engine.HandleTicks(c.Request.Context(), ticks)
		response.Success(c, gin.H{"accepted": len(ticks)})
	}
}
