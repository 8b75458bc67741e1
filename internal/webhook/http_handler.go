package webhook

import (
	"io"
	"net/http"

	"campaign-dialer/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler is the gin entry point for dialer lifecycle events.
//
// No business logic here: validate the payload shape, hand it to the
// ingester, acknowledge. The provider retries on non-2xx, so persistent
// ingest failures surface as 500s and come back around.
type Handler struct {
	Ingester *Ingester
}

func (h Handler) HandleEvent(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Ingester == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingester not configured"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := ParseEvent(body)
	if err != nil {
		log.Warn("dialer event rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Ingester.Ingest(c.Request.Context(), ev); err != nil {
		log.Error("dialer event ingest failed", "event", ev.Type, "call_id", ev.Call.CallID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
