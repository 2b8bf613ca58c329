package handler

import (
	"net/http"
	"strings"

	"tokenadvisor/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

func (h *Handler) GetRecommendation(c *gin.Context) {
	if h.advisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "advisor unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-recommendation")
	defer span.End()

	pair := strings.TrimSpace(c.Param("pair"))
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair is required"})
		return
	}
	span.SetAttributes(attribute.String("pair", pair))

	rec, err := h.advisor.Recommend(ctx, h.owner(c), pair)
	if err != nil {
		if domain.IsNoData(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "no_data"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendation": rec})
}
