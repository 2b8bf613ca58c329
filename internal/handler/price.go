package handler

import (
	"net/http"
	"strings"
	"time"

	"tokenadvisor/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const defaultRangeLookback = 24 * time.Hour

func (h *Handler) GetLatestPrice(c *gin.Context) {
	if h.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-price")
	defer span.End()

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	span.SetAttributes(attribute.String("token", token))

	record, err := h.market.Latest(ctx, token)
	if err != nil {
		if domain.IsNoData(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "no_data"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": record})
}

func (h *Handler) GetPriceRange(c *gin.Context) {
	if h.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-price-range")
	defer span.End()

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	to := time.Now().UTC()
	from := to.Add(-defaultRangeLookback)
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		to = t
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not precede from"})
		return
	}

	records, err := h.market.Range(ctx, token, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "records": records})
}

func (h *Handler) GetTrend(c *gin.Context) {
	if h.market == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "market data unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trend")
	defer span.End()

	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	report, err := h.market.Trend(ctx, token)
	if err != nil {
		if domain.IsNoData(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": "no_data"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "trend": report})
}
