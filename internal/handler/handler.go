package handler

import (
	"context"
	"net/http"
	"time"

	"tokenadvisor/internal/domain"
	"tokenadvisor/internal/history"
	"tokenadvisor/internal/library"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// MarketStore is the price-history surface exposed over HTTP.
type MarketStore interface {
	Latest(ctx context.Context, token string) (*domain.PriceRecord, error)
	Range(ctx context.Context, token string, from, to time.Time) ([]domain.PriceRecord, error)
	Trend(ctx context.Context, token string) (history.TrendReport, error)
	MovingAverage(ctx context.Context, token string, window int) (history.MovingAverage, error)
}

// LibraryService is the strategy/knowledge surface exposed over HTTP.
type LibraryService interface {
	UpsertStrategy(ctx context.Context, entry domain.StrategyEntry) (domain.StrategyEntry, error)
	GetStrategy(ctx context.Context, owner, key string) (*domain.StrategyEntry, error)
	DeleteStrategy(ctx context.Context, owner, key string) error
	UpsertKnowledge(ctx context.Context, entry domain.KnowledgeEntry) (domain.KnowledgeEntry, error)
	GetKnowledge(ctx context.Context, owner, key string) (*domain.KnowledgeEntry, error)
	DeleteKnowledge(ctx context.Context, owner, key string) error
	Search(ctx context.Context, owner string, query domain.SearchQuery) (library.SearchResult, error)
	ImportDocument(ctx context.Context, owner, name string, raw []byte) domain.ImportResult
}

// Recommender produces the recommendation value object.
type Recommender interface {
	Recommend(ctx context.Context, owner, pair string) (domain.Recommendation, error)
}

type Handler struct {
	tracer       trace.Tracer
	market       MarketStore
	library      LibraryService
	advisor      Recommender
	defaultOwner string
}

func New(
	tracer trace.Tracer,
	market MarketStore,
	library LibraryService,
	advisor Recommender,
	defaultOwner string,
) *Handler {
	if defaultOwner == "" {
		defaultOwner = "default"
	}
	return &Handler{
		tracer:       tracer,
		market:       market,
		library:      library,
		advisor:      advisor,
		defaultOwner: defaultOwner,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	r.GET("/api/prices/:token", h.GetPriceRange)
	r.GET("/api/prices/:token/latest", h.GetLatestPrice)
	r.GET("/api/prices/:token/trend", h.GetTrend)

	r.POST("/api/strategies", h.UpsertStrategy)
	r.GET("/api/strategies/:key", h.GetStrategy)
	r.DELETE("/api/strategies/:key", h.DeleteStrategy)

	r.POST("/api/knowledge", h.UpsertKnowledge)
	r.GET("/api/knowledge/:key", h.GetKnowledge)
	r.DELETE("/api/knowledge/:key", h.DeleteKnowledge)

	r.GET("/api/library/search", h.SearchLibrary)
	r.POST("/api/library/import", h.ImportLibrary)

	r.GET("/api/recommendations/:pair", h.GetRecommendation)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// owner resolves the owner scope for a request.
func (h *Handler) owner(c *gin.Context) string {
	if owner := c.GetHeader("X-Owner"); owner != "" {
		return owner
	}
	return h.defaultOwner
}
