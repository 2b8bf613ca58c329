package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"tokenadvisor/internal/domain"

	"github.com/gin-gonic/gin"
)

const maxImportDocumentBytes = 256 << 10

func (h *Handler) UpsertStrategy(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.upsert-strategy")
	defer span.End()

	var entry domain.StrategyEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy payload: " + err.Error()})
		return
	}
	entry.Owner = h.owner(c)

	stored, err := h.library.UpsertStrategy(ctx, entry)
	if err != nil {
		var invalid *domain.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": stored})
}

func (h *Handler) GetStrategy(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-strategy")
	defer span.End()

	entry, err := h.library.GetStrategy(ctx, h.owner(c), c.Param("key"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategy": entry})
}

func (h *Handler) DeleteStrategy(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-strategy")
	defer span.End()

	if err := h.library.DeleteStrategy(ctx, h.owner(c), c.Param("key")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) UpsertKnowledge(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.upsert-knowledge")
	defer span.End()

	var entry domain.KnowledgeEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid knowledge payload: " + err.Error()})
		return
	}
	entry.Owner = h.owner(c)

	stored, err := h.library.UpsertKnowledge(ctx, entry)
	if err != nil {
		var invalid *domain.ValidationError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge": stored})
}

func (h *Handler) GetKnowledge(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-knowledge")
	defer span.End()

	entry, err := h.library.GetKnowledge(ctx, h.owner(c), c.Param("key"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "knowledge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledge": entry})
}

func (h *Handler) DeleteKnowledge(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.delete-knowledge")
	defer span.End()

	if err := h.library.DeleteKnowledge(ctx, h.owner(c), c.Param("key")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "knowledge not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SearchLibrary runs a tag/text query. Tags are comma separated and use
// AND semantics: every listed tag must be present on a match.
func (h *Handler) SearchLibrary(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.search-library")
	defer span.End()

	query := domain.SearchQuery{Text: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("tags")); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				query.Tags = append(query.Tags, tag)
			}
		}
	}
	if query.Text == "" && len(query.Tags) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q or tags is required"})
		return
	}

	result, err := h.library.Search(ctx, h.owner(c), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ImportLibrary accepts a multipart form of JSON documents and imports
// each one on its own; the report lists per-document outcomes.
func (h *Handler) ImportLibrary(c *gin.Context) {
	if h.library == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "library unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.import-library")
	defer span.End()

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required: " + err.Error()})
		return
	}
	files := form.File["documents"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no documents uploaded"})
		return
	}

	owner := h.owner(c)
	report := domain.ImportReport{Results: make([]domain.ImportResult, 0, len(files))}
	for _, fh := range files {
		result := domain.ImportResult{Document: fh.Filename}
		f, err := fh.Open()
		if err == nil {
			raw, readErr := io.ReadAll(io.LimitReader(f, maxImportDocumentBytes))
			f.Close()
			if readErr != nil {
				result.Error = readErr.Error()
			} else {
				result = h.library.ImportDocument(ctx, owner, fh.Filename, raw)
			}
		} else {
			result.Error = err.Error()
		}
		if result.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}
	c.JSON(http.StatusOK, report)
}
