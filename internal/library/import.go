package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tokenadvisor/internal/domain"
)

// importDoc is the on-disk document shape: one JSON file per entry, with a
// type discriminator. Strategy and knowledge fields mirror the entry types.
type importDoc struct {
	Type string `json:"type"`
	domain.StrategyEntry
	Content string `json:"content,omitempty"`
}

// ImportDir bulk-imports every *.json document under dir for one owner.
// Each document is validated and upserted on its own: a bad document is
// reported and skipped, the rest of the batch proceeds.
func (s *Service) ImportDir(ctx context.Context, owner, dir string) (domain.ImportReport, error) {
	_, span := s.tracer.Start(ctx, "library.import-dir")
	defer span.End()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return domain.ImportReport{}, fmt.Errorf("read import dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	report := domain.ImportReport{Results: make([]domain.ImportResult, 0, len(names))}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, domain.ImportResult{Document: name, Error: err.Error()})
			continue
		}
		result := s.ImportDocument(ctx, owner, name, raw)
		if result.OK {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, result)
	}
	return report, nil
}

// ImportDocument validates and upserts a single document.
func (s *Service) ImportDocument(ctx context.Context, owner, name string, raw []byte) domain.ImportResult {
	var doc importDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.ImportResult{Document: name, Error: fmt.Sprintf("invalid json: %v", err)}
	}

	switch strings.ToLower(doc.Type) {
	case "strategy":
		entry := doc.StrategyEntry
		entry.Owner = owner
		if _, err := s.UpsertStrategy(ctx, entry); err != nil {
			return domain.ImportResult{Document: name, Key: entry.Key, Error: err.Error()}
		}
		return domain.ImportResult{Document: name, Key: entry.Key, OK: true}
	case "knowledge":
		entry := domain.KnowledgeEntry{
			Owner:   owner,
			Key:     doc.Key,
			Content: doc.Content,
			Tags:    doc.Tags,
		}
		if _, err := s.UpsertKnowledge(ctx, entry); err != nil {
			return domain.ImportResult{Document: name, Key: entry.Key, Error: err.Error()}
		}
		return domain.ImportResult{Document: name, Key: entry.Key, OK: true}
	default:
		return domain.ImportResult{Document: name, Error: fmt.Sprintf("unknown document type %q", doc.Type)}
	}
}
