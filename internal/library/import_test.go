package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestImportDirPartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "01-dca.json", `{
		"type": "strategy",
		"key": "dca-weekly",
		"name": "Weekly DCA",
		"category": "accumulation",
		"risk": "low",
		"tags": ["oversold", "dca"]
	}`)
	writeDoc(t, dir, "02-exit.json", `{
		"type": "strategy",
		"key": "staged-exit",
		"name": "Staged Exit",
		"category": "profit-taking",
		"risk": "medium",
		"tags": ["overbought"]
	}`)
	writeDoc(t, dir, "03-broken.json", `{"type": "strategy", "key": "nameless", "category": "x", "risk": "low"}`)
	writeDoc(t, dir, "04-note.json", `{
		"type": "knowledge",
		"key": "funding-rates",
		"content": "Funding rates flip negative near local bottoms.",
		"tags": ["oversold"]
	}`)
	writeDoc(t, dir, "05-unknown.json", `{"type": "watchlist", "key": "w1"}`)
	writeDoc(t, dir, "README.txt", "not a document")

	repo := newFakeRepo()
	svc := NewService(testTracer(), repo, fixedNow)

	report, err := svc.ImportDir(context.Background(), "alice", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Succeeded != 3 || report.Failed != 2 {
		t.Fatalf("expected 3 ok / 2 failed, got %d/%d", report.Succeeded, report.Failed)
	}
	if len(report.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(report.Results))
	}

	// Results follow lexical document order.
	if report.Results[0].Document != "01-dca.json" || !report.Results[0].OK {
		t.Fatalf("unexpected first result: %+v", report.Results[0])
	}
	if report.Results[2].OK || report.Results[2].Error == "" {
		t.Fatalf("expected validation failure for 03-broken.json, got %+v", report.Results[2])
	}
	if report.Results[4].OK {
		t.Fatalf("expected unknown type failure, got %+v", report.Results[4])
	}

	if _, ok := repo.strategies["alice/dca-weekly"]; !ok {
		t.Fatal("expected imported strategy to be stored")
	}
	if _, ok := repo.knowledge["alice/funding-rates"]; !ok {
		t.Fatal("expected imported knowledge to be stored")
	}
}

func TestImportDirMissingDirectory(t *testing.T) {
	svc := NewService(testTracer(), newFakeRepo(), fixedNow)

	if _, err := svc.ImportDir(context.Background(), "alice", filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestImportDocumentOwnerOverride(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(testTracer(), repo, fixedNow)

	raw := []byte(`{"type":"strategy","owner":"mallory","key":"dca-weekly","name":"Weekly DCA","category":"accumulation","risk":"low"}`)
	result := svc.ImportDocument(context.Background(), "alice", "doc.json", raw)
	if !result.OK {
		t.Fatalf("unexpected failure: %+v", result)
	}
	if _, ok := repo.strategies["alice/dca-weekly"]; !ok {
		t.Fatal("expected document owner to be overridden by the import owner")
	}
}

func TestImportDocumentRejectsMalformedJSON(t *testing.T) {
	svc := NewService(testTracer(), newFakeRepo(), fixedNow)

	result := svc.ImportDocument(context.Background(), "alice", "bad.json", []byte("{nope"))
	if result.OK || result.Error == "" {
		t.Fatalf("expected malformed json failure, got %+v", result)
	}
}
