package index

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pemstudy/internal/store"
	"pemstudy/internal/types"
)

func newEligibleStore(t *testing.T, records []types.ErrorRecord) *store.EligibleStore {
	t.Helper()

	s, err := store.CreateEligible(filepath.Join(t.TempDir(), "eligible.sqlite3"))
	if err != nil {
		t.Fatalf("CreateEligible: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	for _, r := range records {
		if _, err := s.InsertRecord(context.Background(), r); err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
	}
	return s
}

func record(path string, version int64, sanitized, javacName string) types.ErrorRecord {
	return types.ErrorRecord{
		SrcmlPath:     path,
		Version:       version,
		Start:         types.Position{Line: 1, Col: 1},
		End:           types.Position{Line: 1, Col: 2},
		Text:          sanitized,
		SanitizedText: sanitized,
		JavacName:     javacName,
	}
}

func TestBuild_GroupsAndOrders(t *testing.T) {
	eligible := newEligibleStore(t, []types.ErrorRecord{
		record("/data/mini/z.xml", 3, "';' expected", ""),
		record("/data/mini/a.xml", 1, "';' expected", ""),
		record("/data/mini/m.xml", 2, "reached end of file while parsing", "compiler.err.premature.eof"),
	})

	idx, err := Build(context.Background(), eligible)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(idx.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(idx.Categories))
	}
	// Lexicographic category order.
	if idx.Categories[0].Category != "';' expected" {
		t.Errorf("first category = %q", idx.Categories[0].Category)
	}
	if idx.Categories[1].Category != "compiler.err.premature.eof" {
		t.Errorf("second category = %q", idx.Categories[1].Category)
	}

	// Contexts ordered by unit identity.
	semis := idx.Categories[0].Contexts
	if len(semis) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(semis))
	}
	if semis[0].Unit.SrcmlPath != "/data/mini/a.xml" {
		t.Errorf("contexts not ordered: first is %s", semis[0].Unit)
	}

	if idx.TotalContexts() != 3 {
		t.Errorf("TotalContexts = %d, want 3", idx.TotalContexts())
	}
}

func TestBuild_Deterministic(t *testing.T) {
	records := []types.ErrorRecord{
		record("/data/mini/c.xml", 9, "';' expected", ""),
		record("/data/mini/b.xml", 4, "not a statement", "compiler.err.not.stmt"),
		record("/data/mini/a.xml", 7, "';' expected", ""),
	}
	eligible := newEligibleStore(t, records)

	dir := t.TempDir()
	paths := []string{filepath.Join(dir, "one.json"), filepath.Join(dir, "two.json")}
	for _, path := range paths {
		idx, err := Build(context.Background(), eligible)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if err := idx.Save(path); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	first, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two builds over the same store must serialize identically")
	}
}

func TestIndex_RoundTrip(t *testing.T) {
	eligible := newEligibleStore(t, []types.ErrorRecord{
		record("/data/mini/a.xml", 1, "';' expected", ""),
		record("/data/mini/b.xml", 2, "reached end of file while parsing", "compiler.err.premature.eof"),
	})

	idx, err := Build(context.Background(), eligible)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "pem-index.json")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Save left its temp file behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff(idx, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_RejectsUnknownSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pem-index.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 99, "categories": []}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected schema version rejection")
	}
}
