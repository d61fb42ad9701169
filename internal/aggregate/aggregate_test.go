package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap/zaptest"

	"pemstudy/internal/store"
	"pemstudy/internal/types"
)

func answer(rater, path string, version int64, variant types.Variant, score int) types.RaterAnswer {
	return types.RaterAnswer{
		Rater:      rater,
		Unit:       types.UnitID{SrcmlPath: path, Version: version},
		Variant:    variant,
		Category:   "compiler.err.expected",
		Score:      score,
		AnsweredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func writeAnswerFile(t *testing.T, path string, answers []types.RaterAnswer) {
	t.Helper()
	s, err := store.OpenAnswers(path)
	if err != nil {
		t.Fatalf("OpenAnswers: %v", err)
	}
	defer s.Close()
	for _, a := range answers {
		if err := s.Put(context.Background(), a); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

// writeCorruptFile builds an answer file whose table lacks the key
// constraint, the way a hand-edited or foreign-made file might.
func writeCorruptFile(t *testing.T, path string, answers []types.RaterAnswer) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE answers(
		rater TEXT, srcml_path TEXT, version INTEGER, variant TEXT,
		pem_category TEXT, score INTEGER, comment TEXT DEFAULT '', answered_at TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, a := range answers {
		_, err := db.Exec(`INSERT INTO answers VALUES(?,?,?,?,?,?,?,?)`,
			a.Rater, a.Unit.SrcmlPath, a.Unit.Version, string(a.Variant),
			a.Category, a.Score, a.Comment, a.AnsweredAt.Format(time.RFC3339))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func TestCombine_Union(t *testing.T) {
	dir := t.TempDir()
	alice := filepath.Join(dir, "alice.sqlite3")
	bob := filepath.Join(dir, "bob.sqlite3")
	writeAnswerFile(t, alice, []types.RaterAnswer{
		answer("alice", "/a.xml", 1, types.VariantCompiler, 4),
		answer("alice", "/b.xml", 2, types.VariantTool, 2),
	})
	writeAnswerFile(t, bob, []types.RaterAnswer{
		answer("bob", "/c.xml", 3, types.VariantLLMErrorOnly, 5),
	})

	out := filepath.Join(dir, "answers.sqlite3")
	report, err := Combine(context.Background(), []string{alice, bob}, out, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if report.Answers != 3 {
		t.Errorf("Answers = %d, want 3", report.Answers)
	}
	if len(report.Disagreements) != 0 {
		t.Errorf("unexpected disagreements: %+v", report.Disagreements)
	}

	merged, err := store.OpenAnswers(out)
	if err != nil {
		t.Fatalf("OpenAnswers(out): %v", err)
	}
	defer merged.Close()
	rows, err := merged.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("merged store has %d rows, want 3", len(rows))
	}
}

func TestCombine_RefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "answers.sqlite3")
	if err := os.WriteFile(out, []byte("existing"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Combine(context.Background(), nil, out, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected refusal to overwrite")
	}
	data, _ := os.ReadFile(out)
	if string(data) != "existing" {
		t.Error("existing output was modified")
	}
}

func TestCombine_MissingInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	alice := filepath.Join(dir, "alice-answers.sqlite3")
	writeAnswerFile(t, alice, []types.RaterAnswer{
		answer("alice", "/a.xml", 1, types.VariantCompiler, 4),
	})
	missing := filepath.Join(dir, "bob-answers.sqlite3")

	out := filepath.Join(dir, "answers.sqlite3")
	_, err := Combine(context.Background(), []string{alice, missing}, out, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("a missing input must fail the merge, not shrink it")
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Error("aggregation must not create the missing input file")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output store may be produced when an input is missing")
	}
}

func TestCombine_ReportsPilotDisagreements(t *testing.T) {
	dir := t.TempDir()
	alice := filepath.Join(dir, "alice.sqlite3")
	bob := filepath.Join(dir, "bob.sqlite3")
	// Both judged the pilot scenario; scores differ on one variant only.
	writeAnswerFile(t, alice, []types.RaterAnswer{
		answer("alice", "/pilot.xml", 1, types.VariantCompiler, 2),
		answer("alice", "/pilot.xml", 1, types.VariantTool, 4),
	})
	writeAnswerFile(t, bob, []types.RaterAnswer{
		answer("bob", "/pilot.xml", 1, types.VariantCompiler, 5),
		answer("bob", "/pilot.xml", 1, types.VariantTool, 4),
	})

	out := filepath.Join(dir, "answers.sqlite3")
	report, err := Combine(context.Background(), []string{alice, bob}, out, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("disagreements are reported, not fatal: %v", err)
	}
	if len(report.Disagreements) != 1 {
		t.Fatalf("Disagreements = %+v, want exactly the compiler variant", report.Disagreements)
	}
	d := report.Disagreements[0]
	if d.Variant != types.VariantCompiler {
		t.Errorf("disagreement on %q, want compiler variant", d.Variant)
	}
	if d.Scores["alice"] != 2 || d.Scores["bob"] != 5 {
		t.Errorf("scores = %v", d.Scores)
	}
}

func TestCombine_DuplicateKeyIsConflict(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "alice.sqlite3")
	writeCorruptFile(t, corrupt, []types.RaterAnswer{
		answer("alice", "/a.xml", 1, types.VariantCompiler, 2),
		answer("alice", "/a.xml", 1, types.VariantCompiler, 5),
	})

	out := filepath.Join(dir, "answers.sqlite3")
	report, err := Combine(context.Background(), []string{corrupt}, out, zaptest.NewLogger(t))
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(report.Duplicates) != 1 {
		t.Fatalf("Duplicates = %+v", report.Duplicates)
	}
	if got := report.Duplicates[0].Scores; len(got) != 2 || got[0] != 2 || got[1] != 5 {
		t.Errorf("conflicting scores = %v", got)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("conflicted merge must not produce an output store")
	}
}

func TestCombine_IdenticalRepeatsAreDeduplicated(t *testing.T) {
	dir := t.TempDir()
	repeated := filepath.Join(dir, "alice.sqlite3")
	a := answer("alice", "/a.xml", 1, types.VariantCompiler, 3)
	writeCorruptFile(t, repeated, []types.RaterAnswer{a, a})

	out := filepath.Join(dir, "answers.sqlite3")
	report, err := Combine(context.Background(), []string{repeated}, out, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("identical repeats are not conflicts: %v", err)
	}
	if report.Answers != 1 {
		t.Errorf("Answers = %d, want 1", report.Answers)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	report := &Report{Inputs: []string{"a.sqlite3"}, Answers: 2}
	if err := WriteReport(path, report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Error("report should be newline-terminated JSON")
	}
}
