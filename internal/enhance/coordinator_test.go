package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"pemstudy/internal/bundle"
	"pemstudy/internal/types"
)

// fakeGen scripts generation outcomes per scenario unit.
type fakeGen struct {
	variant types.Variant

	mu    sync.Mutex
	calls map[types.UnitID]int
	// failFor returns the error for a given call number (1-based), or nil
	// to succeed.
	failFor func(unit types.UnitID, call int) error
}

func newFakeGen(variant types.Variant) *fakeGen {
	return &fakeGen{variant: variant, calls: make(map[types.UnitID]int)}
}

func (g *fakeGen) Variant() types.Variant { return g.variant }

func (g *fakeGen) Generate(_ context.Context, s *types.Scenario) (string, error) {
	g.mu.Lock()
	g.calls[s.Unit]++
	call := g.calls[s.Unit]
	g.mu.Unlock()

	if g.failFor != nil {
		if err := g.failFor(s.Unit, call); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("enhanced %s", s.Unit), nil
}

func (g *fakeGen) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func scenarioFor(category, path string, version int64) *types.Scenario {
	return &types.Scenario{
		Category:   category,
		Unit:       types.UnitID{SrcmlPath: path, Version: version},
		SourceCode: "public class T {}",
		Records: []types.ErrorRecord{{
			SrcmlPath: path,
			Version:   version,
			Start:     types.Position{Line: 1, Col: 1},
			End:       types.Position{Line: 1, Col: 2},
			Text:      category,
		}},
	}
}

// testCollection builds a collection of placeholder-bearing scenarios so
// every variant is unit-scoped unless a test opts in to category scoping.
func testCollection(n int) *bundle.Collection {
	coll := &bundle.Collection{SchemaVersion: bundle.SchemaVersion}
	for i := 0; i < n; i++ {
		coll.Scenarios = append(coll.Scenarios,
			scenarioFor("compiler.err.cant.resolve[variable]", fmt.Sprintf("/data/mini/src-%d.xml", i), int64(100+i)))
	}
	return coll
}

func newTestCoordinator(t *testing.T, gen Generator, opts Options) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(gen, t.TempDir(), zaptest.NewLogger(t), opts)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestCoordinator_Idempotent(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 3})
	coll := testCollection(3)

	stats, err := c.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Generated != 3 || stats.Failed != 0 {
		t.Errorf("first run: %+v", stats)
	}

	// Second run must skip everything: the checkpoints exist.
	stats, err = c.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Generated != 0 || stats.Skipped != 3 {
		t.Errorf("second run should skip all: %+v", stats)
	}
	if gen.totalCalls() != 3 {
		t.Errorf("generator called %d times, want 3", gen.totalCalls())
	}

	// Merging twice leaves exactly one message per scenario.
	for i := 0; i < 2; i++ {
		_, err := Merge(coll, c.dir, types.VariantTool, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("Merge #%d: %v", i+1, err)
		}
	}
	for _, s := range coll.Scenarios {
		if !s.HasMessage(types.VariantTool) {
			t.Errorf("scenario %s missing tool message", s.Unit)
		}
		if len(s.Messages) != 1 {
			t.Errorf("scenario %s has %d messages, want 1", s.Unit, len(s.Messages))
		}
	}
}

func TestCoordinator_RetriesTransientWithBackoff(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	gen.failFor = func(_ types.UnitID, call int) error {
		if call <= 2 {
			return &types.RateLimitError{Provider: "test"}
		}
		return nil
	}

	c := newTestCoordinator(t, gen, Options{MaxAttempts: 4, BackoffBase: time.Second})
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	stats, err := c.Run(context.Background(), testCollection(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Generated != 1 {
		t.Fatalf("expected success after retries: %+v", stats)
	}
	if stats.Calls != 3 {
		t.Errorf("Calls = %d, want 3", stats.Calls)
	}

	// Exponential: 1s, 2s.
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestCoordinator_HonorsRetryAfter(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	gen.failFor = func(_ types.UnitID, call int) error {
		if call == 1 {
			return &types.RateLimitError{Provider: "test", RetryAfter: 30 * time.Second}
		}
		return nil
	}

	c := newTestCoordinator(t, gen, Options{MaxAttempts: 3, BackoffBase: time.Second})
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := c.Run(context.Background(), testCollection(1)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(delays) != 1 || delays[0] != 30*time.Second {
		t.Errorf("delays = %v, want the advised 30s", delays)
	}
}

func TestCoordinator_PermanentFailureDoesNotBlockOthers(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	broken := types.UnitID{SrcmlPath: "/data/mini/src-0.xml", Version: 100}
	gen.failFor = func(unit types.UnitID, _ int) error {
		if unit == broken {
			return errors.New("tool exited 1")
		}
		return nil
	}

	c := newTestCoordinator(t, gen, Options{MaxAttempts: 4})
	stats, err := c.Run(context.Background(), testCollection(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Generated != 2 || stats.Failed != 1 {
		t.Errorf("stats = %+v, want 2 generated, 1 failed", stats)
	}
	// Permanent failures are not retried.
	if gen.calls[broken] != 1 {
		t.Errorf("broken unit called %d times, want 1", gen.calls[broken])
	}
	if len(stats.Failures) != 1 || stats.Failures[0].Unit == nil || *stats.Failures[0].Unit != broken {
		t.Errorf("failure entry should identify the unit: %+v", stats.Failures)
	}
}

func TestCoordinator_ExhaustsRetries(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	gen.failFor = func(types.UnitID, int) error {
		return &types.RateLimitError{Provider: "test"}
	}

	c := newTestCoordinator(t, gen, Options{MaxAttempts: 2, BackoffBase: time.Millisecond})
	stats, err := c.Run(context.Background(), testCollection(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("expected a recorded failure: %+v", stats)
	}
	if stats.Failures[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", stats.Failures[0].Attempts)
	}
}

func TestCoordinator_ParallelWorkers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	gen := newFakeGen(types.VariantTool)
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 2, Workers: 3})
	coll := testCollection(8)

	stats, err := c.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Generated != 8 {
		t.Errorf("Generated = %d, want 8", stats.Generated)
	}

	if _, err := Merge(coll, c.dir, types.VariantTool, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for _, s := range coll.Scenarios {
		if !s.HasMessage(types.VariantTool) {
			t.Errorf("scenario %s missing message after parallel run", s.Unit)
		}
	}
}

func TestCoordinator_ErrorOnlyCollapsesPlaceholderFreeCategories(t *testing.T) {
	gen := newFakeGen(types.VariantLLMErrorOnly)
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 1})

	coll := &bundle.Collection{SchemaVersion: bundle.SchemaVersion}
	// Three scenarios of a fixed-text category: one call covers them all.
	for i := 0; i < 3; i++ {
		coll.Scenarios = append(coll.Scenarios,
			scenarioFor("compiler.err.premature.eof", fmt.Sprintf("/data/mini/eof-%d.xml", i), int64(i)))
	}
	// Two of a placeholder category: one call each.
	for i := 0; i < 2; i++ {
		coll.Scenarios = append(coll.Scenarios,
			scenarioFor("compiler.err.cant.resolve[variable]", fmt.Sprintf("/data/mini/var-%d.xml", i), int64(i)))
	}

	stats, err := c.Run(context.Background(), coll)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Generated != 3 {
		t.Errorf("Generated = %d, want 3 (1 category-scoped + 2 unit-scoped)", stats.Generated)
	}
	if gen.totalCalls() != 3 {
		t.Errorf("generator called %d times, want 3", gen.totalCalls())
	}

	if _, err := Merge(coll, c.dir, types.VariantLLMErrorOnly, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	for _, s := range coll.Scenarios {
		if !s.HasMessage(types.VariantLLMErrorOnly) {
			t.Errorf("scenario %s missing error-only message", s.Unit)
		}
	}
}

// stallingGen succeeds on the first call, then parks every later call until
// its context ends, the way a slow paid backend would under load.
type stallingGen struct {
	calls atomic.Int32
}

func (g *stallingGen) Variant() types.Variant { return types.VariantTool }

func (g *stallingGen) Generate(ctx context.Context, _ *types.Scenario) (string, error) {
	if g.calls.Add(1) == 1 {
		return "enhanced", nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestCoordinator_WriteFailureStopsParallelRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))

	gen := &stallingGen{}
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 1, Workers: 2})
	// Break persistence: every checkpoint write fails from here on.
	if err := os.RemoveAll(c.dir); err != nil {
		t.Fatal(err)
	}

	_, err := c.Run(context.Background(), testCollection(6))
	if err == nil {
		t.Fatal("a failed checkpoint write must abort the run")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("the write failure should surface, got %v", err)
	}
}

func TestCoordinator_CancelledBeforeStart(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Run(ctx, testCollection(2)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if gen.totalCalls() != 0 {
		t.Errorf("no calls should happen after cancellation, got %d", gen.totalCalls())
	}
}

func TestMerge_NeverOverwrites(t *testing.T) {
	gen := newFakeGen(types.VariantTool)
	c := newTestCoordinator(t, gen, Options{MaxAttempts: 1})
	coll := testCollection(1)

	// The bundle already holds a different successful message.
	coll.Scenarios[0].SetMessage(types.VariantTool, types.GeneratedMessage{Text: "the original"})

	// Force a checkpoint with different text by clearing the message first
	// on a copy used for the run.
	runColl := testCollection(1)
	if _, err := c.Run(context.Background(), runColl); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats, err := Merge(coll, c.dir, types.VariantTool, zaptest.NewLogger(t))
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(stats.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", stats)
	}
	if coll.Scenarios[0].Messages[types.VariantTool].Text != "the original" {
		t.Error("merge overwrote a recorded message")
	}
}
