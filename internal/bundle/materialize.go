package bundle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pemstudy/internal/store"
	"pemstudy/internal/types"
)

// SourceResolver fetches a unit's source text. The eligible store's local
// cache is the default implementation; the remote unit-version mirror is an
// external collaborator that satisfies the same interface.
type SourceResolver interface {
	Resolve(ctx context.Context, unit types.UnitID) (string, error)
}

// StoreResolver resolves source text from the eligible store's cache.
type StoreResolver struct {
	Eligible *store.EligibleStore
}

func (r StoreResolver) Resolve(ctx context.Context, unit types.UnitID) (string, error) {
	return r.Eligible.SourceFor(ctx, unit)
}

// Stats summarizes one materialization pass.
type Stats struct {
	Materialized int `json:"materialized"`
	Dropped      int `json:"dropped"`
}

// Materializer assembles scenario bundles from sampled contexts.
type Materializer struct {
	eligible *store.EligibleStore
	resolver SourceResolver
	logger   *zap.Logger
}

// NewMaterializer creates a materializer over the given stores.
func NewMaterializer(eligible *store.EligibleStore, resolver SourceResolver, logger *zap.Logger) *Materializer {
	return &Materializer{eligible: eligible, resolver: resolver, logger: logger}
}

// Materialize builds one scenario per sample item. A unit whose source or
// records cannot be resolved any more is dropped from the sample and logged;
// the mirror forgets files and that must not sink the run. The primary
// compiler's diagnostic is recorded as the javac variant message.
func (m *Materializer) Materialize(ctx context.Context, items []types.SampleItem) (*Collection, Stats, error) {
	collection := &Collection{SchemaVersion: SchemaVersion}
	var stats Stats

	for _, item := range items {
		scenario, err := m.materializeOne(ctx, item)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				stats.Dropped++
				m.logger.Warn("dropping unresolvable context",
					zap.String("unit", item.Unit.String()),
					zap.String("pem_category", item.Category),
					zap.Error(err))
				continue
			}
			return nil, stats, err
		}
		collection.Scenarios = append(collection.Scenarios, scenario)
		stats.Materialized++
	}

	m.logger.Info("materialization complete",
		zap.Int("materialized", stats.Materialized),
		zap.Int("dropped", stats.Dropped))

	return collection, stats, nil
}

func (m *Materializer) materializeOne(ctx context.Context, item types.SampleItem) (*types.Scenario, error) {
	source, err := m.resolver.Resolve(ctx, item.Unit)
	if err != nil {
		return nil, err
	}

	records, err := m.eligible.RecordsFor(ctx, item.Unit)
	if err != nil {
		return nil, err
	}

	scenario := &types.Scenario{
		Category:   item.Category,
		Unit:       item.Unit,
		SourceCode: source,
		Records:    records,
	}
	primary, ok := scenario.PrimaryRecord()
	if !ok {
		return nil, fmt.Errorf("unit %s has no diagnostics: %w", item.Unit, types.ErrNotFound)
	}
	scenario.SetMessage(types.VariantCompiler, types.GeneratedMessage{
		Text:        primary.Text,
		Model:       "javac",
		GeneratedAt: time.Now().UTC(),
	})
	return scenario, nil
}
