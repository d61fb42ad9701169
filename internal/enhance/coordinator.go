package enhance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pemstudy/internal/bundle"
	"pemstudy/internal/types"
)

// Options bounds the coordinator's retry and parallelism behavior. All of
// this is configuration, not policy baked into code: calls cost money and
// operators need the knobs.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	Workers     int
}

// Failure records one scenario the generator could not serve after all
// retries. Failures never block other scenarios.
type Failure struct {
	Key      string        `json:"key"`
	Unit     *types.UnitID `json:"unit,omitempty"`
	Category string        `json:"pem_category"`
	Reason   string        `json:"reason"`
	Attempts int           `json:"attempts"`
}

// Stats summarizes one coordinator run.
type Stats struct {
	RunID     string    `json:"run_id"`
	Variant   string    `json:"variant"`
	Pending   int       `json:"pending"`
	Generated int       `json:"generated"`
	Skipped   int       `json:"skipped"`
	Calls     int       `json:"calls"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Coordinator drives one generator over a bundle collection, one scenario at
// a time, checkpointing after every successful generation so an interrupted
// run loses at most the in-flight call.
type Coordinator struct {
	gen    Generator
	dir    string
	logger *zap.Logger
	opts   Options

	// sleep is swapped out in tests; production waits for real backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a coordinator writing checkpoints under dir.
func NewCoordinator(gen Generator, dir string, logger *zap.Logger, opts Options) (*Coordinator, error) {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Coordinator{
		gen:    gen,
		dir:    dir,
		logger: logger,
		opts:   opts,
		sleep:  sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// task is one unit of pending work: a scenario whose checkpoint for the
// coordinator's variant does not exist yet.
type task struct {
	key      string
	scenario *types.Scenario
}

// pending computes the work list: scenarios that neither carry the variant's
// message in the bundle nor have a checkpoint on disk. Category-scoped keys
// collapse to one representative task per category.
func (c *Coordinator) pending(coll *bundle.Collection) ([]task, int) {
	variant := c.gen.Variant()
	var tasks []task
	skipped := 0
	claimed := make(map[string]bool)

	for _, s := range coll.Scenarios {
		key := checkpointKey(s, variant)
		if s.HasMessage(variant) || checkpointExists(c.dir, key) || claimed[key] {
			skipped++
			continue
		}
		claimed[key] = true
		tasks = append(tasks, task{key: key, scenario: s})
	}
	return tasks, skipped
}

// Run processes every pending scenario. Transient failures are retried with
// bounded exponential backoff; exhausted or permanent failures are recorded
// and the run continues. Cancellation stops cleanly: completed checkpoints
// stay, the in-flight result is discarded.
func (c *Coordinator) Run(ctx context.Context, coll *bundle.Collection) (Stats, error) {
	variant := c.gen.Variant()
	stats := Stats{
		RunID:   uuid.NewString(),
		Variant: string(variant),
	}

	tasks, skipped := c.pending(coll)
	stats.Pending = len(tasks)
	stats.Skipped = skipped

	c.logger.Info("enhancement run starting",
		zap.String("run_id", stats.RunID),
		zap.String("variant", string(variant)),
		zap.Int("pending", stats.Pending),
		zap.Int("skipped", stats.Skipped),
		zap.Int("workers", c.opts.Workers))

	if c.opts.Workers == 1 {
		err := c.runSequential(ctx, tasks, &stats)
		return stats, err
	}
	err := c.runParallel(ctx, tasks, &stats)
	return stats, err
}

// result is what a worker hands to the single writer.
type result struct {
	task     task
	message  string
	attempts int
	err      error
}

func (c *Coordinator) runSequential(ctx context.Context, tasks []task, stats *Stats) error {
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		message, attempts, err := c.generateWithRetry(ctx, t.scenario)
		if err := c.record(result{task: t, message: message, attempts: attempts, err: err}, stats); err != nil {
			return err
		}
	}
	return nil
}

// runParallel overlaps external calls across a small fixed worker count.
// Workers only compute; every checkpoint write goes through this goroutine,
// keeping the on-disk state single-writer.
func (c *Coordinator) runParallel(ctx context.Context, tasks []task, stats *Stats) error {
	results := make(chan result)

	// The writer cancels this once a checkpoint write fails, which stops
	// the spawner and aborts in-flight calls: generating what can no
	// longer be persisted just spends the call budget.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.SetLimit(c.opts.Workers)

	go func() {
		for _, t := range tasks {
			t := t
			if groupCtx.Err() != nil {
				break
			}
			// Go blocks once the worker limit is reached.
			group.Go(func() error {
				message, attempts, err := c.generateWithRetry(groupCtx, t.scenario)
				select {
				case results <- result{task: t, message: message, attempts: attempts, err: err}:
					return nil
				case <-groupCtx.Done():
					return groupCtx.Err()
				}
			})
		}
		group.Wait()
		close(results)
	}()

	var writeErr error
	for res := range results {
		if writeErr != nil {
			continue // drain so workers can finish
		}
		if writeErr = c.record(res, stats); writeErr != nil {
			cancel()
		}
	}
	if writeErr != nil {
		return writeErr
	}
	return group.Wait()
}

// record is the single-writer step: it turns one generation result into a
// checkpoint file or a failure entry.
func (c *Coordinator) record(res result, stats *Stats) error {
	stats.Calls += res.attempts

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			// Operator interruption: not a scenario failure.
			return res.err
		}
		stats.Failed++
		failure := Failure{
			Key:      res.task.key,
			Category: res.task.scenario.Category,
			Reason:   res.err.Error(),
			Attempts: res.attempts,
		}
		if !categoryScoped(c.gen.Variant(), res.task.scenario.Category) {
			unit := res.task.scenario.Unit
			failure.Unit = &unit
		}
		stats.Failures = append(stats.Failures, failure)
		c.logger.Warn("generation failed",
			zap.String("key", res.task.key),
			zap.Int("attempts", res.attempts),
			zap.Error(res.err))
		return nil
	}

	cp := Checkpoint{
		SchemaVersion: SchemaVersion,
		RunID:         stats.RunID,
		Variant:       c.gen.Variant(),
		Category:      res.task.scenario.Category,
		Message:       res.message,
		Model:         generatorModel(c.gen),
		Attempts:      res.attempts,
		GeneratedAt:   time.Now().UTC(),
	}
	if !categoryScoped(c.gen.Variant(), res.task.scenario.Category) {
		unit := res.task.scenario.Unit
		cp.Unit = &unit
	}
	if err := writeCheckpoint(c.dir, res.task.key, cp); err != nil {
		return err
	}
	stats.Generated++
	c.logger.Info("generated",
		zap.String("key", res.task.key),
		zap.Int("attempts", res.attempts))
	return nil
}

// generateWithRetry calls the generator with bounded exponential backoff on
// transient failures. A rate-limited call honors the provider's advised
// delay when it exceeds the computed backoff.
func (c *Coordinator) generateWithRetry(ctx context.Context, s *types.Scenario) (string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.opts.BackoffBase << uint(attempt-2)
			var rateLimit *types.RateLimitError
			if errors.As(lastErr, &rateLimit) && rateLimit.RetryAfter > delay {
				delay = rateLimit.RetryAfter
			}
			if err := c.sleep(ctx, delay); err != nil {
				return "", attempt - 1, err
			}
		}

		message, err := c.gen.Generate(ctx, s)
		if err == nil {
			return message, attempt, nil
		}
		lastErr = err

		if !types.IsTransient(err) {
			return "", attempt, err
		}
	}
	return "", c.opts.MaxAttempts, fmt.Errorf("max attempts exceeded: %w", lastErr)
}

// generatorModel reports the model identity for checkpoint records when the
// generator exposes one.
func generatorModel(gen Generator) string {
	type modeler interface{ Model() string }
	if m, ok := gen.(modeler); ok {
		return m.Model()
	}
	return ""
}
