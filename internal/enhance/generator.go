// Package enhance coordinates the variant generators: external collaborators
// that produce alternative error messages for materialized scenarios. Each
// generator has its own cost and failure profile; the coordinator wraps them
// all in the same checkpointed, retried, idempotent processing loop.
package enhance

import (
	"context"
	"fmt"

	"pemstudy/internal/types"
)

// Generator produces one variant's message for a scenario, or fails.
// The coordinator is generator-agnostic: retry, checkpointing, and merge
// behavior are identical for every implementation.
type Generator interface {
	Variant() types.Variant
	Generate(ctx context.Context, s *types.Scenario) (string, error)
}

// placeholderCategories are the PEM categories whose message text embeds
// scenario-specific identifiers ("cannot find symbol - variable foo").
// For the error-only LLM variant these need one call per scenario; the
// remaining categories have a fixed message text, so one call per category
// is enough and the result fans out at merge time. Calls cost money; the
// asymmetry is deliberate.
var placeholderCategories = map[string]bool{
	"compiler.err.cant.resolve[variable]":    true,
	"compiler.err.cant.resolve[method]":      true,
	"compiler.err.cant.resolve[class]":       true,
	"compiler.err.prob.found.req":            true,
	"compiler.err.cant.apply.symbol":         true,
	"compiler.err.doesnt.exist":              true,
	"compiler.err.already.defined[variable]": true,
}

// HasPlaceholders reports whether a category's message text varies per
// scenario.
func HasPlaceholders(category string) bool {
	return placeholderCategories[category]
}

// categoryScoped reports whether one generation covers a whole category for
// the given variant.
func categoryScoped(variant types.Variant, category string) bool {
	return variant == types.VariantLLMErrorOnly && !HasPlaceholders(category)
}

// promptWithContext builds the code-and-context prompt, following Leinonen
// et al. 2022, prompt 3.2.1.
func promptWithContext(code, message string) string {
	return "Code:\n" +
		"```\n" +
		code + "\n" +
		"```\n" +
		"\n" +
		"Output:\n" +
		"```\n" +
		message + "\n" +
		"```\n" +
		"Plain English explanation of why running the above code causes an error and how to fix the problem"
}

// promptErrorOnly builds the message-only prompt.
func promptErrorOnly(message string) string {
	return fmt.Sprintf("Plain English explanation of this error message: %s", message)
}
