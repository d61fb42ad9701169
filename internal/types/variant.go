package types

import "fmt"

// Variant names one of the four message-generating sources under study.
// Earlier tooling used "code-only" / "code-and-context" with the meanings
// swapped; these identifiers are the corrected ones and there is no
// compatibility mapping on purpose.
type Variant string

const (
	// VariantCompiler is the primary compiler's own diagnostic.
	VariantCompiler Variant = "javac"
	// VariantTool is the secondary toolchain's rewritten message.
	VariantTool Variant = "tool"
	// VariantLLMErrorOnly is an LLM explanation given only the message text.
	VariantLLMErrorOnly Variant = "llm-error-only"
	// VariantLLMWithContext is an LLM explanation given message and source.
	VariantLLMWithContext Variant = "llm-with-context"
)

// AllVariants lists every variant in canonical presentation order.
var AllVariants = []Variant{
	VariantCompiler,
	VariantTool,
	VariantLLMErrorOnly,
	VariantLLMWithContext,
}

// GeneratedVariants lists the variants produced by enhancement coordinators
// (everything except the primary compiler, whose message comes straight from
// the raw store).
var GeneratedVariants = []Variant{
	VariantTool,
	VariantLLMErrorOnly,
	VariantLLMWithContext,
}

// ParseVariant validates a variant name read from a flag or artifact.
func ParseVariant(s string) (Variant, error) {
	for _, v := range AllVariants {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	_, err := ParseVariant(string(v))
	return err == nil
}
