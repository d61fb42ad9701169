package enhance

import (
	"strings"
	"testing"

	"pemstudy/internal/types"
)

func TestHasPlaceholders(t *testing.T) {
	if !HasPlaceholders("compiler.err.cant.resolve[variable]") {
		t.Error("cant.resolve[variable] embeds an identifier")
	}
	if HasPlaceholders("compiler.err.premature.eof") {
		t.Error("premature.eof has fixed text")
	}
}

func TestCategoryScoped(t *testing.T) {
	// Only the error-only LLM variant can share one generation across a
	// category, and only when the message text is fixed.
	if !categoryScoped(types.VariantLLMErrorOnly, "compiler.err.premature.eof") {
		t.Error("error-only + fixed text should be category scoped")
	}
	if categoryScoped(types.VariantLLMErrorOnly, "compiler.err.cant.resolve[variable]") {
		t.Error("placeholder categories need per-scenario calls")
	}
	if categoryScoped(types.VariantLLMWithContext, "compiler.err.premature.eof") {
		t.Error("with-context always needs the scenario's source")
	}
	if categoryScoped(types.VariantTool, "compiler.err.premature.eof") {
		t.Error("the tool always runs per scenario")
	}
}

func TestPromptWithContext(t *testing.T) {
	p := promptWithContext("class A {", "reached end of file while parsing")
	if !strings.Contains(p, "class A {") {
		t.Error("prompt should embed the source")
	}
	if !strings.Contains(p, "reached end of file while parsing") {
		t.Error("prompt should embed the compiler output")
	}
	if !strings.Contains(p, "how to fix the problem") {
		t.Error("prompt should ask for a fix")
	}
}

func TestPromptErrorOnly(t *testing.T) {
	p := promptErrorOnly("';' expected")
	if !strings.Contains(p, "';' expected") {
		t.Error("prompt should embed the message")
	}
	if strings.Contains(p, "Code:") {
		t.Error("error-only prompt must not reference source code")
	}
}

func TestCheckpointKey_Scoping(t *testing.T) {
	s := scenarioFor("compiler.err.premature.eof", "/data/mini/a b.xml", 7)

	unitKey := checkpointKey(s, types.VariantLLMWithContext)
	if strings.HasPrefix(unitKey, "category--") {
		t.Errorf("with-context key should be unit scoped: %s", unitKey)
	}
	if strings.ContainsAny(unitKey, "/ ") {
		t.Errorf("key should be a flat filename: %s", unitKey)
	}

	catKey := checkpointKey(s, types.VariantLLMErrorOnly)
	if !strings.HasPrefix(catKey, "category--") {
		t.Errorf("error-only key for fixed-text category should be category scoped: %s", catKey)
	}
}
