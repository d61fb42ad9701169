package store

import (
	"strings"
)

// TopCategory is one of the study's eligible PEM categories, ranked by how
// often it appears as the first error in the raw corpus. The ranking was
// precomputed on the full raw database; running that aggregation takes hours,
// so the result is carried as data.
type TopCategory struct {
	Rank       int
	Identifier string
}

// TopCategories is the eligibility whitelist, most frequent first.
var TopCategories = []TopCategory{
	{1, "compiler.err.premature.eof"},
	{2, "';' expected"},
	{3, "compiler.err.cant.resolve[variable]"},
	{4, "compiler.err.illegal.start.of.expr"},
	{5, "<identifier> expected"},
	{6, "compiler.err.cant.resolve[method]"},
	{7, "compiler.err.cant.resolve[class]"},
	{8, "compiler.err.not.stmt"},
	{9, "class, interface, or enum expected"},
	{10, "')' expected"},
	{11, "compiler.err.prob.found.req"},
	{12, "compiler.err.missing.ret.stmt"},
	{13, "compiler.err.cant.apply.symbol"},
	{14, "compiler.err.invalid.meth.decl.ret.type.req"},
	{15, "compiler.err.doesnt.exist"},
	{16, "compiler.err.illegal.start.of.type"},
	{17, "compiler.err.unclosed.str.lit"},
	{18, "'(' expected"},
	{19, "compiler.err.already.defined[variable]"},
	{20, "compiler.err.illegal.start.of.stmt"},
}

// IsTopCategory reports whether an identifier is in the eligibility whitelist.
func IsTopCategory(identifier string) bool {
	for _, c := range TopCategories {
		if c.Identifier == identifier {
			return true
		}
	}
	return false
}

// javacNameRule maps a recognizable fragment of a javac message to its
// parameterized resource-key identifier.
type javacNameRule struct {
	contains string
	name     string
}

// Rule order matters: "illegal start of expression" must be tested before
// "illegal start of statement" falls through, and the cant.resolve family
// needs its symbol-kind refinement first.
var javacNameRules = []javacNameRule{
	{"reached end of file while parsing", "compiler.err.premature.eof"},
	{"illegal start of expression", "compiler.err.illegal.start.of.expr"},
	{"illegal start of type", "compiler.err.illegal.start.of.type"},
	{"illegal start of statement", "compiler.err.illegal.start.of.stmt"},
	{"not a statement", "compiler.err.not.stmt"},
	{"incompatible types", "compiler.err.prob.found.req"},
	{"missing return statement", "compiler.err.missing.ret.stmt"},
	{"cannot be applied to given types", "compiler.err.cant.apply.symbol"},
	{"invalid method declaration; return type required", "compiler.err.invalid.meth.decl.ret.type.req"},
	{"does not exist", "compiler.err.doesnt.exist"},
	{"unclosed string literal", "compiler.err.unclosed.str.lit"},
	{"is already defined in", "compiler.err.already.defined[variable]"},
}

// JavacName maps a raw diagnostic text to its parameterized javac identifier,
// or "" when the message has no resource-key mapping (the "... expected"
// family is identified by its sanitized text instead).
func JavacName(text string) string {
	msg := firstLine(text)

	// The cant.resolve family shares one message prefix; the symbol kind
	// on the detail lines picks the parameterized identifier.
	if strings.Contains(msg, "cannot find symbol") {
		switch {
		case strings.Contains(text, "variable"):
			return "compiler.err.cant.resolve[variable]"
		case strings.Contains(text, "method"):
			return "compiler.err.cant.resolve[method]"
		case strings.Contains(text, "class"):
			return "compiler.err.cant.resolve[class]"
		}
		return "compiler.err.cant.resolve[variable]"
	}

	for _, rule := range javacNameRules {
		if strings.Contains(msg, rule.contains) {
			return rule.name
		}
	}
	return ""
}

// Sanitize normalizes a raw diagnostic to its category-comparable form:
// the first message line with whitespace runs collapsed.
func Sanitize(text string) string {
	return strings.Join(strings.Fields(firstLine(text)), " ")
}

// Categorize computes the sanitized text, the javac identifier (possibly
// empty), and the category identifier for a raw message. The category
// follows the COALESCE rule: javac name when known, sanitized text otherwise.
func Categorize(text string) (sanitized, javacName, category string) {
	sanitized = Sanitize(text)
	javacName = JavacName(text)
	category = javacName
	if category == "" {
		category = sanitized
	}
	return sanitized, javacName, category
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(line)
}
