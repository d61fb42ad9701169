package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		input   string
		want    Position
		wantErr bool
	}{
		{"12:5", Position{Line: 12, Col: 5}, false},
		{" 3:1 ", Position{Line: 3, Col: 1}, false},
		{"12", Position{}, true},
		{"a:b", Position{}, true},
		{"0:4", Position{}, true},
		{"4:0", Position{}, true},
		{"", Position{}, true},
	}

	for _, tt := range tests {
		got, err := ParsePosition(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePosition(%q) expected error, got %v", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePosition(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePosition(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestErrorRecordCategory(t *testing.T) {
	withName := ErrorRecord{SanitizedText: "';' expected", JavacName: "compiler.err.expected"}
	if got := withName.Category(); got != "compiler.err.expected" {
		t.Errorf("expected javac name to win, got %q", got)
	}

	withoutName := ErrorRecord{SanitizedText: "';' expected"}
	if got := withoutName.Category(); got != "';' expected" {
		t.Errorf("expected sanitized text fallback, got %q", got)
	}
}

func TestUnitIDOrdering(t *testing.T) {
	a := UnitID{SrcmlPath: "/data/mini/a.xml", Version: 2}
	b := UnitID{SrcmlPath: "/data/mini/b.xml", Version: 1}
	c := UnitID{SrcmlPath: "/data/mini/a.xml", Version: 3}

	if !a.Less(b) {
		t.Error("expected path ordering to dominate")
	}
	if !a.Less(c) {
		t.Error("expected version ordering within same path")
	}
	if b.Less(a) {
		t.Error("ordering is not antisymmetric")
	}
}

func TestContextPositionKey(t *testing.T) {
	ctx1 := Context{Records: []ErrorRecord{
		{Start: Position{1, 2}, End: Position{1, 5}},
		{Start: Position{9, 1}, End: Position{9, 1}},
	}}
	ctx2 := Context{Records: []ErrorRecord{
		{Start: Position{9, 1}, End: Position{9, 1}},
		{Start: Position{1, 2}, End: Position{1, 5}},
	}}

	if ctx1.PositionKey() != ctx2.PositionKey() {
		t.Errorf("position key should be order-independent: %q vs %q",
			ctx1.PositionKey(), ctx2.PositionKey())
	}
}

func TestScenarioSetMessage(t *testing.T) {
	s := &Scenario{Category: "compiler.err.premature.eof"}

	first := GeneratedMessage{Text: "original", GeneratedAt: time.Now()}
	if !s.SetMessage(VariantTool, first) {
		t.Fatal("first SetMessage should succeed")
	}

	// A second write for the same variant must be rejected, not applied.
	if s.SetMessage(VariantTool, GeneratedMessage{Text: "overwrite"}) {
		t.Error("SetMessage overwrote an existing message")
	}
	if s.Messages[VariantTool].Text != "original" {
		t.Errorf("message was corrupted: %q", s.Messages[VariantTool].Text)
	}

	if !s.HasMessage(VariantTool) {
		t.Error("HasMessage should report the recorded variant")
	}
	if s.HasMessage(VariantLLMErrorOnly) {
		t.Error("HasMessage reported an absent variant")
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range AllVariants {
		parsed, err := ParseVariant(string(v))
		if err != nil {
			t.Errorf("ParseVariant(%q) failed: %v", v, err)
		}
		if parsed != v {
			t.Errorf("ParseVariant(%q) = %q", v, parsed)
		}
	}

	if _, err := ParseVariant("code-only"); err == nil {
		t.Error("the retired code-only name must not parse")
	}
}

func TestValidScore(t *testing.T) {
	for score := MinScore; score <= MaxScore; score++ {
		if !ValidScore(score) {
			t.Errorf("score %d should be valid", score)
		}
	}
	if ValidScore(MinScore-1) || ValidScore(MaxScore+1) {
		t.Error("out-of-range scores accepted")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{Provider: "gemini"}, true},
		{"wrapped rate limit", fmt.Errorf("call failed: %w", &RateLimitError{Provider: "gemini", RetryAfter: time.Second}), true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}
