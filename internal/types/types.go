// Package types provides the shared data model used across pemstudy packages.
// This package exists to break import cycles between the pipeline stages.
// Types here are foundational data structures with no complex dependencies.
package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Position is a line/column location inside a source file.
// Lines and columns are 1-indexed, matching javac diagnostics.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"col"`
}

// ParsePosition parses a "line:col" pair as stored in the messages table.
func ParsePosition(s string) (Position, error) {
	line, col, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Position{}, fmt.Errorf("invalid position %q: expected line:col", s)
	}
	l, err := strconv.Atoi(line)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position %q: %w", s, err)
	}
	c, err := strconv.Atoi(col)
	if err != nil {
		return Position{}, fmt.Errorf("invalid position %q: %w", s, err)
	}
	if l < 1 || c < 1 {
		return Position{}, fmt.Errorf("invalid position %q: line and column are 1-indexed", s)
	}
	return Position{Line: l, Col: c}, nil
}

// String renders the position back into its "line:col" form.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// UnitID identifies a source file at a specific version.
type UnitID struct {
	SrcmlPath string `json:"srcml_path"`
	Version   int64  `json:"version"`
}

// String returns the canonical "path@version" form used in logs and keys.
func (u UnitID) String() string {
	return fmt.Sprintf("%s@%d", u.SrcmlPath, u.Version)
}

// Less orders unit IDs lexicographically by path, then by version.
func (u UnitID) Less(other UnitID) bool {
	if u.SrcmlPath != other.SrcmlPath {
		return u.SrcmlPath < other.SrcmlPath
	}
	return u.Version < other.Version
}

// ErrorRecord is one raw compiler diagnostic. Immutable once ingested.
type ErrorRecord struct {
	SrcmlPath     string   `json:"srcml_path"`
	Version       int64    `json:"version"`
	Start         Position `json:"start"`
	End           Position `json:"end"`
	Text          string   `json:"text"`
	SanitizedText string   `json:"sanitized_text"`
	JavacName     string   `json:"javac_name,omitempty"`
}

// Unit returns the identity of the source file that owns this record.
func (r ErrorRecord) Unit() UnitID {
	return UnitID{SrcmlPath: r.SrcmlPath, Version: r.Version}
}

// Category returns the PEM category this record belongs to: the javac
// diagnostic name when known, otherwise the sanitized message text.
func (r ErrorRecord) Category() string {
	if r.JavacName != "" {
		return r.JavacName
	}
	return r.SanitizedText
}

// Context is a unit's code identity paired with its eligible diagnostics.
// It is the unit of sampling. Not to be confused with Scenario, which adds
// variant messages on top of a Context.
type Context struct {
	Unit    UnitID        `json:"unit"`
	Records []ErrorRecord `json:"records"`
}

// PositionKey returns a stable fingerprint of the record position set,
// used to deduplicate contexts that share a unit identity.
func (c Context) PositionKey() string {
	positions := make([]string, len(c.Records))
	for i, r := range c.Records {
		positions[i] = r.Start.String() + "-" + r.End.String()
	}
	sort.Strings(positions)
	return strings.Join(positions, ",")
}

// GeneratedMessage is one variant's error message for a scenario.
type GeneratedMessage struct {
	Text        string    `json:"text"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Scenario is a sampled context bundled with its source text and, after
// enhancement, one message per variant. The primary compiler's message is
// recorded at materialization time under VariantCompiler.
type Scenario struct {
	Category   string                       `json:"pem_category"`
	Unit       UnitID                       `json:"unit"`
	SourceCode string                       `json:"source_code"`
	Records    []ErrorRecord                `json:"records"`
	Messages   map[Variant]GeneratedMessage `json:"messages,omitempty"`
}

// PrimaryRecord returns the first eligible diagnostic for the scenario.
// Every materialized scenario has at least one.
func (s *Scenario) PrimaryRecord() (ErrorRecord, bool) {
	if len(s.Records) == 0 {
		return ErrorRecord{}, false
	}
	return s.Records[0], true
}

// HasMessage reports whether the scenario already holds a message for the
// given variant.
func (s *Scenario) HasMessage(v Variant) bool {
	_, ok := s.Messages[v]
	return ok
}

// SetMessage records a variant message. It returns false without modifying
// the scenario if a message for that variant is already present; successful
// generations are never silently overwritten.
func (s *Scenario) SetMessage(v Variant, msg GeneratedMessage) bool {
	if s.Messages == nil {
		s.Messages = make(map[Variant]GeneratedMessage)
	}
	if _, exists := s.Messages[v]; exists {
		return false
	}
	s.Messages[v] = msg
	return true
}

// SampleItem is one drawn (category, context) pair.
type SampleItem struct {
	Category string `json:"pem_category"`
	Unit     UnitID `json:"unit"`
}

// AssignmentItem is one (scenario, variant) pair a rater must judge.
type AssignmentItem struct {
	Category string  `json:"pem_category"`
	Unit     UnitID  `json:"unit"`
	Variant  Variant `json:"variant"`
}

// Batch labels which study phase an assignment item belongs to.
type Batch string

const (
	BatchPilot Batch = "pilot"
	BatchFull  Batch = "full"
)

// Assignment is the ordered work list for one rater.
type Assignment struct {
	Rater   string           `json:"rater"`
	Overlap int              `json:"overlap"`
	Items   []AssignmentItem `json:"items"`
}

// Score bounds for the ordinal rating scale.
const (
	MinScore = 1
	MaxScore = 5
)

// ValidScore reports whether a rating falls on the bounded ordinal scale.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}

// AnswerKey uniquely identifies one judgement.
type AnswerKey struct {
	Rater   string
	Unit    UnitID
	Variant Variant
}

func (k AnswerKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Rater, k.Unit, k.Variant)
}

// RaterAnswer is one persisted judgement. Re-answering the same key
// overwrites the previous answer; it never duplicates.
type RaterAnswer struct {
	Rater      string    `json:"rater"`
	Unit       UnitID    `json:"unit"`
	Variant    Variant   `json:"variant"`
	Category   string    `json:"pem_category"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Key returns the (rater, scenario, variant) identity of the answer.
func (a RaterAnswer) Key() AnswerKey {
	return AnswerKey{Rater: a.Rater, Unit: a.Unit, Variant: a.Variant}
}
