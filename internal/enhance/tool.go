package enhance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"pemstudy/internal/types"
)

// ToolGenerator produces the secondary toolchain's message by invoking the
// companion CLI as a subprocess. The tool reads the unit's source on stdin
// and writes its rewritten diagnostic to stdout; a non-zero exit is a
// generation failure for that scenario, never a pipeline failure.
type ToolGenerator struct {
	binary  string
	args    []string
	timeout time.Duration
}

// NewToolGenerator creates a generator around the companion CLI.
func NewToolGenerator(binary string, args []string, timeout time.Duration) (*ToolGenerator, error) {
	if binary == "" {
		return nil, fmt.Errorf("tool binary is required (set tool.binary or PEMSTUDY_TOOL)")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ToolGenerator{binary: binary, args: args, timeout: timeout}, nil
}

// Variant returns the secondary-toolchain variant.
func (g *ToolGenerator) Variant() types.Variant {
	return types.VariantTool
}

// Generate runs the tool once for the scenario.
func (g *ToolGenerator) Generate(ctx context.Context, s *types.Scenario) (string, error) {
	primary, ok := s.PrimaryRecord()
	if !ok {
		return "", fmt.Errorf("scenario %s has no diagnostic to rewrite", s.Unit)
	}

	execCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	args := append([]string{}, g.args...)
	args = append(args,
		"--message", primary.Text,
		"--line", strconv.Itoa(primary.Start.Line),
		"--column", strconv.Itoa(primary.Start.Col),
	)

	cmd := exec.CommandContext(execCtx, g.binary, args...)
	cmd.Stdin = strings.NewReader(s.SourceCode)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("tool timed out after %v for %s: %w", g.timeout, s.Unit, context.DeadlineExceeded)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("tool exited %d for %s: %s", exitErr.ExitCode(), s.Unit,
				strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("tool invocation failed for %s: %w", s.Unit, err)
	}

	message := strings.TrimSpace(stdout.String())
	if message == "" {
		return "", fmt.Errorf("tool produced no message for %s", s.Unit)
	}
	return message, nil
}
