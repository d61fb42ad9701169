package enhance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"pemstudy/internal/types"
)

// GeminiGenerator implements the two LLM variants against the Gemini API.
// Temperature is pinned to zero: the study wants the model's canonical
// explanation, not a creative one.
type GeminiGenerator struct {
	client       *genai.Client
	model        string
	variant      types.Variant
	timeout      time.Duration
	maxSourceLen int
}

// GeminiConfig holds the generator's construction parameters.
type GeminiConfig struct {
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxSourceLen int
}

// NewGeminiGenerator creates a generator for one of the LLM variants.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig, variant types.Variant) (*GeminiGenerator, error) {
	if variant != types.VariantLLMErrorOnly && variant != types.VariantLLMWithContext {
		return nil, fmt.Errorf("gemini generator cannot produce variant %q", variant)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set GEMINI_API_KEY)")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &GeminiGenerator{
		client:       client,
		model:        model,
		variant:      variant,
		timeout:      timeout,
		maxSourceLen: cfg.MaxSourceLen,
	}, nil
}

// Variant returns which LLM variant this generator produces.
func (g *GeminiGenerator) Variant() types.Variant {
	return g.variant
}

// Model returns the configured model name, recorded in checkpoints.
func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate issues one completion call for the scenario.
func (g *GeminiGenerator) Generate(ctx context.Context, s *types.Scenario) (string, error) {
	primary, ok := s.PrimaryRecord()
	if !ok {
		return "", fmt.Errorf("scenario %s has no diagnostic to explain", s.Unit)
	}

	var prompt string
	switch g.variant {
	case types.VariantLLMWithContext:
		if g.maxSourceLen > 0 && len(s.SourceCode) > g.maxSourceLen {
			// Oversized prompts would be truncated upstream; a rater must
			// never judge an explanation of code the model only half saw.
			return "", fmt.Errorf("source of %s is %d bytes, exceeds limit of %d",
				s.Unit, len(s.SourceCode), g.maxSourceLen)
		}
		prompt = promptWithContext(s.SourceCode, primary.Text)
	case types.VariantLLMErrorOnly:
		prompt = promptErrorOnly(primary.Text)
	default:
		return "", fmt.Errorf("unsupported variant %q", g.variant)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(callCtx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("You are a helpful assistant.", genai.RoleUser),
			Temperature:       genai.Ptr[float32](0),
		},
	)
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("empty completion for %s", s.Unit)
	}
	return text, nil
}

// classifyGeminiError maps API failures onto the pipeline's error taxonomy
// so the coordinator retries the right things.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("gemini call: %w", &types.RateLimitError{Provider: "gemini"})
		case 500, 502, 503, 504:
			return fmt.Errorf("gemini call: %w: %v", types.ErrTransientExternal, err)
		}
	}
	return fmt.Errorf("gemini call failed: %w", err)
}
