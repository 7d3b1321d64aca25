// Package advisor asks a generative model for a short economic read of a
// composed plan.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/ocx/econcore/internal/core"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("advisor disabled")

// Fallback is returned when the model answers with no text.
const Fallback = "Analysis complete."

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Advisor builds the plan prompt and post-processes the answer.
type Advisor struct {
	gen Generator
}

func New(gen Generator) *Advisor {
	return &Advisor{gen: gen}
}

// Enabled reports whether a generator is wired.
func (a *Advisor) Enabled() bool { return a != nil && a.gen != nil }

// AnalyzePlan returns a two-sentence sustainability analysis of plan.
func (a *Advisor) AnalyzePlan(ctx context.Context, plan *core.AgentPlan) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	if plan == nil {
		return "", fmt.Errorf("analyze: nil plan")
	}
	text, err := a.gen.Generate(ctx, Prompt(plan))
	if err != nil {
		slog.Warn("[Advisor] generation failed", "plan_id", plan.ID(), "error", err)
		return "", fmt.Errorf("analyze plan %s: %w", plan.ID(), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Fallback, nil
	}
	return text, nil
}

// Prompt renders the plan summary sent to the model.
func Prompt(plan *core.AgentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent plan analysis for goal %q.\n", plan.Goal())
	fmt.Fprintf(&b, "Estimated cost $%.4f, estimated value %.1f, overall utility %d.\n",
		plan.TotalCost(), plan.TotalValue(), plan.OverallUtility())
	for i, s := range plan.Steps() {
		fmt.Fprintf(&b, "%d. %s (cost %.4f, value %.1f, risk %.0f, score %.1f)\n",
			i+1, s.Name, s.BaseCost, s.BaseValue, s.BaseRisk, s.Score)
	}
	b.WriteString("2 sentences on economic sustainability.")
	return b.String()
}

// GeminiGenerator calls the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiGenerator dials Gemini with an API key.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, ErrDisabled
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: client.GenerativeModel(model)}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	return b.String(), nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
