package nerfallback

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	llm "github.com/herbarium-data/collector-canon/pkg/provider/llm"

	"github.com/herbarium-data/collector-canon/internal/classify"
)

const defaultTemperature = 0.0

const systemPrompt = `You are a named-entity-recognition assistant for herbarium specimen collector attributions.

Your task: identify PERSON and ORGANIZATION entities in the provided text, which names one or more people who collected a botanical specimen, an institution, or an unnamed group.

Rules:
- A PERSON entity is a single named individual, however abbreviated ("R.C. Forzza", "Forzza, R.", "Tiago Grespan").
- An ORGANIZATION entity is an institution, herbarium, university, or company.
- Score each entity's confidence in [0.0, 1.0] based on how certain you are it is a real name/institution rather than noise.
- If the text is too short, garbled, or contains no identifiable entity, return an empty entities array.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "entities": [
    {"text": "<entity text>", "label": "PERSON"|"ORGANIZATION", "score": <0.0-1.0>}
  ]
}`

type llmResponse struct {
	Entities []struct {
		Text  string  `json:"text"`
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"entities"`
}

// Option configures an LLMAdapter.
type Option func(*LLMAdapter)

// WithTemperature overrides the sampling temperature used for extraction
// requests. Default: 0.0 (deterministic).
func WithTemperature(temp float64) Option {
	return func(a *LLMAdapter) {
		a.temperature = temp
	}
}

// LLMAdapter is an Adapter backed by an llm.Provider, used when the rule
// classifier's confidence falls below the configured trigger threshold.
type LLMAdapter struct {
	llm         llm.Provider
	temperature float64
}

// NewLLMAdapter returns an Adapter backed by provider.
func NewLLMAdapter(provider llm.Provider, opts ...Option) *LLMAdapter {
	a := &LLMAdapter{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Classify asks the model to extract entities from rawText and translates
// the result into the confidence-adjustment table: enough PERSON entities at
// high enough score promotes to ConjuntoPessoas, a single strong PERSON
// promotes to Pessoa, an ORGANIZATION promotes to Empresa, and text with no
// usable entity signals that the record should be discarded rather than
// persisted under any category.
func (a *LLMAdapter) Classify(ctx context.Context, rawText string, ruleConfidence float64) (Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  a.temperature,
		Messages: []llm.Message{
			{Role: "user", Content: rawText},
		},
	}

	resp, err := a.llm.Complete(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("nerfallback: complete: %w", err)
	}

	entities, err := parseEntities(resp.Content)
	if err != nil {
		// Unparseable response: degrade gracefully, the rule result stands.
		return Result{}, nil //nolint:nilerr // intentional graceful fallback
	}

	return adjust(rawText, entities), nil
}

func parseEntities(content string) ([]Entity, error) {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return nil, fmt.Errorf("nerfallback: parse response: %w", err)
	}

	entities := make([]Entity, 0, len(r.Entities))
	for _, e := range r.Entities {
		if e.Text == "" {
			continue
		}
		entities = append(entities, Entity{
			Text:  e.Text,
			Label: EntityLabel(e.Label),
			Score: e.Score,
		})
	}
	return entities, nil
}

// adjust implements the §4.5 confidence-adjustment table.
func adjust(rawText string, entities []Entity) Result {
	if countAlpha(rawText) < 3 {
		return Result{Entities: entities, Discard: true}
	}

	personScores := scoresFor(entities, LabelPerson)
	orgScores := scoresFor(entities, LabelOrganization)

	if len(personScores) == 0 && len(orgScores) == 0 {
		return Result{Entities: entities, Discard: true}
	}

	if len(orgScores) > 0 && len(personScores) == 0 {
		return Result{
			Entities:           entities,
			ImprovedCategory:   classify.Empresa,
			ImprovedConfidence: 0.85,
		}
	}

	maxPerson := max(personScores)
	strongPersonCount := countAbove(personScores, 0.85)

	switch {
	case strongPersonCount >= 2:
		return Result{Entities: entities, ImprovedCategory: classify.ConjuntoPessoas, ImprovedConfidence: 0.90}
	case strongPersonCount == 1:
		return Result{Entities: entities, ImprovedCategory: classify.Pessoa, ImprovedConfidence: 0.85}
	case maxPerson > 0.70:
		return Result{Entities: entities, ImprovedCategory: classify.Pessoa, ImprovedConfidence: 0.75}
	case maxPerson > 0.50:
		return Result{Entities: entities, ImprovedCategory: classify.Pessoa, ImprovedConfidence: 0.70}
	default:
		return Result{Entities: entities, Discard: true}
	}
}

func scoresFor(entities []Entity, label EntityLabel) []float64 {
	var scores []float64
	for _, e := range entities {
		if e.Label == label {
			scores = append(scores, e.Score)
		}
	}
	return scores
}

func max(scores []float64) float64 {
	m := 0.0
	for _, s := range scores {
		if s > m {
			m = s
		}
	}
	return m
}

func countAbove(scores []float64, threshold float64) int {
	n := 0
	for _, s := range scores {
		if s > threshold {
			n++
		}
	}
	return n
}

func countAlpha(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

var _ Adapter = (*LLMAdapter)(nil)
