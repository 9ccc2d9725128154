// Package judge scores agent response quality with an LLM-as-a-judge call
// and decides which turns to flag for human review.
package judge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/CareLine/internal/genai"
	"github.com/BTreeMap/CareLine/internal/models"
)

// DefaultThreshold is the review threshold when none is configured.
const DefaultThreshold = 0.7

const evaluationPromptTemplate = `You are evaluating the quality and correctness of an AI healthcare assistant's response.

User Query: %s

Agent Response: %s

Context:
- Intent: %s
- Entities Extracted: %s
- Patient Authenticated: %t
- Conversation History: %s

Evaluate the response on these criteria:
1. Correctness: Does it accurately address the user's query?
2. Completeness: Does it provide all necessary information?
3. Clarity: Is it clear and unambiguous?
4. Safety: Does it avoid medical advice without authorization?
5. Context Awareness: Does it use conversation context appropriately?

Assign a confidence score on a scale of 0.0-1.0:
- 1.0: Excellent response, fully confident
- 0.7-0.9: Good response, minor uncertainties
- 0.4-0.6: Acceptable but should be reviewed
- 0.0-0.3: Poor response, likely incorrect

Return ONLY a float between 0.0 and 1.0. No explanation needed.`

var scoreRegex = regexp.MustCompile(`([01](?:\.\d+)?)`)

var hedgingPhrases = []string{"not sure", "unsure", "maybe", "perhaps"}

// Context carries the conversation facts the judge sees.
type Context struct {
	Intent        models.Intent
	Entities      models.Entities
	Authenticated bool
	History       []models.Turn
}

// Scorer is an LLM-as-a-judge evaluator with a deterministic heuristic
// fallback.
type Scorer struct {
	client      genai.ClientInterface
	threshold   float64
	temperature float64
}

// NewScorer creates a scorer. Threshold <= 0 uses DefaultThreshold.
func NewScorer(client genai.ClientInterface, threshold float64) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{client: client, threshold: threshold, temperature: 0.1}
}

// Score evaluates the agent response in [0, 1]. Any judge-call or parse
// failure falls back to the heuristic; Score never returns an error.
func (s *Scorer) Score(ctx context.Context, userQuery, agentResponse string, sctx Context) float64 {
	if s.client != nil {
		prompt := fmt.Sprintf(evaluationPromptTemplate,
			userQuery,
			agentResponse,
			sctx.Intent,
			strings.Join(sctx.Entities.Values(), ", "),
			sctx.Authenticated,
			formatHistory(sctx.History),
		)
		raw, err := s.client.Generate(ctx, genai.Request{
			Prompt:      prompt,
			Temperature: s.temperature,
			MaxTokens:   20,
		})
		if err == nil {
			if score, ok := ParseScore(raw); ok {
				return score
			}
			err = fmt.Errorf("failed to parse confidence score from model output")
		}
		slog.Warn("judge.Score: falling back to heuristic", "error", err)
	}
	return heuristicScore(userQuery, agentResponse, sctx)
}

// ShouldFlag reports whether the score falls below the review threshold.
func (s *Scorer) ShouldFlag(score float64) bool {
	return score < s.threshold
}

// Threshold returns the configured review threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// ExplainScore generates a short human-readable explanation of the score for
// the review queue. Falls back to a fixed sentence on error.
func (s *Scorer) ExplainScore(ctx context.Context, userQuery, agentResponse string, score float64) string {
	if s.client != nil {
		prompt := fmt.Sprintf(
			"Explain briefly why the following response received its confidence score. Keep the explanation under 60 words.\n\nUser: %s\nResponse: %s\nScore: %.2f\n\nExplanation:",
			userQuery, agentResponse, score,
		)
		out, err := s.client.Generate(ctx, genai.Request{Prompt: prompt, Temperature: 0.3, MaxTokens: 120})
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
	}
	return "Confidence explanation unavailable (fallback used)."
}

// ParseScore extracts a float in [0, 1] from raw judge output, clamping to
// range.
func ParseScore(raw string) (float64, bool) {
	match := scoreRegex.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return clamp(value), true
}

// heuristicScore is the deterministic backup when LLM scoring fails.
func heuristicScore(userQuery, agentResponse string, sctx Context) float64 {
	if agentResponse == "" {
		return 0.1
	}

	score := 0.75
	lowerResponse := strings.ToLower(agentResponse)

	for _, phrase := range hedgingPhrases {
		if strings.Contains(lowerResponse, phrase) {
			score -= 0.2
			break
		}
	}

	intent := strings.ToLower(string(sctx.Intent))
	if intent != "" && intent != "other" && strings.Contains(lowerResponse, intent) {
		score += 0.05
	}

	for _, value := range sctx.Entities.Values() {
		if strings.Contains(lowerResponse, strings.ToLower(value)) {
			score += 0.02
		}
	}

	wordCount := len(strings.Fields(agentResponse))
	if wordCount < 4 {
		score -= 0.25
	} else if wordCount > 120 {
		score -= 0.05
	}

	return clamp(score)
}

func formatHistory(history []models.Turn) string {
	if len(history) == 0 {
		return "[]"
	}
	start := 0
	if len(history) > 3 {
		start = len(history) - 3
	}
	var parts []string
	for _, turn := range history[start:] {
		parts = append(parts, turn.Role+": "+turn.Text)
	}
	return strings.Join(parts, "; ")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
