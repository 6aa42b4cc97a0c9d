package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/mkarst/CertForge/internal/pkg/env"
	"github.com/mkarst/CertForge/internal/pkg/progress"
)

const defaultModel = "gemini-2.0-flash"

// ErrNotConfigured is returned when no Gemini API key is set. Callers
// degrade to the non-AI dashboard view.
var ErrNotConfigured = errors.New("GEMINI_API_KEY is not configured")

// AnalysisResult is the structured study advice generated for a completed
// quiz attempt.
type AnalysisResult struct {
	Summary        string   `json:"summary"`
	WeakTopics     []string `json:"weak_topics"`
	Recommendation string   `json:"recommendation"`
}

// ContentGenerator is the slice of the Gemini client the analyzer needs.
type ContentGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GeminiClient wraps the Gemini SDK behind the ContentGenerator interface.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClientFromEnv creates a Gemini client from environment
// configuration. Returns ErrNotConfigured when no API key is set.
func NewGeminiClientFromEnv(ctx context.Context) (*GeminiClient, error) {
	apiKey := strings.TrimSpace(env.GetEnv("GEMINI_API_KEY", ""))
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client: client,
		model:  env.GetEnv("GEMINI_MODEL", defaultModel),
	}, nil
}

// Model reports the configured model name, for audit columns.
func (g *GeminiClient) Model() string {
	return g.model
}

func (g *GeminiClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Analyzer turns attempt results into study advice.
type Analyzer struct {
	generator ContentGenerator
}

func NewAnalyzer(generator ContentGenerator) *Analyzer {
	return &Analyzer{generator: generator}
}

// AnalyzeAttempt generates structured advice for a finished attempt from
// its score and the user's per-topic accuracy.
func (a *Analyzer) AnalyzeAttempt(ctx context.Context, examTitle string, scorePercent int, topics []progress.TopicAccuracy) (*AnalysisResult, error) {
	raw, err := a.generator.GenerateText(ctx, BuildAnalysisPrompt(examTitle, scorePercent, topics))
	if err != nil {
		return nil, err
	}
	return ParseAnalysisResponse(raw)
}

// BuildAnalysisPrompt renders the model prompt for an attempt analysis.
func BuildAnalysisPrompt(examTitle string, scorePercent int, topics []progress.TopicAccuracy) string {
	var sb strings.Builder
	sb.WriteString("You are a study coach for IT certification exams. ")
	sb.WriteString(fmt.Sprintf("A learner just scored %d%% on a practice quiz for %q.\n", scorePercent, examTitle))
	sb.WriteString("Their per-topic accuracy so far:\n")
	for _, t := range topics {
		sb.WriteString(fmt.Sprintf("- %s: %d/%d correct (%d%%)\n", t.Topic, t.Correct, t.Answered, t.Percent()))
	}
	sb.WriteString("\nRespond with JSON only, using this shape:\n")
	sb.WriteString(`{"summary": "...", "weak_topics": ["..."], "recommendation": "..."}`)
	sb.WriteString("\nKeep summary under 60 words and recommendation under 80 words.")
	return sb.String()
}

// ParseAnalysisResponse decodes a model response, tolerating markdown code
// fences around the JSON body.
func ParseAnalysisResponse(raw string) (*AnalysisResult, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("unexpected analysis response: %w", err)
	}
	if strings.TrimSpace(result.Summary) == "" {
		return nil, errors.New("analysis response missing summary")
	}
	return &result, nil
}
